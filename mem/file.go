// Package mem provides in-memory implementations of glass.File and glass.FS.
package mem

import (
	"errors"
	"io"
	"sync"

	"github.com/dacapoday/glass"
)

// ErrInjected is returned by a File whose fault injection is armed.
var ErrInjected = errors.New("mem: injected fault")

// File is an in-memory implementation of the glass.File interface.
// It is safe for concurrent use by multiple goroutines.
//
// File requires no initialization - just declare and use:
//
//	var f File
//	f.WriteAt([]byte("hello"), 0)
type File struct {
	rw   sync.RWMutex
	data []byte

	failReads  bool
	failWrites bool
	syncs      int
}

var _ glass.File = new(File)

// Close keeps the content so a File can be reopened like a disk file.
func (file *File) Close() error {
	return nil
}

// Size returns the current size of the file in bytes.
func (file *File) Size() int64 {
	file.rw.RLock()
	defer file.rw.RUnlock()
	return int64(len(file.data))
}

// Bytes returns a copy of the file content.
func (file *File) Bytes() []byte {
	file.rw.RLock()
	defer file.rw.RUnlock()
	return append([]byte(nil), file.data...)
}

// Syncs returns how many times Sync was called.
func (file *File) Syncs() int {
	file.rw.RLock()
	defer file.rw.RUnlock()
	return file.syncs
}

// FailReads makes every following ReadAt fail with ErrInjected.
func (file *File) FailReads(fail bool) {
	file.rw.Lock()
	file.failReads = fail
	file.rw.Unlock()
}

// FailWrites makes every following WriteAt, Truncate and Sync fail with ErrInjected.
func (file *File) FailWrites(fail bool) {
	file.rw.Lock()
	file.failWrites = fail
	file.rw.Unlock()
}

// WriteAt writes len(p) bytes from p at offset off, growing the file with
// zero bytes when off is past the end.
func (file *File) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	file.rw.Lock()
	defer file.rw.Unlock()
	if file.failWrites {
		return 0, ErrInjected
	}
	if end := off + int64(len(p)); end > int64(len(file.data)) {
		if end > int64(cap(file.data)) {
			grown := make([]byte, end, max(end, 2*int64(cap(file.data))))
			copy(grown, file.data)
			file.data = grown
		} else {
			file.data = file.data[:end]
		}
	}
	return copy(file.data[off:], p), nil
}

// ReadAt reads len(p) bytes into p from offset off.
// A short read returns io.EOF.
func (file *File) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	file.rw.RLock()
	defer file.rw.RUnlock()
	if file.failReads {
		return 0, ErrInjected
	}
	if off >= int64(len(file.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n = copy(p, file.data[off:])
	if n < len(p) {
		err = io.EOF
	}
	return
}

// Truncate changes the size of the file.
func (file *File) Truncate(size int64) error {
	if size < 0 {
		return io.ErrUnexpectedEOF
	}
	file.rw.Lock()
	defer file.rw.Unlock()
	if file.failWrites {
		return ErrInjected
	}
	if size <= int64(len(file.data)) {
		clear(file.data[size:])
		file.data = file.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, file.data)
	file.data = grown
	return nil
}

// Sync only counts calls for in-memory files.
func (file *File) Sync() error {
	file.rw.Lock()
	defer file.rw.Unlock()
	if file.failWrites {
		return ErrInjected
	}
	file.syncs++
	return nil
}
