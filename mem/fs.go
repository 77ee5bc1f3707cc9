package mem

import (
	"io/fs"
	"sync"

	"github.com/dacapoday/glass"
)

// FS is an in-memory glass.FS. The zero value is empty and ready to use.
type FS struct {
	mutex sync.Mutex
	files map[string]*File
}

var _ glass.FS = new(FS)

func (fsys *FS) Open(path string, readOnly, create bool) (glass.File, error) {
	fsys.mutex.Lock()
	defer fsys.mutex.Unlock()
	if file, ok := fsys.files[path]; ok {
		return file, nil
	}
	if readOnly || !create {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	if fsys.files == nil {
		fsys.files = make(map[string]*File)
	}
	file := new(File)
	fsys.files[path] = file
	return file, nil
}

func (fsys *FS) Remove(path string) error {
	fsys.mutex.Lock()
	delete(fsys.files, path)
	fsys.mutex.Unlock()
	return nil
}

func (fsys *FS) Exists(path string) (bool, error) {
	fsys.mutex.Lock()
	_, ok := fsys.files[path]
	fsys.mutex.Unlock()
	return ok, nil
}

// MkdirAll is a no-op; paths are plain keys.
func (fsys *FS) MkdirAll(string) error {
	return nil
}

// File returns the file stored at path, or nil.
func (fsys *FS) File(path string) *File {
	fsys.mutex.Lock()
	defer fsys.mutex.Unlock()
	return fsys.files[path]
}
