package glass

import (
	"errors"
	"io/fs"
	"os"
)

// FS opens and removes table files.
type FS interface {
	// Open opens path. With create set, a missing file is created empty.
	Open(path string, readOnly, create bool) (File, error)

	// Remove deletes path. Removing a missing file is not an error.
	Remove(path string) error

	// Exists reports whether path holds a file.
	Exists(path string) (bool, error)

	// MkdirAll creates the directory dir and any missing parents.
	MkdirAll(dir string) error
}

// OS is the FS backed by the host file system.
var OS FS = osFS{}

type osFS struct{}

func (osFS) Open(path string, readOnly, create bool) (File, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	} else if create {
		flag |= os.O_CREATE
	}
	file, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (osFS) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (osFS) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (osFS) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
