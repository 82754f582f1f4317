package blockstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// DefaultDir is used when no location is configured or the configured
	// location cannot be found.
	DefaultDir = "./data"

	// DefaultFileName is appended when a location names a directory.
	DefaultFileName = "incrementer.sequence.dat"
)

// ResolvePath turns a configured location into the path of a counter file,
// creating the file (empty, counter 0) if it does not exist yet.
//
// An empty location, or one whose parent directory does not exist, falls back
// to DefaultDir. A directory gets fileName (DefaultFileName when empty)
// appended.
func ResolvePath(location, fileName string) (string, error) {
	if fileName == "" {
		fileName = DefaultFileName
	}

	path := filepath.Clean(location)
	if location == "" || !exists(path) && !exists(filepath.Dir(path)) {
		if err := os.MkdirAll(DefaultDir, 0o755); err != nil {
			return "", &StorageError{Op: "mkdir", Path: DefaultDir, Err: err}
		}
		path = filepath.Clean(DefaultDir)
	}

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		path = filepath.Join(path, fileName)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return "", &StorageError{Op: "stat", Path: path, Err: err}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return "", &StorageError{Op: "create", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &StorageError{Op: "close", Path: path, Err: err}
	}

	info, err = os.Stat(path)
	if err != nil {
		return "", &StorageError{Op: "stat", Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return "", &StorageError{Op: "stat", Path: path, Err: fmt.Errorf("not a regular file")}
	}

	return path, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
