package blockstore

import (
	"context"
	"os"
	"sync"
)

// FileConfig configures a FileStore.
type FileConfig struct {
	// Path is resolved with ResolvePath; a directory gets FileName appended.
	Path     string
	FileName string
	// AlwaysOpen keeps the file handle for the lifetime of the store instead
	// of opening and closing it around every reservation.
	AlwaysOpen bool
	// Sync fsyncs the file after each counter write.
	Sync bool
	// Lock takes an advisory exclusive lock while the handle is open.
	Lock bool
}

// FileStore keeps the counter as one big-endian uint64 at offset 0 of a file.
// An empty file is a counter of 0.
type FileStore struct {
	mu         sync.Mutex
	path       string
	alwaysOpen bool
	sync       bool
	lock       bool
	f          *os.File
}

// NewFileStore resolves the configured location and returns a store over it.
// The file is created empty when missing; it is opened lazily by the first
// reservation.
func NewFileStore(cfg FileConfig) (*FileStore, error) {
	path, err := ResolvePath(cfg.Path, cfg.FileName)
	if err != nil {
		return nil, err
	}
	return &FileStore{
		path:       path,
		alwaysOpen: cfg.AlwaysOpen,
		sync:       cfg.Sync,
		lock:       cfg.Lock,
	}, nil
}

// Path returns the resolved counter file path.
func (s *FileStore) Path() string {
	return s.path
}

// ReserveBlock performs the read-modify-write of the counter. Nothing is
// rolled back on failure: a failed write leaves the file as the OS left it.
func (s *FileStore) ReserveBlock(ctx context.Context, increment uint64) (bound uint64, err error) {
	if increment == 0 {
		return 0, ErrInvalidIncrement
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return 0, err
	}
	if !s.alwaysOpen {
		defer func() {
			if cerr := s.release(); cerr != nil && err == nil {
				bound, err = 0, cerr
			}
		}()
	}

	current, err := s.read(f)
	if err != nil {
		return 0, err
	}

	next, err := advance(current, increment)
	if err != nil {
		return 0, &StorageError{Op: "reserve", Path: s.path, Err: err}
	}

	if _, err := f.WriteAt(encodeCounter(next), 0); err != nil {
		return 0, &StorageError{Op: "write", Path: s.path, Err: err}
	}
	if s.sync {
		if err := f.Sync(); err != nil {
			return 0, &StorageError{Op: "sync", Path: s.path, Err: err}
		}
	}

	return next, nil
}

// Current reads the persisted counter without advancing it.
func (s *FileStore) Current(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f != nil {
		return s.read(s.f)
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		return 0, &StorageError{Op: "read", Path: s.path, Err: err}
	}
	v, err := decodeCounter(b)
	if err != nil {
		return 0, &StorageError{Op: "read", Path: s.path, Err: err}
	}
	return v, nil
}

// IsOpen reports whether the store currently holds a file handle.
func (s *FileStore) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f != nil
}

// Close releases the held file handle, if any.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.release()
}

// open must be called with s.mu held.
func (s *FileStore) open() (*os.File, error) {
	if s.f != nil {
		return s.f, nil
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &StorageError{Op: "open", Path: s.path, Err: err}
	}
	if s.lock {
		if err := lockFile(f); err != nil {
			f.Close()
			return nil, &StorageError{Op: "lock", Path: s.path, Err: err}
		}
	}

	s.f = f
	return f, nil
}

// release must be called with s.mu held.
func (s *FileStore) release() error {
	if s.f == nil {
		return nil
	}
	f := s.f
	s.f = nil
	if err := f.Close(); err != nil {
		return &StorageError{Op: "close", Path: s.path, Err: err}
	}
	return nil
}

func (s *FileStore) read(f *os.File) (uint64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, &StorageError{Op: "stat", Path: s.path, Err: err}
	}

	size := info.Size()
	if size == 0 {
		return 0, nil
	}
	if size > counterSize {
		size = counterSize
	}

	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, &StorageError{Op: "read", Path: s.path, Err: err}
	}

	v, err := decodeCounter(buf)
	if err != nil {
		return 0, &StorageError{Op: "read", Path: s.path, Err: err}
	}
	return v, nil
}
