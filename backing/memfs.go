package backing

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// MemFileSystem keeps every store in memory. Stores opened from it share
// their bytes with the file system, so writes survive Close.
type MemFileSystem struct {
	sync.Mutex
	files map[string]*memFile
}

// NewMemFileSystem creates an empty in-memory file system.
func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{files: make(map[string]*memFile)}
}

type memFile struct {
	sync.Mutex
	data []byte
}

type memStore struct {
	file   *memFile
	closed bool
}

func (fs *MemFileSystem) fileMustExist(name string) (*memFile, error) {
	f, ok := fs.files[name]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, os.ErrNotExist)
	}

	return f, nil
}

// WriteFile creates or replaces a store with the given content.
func (fs *MemFileSystem) WriteFile(name string, data []byte) {
	fs.Lock()
	defer fs.Unlock()

	fs.files[name] = &memFile{data: append([]byte(nil), data...)}
}

// ReadFile returns a copy of the content of a store.
func (fs *MemFileSystem) ReadFile(name string) ([]byte, error) {
	fs.Lock()
	defer fs.Unlock()

	f, err := fs.fileMustExist(name)
	if err != nil {
		return nil, err
	}

	f.Lock()
	defer f.Unlock()

	return append([]byte(nil), f.data...), nil
}

// Exists tells whether a store of the name exists.
func (fs *MemFileSystem) Exists(name string) bool {
	fs.Lock()
	defer fs.Unlock()

	_, ok := fs.files[name]

	return ok
}

// Open opens an existing store.
func (fs *MemFileSystem) Open(name string) (Store, error) {
	fs.Lock()
	defer fs.Unlock()

	f, err := fs.fileMustExist(name)
	if err != nil {
		return nil, err
	}

	return &memStore{file: f}, nil
}

// Create creates a zero-filled store.
func (fs *MemFileSystem) Create(name string, size uint64) error {
	fs.Lock()
	defer fs.Unlock()

	fs.files[name] = &memFile{data: make([]byte, size)}

	return nil
}

// Copy replaces dst with a copy of src.
func (fs *MemFileSystem) Copy(src, dst string) error {
	fs.Lock()
	defer fs.Unlock()

	f, err := fs.fileMustExist(src)
	if err != nil {
		return err
	}

	f.Lock()
	data := append([]byte(nil), f.data...)
	f.Unlock()

	fs.files[dst] = &memFile{data: data}

	return nil
}

// Remove deletes a store.
func (fs *MemFileSystem) Remove(name string) error {
	fs.Lock()
	defer fs.Unlock()

	if _, err := fs.fileMustExist(name); err != nil {
		return err
	}

	delete(fs.files, name)

	return nil
}

// Size returns the size of a store.
func (fs *MemFileSystem) Size(name string) (uint64, error) {
	fs.Lock()
	defer fs.Unlock()

	f, err := fs.fileMustExist(name)
	if err != nil {
		return 0, err
	}

	f.Lock()
	defer f.Unlock()

	return uint64(len(f.data)), nil
}

func (s *memStore) ReadAt(p []byte, off int64) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}

	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}

	s.file.Lock()
	defer s.file.Unlock()

	if off >= int64(len(s.file.data)) {
		return 0, io.EOF
	}

	n := copy(p, s.file.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (s *memStore) WriteAt(p []byte, off int64) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}

	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}

	s.file.Lock()
	defer s.file.Unlock()

	end := off + int64(len(p))
	if end > int64(len(s.file.data)) {
		grown := make([]byte, end)
		copy(grown, s.file.data)
		s.file.data = grown
	}

	return copy(s.file.data[off:], p), nil
}

func (s *memStore) Close() error {
	if s.closed {
		return os.ErrClosed
	}

	s.closed = true

	return nil
}
