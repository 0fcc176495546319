// Package backing provides the byte-addressable stores that hold executable
// images and swapped-out pages.
package backing

import "io"

// A Store is an open backing file.
type Store interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// A FileSystem creates and opens stores by name.
type FileSystem interface {
	// Open opens an existing store.
	Open(name string) (Store, error)

	// Create creates a zero-filled store of size bytes, replacing any store
	// of the same name.
	Create(name string, size uint64) error

	// Copy replaces the content of dst with the content of src.
	Copy(src, dst string) error

	Remove(name string) error

	Size(name string) (uint64, error)
}

// ReadFull reads len(buf) bytes at offset, treating a short read at the end
// of the store as success. It returns the number of bytes read.
func ReadFull(s Store, buf []byte, offset uint64) (int, error) {
	n, err := s.ReadAt(buf, int64(offset))
	if err == io.EOF {
		err = nil
	}

	return n, err
}
