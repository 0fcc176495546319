package backing

import (
	"io"
	"os"
	"path/filepath"
)

type osFileSystem struct {
	dir string
}

// NewOSFileSystem returns a file system whose stores are files under dir.
// Absolute names are used as they are.
func NewOSFileSystem(dir string) FileSystem {
	return &osFileSystem{dir: dir}
}

func (fs *osFileSystem) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}

	return filepath.Join(fs.dir, name)
}

func (fs *osFileSystem) Open(name string) (Store, error) {
	f, err := os.OpenFile(fs.path(name), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	return f, nil
}

func (fs *osFileSystem) Create(name string, size uint64) error {
	f, err := os.Create(fs.path(name))
	if err != nil {
		return err
	}
	defer f.Close()

	return f.Truncate(int64(size))
}

func (fs *osFileSystem) Copy(src, dst string) error {
	in, err := os.Open(fs.path(src))
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(fs.path(dst))
	if err != nil {
		return err
	}

	_, err = io.Copy(out, in)
	if err != nil {
		out.Close()
		return err
	}

	return out.Close()
}

func (fs *osFileSystem) Remove(name string) error {
	return os.Remove(fs.path(name))
}

func (fs *osFileSystem) Size(name string) (uint64, error) {
	info, err := os.Stat(fs.path(name))
	if err != nil {
		return 0, err
	}

	return uint64(info.Size()), nil
}
