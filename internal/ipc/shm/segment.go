package shm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// DefaultDir is the tmpfs used for POSIX shared memory on Linux
const DefaultDir = "/dev/shm"

var ErrInvalidName = errors.New("shm: invalid segment name")

// Segment is a mapped shared memory segment
type Segment struct {
	name string
	path string
	fd   int
	data []byte
}

// Path returns the file backing the named segment
func Path(dir, name string) string {
	return filepath.Join(dir, name)
}

func validName(name string) error {
	if name == "" || strings.ContainsRune(name, '/') || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Create creates and maps a new zero-filled segment of size bytes.
// It fails with an error matching os.ErrExist if the segment already exists.
func Create(dir, name string, size int) (*Segment, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid size %d for %q", size, name)
	}

	path := Path(dir, name)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return nil, &os.PathError{Op: "create", Path: path, Err: err}
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, &os.PathError{Op: "truncate", Path: path, Err: err}
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		unix.Unlink(path)
		return nil, &os.PathError{Op: "mmap", Path: path, Err: err}
	}

	return &Segment{name: name, path: path, fd: fd, data: data}, nil
}

// Open maps an existing segment with its current size.
// It fails with an error matching os.ErrNotExist if nobody created it.
func Open(dir, name string) (*Segment, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	path := Path(dir, name)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	if st.Size <= 0 {
		unix.Close(fd)
		return nil, &os.PathError{Op: "open", Path: path, Err: unix.EINVAL}
	}

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, &os.PathError{Op: "mmap", Path: path, Err: err}
	}

	return &Segment{name: name, path: path, fd: fd, data: data}, nil
}

// Unlink removes the named segment from the directory
func Unlink(dir, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	path := Path(dir, name)
	if err := unix.Unlink(path); err != nil {
		return &os.PathError{Op: "unlink", Path: path, Err: err}
	}
	return nil
}

// Name returns the segment name
func (s *Segment) Name() string {
	return s.name
}

// Size returns the mapped size in bytes
func (s *Segment) Size() int {
	return len(s.data)
}

// Bytes returns the mapped memory. It is invalid after Close.
func (s *Segment) Bytes() []byte {
	return s.data
}

// Close unmaps the segment and closes its descriptor
func (s *Segment) Close() error {
	var err error
	if s.data != nil {
		if e := unix.Munmap(s.data); e != nil {
			err = multierr.Append(err, &os.PathError{Op: "munmap", Path: s.path, Err: e})
		}
		s.data = nil
	}
	if s.fd >= 0 {
		if e := unix.Close(s.fd); e != nil {
			err = multierr.Append(err, &os.PathError{Op: "close", Path: s.path, Err: e})
		}
		s.fd = -1
	}
	return err
}
