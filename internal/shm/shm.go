// Package shm maps a named shared-memory segment the way POSIX shm_open +
// mmap would, backing it with a file under /dev/shm (a tmpfs on every Linux
// this tool targets) since the Go standard library exposes neither
// shm_open(3) nor a portable mmap. golang.org/x/sys/unix supplies the mmap
// primitive itself.
package shm

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

const dir = "/dev/shm"

// path turns a POSIX-style shared memory name ("/shm_timemanager1") into the
// backing file path.
func path(name string) string {
	return filepath.Join(dir, strings.TrimPrefix(name, "/"))
}

// Segment is a memory-mapped view of a named, fixed-size shared segment.
type Segment struct {
	Bytes []byte

	fd int
}

// Open ensures the named segment exists, sized to size, and maps it
// read/write. The caller must call Close when done; the mapping does not
// survive past that call.
func Open(name string, size int) (*Segment, error) {
	p := path(name)
	fd, err := unix.Open(p, unix.O_RDWR|unix.O_CREAT, 0o666)
	if err != nil {
		return nil, errors.Wrapf(err, "open shared segment %q", p)
	}

	st, err := os.Stat(p)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "stat shared segment %q", p)
	}
	if st.Size() != int64(size) {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			unix.Close(fd)
			return nil, errors.Wrapf(err, "size shared segment %q to %d bytes", p, size)
		}
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "mmap shared segment %q", p)
	}

	return &Segment{Bytes: data, fd: fd}, nil
}

// Close unmaps the segment and closes its backing descriptor. The named
// segment itself persists until Unlink is called.
func (s *Segment) Close() error {
	err := unix.Munmap(s.Bytes)
	if cerr := unix.Close(s.fd); err == nil {
		err = cerr
	}
	return err
}

// Unlink removes the named segment. A segment that does not exist is not an
// error.
func Unlink(name string) error {
	err := os.Remove(path(name))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "unlink shared segment %q", name)
	}
	return nil
}
