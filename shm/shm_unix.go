//go:build unix

package shm

import (
	"os"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

// Open maps file Dir/basename(name) read-only.
func (self OSOpener) Open(name string, size int) (Region, error) {
	if err := checkSize(name, size); err != nil {
		return nil, err
	}
	path := FilePath(self.Dir, name)
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, errors.Annotatef(ErrNotFound, "shm open path=%s", path)
		}
		return nil, errors.Annotatef(os.NewSyscallError("open", err), "shm open path=%s", path)
	}
	// mapping stays valid after close
	defer unix.Close(fd)

	var st unix.Stat_t
	if err = unix.Fstat(fd, &st); err != nil {
		return nil, errors.Annotatef(os.NewSyscallError("fstat", err), "shm path=%s", path)
	}
	if st.Size < int64(size) {
		return nil, errors.Annotatef(ErrTooSmall, "shm path=%s size=%d expected=%d", path, st.Size, size)
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Annotatef(os.NewSyscallError("mmap", err), "shm path=%s size=%d", path, size)
	}
	return &mmapRegion{name: name, data: data}, nil
}

type mmapRegion struct {
	name string
	data []byte
}

func (self *mmapRegion) Name() string { return self.name }
func (self *mmapRegion) Size() int    { return len(self.data) }

func (self *mmapRegion) Copy(dst []byte) (int, error) {
	if self.data == nil {
		return 0, ErrClosed
	}
	return copy(dst, self.data), nil
}

func (self *mmapRegion) Close() error {
	if self.data == nil {
		return nil
	}
	err := unix.Munmap(self.data)
	self.data = nil
	return errors.Annotatef(err, "shm munmap name=%s", self.name)
}
