//go:build windows

package shm

import (
	"unsafe"

	"github.com/juju/errors"
	"golang.org/x/sys/windows"
)

var procOpenFileMappingW = windows.NewLazySystemDLL("kernel32.dll").NewProc("OpenFileMappingW")

func openFileMapping(access uint32, name *uint16) (windows.Handle, error) {
	r, _, e := procOpenFileMappingW.Call(uintptr(access), 0, uintptr(unsafe.Pointer(name)))
	if r == 0 {
		return 0, e
	}
	return windows.Handle(r), nil
}

// Open maps named kernel file mapping object read-only.
func (self OSOpener) Open(name string, size int) (Region, error) {
	if err := checkSize(name, size); err != nil {
		return nil, err
	}
	namep, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, errors.Annotatef(err, "shm name=%s", name)
	}
	h, err := openFileMapping(windows.FILE_MAP_READ, namep)
	if err != nil {
		if err == windows.ERROR_FILE_NOT_FOUND {
			return nil, errors.Annotatef(ErrNotFound, "shm OpenFileMapping name=%s", name)
		}
		return nil, errors.Annotatef(err, "shm OpenFileMapping name=%s", name)
	}
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, errors.Annotatef(err, "shm MapViewOfFile name=%s size=%d", name, size)
	}
	var mbi windows.MemoryBasicInformation
	if err = windows.VirtualQuery(addr, &mbi, unsafe.Sizeof(mbi)); err == nil && mbi.RegionSize < uintptr(size) {
		err = errors.Annotatef(ErrTooSmall, "shm name=%s size=%d expected=%d", name, mbi.RegionSize, size)
	}
	if err != nil {
		windows.UnmapViewOfFile(addr)
		windows.CloseHandle(h)
		return nil, errors.Annotatef(err, "shm name=%s", name)
	}
	// addr is a mapped view outside Go heap, valid until UnmapViewOfFile,
	// so the uintptr to unsafe.Pointer conversion is intended.
	return &viewRegion{
		name: name,
		h:    h,
		addr: addr,
		data: unsafe.Slice((*byte)(unsafe.Pointer(addr)), size),
	}, nil
}

type viewRegion struct {
	name string
	h    windows.Handle
	addr uintptr
	data []byte
}

func (self *viewRegion) Name() string { return self.name }
func (self *viewRegion) Size() int    { return len(self.data) }

func (self *viewRegion) Copy(dst []byte) (int, error) {
	if self.data == nil {
		return 0, ErrClosed
	}
	return copy(dst, self.data), nil
}

// Close unmaps view first, then closes mapping handle.
func (self *viewRegion) Close() error {
	if self.data == nil {
		return nil
	}
	self.data = nil
	err1 := windows.UnmapViewOfFile(self.addr)
	err2 := windows.CloseHandle(self.h)
	if err1 != nil {
		return errors.Annotatef(err1, "shm UnmapViewOfFile name=%s", self.name)
	}
	return errors.Annotatef(err2, "shm CloseHandle name=%s", self.name)
}
