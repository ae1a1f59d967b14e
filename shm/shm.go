// Package shm opens named read-only shared memory regions written by another process.
//
// A Region is a fixed-size view. It never hands out the mapped memory,
// callers copy bytes out with Copy and decode their own copy.
// There is no locking on the producer side, so a copy may observe a record mid-update.
package shm

import (
	"path/filepath"
	"strings"

	"github.com/juju/errors"
)

var (
	ErrNotFound = errors.New("shm: region not found")
	ErrTooSmall = errors.New("shm: region smaller than expected size")
	ErrClosed   = errors.New("shm: region closed")
)

// DefaultDir is where Unix compatibility layers expose named mappings.
const DefaultDir = "/dev/shm"

type Region interface {
	Name() string
	Size() int
	// Copy copies min(len(dst), Size()) bytes from the start of region in one operation.
	Copy(dst []byte) (int, error)
	Close() error
}

type Opener interface {
	// Open maps exactly size bytes of named region.
	Open(name string, size int) (Region, error)
}

// OSOpener opens regions of the running operating system.
// Dir is ignored on Windows, where names are kernel object names.
type OSOpener struct {
	Dir string
}

// FilePath maps kernel object name like `Local\acpmf_physics` to file path under dir.
func FilePath(dir, name string) string {
	if dir == "" {
		dir = DefaultDir
	}
	base := name
	if i := strings.LastIndexAny(base, `\/`); i >= 0 {
		base = base[i+1:]
	}
	return filepath.Join(dir, base)
}

func checkSize(name string, size int) error {
	if size <= 0 {
		return errors.NotValidf("shm name=%s size=%d", name, size)
	}
	return nil
}
