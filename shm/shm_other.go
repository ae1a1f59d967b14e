//go:build !unix && !windows

package shm

import "github.com/juju/errors"

func (self OSOpener) Open(name string, size int) (Region, error) {
	return nil, errors.NotSupportedf("shm on this platform, name=%s", name)
}
