package shm

import (
	"sync"

	"github.com/juju/errors"
)

// MemRegion is Region backed by caller owned byte slice.
// Tests mutate the slice with Update to play the producer.
type MemRegion struct {
	mu     sync.Mutex
	name   string
	b      []byte
	closed bool
}

func NewMemRegion(name string, b []byte) *MemRegion {
	return &MemRegion{name: name, b: b}
}

func (self *MemRegion) Name() string { return self.name }
func (self *MemRegion) Size() int    { return len(self.b) }

func (self *MemRegion) Copy(dst []byte) (int, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.closed {
		return 0, ErrClosed
	}
	return copy(dst, self.b), nil
}

func (self *MemRegion) Update(f func(b []byte)) {
	self.mu.Lock()
	f(self.b)
	self.mu.Unlock()
}

func (self *MemRegion) Close() error {
	self.mu.Lock()
	self.closed = true
	self.mu.Unlock()
	return nil
}

func (self *MemRegion) Closed() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.closed
}

// MemOpener serves MemRegion by name. Missing name is ErrNotFound.
// Open of a name present in Fail returns that error.
type MemOpener struct {
	mu      sync.Mutex
	Regions map[string]*MemRegion
	Fail    map[string]error
	Opened  []string
}

func NewMemOpener(regions ...*MemRegion) *MemOpener {
	o := &MemOpener{
		Regions: make(map[string]*MemRegion, len(regions)),
		Fail:    make(map[string]error),
	}
	for _, r := range regions {
		o.Regions[r.name] = r
	}
	return o
}

func (self *MemOpener) Open(name string, size int) (Region, error) {
	if err := checkSize(name, size); err != nil {
		return nil, err
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	if err, ok := self.Fail[name]; ok {
		return nil, errors.Annotatef(err, "shm open name=%s", name)
	}
	r, ok := self.Regions[name]
	if !ok {
		return nil, errors.Annotatef(ErrNotFound, "shm open name=%s", name)
	}
	if len(r.b) < size {
		return nil, errors.Annotatef(ErrTooSmall, "shm open name=%s size=%d expected=%d", name, len(r.b), size)
	}
	self.Opened = append(self.Opened, name)
	r.mu.Lock()
	r.closed = false
	r.mu.Unlock()
	return &memView{r: r, size: size}, nil
}

// memView limits MemRegion to requested size, like an OS view.
type memView struct {
	r    *MemRegion
	size int
}

func (self *memView) Name() string { return self.r.name }
func (self *memView) Size() int    { return self.size }
func (self *memView) Close() error { return self.r.Close() }
func (self *memView) Copy(dst []byte) (int, error) {
	if len(dst) > self.size {
		dst = dst[:self.size]
	}
	return self.r.Copy(dst)
}
