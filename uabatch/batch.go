// Package uabatch writes an ordered set of node values to OPC UA server in one request.
package uabatch

import (
	"fmt"
	"strings"

	"github.com/gopcua/opcua/ua"
	"github.com/juju/errors"
)

var (
	ErrInvalidBatch     = errors.New("uabatch: invalid batch")
	ErrTransport        = errors.New("uabatch: transport failure")
	ErrPartialRejection = errors.New("uabatch: partial write rejection")
)

// Batch is ordered node id to value mapping.
// Nodes[i] is written with Values[i]. Value types: int32, float32, string.
type Batch struct {
	Nodes  []string
	Values []interface{}
}

func NewBatch(capacity int) *Batch {
	return &Batch{
		Nodes:  make([]string, 0, capacity),
		Values: make([]interface{}, 0, capacity),
	}
}

func (self *Batch) Len() int { return len(self.Nodes) }

func (self *Batch) AddInt32(node string, v int32) *Batch     { return self.add(node, v) }
func (self *Batch) AddFloat32(node string, v float32) *Batch { return self.add(node, v) }
func (self *Batch) AddString(node string, v string) *Batch   { return self.add(node, v) }

func (self *Batch) add(node string, v interface{}) *Batch {
	self.Nodes = append(self.Nodes, node)
	self.Values = append(self.Values, v)
	return self
}

// Validate checks batch without any I/O.
func (self *Batch) Validate() error {
	if self == nil || len(self.Nodes) == 0 {
		return errors.Annotate(ErrInvalidBatch, "empty")
	}
	if len(self.Nodes) != len(self.Values) {
		return errors.Annotatef(ErrInvalidBatch, "nodes=%d values=%d", len(self.Nodes), len(self.Values))
	}
	for i, v := range self.Values {
		if self.Nodes[i] == "" {
			return errors.Annotatef(ErrInvalidBatch, "index=%d empty node id", i)
		}
		switch v.(type) {
		case int32, float32, string:
		default:
			return errors.Annotatef(ErrInvalidBatch, "node=%s value type %T not supported", self.Nodes[i], v)
		}
	}
	return nil
}

func (self *Batch) String() string {
	var b strings.Builder
	for i, n := range self.Nodes {
		if i != 0 {
			b.WriteString(" ")
		}
		if i < len(self.Values) {
			fmt.Fprintf(&b, "%s=%v", n, self.Values[i])
		} else {
			fmt.Fprintf(&b, "%s=?", n)
		}
	}
	return b.String()
}

type NodeResult struct {
	Node   string
	Index  int
	Status ua.StatusCode
}

func (self NodeResult) OK() bool { return IsGood(self.Status) }

func (self NodeResult) String() string {
	return fmt.Sprintf("node=%s index=%d status=0x%08x", self.Node, self.Index, uint32(self.Status))
}

// Outcome of one batch write.
// Results is empty when the request as a whole failed.
type Outcome struct {
	AllSucceeded bool
	Service      ua.StatusCode
	Transport    error
	Results      []NodeResult
}

// Failed returns rejected nodes in request order.
func (self *Outcome) Failed() []NodeResult {
	var fs []NodeResult
	for _, r := range self.Results {
		if !r.OK() {
			fs = append(fs, r)
		}
	}
	return fs
}

// Err is nil when all nodes were accepted,
// ErrTransport when request failed as a whole, otherwise ErrPartialRejection.
func (self *Outcome) Err() error {
	if self.AllSucceeded {
		return nil
	}
	if self.Transport != nil {
		return errors.Annotatef(errors.Wrap(self.Transport, ErrTransport), "%v", self.Transport)
	}
	if !IsGood(self.Service) {
		return errors.Annotatef(errors.Wrap(self.Service, ErrTransport), "service result=0x%08x", uint32(self.Service))
	}
	failed := self.Failed()
	if len(failed) == 0 {
		// AllSucceeded=false with nothing to show, treat as whole request failure
		return errors.Annotate(ErrTransport, "no results")
	}
	ss := make([]string, len(failed))
	for i, r := range failed {
		ss[i] = r.String()
	}
	return errors.Annotatef(ErrPartialRejection, "rejected=%d/%d %s", len(failed), len(self.Results), strings.Join(ss, ", "))
}

// IsGood is true for status codes with Good severity.
func IsGood(s ua.StatusCode) bool { return uint32(s)&0xc0000000 == 0 }
