package uabatch

import (
	"context"

	"github.com/ac-xchange/uabridge/log2"
	"github.com/gopcua/opcua/ua"
	"github.com/juju/errors"
)

const DefaultNamespace = 3

// Session is live OPC UA session, *opcua.Client implements it.
// Per-call timeout is session configuration.
type Session interface {
	Write(ctx context.Context, req *ua.WriteRequest) (*ua.WriteResponse, error)
}

type Writer struct {
	Log       *log2.Log
	Namespace uint16
}

func NewWriter(log *log2.Log, namespace uint16) *Writer {
	return &Writer{Log: log, Namespace: namespace}
}

// Request builds one write request for whole batch, order preserved.
func (self *Writer) Request(b *Batch) (*ua.WriteRequest, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	req := &ua.WriteRequest{NodesToWrite: make([]*ua.WriteValue, len(b.Nodes))}
	for i, node := range b.Nodes {
		v, err := ua.NewVariant(b.Values[i])
		if err != nil {
			return nil, errors.Annotatef(errors.Wrap(err, ErrInvalidBatch), "node=%s (%v)", node, err)
		}
		req.NodesToWrite[i] = &ua.WriteValue{
			NodeID:      ua.NewStringNodeID(self.Namespace, node),
			AttributeID: ua.AttributeIDValue,
			Value: &ua.DataValue{
				EncodingMask: ua.DataValueValue,
				Value:        v,
			},
		}
	}
	return req, nil
}

// Write submits batch as single request and inspects every per-node status.
// Returned error is ErrInvalidBatch or NotValid for nil session, in both cases session was not touched.
// Remote failures are reported in Outcome, see Outcome.Err.
// Writer logs remote failures itself, callers only need to count them.
func (self *Writer) Write(ctx context.Context, session Session, b *Batch) (Outcome, error) {
	req, err := self.Request(b)
	if err != nil {
		return Outcome{}, err
	}
	if session == nil {
		return Outcome{}, errors.NotValidf("uabatch write session=nil")
	}

	resp, err := session.Write(ctx, req)
	if err != nil {
		self.Log.Errorf("uabatch write nodes=%d transport err=%v", b.Len(), err)
		return Outcome{Transport: err}, nil
	}
	if resp == nil {
		err = errors.New("no response")
		self.Log.Errorf("uabatch write nodes=%d transport err=%v", b.Len(), err)
		return Outcome{Transport: err}, nil
	}
	if resp.ResponseHeader != nil && !IsGood(resp.ResponseHeader.ServiceResult) {
		sr := resp.ResponseHeader.ServiceResult
		self.Log.Errorf("uabatch write nodes=%d service result=0x%08x (%v)", b.Len(), uint32(sr), sr)
		return Outcome{Service: sr}, nil
	}
	if len(resp.Results) != b.Len() {
		err = errors.Errorf("results=%d expected=%d", len(resp.Results), b.Len())
		self.Log.Errorf("uabatch write transport err=%v", err)
		return Outcome{Transport: err}, nil
	}

	o := Outcome{
		AllSucceeded: true,
		Results:      make([]NodeResult, len(resp.Results)),
	}
	for i, st := range resp.Results {
		r := NodeResult{Node: b.Nodes[i], Index: i, Status: st}
		o.Results[i] = r
		if !r.OK() {
			o.AllSucceeded = false
			self.Log.Errorf("uabatch write rejected %s (%v)", r.String(), st)
		}
	}
	if o.AllSucceeded {
		self.Log.Debugf("uabatch write nodes=%d ok", b.Len())
	}
	return o, nil
}
