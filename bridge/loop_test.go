package bridge_test

import (
	"context"
	"testing"
	"time"

	"github.com/ac-xchange/uabridge/acshm"
	"github.com/ac-xchange/uabridge/bridge"
	"github.com/ac-xchange/uabridge/log2"
	"github.com/ac-xchange/uabridge/metrics"
	"github.com/ac-xchange/uabridge/status"
	"github.com/ac-xchange/uabridge/uabatch"
	"github.com/gopcua/opcua/ua"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBatch(t *testing.T) {
	t.Parallel()

	s := testSnapshot()
	b := bridge.BuildBatch(&s)
	require.NoError(t, b.Validate())
	require.Equal(t, len(b.Nodes), len(b.Values))
	expect := []struct {
		node  string
		value interface{}
	}{
		{"719:Car.speed", int32(187)},
		{"719:Car.rpm", int32(7250)},
		{"719:Car.fuel", int32(41)},
		{"719:Car.steerAngle", int32(-25)},
		{"719:Car.currentGear", int32(3)},
		{"719:Car.gas", int32(45)},
		{"719:Car.brake", int32(10)},
		{"723:GameEnviroment.currentTime", "01:05.432"},
		{"723:GameEnviroment.lastTime", "--:--.---"},
		{"723:GameEnviroment.bestTime", "01:23.007"},
		{"723:GameEnviroment.numberOfLaps", int32(10)},
		{"723:GameEnviroment.position", int32(3)},
		{"723:GameEnviroment.completedLaps", int32(4)},
		{"723:GameEnviroment.windSpeed", float32(3.5)},
		{"723:GameEnviroment.windDirection", float32(270.25)},
	}
	require.Equal(t, len(expect), b.Len())
	for i, e := range expect {
		assert.Equal(t, e.node, b.Nodes[i], "index=%d", i)
		assert.Equal(t, e.value, b.Values[i], "node=%s", e.node)
	}
}

func newLoop(t testing.TB, r bridge.Reader, s uabatch.Session) *bridge.Loop {
	log := log2.NewTest(t, log2.LDebug)
	return &bridge.Loop{
		Log:      log,
		Source:   r,
		Writer:   uabatch.NewWriter(log, uabatch.DefaultNamespace),
		Session:  s,
		Interval: time.Millisecond,
	}
}

func TestStatusReportsTransitionsOnly(t *testing.T) {
	t.Parallel()

	snaps := make([]acshm.Snapshot, 50)
	for i := range snaps {
		snaps[i] = testSnapshot()
	}
	r := &scriptReader{snaps: snaps}
	sess := &fakeSession{}
	states := &stateLog{}
	l := newLoop(t, r, sess)
	l.Status = states
	var during []status.State
	sess.reply = func(req *ua.WriteRequest) (*ua.WriteResponse, error) {
		during = append(during, l.State())
		return replyStatuses(req, nil), nil
	}

	err := l.Run(context.Background())
	assert.Equal(t, bridge.ErrSourceLost, errors.Cause(err))
	assert.Equal(t, 50, sess.count())
	assert.Equal(t, []status.State{status.StateIdle, status.StatePolling, status.StateStopped}, states.get())
	require.Len(t, during, 50)
	for _, s := range during {
		assert.Equal(t, status.StateWritePending, s)
	}
}

func TestRunSourceLost(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	r := &scriptReader{snaps: []acshm.Snapshot{snap, snap}}
	sess := &fakeSession{}
	states := &stateLog{}
	l := newLoop(t, r, sess)
	l.Status = states

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, bridge.ErrSourceLost, errors.Cause(err))
	assert.Equal(t, 3, r.reads, "no retry against dead source")
	assert.Equal(t, 2, sess.count())
	assert.Equal(t, status.StateStopped, l.State())
	assert.Equal(t, []status.State{
		status.StateIdle,
		status.StatePolling,
		status.StateStopped,
	}, states.get())

	st := l.Stats()
	assert.Equal(t, uint64(3), st.Cycles)
	assert.Equal(t, uint64(0), st.WriteFailures)
	assert.False(t, st.LastSuccess.IsZero())

	// stopped loop does not run again
	assert.NoError(t, l.Run(context.Background()))
	assert.Equal(t, 3, r.reads)
	l.Wait()
}

func TestRunSnapshotNotOK(t *testing.T) {
	t.Parallel()

	r := &scriptReader{snaps: []acshm.Snapshot{{OK: false}}}
	sess := &fakeSession{}
	l := newLoop(t, r, sess)
	err := l.Run(context.Background())
	assert.Equal(t, bridge.ErrSourceLost, errors.Cause(err))
	assert.Equal(t, 0, sess.count())
}

func TestRunWriteFailuresContinue(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	r := &scriptReader{snaps: []acshm.Snapshot{snap, snap, snap, snap}}
	calls := 0
	sess := &fakeSession{reply: func(req *ua.WriteRequest) (*ua.WriteResponse, error) {
		calls++
		switch calls {
		case 1:
			return nil, errors.New("i/o timeout")
		case 2:
			return &ua.WriteResponse{ResponseHeader: &ua.ResponseHeader{ServiceResult: ua.StatusBadSessionClosed}}, nil
		case 3:
			return replyStatuses(req, map[int]ua.StatusCode{5: ua.StatusBadNotWritable, 6: ua.StatusBadNotWritable}), nil
		}
		return replyStatuses(req, nil), nil
	}}
	m := metrics.New()
	l := newLoop(t, r, sess)
	l.Metrics = m

	err := l.Run(context.Background())
	assert.Equal(t, bridge.ErrSourceLost, errors.Cause(err))
	assert.Equal(t, 4, sess.count(), "remote failures do not stop the loop")

	st := l.Stats()
	assert.Equal(t, uint64(5), st.Cycles)
	assert.Equal(t, uint64(2), st.WriteFailures)
	assert.Equal(t, uint64(1), st.PartialWrites)
	assert.Equal(t, uint64(2), st.NodeRejections)

	assert.Equal(t, 5.0, testutil.ToFloat64(m.Cycles))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SourceReads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceReads.WithLabelValues("fail")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Writes.WithLabelValues("transport")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Writes.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Writes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeRejections.WithLabelValues("719:Car.gas")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeRejections.WithLabelValues("719:Car.brake")))
	assert.Equal(t, float64(status.StateStopped), testutil.ToFloat64(m.State))
}

func TestCycleLogsRejectionOnce(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	r := &scriptReader{snaps: []acshm.Snapshot{snap, snap}}
	calls := 0
	sess := &fakeSession{reply: func(req *ua.WriteRequest) (*ua.WriteResponse, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("i/o timeout")
		}
		return replyStatuses(req, map[int]ua.StatusCode{5: ua.StatusBadNotWritable, 6: ua.StatusBadNotWritable}), nil
	}}
	l := newLoop(t, r, sess)
	var logged []string
	l.Log.SetErrorFunc(func(e error) { logged = append(logged, e.Error()) })

	require.NoError(t, l.Cycle(context.Background()))
	assert.Len(t, logged, 1, "transport failure")

	logged = nil
	require.NoError(t, l.Cycle(context.Background()))
	require.Len(t, logged, 2, "one line per rejected node")
	assert.Contains(t, logged[0], "719:Car.gas")
	assert.Contains(t, logged[1], "719:Car.brake")
}

func TestRunStop(t *testing.T) {
	t.Parallel()

	snaps := make([]acshm.Snapshot, 100)
	for i := range snaps {
		snaps[i] = testSnapshot()
	}
	r := &scriptReader{snaps: snaps}
	sess := &fakeSession{}
	l := newLoop(t, r, sess)
	seen := 0
	l.OnSnapshot = func(s *acshm.Snapshot) {
		seen++
		assert.True(t, s.OK)
		if seen == 2 {
			l.Stop()
		}
	}
	require.NoError(t, l.Run(context.Background()))
	l.Wait()
	assert.Equal(t, 2, r.reads)
	assert.Equal(t, 2, sess.count(), "write in stopping cycle completes")
	assert.Equal(t, status.StateStopped, l.State())
}

func TestRunContextCancel(t *testing.T) {
	t.Parallel()

	snaps := make([]acshm.Snapshot, 100)
	for i := range snaps {
		snaps[i] = testSnapshot()
	}
	r := &scriptReader{snaps: snaps}
	ctx, cancel := context.WithCancel(context.Background())
	var writeCtxErr error
	sess := &fakeSession{}
	sess.reply = func(req *ua.WriteRequest) (*ua.WriteResponse, error) {
		return replyStatuses(req, nil), nil
	}
	l := newLoop(t, r, sess)
	l.Interval = time.Hour
	l.Session = sessionFunc(func(wctx context.Context, req *ua.WriteRequest) (*ua.WriteResponse, error) {
		cancel()
		writeCtxErr = wctx.Err()
		return sess.Write(wctx, req)
	})

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.NoError(t, writeCtxErr, "in-flight write is not cancelled")
	assert.Equal(t, 1, r.reads)
}

type sessionFunc func(ctx context.Context, req *ua.WriteRequest) (*ua.WriteResponse, error)

func (f sessionFunc) Write(ctx context.Context, req *ua.WriteRequest) (*ua.WriteResponse, error) {
	return f(ctx, req)
}

func TestRunStopConcurrent(t *testing.T) {
	t.Parallel()

	feed := newMemFeed()
	src := acshm.NewSource(log2.NewTest(t, log2.LDebug), feed.opener(), "", "")
	require.NoError(t, src.Initialize())
	defer src.Cleanup()
	l := newLoop(t, src, &fakeSession{})
	l.Interval = 5 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	l.Stop()
	l.Wait()
	assert.NoError(t, <-done)
	assert.True(t, l.Stats().Cycles >= 1)
}

func TestSourceEndToEnd(t *testing.T) {
	t.Parallel()

	feed := newMemFeed()
	feed.physics("speedKmh", float32(212.9))
	feed.physics("gear", int32(1))
	feed.physics("gas", float32(1))
	feed.graphics("completedLaps", int32(4))
	feed.graphics("iCurrentTime", int32(65432))
	feed.graphics("windSpeed", float32(1.25))

	src := acshm.NewSource(log2.NewTest(t, log2.LDebug), feed.opener(), "", "")
	require.NoError(t, src.Initialize())
	sess := &fakeSession{}
	l := newLoop(t, src, sess)
	l.OnSnapshot = func(s *acshm.Snapshot) {
		assert.Equal(t, int32(5), s.Env.CurrentLap)
		// producer disappears after first snapshot
		src.Cleanup()
	}

	err := l.Run(context.Background())
	assert.Equal(t, bridge.ErrSourceLost, errors.Cause(err))
	require.Equal(t, 1, sess.count())
	req := sess.requests[0]
	require.Len(t, req.NodesToWrite, len(bridge.Nodes))
	values := make(map[string]interface{})
	for _, wv := range req.NodesToWrite {
		values[wv.NodeID.String()] = wv.Value.Value.Value()
	}
	assert.Equal(t, int32(212), values["ns=3;s=719:Car.speed"])
	assert.Equal(t, int32(0), values["ns=3;s=719:Car.currentGear"], "neutral")
	assert.Equal(t, int32(100), values["ns=3;s=719:Car.gas"])
	assert.Equal(t, "01:05.432", values["ns=3;s=723:GameEnviroment.currentTime"])
	assert.Equal(t, "--:--.---", values["ns=3;s=723:GameEnviroment.bestTime"])
	assert.Equal(t, int32(4), values["ns=3;s=723:GameEnviroment.completedLaps"])
	assert.Equal(t, float32(1.25), values["ns=3;s=723:GameEnviroment.windSpeed"])
}

func TestReadOnlyLoop(t *testing.T) {
	t.Parallel()

	snap := testSnapshot()
	r := &scriptReader{snaps: []acshm.Snapshot{snap}}
	l := &bridge.Loop{Log: log2.NewTest(t, log2.LDebug), Source: r, Interval: time.Millisecond}
	var got []acshm.Snapshot
	l.OnSnapshot = func(s *acshm.Snapshot) { got = append(got, *s) }
	err := l.Run(context.Background())
	assert.Equal(t, bridge.ErrSourceLost, errors.Cause(err))
	require.Len(t, got, 1)
	assert.Equal(t, "01:05.432", got[0].Times.Current)
}
