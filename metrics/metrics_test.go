package metrics_test

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ac-xchange/uabridge/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.Cycle(3 * time.Millisecond)
	m.Cycle(4 * time.Millisecond)
	m.SourceRead(true)
	m.SourceRead(false)
	m.Write("ok", time.Millisecond)
	m.Write("rejected", time.Millisecond)
	m.NodeRejected("719:Car.gas")
	m.NodeRejected("719:Car.gas")
	m.ErrorFunc(nil)
	m.SetState(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceReads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceReads.WithLabelValues("fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Writes.WithLabelValues("rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NodeRejections.WithLabelValues("719:Car.gas")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsLogged))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.State))
	assert.Equal(t, 1, testutil.CollectAndCount(m.NodeRejections))
}

func TestMetricsNil(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics
	m.Cycle(time.Second)
	m.SourceRead(true)
	m.Write("transport", time.Second)
	m.NodeRejected("x")
	m.ErrorFunc(nil)
	m.SetState(4)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.Write("transport", 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := ioutil.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `uabridge_opcua_writes_total{result="transport"} 1`), string(body))
	assert.Contains(t, string(body), "uabridge_opcua_write_duration_seconds_count 1")
}
