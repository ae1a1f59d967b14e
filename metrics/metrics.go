// Package metrics exposes bridge counters in Prometheus format.
// All methods are safe on nil *Metrics, which means metrics are disabled.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/ac-xchange/uabridge/log2"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "uabridge"

type Metrics struct {
	registry *prometheus.Registry

	Cycles         prometheus.Counter
	SourceReads    *prometheus.CounterVec
	Writes         *prometheus.CounterVec
	NodeRejections *prometheus.CounterVec
	ErrorsLogged   prometheus.Counter
	CycleDuration  prometheus.Histogram
	WriteDuration  prometheus.Histogram
	State          prometheus.Gauge
}

func New() *Metrics {
	self := &Metrics{registry: prometheus.NewRegistry()}
	self.Cycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Bridge poll cycles started",
	})
	self.SourceReads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "reads_total",
		Help:      "Shared memory snapshot reads by result",
	}, []string{"result"})
	self.Writes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "opcua",
		Name:      "writes_total",
		Help:      "Batch write requests by result: ok, rejected, transport",
	}, []string{"result"})
	self.NodeRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "opcua",
		Name:      "node_rejections_total",
		Help:      "Per-node write statuses other than good",
	}, []string{"node"})
	self.ErrorsLogged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_logged_total",
		Help:      "Errors written to log",
	})
	self.CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Read, transform and write time of one cycle, sleep excluded",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
	})
	self.WriteDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "opcua",
		Name:      "write_duration_seconds",
		Help:      "Batch write round trip time",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 5, 30},
	})
	self.State = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "state",
		Help:      "Bridge state: 1 idle, 2 polling, 3 write pending, 4 stopped",
	})

	self.registry.MustRegister(
		self.Cycles,
		self.SourceReads,
		self.Writes,
		self.NodeRejections,
		self.ErrorsLogged,
		self.CycleDuration,
		self.WriteDuration,
		self.State,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return self
}

func (self *Metrics) Registry() *prometheus.Registry {
	if self == nil {
		return nil
	}
	return self.registry
}

func (self *Metrics) Cycle(d time.Duration) {
	if self == nil {
		return
	}
	self.Cycles.Inc()
	self.CycleDuration.Observe(d.Seconds())
}

func (self *Metrics) SourceRead(ok bool) {
	if self == nil {
		return
	}
	if ok {
		self.SourceReads.WithLabelValues("ok").Inc()
	} else {
		self.SourceReads.WithLabelValues("fail").Inc()
	}
}

// Write result: ok, rejected, transport.
func (self *Metrics) Write(result string, d time.Duration) {
	if self == nil {
		return
	}
	self.Writes.WithLabelValues(result).Inc()
	self.WriteDuration.Observe(d.Seconds())
}

func (self *Metrics) NodeRejected(node string) {
	if self == nil {
		return
	}
	self.NodeRejections.WithLabelValues(node).Inc()
}

func (self *Metrics) SetState(s uint8) {
	if self == nil {
		return
	}
	self.State.Set(float64(s))
}

// ErrorFunc matches log2.ErrorFunc.
func (self *Metrics) ErrorFunc(error) {
	if self == nil {
		return
	}
	self.ErrorsLogged.Inc()
}

func (self *Metrics) Handler() http.Handler {
	if self == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(self.registry, promhttp.HandlerOpts{})
}

// Serve blocks serving /metrics on addr until ctx is done.
func (self *Metrics) Serve(ctx context.Context, log *log2.Log, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", self.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("metrics listen=%s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return errors.Annotatef(err, "metrics listen=%s", addr)
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return errors.Annotate(err, "metrics shutdown")
		}
		return nil
	}
}
