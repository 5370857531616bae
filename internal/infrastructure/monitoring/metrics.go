package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Discard reasons for frames dropped by the reader
const (
	DiscardTruncated = "truncated"
	DiscardUnframed  = "unframed"
)

// Abandon reasons for writes that did not complete
const (
	AbandonSupervisorGone = "supervisor_gone"
	AbandonCanceled       = "canceled"
)

// Candidate outcomes seen by the supervisor
const (
	OutcomePartial   = "partial"
	OutcomeColorable = "colorable"
	OutcomeInvalid   = "invalid"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ring buffer metrics
	BytesWritten    prometheus.Counter
	BytesRead       prometheus.Counter
	FramesWritten   prometheus.Counter
	FramesRead      prometheus.Counter
	FramesDiscarded *prometheus.CounterVec
	WritesAbandoned *prometheus.CounterVec
	LocksRecovered  prometheus.Counter
	BufferUsed      prometheus.Gauge

	// Generator metrics
	SolveAttempts prometheus.Counter
	SolveDuration prometheus.Histogram
	SolutionsSent prometheus.Counter

	// Supervisor metrics
	SolutionsReceived *prometheus.CounterVec
	BestRemoved       prometheus.Gauge

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewRegistry returns a registry preloaded with Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics creates a new metrics collector registered on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		// Ring buffer metrics
		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "threecolor_ring_bytes_written_total",
			Help: "Total number of bytes written into the ring buffer",
		}),
		BytesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "threecolor_ring_bytes_read_total",
			Help: "Total number of bytes consumed from the ring buffer",
		}),
		FramesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "threecolor_ring_frames_written_total",
			Help: "Total number of complete frames written",
		}),
		FramesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "threecolor_ring_frames_read_total",
			Help: "Total number of complete frames read",
		}),
		FramesDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "threecolor_ring_frames_discarded_total",
			Help: "Total number of partial frames dropped by the reader",
		}, []string{"reason"}),
		WritesAbandoned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "threecolor_ring_writes_abandoned_total",
			Help: "Total number of writes stopped before the end sentinel",
		}, []string{"reason"}),
		LocksRecovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "threecolor_ring_write_locks_recovered_total",
			Help: "Total number of write locks reclaimed from dead writers",
		}),
		BufferUsed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "threecolor_ring_used_bytes",
			Help: "Unread bytes in the ring buffer",
		}),

		// Generator metrics
		SolveAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "threecolor_generator_solve_attempts_total",
			Help: "Total number of random colorings tried",
		}),
		SolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "threecolor_generator_solve_duration_seconds",
			Help:    "Duration of a single solve attempt",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		}),
		SolutionsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "threecolor_generator_solutions_sent_total",
			Help: "Total number of improved candidates written to the ring buffer",
		}),

		// Supervisor metrics
		SolutionsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "threecolor_supervisor_solutions_received_total",
			Help: "Total number of candidates received by outcome",
		}, []string{"outcome"}),
		BestRemoved: factory.NewGauge(prometheus.GaugeOpts{
			Name: "threecolor_supervisor_best_removed_edges",
			Help: "Fewest removed edges reported so far",
		}),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "threecolor_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "threecolor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "path"}),
	}

	m.Uptime = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "threecolor_uptime_seconds",
		Help: "Process uptime in seconds",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

// RecordFrameWritten records a complete frame of n bytes
func (m *Metrics) RecordFrameWritten(n int) {
	if m == nil {
		return
	}
	m.FramesWritten.Inc()
	m.BytesWritten.Add(float64(n))
}

// RecordFrameRead records a complete frame of n bytes
func (m *Metrics) RecordFrameRead(n int) {
	if m == nil {
		return
	}
	m.FramesRead.Inc()
	m.BytesRead.Add(float64(n))
}

// RecordFrameDiscarded records a dropped partial frame
func (m *Metrics) RecordFrameDiscarded(reason string) {
	if m == nil {
		return
	}
	m.FramesDiscarded.WithLabelValues(reason).Inc()
}

// RecordWriteAbandoned records a write stopped mid-frame
func (m *Metrics) RecordWriteAbandoned(reason string) {
	if m == nil {
		return
	}
	m.WritesAbandoned.WithLabelValues(reason).Inc()
}

// RecordLockRecovered records a write lock reclaimed from a dead writer
func (m *Metrics) RecordLockRecovered() {
	if m == nil {
		return
	}
	m.LocksRecovered.Inc()
}

// SetBufferUsed sets the number of unread bytes
func (m *Metrics) SetBufferUsed(n int) {
	if m == nil {
		return
	}
	m.BufferUsed.Set(float64(n))
}

// RecordSolve records one solve attempt
func (m *Metrics) RecordSolve(duration time.Duration) {
	if m == nil {
		return
	}
	m.SolveAttempts.Inc()
	m.SolveDuration.Observe(duration.Seconds())
}

// IncSolutionsSent increments the sent candidates counter
func (m *Metrics) IncSolutionsSent() {
	if m == nil {
		return
	}
	m.SolutionsSent.Inc()
}

// RecordSolutionReceived records a candidate seen by the supervisor
func (m *Metrics) RecordSolutionReceived(outcome string) {
	if m == nil {
		return
	}
	m.SolutionsReceived.WithLabelValues(outcome).Inc()
}

// SetBestRemoved sets the best removal count seen
func (m *Metrics) SetBestRemoved(n int) {
	if m == nil {
		return
	}
	m.BestRemoved.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
