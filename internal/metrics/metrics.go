package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"quote-api/internal/clock"
	"quote-api/internal/models"
	"quote-api/internal/sources"
)

// Key identifies a counter series.
type Key struct {
	SourceID string
	DataType models.DataType
}

// Counters accumulates attempt outcomes for one (source, dataType) for the
// process lifetime.
type Counters struct {
	Requests     int64
	Successes    int64
	Failures     int64
	LatencySumMs int64
	LatencyCount int64
	ErrorKinds   map[sources.ErrorKind]int64
}

// SuccessRate computes the success ratio, 0 when there were no requests.
func (c *Counters) SuccessRate() float64 {
	if c.Requests == 0 {
		return 0
	}
	return float64(c.Successes) / float64(c.Requests)
}

// AvgLatency computes the mean attempt latency.
func (c *Counters) AvgLatency() time.Duration {
	if c.LatencyCount == 0 {
		return 0
	}
	return time.Duration(c.LatencySumMs/c.LatencyCount) * time.Millisecond
}

func (c *Counters) clone() Counters {
	cp := *c
	cp.ErrorKinds = make(map[sources.ErrorKind]int64, len(c.ErrorKinds))
	for k, v := range c.ErrorKinds {
		cp.ErrorKinds[k] = v
	}
	return cp
}

// Sink records per-source attempt outcomes; its summaries feed the priority
// reorder evaluation. Counters are mutex-guarded because workers update them
// concurrently.
type Sink struct {
	clk clock.Clock

	mu       sync.RWMutex
	counters map[Key]*Counters

	promAttempts *prometheus.CounterVec
	promLatency  *prometheus.HistogramVec
}

// NewSink creates a metrics sink. reg may be nil to skip Prometheus
// exposition (tests).
func NewSink(clk clock.Clock, reg prometheus.Registerer) *Sink {
	s := &Sink{
		clk:      clk,
		counters: make(map[Key]*Counters),
	}
	if reg != nil {
		s.promAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quote_api",
			Name:      "source_attempts_total",
			Help:      "Upstream fetch attempts by source, data type, and outcome.",
		}, []string{"source", "data_type", "outcome", "error_kind"})
		s.promLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quote_api",
			Name:      "source_attempt_duration_seconds",
			Help:      "Upstream fetch attempt latency by source and data type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "data_type"})
		reg.MustRegister(s.promAttempts, s.promLatency)
	}
	return s
}

// Attempt is an open attempt handle; calling Success or Failure closes it.
// An abandoned handle records nothing.
type Attempt struct {
	sink  *Sink
	key   Key
	start time.Time
}

// BeginAttempt opens an attempt handle for one upstream call.
func (s *Sink) BeginAttempt(sourceID string, dataType models.DataType) *Attempt {
	return &Attempt{
		sink:  s,
		key:   Key{SourceID: sourceID, DataType: dataType},
		start: s.clk.Now(),
	}
}

// Success closes the handle as a successful attempt.
func (a *Attempt) Success() {
	a.sink.record(a.key, true, a.sink.clk.Now().Sub(a.start), "")
}

// Failure closes the handle as a failed attempt with its error kind.
func (a *Attempt) Failure(kind sources.ErrorKind) {
	a.sink.record(a.key, false, a.sink.clk.Now().Sub(a.start), kind)
}

func (s *Sink) record(key Key, success bool, latency time.Duration, kind sources.ErrorKind) {
	s.mu.Lock()
	c, ok := s.counters[key]
	if !ok {
		c = &Counters{ErrorKinds: make(map[sources.ErrorKind]int64)}
		s.counters[key] = c
	}
	c.Requests++
	c.LatencySumMs += latency.Milliseconds()
	c.LatencyCount++
	if success {
		c.Successes++
	} else {
		c.Failures++
		c.ErrorKinds[kind]++
	}
	s.mu.Unlock()

	if s.promAttempts != nil {
		outcome := "success"
		kindLabel := ""
		if !success {
			outcome = "failure"
			kindLabel = string(kind)
		}
		s.promAttempts.WithLabelValues(key.SourceID, string(key.DataType), outcome, kindLabel).Inc()
		s.promLatency.WithLabelValues(key.SourceID, string(key.DataType)).Observe(latency.Seconds())
	}
}

// Snapshot returns a copy of the counters for one series.
func (s *Sink) Snapshot(sourceID string, dataType models.DataType) Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.counters[Key{SourceID: sourceID, DataType: dataType}]; ok {
		return c.clone()
	}
	return Counters{ErrorKinds: map[sources.ErrorKind]int64{}}
}

// SnapshotAll returns a copy of every counter series.
func (s *Sink) SnapshotAll() map[Key]Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Key]Counters, len(s.counters))
	for k, c := range s.counters {
		out[k] = c.clone()
	}
	return out
}
