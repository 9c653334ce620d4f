package metrics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"quote-api/internal/sources"
)

// EvaluatorConfig tunes the periodic priority reorder.
type EvaluatorConfig struct {
	Interval         time.Duration
	PromoteRate      float64       // promote above this success rate
	DemoteRate       float64       // demote below this success rate
	LatencyThreshold time.Duration // promotion also requires avg latency below this
	MinSamples       int64         // skip series with fewer requests in the window
}

// DefaultEvaluatorConfig returns the service defaults.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		Interval:         15 * time.Minute,
		PromoteRate:      0.95,
		DemoteRate:       0.60,
		LatencyThreshold: 2 * time.Second,
		MinSamples:       10,
	}
}

// Evaluator periodically summarizes the sink's counters over the window
// since the previous evaluation and nudges the registry's priority lists.
// Each series moves at most one position per cycle.
type Evaluator struct {
	sink     *Sink
	registry *sources.Registry
	cfg      EvaluatorConfig
	log      logrus.FieldLogger

	last map[Key]Counters
}

// NewEvaluator creates the reorder task.
func NewEvaluator(sink *Sink, registry *sources.Registry, cfg EvaluatorConfig, log logrus.FieldLogger) *Evaluator {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	return &Evaluator{
		sink:     sink,
		registry: registry,
		cfg:      cfg,
		log:      log,
		last:     make(map[Key]Counters),
	}
}

// Run evaluates on a ticker until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.EvaluateOnce()
		}
	}
}

// EvaluateOnce runs a single evaluation cycle over all counter series.
func (e *Evaluator) EvaluateOnce() {
	current := e.sink.SnapshotAll()
	for key, now := range current {
		window := diff(now, e.last[key])
		e.last[key] = now

		if window.Requests < e.cfg.MinSamples {
			continue
		}

		delta := e.decide(window)
		if delta == 0 {
			continue
		}
		if err := e.registry.Reorder(key.DataType, key.SourceID, delta); err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"source":   key.SourceID,
				"dataType": key.DataType,
			}).Warn("priority reorder failed")
			continue
		}
		e.log.WithFields(logrus.Fields{
			"source":      key.SourceID,
			"dataType":    key.DataType,
			"delta":       delta,
			"successRate": window.SuccessRate(),
			"avgLatency":  window.AvgLatency(),
		}).Info("adjusted source priority")
	}
}

// decide returns +1 to promote, -1 to demote, 0 to leave in place.
func (e *Evaluator) decide(window Counters) int {
	rate := window.SuccessRate()
	if rate < e.cfg.DemoteRate || throttleDominated(window) {
		return -1
	}
	if rate > e.cfg.PromoteRate && window.AvgLatency() < e.cfg.LatencyThreshold {
		return +1
	}
	return 0
}

// throttleDominated reports whether rate-limit and timeout errors make up
// the majority of the window's failures.
func throttleDominated(window Counters) bool {
	if window.Failures == 0 {
		return false
	}
	throttled := window.ErrorKinds[sources.KindRateLimit] + window.ErrorKinds[sources.KindTimeout]
	return throttled*2 > window.Failures
}

// diff computes the window counters between two lifetime snapshots.
func diff(now, prev Counters) Counters {
	window := Counters{
		Requests:     now.Requests - prev.Requests,
		Successes:    now.Successes - prev.Successes,
		Failures:     now.Failures - prev.Failures,
		LatencySumMs: now.LatencySumMs - prev.LatencySumMs,
		LatencyCount: now.LatencyCount - prev.LatencyCount,
		ErrorKinds:   make(map[sources.ErrorKind]int64),
	}
	for kind, v := range now.ErrorKinds {
		window.ErrorKinds[kind] = v - prev.ErrorKinds[kind]
	}
	return window
}
