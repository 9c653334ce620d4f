package metrics

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quote-api/internal/clock"
	"quote-api/internal/models"
	"quote-api/internal/sources"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestSink(t *testing.T) {
	t.Run("successful attempt updates counters and latency", func(t *testing.T) {
		clk := clock.NewFake(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
		sink := NewSink(clk, nil)

		attempt := sink.BeginAttempt("yahoo", models.USStock)
		clk.Advance(200 * time.Millisecond)
		attempt.Success()

		counters := sink.Snapshot("yahoo", models.USStock)
		assert.Equal(t, int64(1), counters.Requests)
		assert.Equal(t, int64(1), counters.Successes)
		assert.Zero(t, counters.Failures)
		assert.Equal(t, 1.0, counters.SuccessRate())
		assert.Equal(t, 200*time.Millisecond, counters.AvgLatency())
	})

	t.Run("failures are bucketed by error kind", func(t *testing.T) {
		clk := clock.NewFake(time.Now())
		sink := NewSink(clk, nil)

		sink.BeginAttempt("yahoo", models.USStock).Failure(sources.KindTimeout)
		sink.BeginAttempt("yahoo", models.USStock).Failure(sources.KindTimeout)
		sink.BeginAttempt("yahoo", models.USStock).Failure(sources.KindNotFound)

		counters := sink.Snapshot("yahoo", models.USStock)
		assert.Equal(t, int64(3), counters.Failures)
		assert.Equal(t, int64(2), counters.ErrorKinds[sources.KindTimeout])
		assert.Equal(t, int64(1), counters.ErrorKinds[sources.KindNotFound])
		assert.Zero(t, counters.SuccessRate())
	})

	t.Run("series are keyed by source and data type", func(t *testing.T) {
		clk := clock.NewFake(time.Now())
		sink := NewSink(clk, nil)

		sink.BeginAttempt("yahoo", models.USStock).Success()
		sink.BeginAttempt("stooq", models.USStock).Failure(sources.KindNetwork)

		all := sink.SnapshotAll()
		assert.Len(t, all, 2)
		assert.Equal(t, int64(1), all[Key{SourceID: "yahoo", DataType: models.USStock}].Successes)
		assert.Equal(t, int64(1), all[Key{SourceID: "stooq", DataType: models.USStock}].Failures)
	})

	t.Run("snapshot of unknown series is zero valued", func(t *testing.T) {
		sink := NewSink(clock.NewFake(time.Now()), nil)
		counters := sink.Snapshot("nobody", models.JPStock)
		assert.Zero(t, counters.Requests)
		assert.Zero(t, counters.SuccessRate())
	})

	t.Run("prometheus registration succeeds", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		sink := NewSink(clock.NewFake(time.Now()), reg)
		sink.BeginAttempt("yahoo", models.USStock).Success()

		families, err := reg.Gather()
		require.NoError(t, err)
		assert.NotEmpty(t, families)
	})
}

func TestEvaluator(t *testing.T) {
	newFixture := func() (*Sink, *sources.Registry, *Evaluator) {
		clk := clock.NewFake(time.Now())
		sink := NewSink(clk, nil)
		reg := sources.NewRegistry(
			&stubSource{id: "a", priority: 1},
			&stubSource{id: "b", priority: 2},
		)
		cfg := DefaultEvaluatorConfig()
		cfg.MinSamples = 5
		return sink, reg, NewEvaluator(sink, reg, cfg, testLogger())
	}

	t.Run("failing source is demoted", func(t *testing.T) {
		sink, reg, ev := newFixture()
		for i := 0; i < 10; i++ {
			sink.BeginAttempt("a", models.USStock).Failure(sources.KindNetwork)
		}
		ev.EvaluateOnce()
		assert.Equal(t, []string{"b", "a"}, reg.Order(models.USStock))
	})

	t.Run("healthy fast source is promoted", func(t *testing.T) {
		sink, reg, ev := newFixture()
		for i := 0; i < 10; i++ {
			sink.BeginAttempt("b", models.USStock).Success()
		}
		ev.EvaluateOnce()
		assert.Equal(t, []string{"b", "a"}, reg.Order(models.USStock))
	})

	t.Run("throttle dominated source is demoted despite mixed results", func(t *testing.T) {
		sink, reg, ev := newFixture()
		for i := 0; i < 6; i++ {
			sink.BeginAttempt("a", models.USStock).Success()
		}
		for i := 0; i < 4; i++ {
			sink.BeginAttempt("a", models.USStock).Failure(sources.KindRateLimit)
		}
		ev.EvaluateOnce()
		assert.Equal(t, []string{"b", "a"}, reg.Order(models.USStock))
	})

	t.Run("sparse series are left alone", func(t *testing.T) {
		sink, reg, ev := newFixture()
		sink.BeginAttempt("a", models.USStock).Failure(sources.KindNetwork)
		ev.EvaluateOnce()
		assert.Equal(t, []string{"a", "b"}, reg.Order(models.USStock))
	})

	t.Run("only window deltas count across evaluations", func(t *testing.T) {
		sink, reg, ev := newFixture()
		for i := 0; i < 10; i++ {
			sink.BeginAttempt("a", models.USStock).Failure(sources.KindNetwork)
		}
		ev.EvaluateOnce()
		assert.Equal(t, []string{"b", "a"}, reg.Order(models.USStock))

		// No new traffic: the old failures must not demote again.
		ev.EvaluateOnce()
		assert.Equal(t, []string{"b", "a"}, reg.Order(models.USStock))
	})
}

// stubSource is a do-nothing source for evaluator tests.
type stubSource struct {
	id       string
	priority int
}

func (s *stubSource) ID() string                { return s.id }
func (s *stubSource) DataType() models.DataType { return models.USStock }
func (s *stubSource) DefaultPriority() int      { return s.priority }
func (s *stubSource) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	return nil, sources.NewError(s.id, sources.KindOther, "stub", nil)
}
