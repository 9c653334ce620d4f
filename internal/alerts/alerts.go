// Package alerts delivers operational notifications with per-key
// deduplication so a flapping source does not flood the sink.
package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"quote-api/internal/clock"
)

// Severity grades an alert.
type Severity string

// Alert severities.
const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is a single notification.
type Alert struct {
	// Key identifies the alert class for deduplication. Alerts sharing a
	// key within the dedup window collapse into one delivery.
	Key      string
	Severity Severity
	Title    string
	Message  string
	Fields   map[string]interface{}
	At       time.Time
}

// Sink receives alerts that survive deduplication.
type Sink interface {
	Deliver(alert Alert)
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	logger logrus.FieldLogger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger logrus.FieldLogger) *LogSink {
	return &LogSink{logger: logger}
}

// Deliver logs the alert at a level matching its severity.
func (s *LogSink) Deliver(alert Alert) {
	entry := s.logger.WithFields(logrus.Fields{
		"alert_key": alert.Key,
		"severity":  alert.Severity,
		"title":     alert.Title,
	})
	if len(alert.Fields) > 0 {
		entry = entry.WithFields(logrus.Fields(alert.Fields))
	}
	switch alert.Severity {
	case SeverityCritical:
		entry.Error(alert.Message)
	case SeverityWarning:
		entry.Warn(alert.Message)
	default:
		entry.Info(alert.Message)
	}
}

// Notifier deduplicates alerts before handing them to a sink. Repeated
// alerts with the same key inside the window are suppressed and counted.
type Notifier struct {
	sink   Sink
	clk    clock.Clock
	window time.Duration

	mu         sync.Mutex
	lastSent   map[string]time.Time
	suppressed map[string]int
}

// DefaultDedupWindow is how long repeats of a delivered alert stay muted.
const DefaultDedupWindow = 30 * time.Minute

// NewNotifier creates a deduplicating notifier. A window of zero uses
// DefaultDedupWindow.
func NewNotifier(sink Sink, clk clock.Clock, window time.Duration) *Notifier {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Notifier{
		sink:       sink,
		clk:        clk,
		window:     window,
		lastSent:   make(map[string]time.Time),
		suppressed: make(map[string]int),
	}
}

// Notify delivers the alert unless an alert with the same key was delivered
// within the dedup window. Returns true when the alert was delivered.
func (n *Notifier) Notify(alert Alert) bool {
	now := n.clk.Now()
	alert.At = now

	n.mu.Lock()
	if sent, ok := n.lastSent[alert.Key]; ok && now.Sub(sent) < n.window {
		n.suppressed[alert.Key]++
		n.mu.Unlock()
		return false
	}
	muted := n.suppressed[alert.Key]
	delete(n.suppressed, alert.Key)
	n.lastSent[alert.Key] = now
	n.mu.Unlock()

	if muted > 0 {
		if alert.Fields == nil {
			alert.Fields = make(map[string]interface{})
		}
		alert.Fields["suppressed_repeats"] = muted
	}
	n.sink.Deliver(alert)
	return true
}

// Notifyf is a convenience wrapper formatting the message.
func (n *Notifier) Notifyf(key string, severity Severity, title, format string, args ...interface{}) bool {
	return n.Notify(Alert{
		Key:      key,
		Severity: severity,
		Title:    title,
		Message:  fmt.Sprintf(format, args...),
	})
}
