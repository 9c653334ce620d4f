// Package validator checks freshly fetched quotes for plausibility before
// they are cached, comparing against the previous cached price and,
// optionally, across sources within a batch.
package validator

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"quote-api/internal/alerts"
	"quote-api/internal/models"
)

// Severity grades a validation finding.
type Severity string

// Finding severities. High findings cause the resolver to reject the quote
// and move to the next source; medium findings are accepted but recorded.
const (
	SeverityNone   Severity = "NONE"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Finding is the outcome of a single check.
type Finding struct {
	Severity    Severity
	Issue       string
	JumpPercent decimal.Decimal
}

// Thresholds holds the per-data-type jump gates in percent. Medium is the
// first gate, High the second; Divergence bounds cross-source spread.
type Thresholds struct {
	Medium     decimal.Decimal
	High       decimal.Decimal
	Divergence decimal.Decimal
}

// Config configures the validator.
type Config struct {
	Thresholds map[models.DataType]Thresholds
	// MedianEnabled turns on cross-source median selection per data type.
	// Off for every type unless explicitly enabled.
	MedianEnabled map[models.DataType]bool
}

// DefaultConfig returns the default jump thresholds.
func DefaultConfig() Config {
	return Config{
		Thresholds: map[models.DataType]Thresholds{
			models.USStock:      {Medium: decimal.NewFromInt(25), High: decimal.NewFromInt(50), Divergence: decimal.NewFromInt(10)},
			models.JPStock:      {Medium: decimal.NewFromInt(25), High: decimal.NewFromInt(50), Divergence: decimal.NewFromInt(10)},
			models.MutualFund:   {Medium: decimal.NewFromInt(10), High: decimal.NewFromInt(20), Divergence: decimal.NewFromInt(5)},
			models.ExchangeRate: {Medium: decimal.NewFromInt(5), High: decimal.NewFromInt(10), Divergence: decimal.NewFromInt(2)},
		},
		MedianEnabled: map[models.DataType]bool{},
	}
}

// Validator applies plausibility checks to quotes.
type Validator struct {
	cfg      Config
	notifier *alerts.Notifier
	logger   logrus.FieldLogger
}

// New creates a validator. The notifier may be nil, in which case high
// findings are only logged.
func New(cfg Config, notifier *alerts.Notifier, logger logrus.FieldLogger) *Validator {
	if cfg.Thresholds == nil {
		cfg.Thresholds = DefaultConfig().Thresholds
	}
	return &Validator{cfg: cfg, notifier: notifier, logger: logger}
}

// MedianEnabled reports whether cross-source median mode is on for the type.
func (v *Validator) MedianEnabled(dataType models.DataType) bool {
	return v.cfg.MedianEnabled[dataType]
}

// CheckJump compares a fresh quote against the previously cached one for the
// same key. A nil previous quote or a non-positive previous price always
// passes. High findings emit an alert keyed by (symbol, dataType).
func (v *Validator) CheckJump(fresh *models.Quote, previous *models.Quote) Finding {
	if previous == nil || !previous.Price.IsPositive() || previous.IsDefault {
		return Finding{Severity: SeverityNone}
	}
	th, ok := v.cfg.Thresholds[fresh.DataType]
	if !ok {
		return Finding{Severity: SeverityNone}
	}

	jump := fresh.Price.Sub(previous.Price).Div(previous.Price).Abs().Mul(decimal.NewFromInt(100))
	finding := Finding{Severity: SeverityNone, JumpPercent: jump}
	switch {
	case jump.GreaterThan(th.High):
		finding.Severity = SeverityHigh
		finding.Issue = "price jump above high threshold"
	case jump.GreaterThan(th.Medium):
		finding.Severity = SeverityMedium
		finding.Issue = "price jump above medium threshold"
	default:
		return finding
	}

	v.logger.WithFields(logrus.Fields{
		"symbol":       fresh.Symbol,
		"data_type":    fresh.DataType,
		"source":       fresh.Source,
		"jump_percent": jump.StringFixed(2),
		"severity":     finding.Severity,
	}).Warn("Quote failed jump validation")

	if finding.Severity == SeverityHigh && v.notifier != nil {
		v.notifier.Notify(alerts.Alert{
			Key:      models.CacheKey(fresh.DataType, fresh.Symbol) + ":validation",
			Severity: alerts.SeverityWarning,
			Title:    "Quote validation failure",
			Message:  finding.Issue,
			Fields: map[string]interface{}{
				"symbol":       fresh.Symbol,
				"data_type":    fresh.DataType,
				"source":       fresh.Source,
				"jump_percent": jump.StringFixed(2),
			},
		})
	}
	return finding
}

// SelectMedian picks the median-priced quote from candidates fetched by
// different sources for the same symbol. When the max/min spread exceeds the
// divergence threshold a SOURCE_DIFFERENCE alert is emitted. Candidates must
// be non-empty.
func (v *Validator) SelectMedian(candidates []*models.Quote) *models.Quote {
	if len(candidates) == 1 {
		return candidates[0]
	}
	sorted := make([]*models.Quote, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Price.LessThan(sorted[j].Price)
	})

	min, max := sorted[0], sorted[len(sorted)-1]
	if min.Price.IsPositive() {
		spread := max.Price.Sub(min.Price).Div(min.Price).Mul(decimal.NewFromInt(100))
		if th, ok := v.cfg.Thresholds[min.DataType]; ok && spread.GreaterThan(th.Divergence) {
			v.logger.WithFields(logrus.Fields{
				"symbol":         min.Symbol,
				"data_type":      min.DataType,
				"spread_percent": spread.StringFixed(2),
			}).Warn("Sources disagree on price")
			if v.notifier != nil {
				v.notifier.Notify(alerts.Alert{
					Key:      models.CacheKey(min.DataType, min.Symbol) + ":source-difference",
					Severity: alerts.SeverityWarning,
					Title:    "SOURCE_DIFFERENCE",
					Message:  "sources diverge beyond threshold",
					Fields: map[string]interface{}{
						"symbol":         min.Symbol,
						"data_type":      min.DataType,
						"spread_percent": spread.StringFixed(2),
					},
				})
			}
		}
	}
	return sorted[(len(sorted)-1)/2]
}
