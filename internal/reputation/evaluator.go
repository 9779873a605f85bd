package reputation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/repguard/internal/domain"
)

// MetricsSource provides aggregated metric counts. Satisfied by the ingest
// repository.
type MetricsSource interface {
	AggregateWindow(ctx context.Context, sendingDomain string, since time.Time) (domain.MetricCounts, error)
	Domains(ctx context.Context, since time.Time) ([]string, error)
}

// Thresholds grade a domain's health. Values are percentages (2.0 = 2%);
// they mirror the training engine's advance and rollback thresholds so a
// "critical" grade lines up with a rollback decision.
type Thresholds struct {
	WarnBouncePct        float64
	WarnComplaintPct     float64
	CriticalBouncePct    float64
	CriticalComplaintPct float64
}

// Health labels for a sender report.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// Evaluator derives reputation rates and health grades from metric counts.
type Evaluator struct {
	src        MetricsSource
	thresholds Thresholds
}

// NewEvaluator creates an evaluator over the given metrics source.
func NewEvaluator(src MetricsSource, thresholds Thresholds) *Evaluator {
	return &Evaluator{src: src, thresholds: thresholds}
}

// Rates converts raw counts to rates for a window. Pure; never divides by zero.
func Rates(c domain.MetricCounts, windowHours int) domain.ReputationRates {
	r := domain.ReputationRates{
		WindowHours: windowHours,
		Sent:        c.Sent,
		Delivered:   c.Delivered,
		HardBounced: c.HardBounced,
		SoftBounced: c.SoftBounced,
		Complaints:  c.Complaints,
	}
	if c.Sent > 0 {
		r.BounceRate = float64(c.HardBounced+c.SoftBounced) / float64(c.Sent)
		r.DeliveryRate = float64(c.Delivered) / float64(c.Sent)
	}
	if c.Delivered > 0 {
		r.ComplaintRate = float64(c.Complaints) / float64(c.Delivered)
	}
	return r
}

// WindowRates computes rates for one domain over the last `hours` hours.
func (e *Evaluator) WindowRates(ctx context.Context, sendingDomain string, hours int) (domain.ReputationRates, error) {
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	counts, err := e.src.AggregateWindow(ctx, sendingDomain, since)
	if err != nil {
		return domain.ReputationRates{}, fmt.Errorf("aggregate %dh window for %s: %w", hours, sendingDomain, err)
	}
	return Rates(counts, hours), nil
}

// Analytics combines several lookback windows for one domain.
type Analytics struct {
	Domain      string                   `json:"domain"`
	GeneratedAt time.Time                `json:"generated_at"`
	Windows     []domain.ReputationRates `json:"windows"`
}

// ComprehensiveAnalytics computes rates for each requested window
// (typically 1h, 24h and 168h) in ascending window order.
func (e *Evaluator) ComprehensiveAnalytics(ctx context.Context, sendingDomain string, windowHours []int) (*Analytics, error) {
	hours := append([]int(nil), windowHours...)
	sort.Ints(hours)

	a := &Analytics{Domain: sendingDomain, GeneratedAt: time.Now().UTC()}
	for _, h := range hours {
		r, err := e.WindowRates(ctx, sendingDomain, h)
		if err != nil {
			return nil, err
		}
		a.Windows = append(a.Windows, r)
	}
	return a, nil
}

// SenderReport grades one domain's reputation over a window.
type SenderReport struct {
	Domain string                 `json:"domain"`
	Rates  domain.ReputationRates `json:"rates"`
	Health string                 `json:"health"`
}

// AnalyzeSender grades one domain, or every domain with recent traffic when
// target is "all", over the last `hours` hours.
func (e *Evaluator) AnalyzeSender(ctx context.Context, target string, hours int) ([]SenderReport, error) {
	var domains []string
	if target == "all" {
		since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
		var err error
		domains, err = e.src.Domains(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("list active domains: %w", err)
		}
		sort.Strings(domains)
	} else {
		domains = []string{target}
	}

	reports := make([]SenderReport, 0, len(domains))
	for _, d := range domains {
		r, err := e.WindowRates(ctx, d, hours)
		if err != nil {
			return nil, err
		}
		reports = append(reports, SenderReport{Domain: d, Rates: r, Health: e.grade(r)})
	}
	return reports, nil
}

func (e *Evaluator) grade(r domain.ReputationRates) string {
	bouncePct := r.BounceRate * 100
	complaintPct := r.ComplaintRate * 100
	switch {
	case bouncePct > e.thresholds.CriticalBouncePct || complaintPct > e.thresholds.CriticalComplaintPct:
		return HealthCritical
	case bouncePct >= e.thresholds.WarnBouncePct || complaintPct >= e.thresholds.WarnComplaintPct:
		return HealthWarning
	default:
		return HealthHealthy
	}
}
