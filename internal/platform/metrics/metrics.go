package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	IssuesCreatedTotal  prometheus.Counter
	ReturnsTotal        prometheus.Counter
	FinesCreatedTotal   prometheus.Counter
	FineAmountTotal     prometheus.Counter
	FinesPaidTotal      prometheus.Counter
	ActiveIssuesCurrent prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		IssuesCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "libra_issues_created_total",
			Help: "Total number of book issues created",
		}),
		ReturnsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "libra_returns_total",
			Help: "Total number of book returns processed",
		}),
		FinesCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "libra_fines_created_total",
			Help: "Total number of overdue fines created",
		}),
		FineAmountTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "libra_fine_amount_total",
			Help: "Total fine amount charged, in currency units",
		}),
		FinesPaidTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "libra_fines_paid_total",
			Help: "Total number of fines marked paid",
		}),
		ActiveIssuesCurrent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "libra_active_issues_current",
			Help: "Current number of issues without a return date",
		}),
	}
}

func (m *Metrics) IssueCreated() { m.IssuesCreatedTotal.Inc() }

func (m *Metrics) ReturnProcessed() { m.ReturnsTotal.Inc() }

func (m *Metrics) FineCreated(amount float64) {
	m.FinesCreatedTotal.Inc()
	m.FineAmountTotal.Add(amount)
}

func (m *Metrics) FinePaid() { m.FinesPaidTotal.Inc() }

func (m *Metrics) SetActiveIssues(n int64) { m.ActiveIssuesCurrent.Set(float64(n)) }
