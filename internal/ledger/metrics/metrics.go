package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the ledger core.
type Metrics struct {
	AppendsTotal        *prometheus.CounterVec
	AppendConflicts     prometheus.Counter
	AppendDuration      prometheus.Histogram
	VerificationsTotal  *prometheus.CounterVec
	AnnouncementsTotal  prometheus.Counter
	AnnouncementsDrops  prometheus.Counter
	AnnouncementsErrors prometheus.Counter
}

// New creates and registers all ledger metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		AppendsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritrail_ledger_appends_total",
			Help: "Total ledger append attempts by final outcome",
		}, []string{"outcome"}),
		AppendConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_ledger_append_conflicts_total",
			Help: "Total chain conflicts observed during appends (including retried ones)",
		}),
		AppendDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veritrail_ledger_append_duration_seconds",
			Help:    "Wall time of ledger appends including conflict retries",
			Buckets: prometheus.DefBuckets,
		}),
		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritrail_ledger_verifications_total",
			Help: "Total chain verifications by result status",
		}, []string{"status"}),
		AnnouncementsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_ledger_announcements_total",
			Help: "Total committed events handed to the announcer",
		}),
		AnnouncementsDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_ledger_announcements_dropped_total",
			Help: "Committed events dropped because the announcer inbox was full",
		}),
		AnnouncementsErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_ledger_announcement_errors_total",
			Help: "Failed publishes of committed events to the announcement topic",
		}),
	}
}

func (m *Metrics) ObserveAppend(outcome string, seconds float64) {
	m.AppendsTotal.WithLabelValues(outcome).Inc()
	m.AppendDuration.Observe(seconds)
}

func (m *Metrics) IncrementConflicts() {
	m.AppendConflicts.Inc()
}

func (m *Metrics) ObserveVerification(status string) {
	m.VerificationsTotal.WithLabelValues(status).Inc()
}
