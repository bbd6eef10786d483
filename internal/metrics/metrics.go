package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danielpatrickdp/paramreg/internal/registry"
	"github.com/danielpatrickdp/paramreg/internal/report"
	"github.com/danielpatrickdp/paramreg/internal/stats"
)

// Collector exports registry and reporter activity as Prometheus metrics.
// It implements registry.Observer and report.Observer.
type Collector struct {
	writes         *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	mismatches     prometheus.Counter
	resets         prometheus.Counter
	reportDuration prometheus.Histogram
	reportResults  *prometheus.GaugeVec
	reportChi2     prometheus.Gauge
	reportPValue   prometheus.Gauge
}

var (
	_ registry.Observer = (*Collector)(nil)
	_ report.Observer   = (*Collector)(nil)
)

// New registers the collector's metrics on reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paramreg_writes_total",
			Help: "Accepted parameter writes by status",
		}, []string{"status"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "paramreg_write_rejections_total",
			Help: "Writes refused by overwrite protection, by incoming status",
		}, []string{"status"}),
		mismatches: f.NewCounter(prometheus.CounterOpts{
			Name: "paramreg_mismatches_total",
			Help: "Overwrites that moved a value beyond tolerance",
		}),
		resets: f.NewCounter(prometheus.CounterOpts{
			Name: "paramreg_resets_total",
			Help: "Registry resets",
		}),
		reportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "paramreg_report_duration_seconds",
			Help:    "Validation report generation time",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		reportResults: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "paramreg_report_results",
			Help: "Results per tier in the most recent report",
		}, []string{"tier"}),
		reportChi2: f.NewGauge(prometheus.GaugeOpts{
			Name: "paramreg_report_chi_square",
			Help: "Total chi-square of the most recent report",
		}),
		reportPValue: f.NewGauge(prometheus.GaugeOpts{
			Name: "paramreg_report_p_value",
			Help: "p-value of the most recent report",
		}),
	}
}

// WriteAccepted implements registry.Observer.
func (c *Collector) WriteAccepted(status registry.Status) {
	c.writes.WithLabelValues(string(status)).Inc()
}

// WriteRejected implements registry.Observer.
func (c *Collector) WriteRejected(status registry.Status) {
	c.rejections.WithLabelValues(string(status)).Inc()
}

// MismatchDetected implements registry.Observer. The path is not used as a
// label to keep cardinality bounded.
func (c *Collector) MismatchDetected(string) {
	c.mismatches.Inc()
}

// Reset implements registry.Observer.
func (c *Collector) Reset() {
	c.resets.Inc()
}

// ReportGenerated implements report.Observer.
func (c *Collector) ReportGenerated(rep report.ValidationReport, elapsed time.Duration) {
	c.reportDuration.Observe(elapsed.Seconds())
	for _, t := range []stats.Tier{stats.TierPass, stats.TierTension, stats.TierWarning, stats.TierFail, stats.TierUnscored} {
		c.reportResults.WithLabelValues(string(t)).Set(float64(rep.Count(t)))
	}
	c.reportChi2.Set(rep.TotalChiSquare)
	c.reportPValue.Set(rep.PValue)
}
