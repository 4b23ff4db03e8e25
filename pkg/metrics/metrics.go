package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	subsystem = "sitescan"

	scansTotal           = "scans_total"
	creditsDeductedTotal = "credits_deducted_total"
	creditsRefundedTotal = "credits_refunded_total"
	urlValidationSeconds = "url_validation_duration_seconds"

	scanStateLabel = "state"
)

var scanStateLabels = []string{
	scanStateLabel,
}

var scansTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      scansTotal,
		Help:      "number of scans reaching a terminal state",
	},
	scanStateLabels,
)

var creditsDeductedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      creditsDeductedTotal,
		Help:      "total credits deducted for scans",
	},
)

var creditsRefundedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      creditsRefundedTotal,
		Help:      "total credits refunded after failed scans",
	},
)

var urlValidationSecondsMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      urlValidationSeconds,
		Help:      "time spent validating a single URL against the external validator",
		Buckets:   prometheus.DefBuckets,
	},
)

func IncreaseScansTotalMetric(state string) {
	scansTotalMetric.With(prometheus.Labels{scanStateLabel: state}).Inc()
}

func AddCreditsDeductedMetric(amount int) {
	creditsDeductedTotalMetric.Add(float64(amount))
}

func AddCreditsRefundedMetric(amount int) {
	creditsRefundedTotalMetric.Add(float64(amount))
}

func ObserveUrlValidationDuration(seconds float64) {
	urlValidationSecondsMetric.Observe(seconds)
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(scansTotalMetric)
	reg.MustRegister(creditsDeductedTotalMetric)
	reg.MustRegister(creditsRefundedTotalMetric)
	reg.MustRegister(urlValidationSecondsMetric)
}
