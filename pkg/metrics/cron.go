package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics covers the cron worker: per-job runs and cycles skipped
// because another replica held the lock. A nil receiver is a no-op.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	skipped     prometheus.Counter
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bagflow_cron_job_runs_total",
			Help: "Cron job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bagflow_cron_job_duration_seconds",
			Help:    "Duration of cron jobs in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bagflow_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bagflow_cron_cycles_skipped_total",
			Help: "Cycles skipped because another worker held the lock.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.skipped)
	return m
}

// ObserveRun records one execution of job.
func (m *CronJobMetrics) ObserveRun(job string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, "failure").Inc()
		return
	}
	m.runs.WithLabelValues(job, "success").Inc()
	m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

func (m *CronJobMetrics) IncSkipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
