package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	stepDuration    *prom.HistogramVec
	updateDuration  prom.Histogram
	taskOutcomes    *prom.CounterVec
	downloadResults *prom.CounterVec
	patchResults    *prom.CounterVec
	backups         *prom.CounterVec
	externalChanges prom.Counter
	activeTasks     prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "gundeck",
			Name:      "update_step_duration_seconds",
			Help:      "Duration of individual update steps",
			Buckets:   prom.DefBuckets,
		}, []string{"step"})
		pr.updateDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "gundeck",
			Name:      "update_duration_seconds",
			Help:      "Total update task duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		})
		pr.taskOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gundeck",
			Name:      "task_outcomes_total",
			Help:      "Update task outcomes by final status",
		}, []string{"outcome"})
		pr.downloadResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gundeck",
			Name:      "download_results_total",
			Help:      "Per-file download results by success/failure",
		}, []string{"result"})
		pr.patchResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gundeck",
			Name:      "patch_results_total",
			Help:      "Settings patch results by success/failure",
		}, []string{"result"})
		pr.backups = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "gundeck",
			Name:      "backups_total",
			Help:      "Backup snapshots taken, by purpose",
		}, []string{"purpose"})
		pr.externalChanges = prom.NewCounter(prom.CounterOpts{
			Namespace: "gundeck",
			Name:      "external_changes_total",
			Help:      "Settings file modifications not made through the daemon",
		})
		pr.activeTasks = prom.NewGauge(prom.GaugeOpts{
			Namespace: "gundeck",
			Name:      "active_tasks",
			Help:      "Update tasks currently running",
		})
		reg.MustRegister(pr.stepDuration, pr.updateDuration, pr.taskOutcomes,
			pr.downloadResults, pr.patchResults, pr.backups, pr.externalChanges, pr.activeTasks)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveUpdateDuration(d time.Duration) {
	if p == nil || p.updateDuration == nil {
		return
	}
	p.updateDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskOutcome(outcome OutcomeLabel) {
	if p == nil || p.taskOutcomes == nil {
		return
	}
	p.taskOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncDownloadResult(success bool) {
	if p == nil || p.downloadResults == nil {
		return
	}
	p.downloadResults.WithLabelValues(resultLabel(success)).Inc()
}

func (p *PrometheusRecorder) IncPatchResult(success bool) {
	if p == nil || p.patchResults == nil {
		return
	}
	p.patchResults.WithLabelValues(resultLabel(success)).Inc()
}

func (p *PrometheusRecorder) IncBackup(purpose string) {
	if p == nil || p.backups == nil {
		return
	}
	if purpose == "" {
		purpose = "save"
	}
	p.backups.WithLabelValues(purpose).Inc()
}

func (p *PrometheusRecorder) IncExternalChange() {
	if p == nil || p.externalChanges == nil {
		return
	}
	p.externalChanges.Inc()
}

func (p *PrometheusRecorder) SetActiveTasks(n int) {
	if p == nil || p.activeTasks == nil {
		return
	}
	p.activeTasks.Set(float64(n))
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
