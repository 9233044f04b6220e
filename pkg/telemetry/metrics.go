package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the deployment pipeline.
type Metrics struct {
	config MetricsConfig

	// Deploy run metrics
	deploysStarted   *prometheus.CounterVec
	deploysCompleted *prometheus.CounterVec
	deployDuration   *prometheus.HistogramVec

	// Pipeline stage metrics
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec

	// Infrastructure plan metrics
	planStepsExecuted *prometheus.CounterVec
	planStepDuration  *prometheus.HistogramVec

	// Content sync metrics
	filesSynced   *prometheus.CounterVec
	bytesUploaded prometheus.Counter
	syncDuration  *prometheus.HistogramVec

	// Invalidation and verification metrics
	invalidations      *prometheus.CounterVec
	invalidationWait   prometheus.Histogram
	verificationProbes *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// System metrics
	activeDeploys prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		deploysStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deploys_started_total",
				Help:      "Total number of deploy runs started",
			},
			[]string{"environment"},
		),
		deploysCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deploys_completed_total",
				Help:      "Total number of deploy runs completed",
			},
			[]string{"environment", "status"},
		),
		deployDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deploy_duration_seconds",
				Help:      "Duration of deploy runs in seconds",
				Buckets:   buckets,
			},
			[]string{"environment", "status"},
		),

		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   buckets,
			},
			[]string{"stage"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Total number of pipeline stage failures",
			},
			[]string{"stage"},
		),

		planStepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_steps_executed_total",
				Help:      "Total number of infrastructure plan steps executed",
			},
			[]string{"op", "status"},
		),
		planStepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plan_step_duration_seconds",
				Help:      "Duration of infrastructure plan steps in seconds",
				Buckets:   buckets,
			},
			[]string{"op", "kind"},
		),

		filesSynced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_synced_total",
				Help:      "Total number of content files synced",
			},
			[]string{"action"},
		),
		bytesUploaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_uploaded_total",
				Help:      "Total content bytes uploaded to storage",
			},
		),
		syncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "Duration of content sync operations in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		invalidations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invalidations_total",
				Help:      "Total number of CDN invalidation jobs by final status",
			},
			[]string{"status"},
		),
		invalidationWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invalidation_wait_seconds",
				Help:      "Wall time spent waiting for CDN invalidations",
				Buckets:   buckets,
			},
		),
		verificationProbes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verification_probes_total",
				Help:      "Total number of reachability probes by outcome",
			},
			[]string{"outcome"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		activeDeploys: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_deploys",
				Help:      "Current number of active deploy runs",
			},
		),
	}

	registry.MustRegister(
		m.deploysStarted,
		m.deploysCompleted,
		m.deployDuration,
		m.stageDuration,
		m.stageFailures,
		m.planStepsExecuted,
		m.planStepDuration,
		m.filesSynced,
		m.bytesUploaded,
		m.syncDuration,
		m.invalidations,
		m.invalidationWait,
		m.verificationProbes,
		m.errorsByClass,
		m.errorsByCode,
		m.activeDeploys,
	)

	return m, nil
}

// Deploy Run Metrics

// RecordDeployStarted increments the counter for started deploy runs.
func (m *Metrics) RecordDeployStarted(environment string) {
	if m.deploysStarted == nil {
		return
	}
	m.deploysStarted.WithLabelValues(environment).Inc()
	m.activeDeploys.Inc()
}

// RecordDeployCompleted records a completed deploy run with its status and duration.
func (m *Metrics) RecordDeployCompleted(environment, status string, duration time.Duration) {
	if m.deploysCompleted == nil {
		return
	}
	m.deploysCompleted.WithLabelValues(environment, status).Inc()
	m.deployDuration.WithLabelValues(environment, status).Observe(duration.Seconds())
	m.activeDeploys.Dec()
}

// Stage Metrics

// RecordStage records a finished pipeline stage.
func (m *Metrics) RecordStage(stage string, duration time.Duration, failed bool) {
	if m.stageDuration == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if failed {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

// Plan Metrics

// RecordPlanStep records the execution of one infrastructure plan step.
func (m *Metrics) RecordPlanStep(op, kind, status string, duration time.Duration) {
	if m.planStepsExecuted == nil {
		return
	}
	m.planStepsExecuted.WithLabelValues(op, status).Inc()
	m.planStepDuration.WithLabelValues(op, kind).Observe(duration.Seconds())
}

// Content Sync Metrics

// RecordFileSynced counts one synced file by action (create, update, delete).
func (m *Metrics) RecordFileSynced(action string) {
	if m.filesSynced == nil {
		return
	}
	m.filesSynced.WithLabelValues(action).Inc()
}

// RecordBytesUploaded adds uploaded content bytes.
func (m *Metrics) RecordBytesUploaded(n int64) {
	if m.bytesUploaded == nil {
		return
	}
	m.bytesUploaded.Add(float64(n))
}

// RecordSync records a content sync pass with its final status.
func (m *Metrics) RecordSync(status string, duration time.Duration) {
	if m.syncDuration == nil {
		return
	}
	m.syncDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// Invalidation and Verification Metrics

// RecordInvalidation counts a finished invalidation job by status.
func (m *Metrics) RecordInvalidation(status string, wait time.Duration) {
	if m.invalidations == nil {
		return
	}
	m.invalidations.WithLabelValues(status).Inc()
	m.invalidationWait.Observe(wait.Seconds())
}

// RecordVerificationProbe counts one reachability probe by outcome.
func (m *Metrics) RecordVerificationProbe(outcome string) {
	if m.verificationProbes == nil {
		return
	}
	m.verificationProbes.WithLabelValues(outcome).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
