package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	types "github.com/yungbote/mechdata-backend/internal/domain"
	"github.com/yungbote/mechdata-backend/internal/pkg/logger"
)

// Metrics holds the pipeline's prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ingestTotal      *prometheus.CounterVec
	resolutionsTotal *prometheus.CounterVec
	finalizeTotal    *prometheus.CounterVec
	jobTransitions   *prometheus.CounterVec
	lookupDuration   *prometheus.HistogramVec
	storeWrites      *prometheus.HistogramVec
	storeConflicts   *prometheus.CounterVec
	apiRequests      *prometheus.CounterVec
	apiLatency       *prometheus.HistogramVec
	queueDepth       *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors. reg may be nil, in which
// case a fresh registry with the Go and process collectors is used.
func NewMetrics(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m := &Metrics{
		registry: reg,
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mechdata_ingest_total",
			Help: "Ingested source files by unit class and outcome",
		}, []string{"class", "outcome"}),
		resolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mechdata_resolutions_total",
			Help: "Slot resolutions by method (exact, alias, token_subset, ambiguous, unresolved)",
		}, []string{"method"}),
		finalizeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mechdata_finalize_total",
			Help: "Finalization attempts by outcome",
		}, []string{"outcome"}),
		jobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mechdata_valuation_job_transitions_total",
			Help: "Valuation job state transitions",
		}, []string{"to"}),
		lookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mechdata_valuation_lookup_duration_seconds",
			Help:    "External valuation lookup latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"backend", "result"}),
		storeWrites: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mechdata_store_write_duration_seconds",
			Help:    "Finalize and valuation write transactions by operation and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		storeConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mechdata_store_conflicts_total",
			Help: "Store writes that ended in a unique or serialization conflict",
		}, []string{"operation"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mechdata_api_requests_total",
			Help: "Ops API requests",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mechdata_api_request_duration_seconds",
			Help:    "Ops API latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mechdata_valuation_jobs",
			Help: "Valuation jobs by status",
		}, []string{"status"}),
	}
	for _, c := range []prometheus.Collector{
		m.ingestTotal, m.resolutionsTotal, m.finalizeTotal, m.jobTransitions, m.lookupDuration,
		m.storeWrites, m.storeConflicts, m.apiRequests, m.apiLatency, m.queueDepth,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncIngest(class, outcome string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(class, outcome).Inc()
}

func (m *Metrics) AddResolutions(method string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.resolutionsTotal.WithLabelValues(method).Add(float64(n))
}

func (m *Metrics) IncFinalize(outcome string) {
	if m == nil {
		return
	}
	m.finalizeTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncJobTransition(to string) {
	if m == nil {
		return
	}
	m.jobTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) ObserveLookup(backend, result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.lookupDuration.WithLabelValues(backend, result).Observe(dur.Seconds())
}

func (m *Metrics) ObserveStoreWrite(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.storeWrites.WithLabelValues(op, status).Observe(dur.Seconds())
}

func (m *Metrics) IncStoreConflict(op string) {
	if m == nil {
		return
	}
	m.storeConflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

// StartJobQueueCollector refreshes the job depth gauge every interval until
// ctx is done.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, interval time.Duration) {
	if m == nil || db == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.CollectJobQueue(ctx, db); err != nil && log != nil {
					log.Warn("metrics: job queue depth query failed", "error", err)
				}
			}
		}
	}()
}

// CollectJobQueue sets the depth gauge from one status count query.
func (m *Metrics) CollectJobQueue(ctx context.Context, db *gorm.DB) error {
	if m == nil || db == nil {
		return nil
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&types.ValuationJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return err
	}
	for _, s := range []types.JobStatus{types.JobQueued, types.JobInProgress, types.JobDone, types.JobFailed} {
		m.queueDepth.WithLabelValues(string(s)).Set(0)
	}
	for _, row := range rows {
		m.queueDepth.WithLabelValues(row.Status).Set(float64(row.Count))
	}
	return nil
}
