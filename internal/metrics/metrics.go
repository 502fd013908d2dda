// Package metrics defines the Prometheus collectors shared by the issuer and
// the verifier. A nil *Metrics is valid and records nothing, so services and
// tests can run without a registry.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all credrelay collectors.
type Metrics struct {
	// Issuance
	CredentialsIssued  prometheus.Counter
	DuplicatesRejected prometheus.Counter

	// Replication
	ReplicationPushes    *prometheus.CounterVec
	ReplicationPending   prometheus.Gauge
	ReplicationBatchSize prometheus.Histogram

	// Verification
	Verifications *prometheus.CounterVec
	SyncBatches   *prometheus.CounterVec
	CacheSize     prometheus.Gauge

	RequestDuration *prometheus.HistogramVec
}

// New creates all collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CredentialsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "credrelay_credentials_issued_total",
			Help: "Total number of credentials issued and persisted",
		}),
		DuplicatesRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "credrelay_duplicates_rejected_total",
			Help: "Total number of issuance requests rejected for identical data",
		}),
		ReplicationPushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credrelay_replication_pushes_total",
			Help: "Replication pushes to the verifier, labeled by sync mode and result",
		}, []string{"mode", "result"}),
		ReplicationPending: f.NewGauge(prometheus.GaugeOpts{
			Name: "credrelay_replication_pending",
			Help: "Credentials waiting in the replication outbox",
		}),
		ReplicationBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "credrelay_replication_batch_size",
			Help:    "Number of credentials per replication push",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credrelay_verifications_total",
			Help: "Verification requests, labeled by lookup method and verdict",
		}, []string{"method", "valid"}),
		SyncBatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credrelay_sync_batches_total",
			Help: "Sync batches applied to the verification cache, labeled by mode",
		}, []string{"mode"}),
		CacheSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "credrelay_cache_credentials",
			Help: "Credentials currently held by the verification cache",
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credrelay_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// IncIssued increments the issued counter.
func (m *Metrics) IncIssued() {
	if m == nil {
		return
	}
	m.CredentialsIssued.Inc()
}

// IncDuplicate increments the duplicate rejection counter.
func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.DuplicatesRejected.Inc()
}

// ObservePush records one replication push of size credentials.
func (m *Metrics) ObservePush(mode string, size int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ReplicationPushes.WithLabelValues(mode, result).Inc()
	m.ReplicationBatchSize.Observe(float64(size))
}

// SetPending sets the current outbox depth.
func (m *Metrics) SetPending(n int64) {
	if m == nil {
		return
	}
	m.ReplicationPending.Set(float64(n))
}

// ObserveVerification counts one verification by method ("id" or "data").
func (m *Metrics) ObserveVerification(method string, valid bool) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(method, strconv.FormatBool(valid)).Inc()
}

// ObserveSync counts one applied sync batch and records the resulting cache size.
func (m *Metrics) ObserveSync(mode string, cacheSize int) {
	if m == nil {
		return
	}
	m.SyncBatches.WithLabelValues(mode).Inc()
	m.CacheSize.Set(float64(cacheSize))
}

// ObserveRequest records the latency of one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}
