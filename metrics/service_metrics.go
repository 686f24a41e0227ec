package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// MetricsPrefix is the prefix used for all metrics
const MetricsPrefix = "market_hydrator_"

// Component names used as metric labels
const (
	ComponentCoingecko = "coingecko"
	ComponentPreload   = "preload"
	ComponentHydration = "hydration"
	ComponentValidator = "validator"
	ComponentTransform = "transform"
	ComponentCache     = "cache"
)

var (
	// Global Coingecko request counter (all components)
	// Cardinality: ~5 (success, error, rate_limited, timeout, etc.)
	CoingeckoRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "coingecko_requests_total",
			Help: "Total number of HTTP requests to Coingecko API",
		},
		[]string{"status"},
	)

	// Component-specific Coingecko request counter
	// Cardinality: ~15 (3 callers × 5 statuses)
	ServiceCoingeckoRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "service_coingecko_requests_total",
			Help: "Total number of HTTP requests to Coingecko API per component",
		},
		[]string{"service", "status"},
	)

	// Retry attempts counter
	// Cardinality: ~3
	ServiceRetryCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "service_retry_attempts_total",
			Help: "Total number of retry attempts per component",
		},
		[]string{"service"},
	)

	// Fetch duration per component and resource
	// Cardinality: ~8 (components × popular/details/rates)
	FetchDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: MetricsPrefix + "fetch_duration_seconds",
			Help: "Time taken to fetch and settle a resource",
		},
		[]string{"service", "resource"},
	)

	// Preload request outcomes
	// Cardinality: ~6 (cached, in_flight, dispatched, capacity, resolved, failed)
	PreloadOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "preload_outcomes_total",
			Help: "Preload requests by outcome",
		},
		[]string{"outcome"},
	)

	// Preload registry occupancy
	PreloadRegistrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: MetricsPrefix + "preload_registry_size",
			Help: "Number of coin identifiers currently being preloaded",
		},
	)

	// Navigation outcomes
	// Cardinality: ~5 (hit, store, derived, miss, failed)
	NavigationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "navigations_total",
			Help: "Coin navigations by how their data was obtained",
		},
		[]string{"outcome"},
	)

	// Cache validations by result reason
	// Cardinality: ~5
	ValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "cache_validations_total",
			Help: "Cache validations by reason",
		},
		[]string{"reason"},
	)

	// Transformed items by status
	// Cardinality: 2 (ok, skipped)
	TransformItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: MetricsPrefix + "transform_items_total",
			Help: "Records re-denominated by the transform worker",
		},
		[]string{"status"},
	)

	// Hydration state per domain, 1 for the current status
	// Cardinality: 2 domains × (4 statuses + 4 preload statuses)
	HydrationStateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricsPrefix + "hydration_state",
			Help: "Current hydration state per domain (1 = active)",
		},
		[]string{"domain", "machine", "state"},
	)

	// Component cache size
	// Cardinality: ~3
	ServiceCacheSizeGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: MetricsPrefix + "service_cache_size",
			Help: "Number of items in component cache",
		},
		[]string{"service"},
	)
)

// RecordPreloadOutcome counts one preload request outcome
func RecordPreloadOutcome(outcome string) {
	PreloadOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordRegistrySize sets the current preload registry occupancy
func RecordRegistrySize(size int) {
	PreloadRegistrySize.Set(float64(size))
}

// RecordNavigation counts one navigation outcome
func RecordNavigation(outcome string) {
	NavigationsTotal.WithLabelValues(outcome).Inc()
}

// RecordValidation counts one cache validation result
func RecordValidation(reason string) {
	ValidationsTotal.WithLabelValues(reason).Inc()
}

// RecordTransformItems counts converted and skipped records
func RecordTransformItems(ok, skipped int) {
	if ok > 0 {
		TransformItemsTotal.WithLabelValues("ok").Add(float64(ok))
	}
	if skipped > 0 {
		TransformItemsTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
}

// RecordHydrationState marks state as the active one of machine for domain
func RecordHydrationState(domain, machine, state string, all []string) {
	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1
		}
		HydrationStateGauge.WithLabelValues(domain, machine, s).Set(value)
	}
}

// MetricsWriter provides a unified interface for recording component metrics
type MetricsWriter struct {
	serviceName string
}

// NewMetricsWriter creates a new MetricsWriter for the specified component
func NewMetricsWriter(serviceName string) *MetricsWriter {
	return &MetricsWriter{
		serviceName: serviceName,
	}
}

// GetServiceName returns the component name
func (mw *MetricsWriter) GetServiceName() string {
	return mw.serviceName
}

// RecordServiceCoingeckoRequest records a component-specific Coingecko API request
func (mw *MetricsWriter) RecordServiceCoingeckoRequest(status string) {
	CoingeckoRequestsTotal.WithLabelValues(status).Inc()
	ServiceCoingeckoRequestsTotal.WithLabelValues(mw.serviceName, status).Inc()
	logrus.Debugf("Metrics: %s Coingecko request recorded with status %s", mw.serviceName, status)
}

// RecordFetch records how long fetching resource took
func (mw *MetricsWriter) RecordFetch(resource string, start time.Time) {
	duration := time.Since(start)
	FetchDurationHistogram.WithLabelValues(mw.serviceName, resource).Observe(duration.Seconds())
	logrus.Debugf("Metrics: %s fetch %s took %.2fs", mw.serviceName, resource, duration.Seconds())
}

// RecordCacheSize records the number of items in component cache
func (mw *MetricsWriter) RecordCacheSize(size int) {
	ServiceCacheSizeGauge.WithLabelValues(mw.serviceName).Set(float64(size))
}

// RecordRetryAttempt records a retry attempt
func (mw *MetricsWriter) RecordRetryAttempt() {
	ServiceRetryCounter.WithLabelValues(mw.serviceName).Inc()
	logrus.Debugf("Metrics: %s recorded a retry attempt", mw.serviceName)
}

// OnRequest records an HTTP request with its status (coingecko.HttpStatusHandler)
func (mw *MetricsWriter) OnRequest(status string) {
	mw.RecordServiceCoingeckoRequest(status)
}

// OnRetry records an HTTP retry attempt (coingecko.HttpStatusHandler)
func (mw *MetricsWriter) OnRetry() {
	mw.RecordRetryAttempt()
}
