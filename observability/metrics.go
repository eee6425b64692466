// Package observability carries the metrics and tracing plumbing for the
// co-pilot: a Prometheus collector fed by engine, catalog, validation and
// router events, and an OTLP trace provider for the pipeline spans.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/catalog"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/router"
	"github.com/Zevas1993/One-Stop-Shop-N8N-MCP-sub014/validation"
)

// Collector aggregates co-pilot metrics in its own Prometheus registry so
// embedding applications never collide with it.
//
// It is fed from three directions: the engine client's request and throttle
// observers, the catalog's sync events, and the coordinator's listener
// callbacks. All methods are safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	validations       *prometheus.CounterVec
	validationSeconds prometheus.Histogram
	engineRequests    *prometheus.CounterVec
	engineSeconds     *prometheus.HistogramVec
	throttleWaits     *prometheus.CounterVec
	catalogRefreshes  *prometheus.CounterVec
	catalogNodes      prometheus.Gauge
	routerDecisions   *prometheus.CounterVec
}

// NewCollector creates a Collector with a fresh registry and all metric
// families registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,

		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copilot",
			Name:      "validations_total",
			Help:      "Total number of validation runs by outcome and failed layer",
		}, []string{"outcome", "failed_layer"}),

		validationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "copilot",
			Name:      "validation_seconds",
			Help:      "Duration of validation runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		engineRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copilot",
			Name:      "engine_requests_total",
			Help:      "Total number of engine HTTP attempts by endpoint group and status code",
		}, []string{"endpoint", "code"}),

		engineSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "copilot",
			Name:      "engine_request_seconds",
			Help:      "Duration of engine HTTP attempts in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		throttleWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copilot",
			Name:      "engine_throttle_waits_total",
			Help:      "Total number of engine calls delayed by the client rate limiter",
		}, []string{"endpoint"}),

		catalogRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copilot",
			Name:      "catalog_refreshes_total",
			Help:      "Total number of catalog refresh attempts by source and outcome",
		}, []string{"source", "outcome"}),

		catalogNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "copilot",
			Name:      "catalog_nodes",
			Help:      "Number of node types in the current catalog snapshot",
		}),

		routerDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "copilot",
			Name:      "router_decisions_total",
			Help:      "Total number of routing decisions by chosen path",
		}, []string{"path"}),
	}

	reg.MustRegister(
		c.validations,
		c.validationSeconds,
		c.engineRequests,
		c.engineSeconds,
		c.throttleWaits,
		c.catalogRefreshes,
		c.catalogNodes,
		c.routerDecisions,
	)

	return c
}

// Registry returns the collector's registry for embedding in a larger
// scrape surface.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler that serves the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveEngineRequest records one engine HTTP attempt. It matches the
// engine client's request-observer signature; status is 0 when the attempt
// failed before producing a response.
func (c *Collector) ObserveEngineRequest(endpoint string, status int, elapsed time.Duration) {
	c.engineRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	c.engineSeconds.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveThrottleWait records one rate-limiter delay. It matches the engine
// client's throttle-observer signature.
func (c *Collector) ObserveThrottleWait(endpoint string, waited time.Duration) {
	_ = waited
	c.throttleWaits.WithLabelValues(endpoint).Inc()
}

// OnCatalogSynced records a successful catalog refresh and the resulting
// node count.
func (c *Collector) OnCatalogSynced(stats catalog.Stats) {
	c.catalogRefreshes.WithLabelValues(stats.SyncSource, "success").Inc()
	c.catalogNodes.Set(float64(stats.TotalNodes))
}

// OnCatalogError records a failed catalog refresh. A failed refresh has no
// winning source, so the source label is pinned to "none".
func (c *Collector) OnCatalogError(_ error) {
	c.catalogRefreshes.WithLabelValues(catalog.SourceNone, "error").Inc()
}

// OnValidationPassed records a validation run that found the workflow valid.
func (c *Collector) OnValidationPassed(res *validation.Result) {
	if res == nil {
		return
	}
	c.validations.WithLabelValues("valid", "").Inc()
	c.validationSeconds.Observe(float64(res.ElapsedMs) / 1000)
}

// OnValidationFailed records a validation run that rejected the workflow.
func (c *Collector) OnValidationFailed(res *validation.Result) {
	if res == nil {
		return
	}
	c.validations.WithLabelValues("invalid", res.FailedLayer).Inc()
	c.validationSeconds.Observe(float64(res.ElapsedMs) / 1000)
}

// OnWorkflowCreated is part of the coordinator listener surface. Deploy
// traffic is already visible through the engine request counters.
func (c *Collector) OnWorkflowCreated(_, _ string) {}

// OnWorkflowDeleted is part of the coordinator listener surface.
func (c *Collector) OnWorkflowDeleted(_ string) {}

// OnRouteDecided records one routing decision.
func (c *Collector) OnRouteDecided(d router.Decision) {
	c.routerDecisions.WithLabelValues(d.Path).Inc()
}
