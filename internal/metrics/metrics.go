// Package metrics holds the Prometheus collectors of the relay service.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector groups the service counters.
type Collector struct {
	registry *prometheus.Registry

	webhookEvents *prometheus.CounterVec
	posts         *prometheus.CounterVec
	dailyRuns     *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New(namespace string) *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook deliveries by event type and outcome",
		},
		[]string{"event", "outcome"},
	)
	c.posts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_total",
			Help:      "Publish attempts by delivery method and outcome",
		},
		[]string{"method", "outcome"},
	)
	c.dailyRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daily_runs_total",
			Help:      "Daily summary job runs by outcome",
		},
		[]string{"outcome"},
	)

	c.registry.MustRegister(c.webhookEvents, c.posts, c.dailyRuns)
	c.registry.MustRegister(collectors.NewGoCollector())
	return c
}

// WebhookEvent counts one delivery. A nil collector is a no-op.
func (c *Collector) WebhookEvent(event, outcome string) {
	if c == nil {
		return
	}
	c.webhookEvents.WithLabelValues(event, outcome).Inc()
}

// Post counts one publish attempt.
func (c *Collector) Post(method string, success bool) {
	if c == nil {
		return
	}
	c.posts.WithLabelValues(method, outcomeLabel(success)).Inc()
}

// DailyRun counts one run of the daily job.
func (c *Collector) DailyRun(outcome string) {
	if c == nil {
		return
	}
	c.dailyRuns.WithLabelValues(outcome).Inc()
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
	return func(ctx *gin.Context) {
		h.ServeHTTP(ctx.Writer, ctx.Request)
	}
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
