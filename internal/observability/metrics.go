package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpstreamFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runcheer_upstream_fetches_total",
		Help: "Runner record fetches by outcome",
	}, []string{"outcome"})
	RefreshCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runcheer_refresh_cycles_total",
		Help: "Completed tracking refresh cycles",
	})
	RefreshCycleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "runcheer_refresh_cycle_seconds",
		Help:    "Time from cycle start until every fetch settled",
		Buckets: prometheus.DefBuckets,
	})
	DiscardedResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runcheer_discarded_results_total",
		Help: "Fetch results dropped because the session stopped or restarted",
	})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "runcheer_tracking_sessions_active",
		Help: "Group tracking sessions currently tracking",
	})
	ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runcheer_proxy_requests_total",
		Help: "Proxy requests by cache result",
	}, []string{"cache"})
	ProxyUpstreamLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "runcheer_proxy_upstream_seconds",
		Help:    "Latency of calls to the timing provider",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveFetch(err error) {
	if err != nil {
		UpstreamFetches.WithLabelValues("error").Inc()
		return
	}
	UpstreamFetches.WithLabelValues("ok").Inc()
}

func ObserveCycle(d time.Duration) {
	RefreshCycles.Inc()
	RefreshCycleLatency.Observe(d.Seconds())
}

func ObserveProxyUpstream(start time.Time) {
	ProxyUpstreamLatency.Observe(time.Since(start).Seconds())
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
