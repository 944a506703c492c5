package fetch

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Метрики стратегий
	StrategyRequestsTotal *prometheus.CounterVec // Запросы по стратегии и результату
	NetworkFetchTotal     *prometheus.CounterVec // Обращения к origin
	NetworkFetchLatency   prometheus.Histogram   // Латентность обращений к origin

	// Фоновое обновление
	BackgroundRefreshTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

func getMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			StrategyRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "edgecache_strategy_requests_total",
					Help: "Total number of requests served by each caching strategy",
				},
				[]string{"strategy", "result"}, // result: hit/miss/stale/offline/bypass/error
			),
			NetworkFetchTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "edgecache_network_fetch_total",
					Help: "Total number of requests sent to the origin",
				},
				[]string{"result"},
			),
			NetworkFetchLatency: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "edgecache_network_fetch_latency_seconds",
					Help:    "Latency of requests to the origin",
					Buckets: prometheus.DefBuckets,
				},
			),
			BackgroundRefreshTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "edgecache_background_refresh_total",
					Help: "Total number of detached background cache refreshes",
				},
				[]string{"result"}, // ok/error/panic
			),
		}
	})
	return metrics
}
