package worker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Состояние жизненного цикла активного контроллера
	State prometheus.Gauge

	// Сообщения от страницы по типу
	MessagesTotal *prometheus.CounterVec

	// Вытеснения по квоте
	QuotaEvictionsTotal prometheus.Counter
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

func getMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			State: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "edgecache_worker_state",
					Help: "Lifecycle state of the newest cache controller (0=installing, 1=installed, 2=active)",
				},
			),
			MessagesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "edgecache_worker_messages_total",
					Help: "Total number of messages received from the page",
				},
				[]string{"type"}, // PERFORMANCE_METRICS/other/invalid
			),
			QuotaEvictionsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "edgecache_worker_quota_evictions_total",
					Help: "Total number of evictions triggered by quota errors",
				},
			),
		}
	})
	return metrics
}
