package apigw

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Общие метрики запросов
	RequestsTotal  *prometheus.CounterVec   // Общее количество обработанных запросов
	RequestLatency *prometheus.HistogramVec // Латентность запросов
	MessagesTotal  *prometheus.CounterVec   // Сообщения по диагностическому каналу
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// getMetrics регистрирует метрики один раз на процесс.
// Несколько Gateway (тесты, перезагрузка конфигурации) разделяют их.
func getMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "edgecache_apigw_requests_total",
					Help: "Total number of processed requests",
				},
				[]string{"method", "code", "cache"},
			),
			RequestLatency: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "edgecache_apigw_request_latency_seconds",
					Help:    "Latency of requests in seconds",
					Buckets: prometheus.DefBuckets, // Стандартные бакеты времени
				},
				[]string{"method"},
			),
			MessagesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "edgecache_apigw_messages_total",
					Help: "Total number of diagnostic messages received from pages",
				},
				[]string{"result"},
			),
		}
	})
	return metrics
}
