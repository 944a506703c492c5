package storage

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Метрики хранилища
	OperationsTotal *prometheus.CounterVec // Операции с бакетами по драйверу
	EvictedTotal    *prometheus.CounterVec // Вытесненные записи по бакету
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

func getMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			OperationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "edgecache_storage_operations_total",
					Help: "Total number of storage operations",
				},
				[]string{"driver", "op", "result"}, // result: ok/error/quota
			),
			EvictedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "edgecache_storage_evicted_entries_total",
					Help: "Total number of entries evicted from buckets",
				},
				[]string{"bucket"},
			),
		}
	})
	return metrics
}

func (m *Metrics) observe(driver, op string, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		result = "quota"
	case err != nil:
		result = "error"
	}
	m.OperationsTotal.WithLabelValues(driver, op, result).Inc()
}

func (m *Metrics) evicted(bucket string, n int) {
	if n > 0 {
		m.EvictedTotal.WithLabelValues(bucket).Add(float64(n))
	}
}
