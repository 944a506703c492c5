package monitoring

import (
	"regexp"
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics - метрики процесса и метрики, присланные страницей.
// Метрики модулей живут в их собственных metrics.go.
type Metrics struct {
	// Метрики производительности страницы (канал сообщений)
	ClientPerformance *prometheus.GaugeVec // Последнее значение метрики по имени
	ClientReports     prometheus.Counter   // Количество принятых значений

	// Системные метрики
	Goroutines  prometheus.Gauge // Количество горутин
	MemoryUsage prometheus.Gauge // Использование памяти (heap in use)
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// GetMetrics создает и регистрирует метрики в Prometheus при первом вызове.
// Использует promauto для автоматической регистрации метрик в default registry.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			ClientPerformance: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "edgecache_client_performance_metric",
					Help: "Last performance metric value reported by the page",
				},
				[]string{"name"},
			),
			ClientReports: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "edgecache_client_performance_reports_total",
					Help: "Total number of performance values reported by the page",
				},
			),

			// Системные метрики
			Goroutines: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "edgecache_goroutines",
					Help: "Number of goroutines",
				},
			),
			MemoryUsage: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "edgecache_memory_usage_bytes",
					Help: "Current heap memory in use in bytes",
				},
			),
		}
	})
	return metrics
}

// Имя метрики от страницы становится значением метки, поэтому ограничено
var clientMetricName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

// RecordClientMetric сохраняет значение метрики, присланной страницей.
// Возвращает false, если имя не подходит для метки.
func RecordClientMetric(name string, value float64) bool {
	if !clientMetricName.MatchString(name) {
		return false
	}
	m := GetMetrics()
	m.ClientPerformance.WithLabelValues(name).Set(value)
	m.ClientReports.Inc()
	return true
}

// collectRuntimeMetrics снимает показатели рантайма
func collectRuntimeMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m := GetMetrics()
	m.Goroutines.Set(float64(runtime.NumGoroutine()))
	m.MemoryUsage.Set(float64(ms.HeapInuse))
}

// GetRegistry возвращает default Prometheus registry.
// Это может быть полезно для тестирования или кастомной настройки.
func GetRegistry() *prometheus.Registry {
	return prometheus.DefaultRegisterer.(*prometheus.Registry)
}
