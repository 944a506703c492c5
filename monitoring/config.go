package monitoring

import (
	"fmt"
	"strings"
	"time"
)

// Config - настройки отдельного HTTP сервера метрик и health check шлюза.
// Сервер слушает свой адрес, чтобы пробы оркестратора не шли через кэш.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// ListenAddress - адрес сервера метрик (например, ":9091")
	ListenAddress string `yaml:"listen_address"`

	// MetricsPath - эндпоинт Prometheus: метрики хранилища, стратегий,
	// контроллера и метрики производительности, присланные страницей
	MetricsPath string `yaml:"metrics_path"`

	// LivePath отвечает 200, пока процесс жив
	LivePath string `yaml:"live_path"`

	// ReadyPath отвечает 503, пока контроллер кэша не активен
	// и во время graceful shutdown
	ReadyPath string `yaml:"ready_path"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RuntimeMetrics включает периодическое обновление
	// edgecache_goroutines и edgecache_memory_usage_bytes
	RuntimeMetrics bool `yaml:"runtime_metrics"`

	// RuntimeMetricsInterval - период обновления метрик рантайма
	RuntimeMetricsInterval time.Duration `yaml:"runtime_metrics_interval"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Enabled:                true,
		ListenAddress:          ":9091",
		MetricsPath:            "/metrics",
		LivePath:               "/health/live",
		ReadyPath:              "/health/ready",
		ReadTimeout:            30 * time.Second,
		WriteTimeout:           30 * time.Second,
		RuntimeMetrics:         true,
		RuntimeMetricsInterval: 15 * time.Second,
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address cannot be empty when monitoring is enabled")
	}

	// Все эндпоинты живут на одном мультиплексоре
	seen := make(map[string]string, 3)
	for _, endpoint := range []struct{ field, path string }{
		{"metrics_path", c.MetricsPath},
		{"live_path", c.LivePath},
		{"ready_path", c.ReadyPath},
	} {
		if !strings.HasPrefix(endpoint.path, "/") {
			return fmt.Errorf("%s must start with '/': %q", endpoint.field, endpoint.path)
		}
		if other, ok := seen[endpoint.path]; ok {
			return fmt.Errorf("%s and %s share path %s", other, endpoint.field, endpoint.path)
		}
		seen[endpoint.path] = endpoint.field
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	if c.RuntimeMetrics && c.RuntimeMetricsInterval <= 0 {
		return fmt.Errorf("runtime_metrics_interval must be positive when runtime metrics are enabled")
	}

	return nil
}
