package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"edgecache/apigw"
	"edgecache/fetch"
	"edgecache/logger"
	"edgecache/monitoring"
	"edgecache/routing"
	"edgecache/storage"
	"edgecache/worker"
)

// AppConfig содержит полную конфигурацию приложения
type AppConfig struct {
	// Конфигурация API Gateway
	Server ServerConfig `yaml:"server"`

	// Конфигурация логирования
	Logging LoggingConfig `yaml:"logging"`

	// Конфигурация доступа к origin
	Fetch fetch.Config `yaml:"fetch"`

	// Таблица правил маршрутизации
	Routing routing.Config `yaml:"routing"`

	// Конфигурация контроллера кэша
	Worker worker.Config `yaml:"worker"`

	// Конфигурация хранилища бакетов
	Storage storage.Config `yaml:"storage"`

	// Конфигурация мониторинга
	Monitoring monitoring.Config `yaml:"monitoring"`
}

// ServerConfig содержит конфигурацию HTTP сервера
type ServerConfig struct {
	ListenAddress string        `yaml:"listen_address"`
	PublicURL     string        `yaml:"public_url"`
	MessagePath   string        `yaml:"message_path"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
	TLSCertFile   string        `yaml:"tls_cert_file"`
	TLSKeyFile    string        `yaml:"tls_key_file"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	BypassCache   bool          `yaml:"bypass_cache"`
}

// LoggingConfig содержит конфигурацию логирования
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envOverrides - переменные окружения, переопределяющие YAML
type envOverrides struct {
	OriginURL     string `env:"EDGECACHE_ORIGIN_URL"`
	LogLevel      string `env:"EDGECACHE_LOG_LEVEL"`
	StorageDriver string `env:"EDGECACHE_STORAGE_DRIVER"`
	RedisURL      string `env:"EDGECACHE_REDIS_URL"`
	S3Bucket      string `env:"EDGECACHE_S3_BUCKET"`
	CacheVersion  string `env:"EDGECACHE_CACHE_VERSION"`
}

// DefaultAppConfig возвращает конфигурацию по умолчанию
func DefaultAppConfig() *AppConfig {
	gw := apigw.DefaultConfig()
	return &AppConfig{
		Server: ServerConfig{
			ListenAddress: gw.ListenAddress,
			PublicURL:     gw.PublicURL,
			MessagePath:   gw.MessagePath,
			MaxBodyBytes:  gw.MaxBodyBytes,
			ReadTimeout:   gw.ReadTimeout,
			WriteTimeout:  gw.WriteTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(logger.FormatText),
		},
		Fetch:      *fetch.DefaultConfig(),
		Routing:    *routing.DefaultConfig(),
		Worker:     *worker.DefaultConfig(),
		Storage:    *storage.DefaultConfig(),
		Monitoring: *monitoring.DefaultConfig(),
	}
}

// LoadConfig загружает конфигурацию из файла и применяет переменные окружения
func LoadConfig(filename string) (*AppConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	// Начинаем с конфигурации по умолчанию
	config := DefaultAppConfig()

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// ApplyEnv применяет переопределения из переменных окружения
func (c *AppConfig) ApplyEnv() error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	if overrides.OriginURL != "" {
		c.Fetch.OriginURL = overrides.OriginURL
	}
	if overrides.LogLevel != "" {
		c.Logging.Level = overrides.LogLevel
	}
	if overrides.StorageDriver != "" {
		c.Storage.Driver = overrides.StorageDriver
	}
	if overrides.RedisURL != "" {
		c.Storage.Redis.URL = overrides.RedisURL
	}
	if overrides.S3Bucket != "" {
		c.Storage.S3.Bucket = overrides.S3Bucket
	}
	if overrides.CacheVersion != "" {
		c.Worker.Version = overrides.CacheVersion
	}
	return nil
}

// Validate проверяет корректность конфигурации
func (c *AppConfig) Validate() error {
	gw := c.ToAPIGatewayConfig()
	if err := gw.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	// Проверяем TLS конфигурацию
	if (c.Server.TLSCertFile != "") != (c.Server.TLSKeyFile != "") {
		return fmt.Errorf("both tls_cert_file and tls_key_file must be specified for TLS")
	}

	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	switch logger.Format(c.Logging.Format) {
	case logger.FormatText, logger.FormatJSON:
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	if err := c.Fetch.Validate(); err != nil {
		return fmt.Errorf("fetch config: %w", err)
	}

	if err := c.Routing.Validate(); err != nil {
		return fmt.Errorf("routing config: %w", err)
	}

	if err := c.ToWorkerConfig().Validate(); err != nil {
		return fmt.Errorf("worker config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Monitoring.Validate(); err != nil {
		return fmt.Errorf("monitoring config: %w", err)
	}

	return nil
}

// ToAPIGatewayConfig преобразует в конфигурацию API Gateway
func (c *AppConfig) ToAPIGatewayConfig() apigw.Config {
	return apigw.Config{
		ListenAddress: c.Server.ListenAddress,
		PublicURL:     c.Server.PublicURL,
		MessagePath:   c.Server.MessagePath,
		MaxBodyBytes:  c.Server.MaxBodyBytes,
		TLSCertFile:   c.Server.TLSCertFile,
		TLSKeyFile:    c.Server.TLSKeyFile,
		ReadTimeout:   c.Server.ReadTimeout,
		WriteTimeout:  c.Server.WriteTimeout,
	}
}

// ToWorkerConfig возвращает конфигурацию контроллера с публичным origin сервера
func (c *AppConfig) ToWorkerConfig() *worker.Config {
	wc := c.Worker
	wc.Precache = append([]string(nil), c.Worker.Precache...)
	wc.PublicURL = c.Server.PublicURL
	return &wc
}

// isValidLogLevel проверяет корректность уровня логирования
func isValidLogLevel(level string) bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return true
		}
	}
	return false
}

// SaveConfig сохраняет конфигурацию в файл (для генерации примера)
func (c *AppConfig) SaveConfig(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filename, err)
	}

	return nil
}
