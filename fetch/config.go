package fetch

import (
	"fmt"
	"net/url"
	"time"
)

// Config содержит конфигурацию доступа к origin
type Config struct {
	// OriginURL - адрес upstream origin (например, http://localhost:3001)
	OriginURL string `yaml:"origin_url"`

	// Timeout - таймаут одного запроса к origin. 0 - без собственного таймаута.
	Timeout time.Duration `yaml:"timeout"`

	// MaxBodyBytes - максимальный размер тела ответа, который читается в память
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		OriginURL:    "http://localhost:3001",
		Timeout:      0,
		MaxBodyBytes: 32 << 20,
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.OriginURL == "" {
		return fmt.Errorf("origin_url cannot be empty")
	}
	u, err := url.Parse(c.OriginURL)
	if err != nil {
		return fmt.Errorf("invalid origin_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin_url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("origin_url must include a host")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}
	return nil
}
