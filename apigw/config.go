package apigw

import (
	"fmt"
	"net/url"
	"time"
)

// Config содержит конфигурацию для API Gateway
type Config struct {
	// ListenAddress - адрес и порт для прослушивания (например, ":8080")
	ListenAddress string

	// PublicURL - публичный origin сайта (например, "https://example.com").
	// Используется для построения абсолютных URL запросов, чтобы ключи кэша
	// не зависели от заголовка Host. Пустое значение - брать Host из запроса.
	PublicURL string

	// MessagePath - путь канала диагностических сообщений
	MessagePath string

	// MaxBodyBytes - ограничение на размер тела входящего запроса
	MaxBodyBytes int64

	// TLSCertFile - путь к файлу SSL-сертификата (опционально, для включения HTTPS)
	TLSCertFile string

	// TLSKeyFile - путь к файлу приватного ключа SSL (опционально)
	TLSKeyFile string

	// ReadTimeout - таймаут на чтение всего запроса, включая тело
	ReadTimeout time.Duration

	// WriteTimeout - таймаут на запись всего ответа
	WriteTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		ListenAddress: ":8080",
		PublicURL:     "http://localhost:8080",
		MessagePath:   "/__sw/message",
		MaxBodyBytes:  10 << 20,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address cannot be empty")
	}
	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil {
			return fmt.Errorf("invalid public_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("public_url must be an absolute http(s) URL")
		}
	}
	if c.MessagePath == "" || c.MessagePath[0] != '/' {
		return fmt.Errorf("message_path must start with '/'")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}
	return nil
}
