package worker

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config содержит конфигурацию контроллера кэша
type Config struct {
	// Version - версия кэша. Входит в имена бакетов, смена версии
	// при активации удаляет бакеты прошлых версий.
	Version string `yaml:"version"`

	// Precache - критические ресурсы, загружаемые при установке.
	// Относительные пути разрешаются от PublicURL, абсолютные URL
	// другого origin загружаются как cross-origin.
	Precache []string `yaml:"precache"`

	// InstallTimeout - ограничение на всю установку
	InstallTimeout time.Duration `yaml:"install_timeout"`

	// PublicURL - публичный origin страницы. Заполняется из server.public_url.
	PublicURL string `yaml:"-"`
}

// DefaultPrecache - критические ресурсы лендинга
var DefaultPrecache = []string{
	"/",
	"/index.html",
	"/assets/index.js",
	"/assets/index.css",
	"/favicon.ico",
	"/fonts/inter-var.woff2",
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Version:        "v1",
		Precache:       append([]string(nil), DefaultPrecache...),
		InstallTimeout: 30 * time.Second,
		PublicURL:      "http://localhost:8080",
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version cannot be empty")
	}
	if strings.ContainsAny(c.Version, "/: ") {
		return fmt.Errorf("version %q must not contain '/', ':' or spaces", c.Version)
	}

	u, err := url.Parse(c.PublicURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("public_url must be an absolute http(s) URL, got %q", c.PublicURL)
	}

	for i, p := range c.Precache {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("precache[%d] cannot be empty", i)
		}
		if _, err := url.Parse(p); err != nil {
			return fmt.Errorf("precache[%d]: %w", i, err)
		}
	}

	if c.InstallTimeout <= 0 {
		return fmt.Errorf("install_timeout must be positive")
	}
	return nil
}

// BucketNames - имена бакетов одной версии кэша
type BucketNames struct {
	Static   string
	Dynamic  string
	Critical string
}

// NamesFor возвращает имена бакетов для версии
func NamesFor(version string) BucketNames {
	return BucketNames{
		Static:   "static-" + version,
		Dynamic:  "dynamic-" + version,
		Critical: "critical-" + version,
	}
}

// All возвращает имена в порядке создания
func (n BucketNames) All() []string {
	return []string{n.Static, n.Dynamic, n.Critical}
}

// Contains проверяет, принадлежит ли имя текущей версии
func (n BucketNames) Contains(name string) bool {
	return name == n.Static || name == n.Dynamic || name == n.Critical
}
