package routing

import (
	"context"
	"fmt"

	"edgecache/apigw"
)

// Strategy - стратегия обслуживания запроса
type Strategy int

const (
	// NetworkOnly - только сеть, кэш не затрагивается. Стратегия по умолчанию.
	NetworkOnly Strategy = iota
	// NetworkFirst - сначала сеть, при сбое копия из dynamic
	NetworkFirst
	// CacheFirst - сначала static, обновление в фоне
	CacheFirst
	// StaleWhileRevalidate - копия из dynamic сразу, обновление в фоне
	StaleWhileRevalidate
)

// String возвращает имя стратегии в том виде, в каком оно пишется в конфигурации
func (s Strategy) String() string {
	switch s {
	case NetworkOnly:
		return "network-only"
	case NetworkFirst:
		return "network-first"
	case CacheFirst:
		return "cache-first"
	case StaleWhileRevalidate:
		return "stale-while-revalidate"
	default:
		return "unknown"
	}
}

// ParseStrategy разбирает имя стратегии
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "network-only":
		return NetworkOnly, nil
	case "network-first":
		return NetworkFirst, nil
	case "cache-first":
		return CacheFirst, nil
	case "stale-while-revalidate":
		return StaleWhileRevalidate, nil
	default:
		return NetworkOnly, fmt.Errorf("unknown strategy %q", name)
	}
}

// Rule - правило таблицы маршрутизации: предикат и стратегия
type Rule struct {
	// Name - имя правила для логов
	Name string

	Strategy Strategy

	// Match проверяет, подходит ли запрос под правило
	Match func(req *apigw.Request) bool
}

// StrategyExecutor - интерфейс для модуля, выполняющего стратегии.
// Реализация сама знает, с какими бакетами работает каждая стратегия.
type StrategyExecutor interface {
	// NetworkFirst выполняет стратегию network-first
	NetworkFirst(ctx context.Context, req *apigw.Request) (*apigw.Response, error)

	// CacheFirst выполняет стратегию cache-first
	CacheFirst(ctx context.Context, req *apigw.Request) (*apigw.Response, error)

	// StaleWhileRevalidate выполняет стратегию stale-while-revalidate
	StaleWhileRevalidate(ctx context.Context, req *apigw.Request) (*apigw.Response, error)

	// NetworkOnly проксирует запрос без кэша
	NetworkOnly(ctx context.Context, req *apigw.Request) (*apigw.Response, error)

	// Offline возвращает офлайн-ответ для навигационного запроса
	Offline(ctx context.Context, req *apigw.Request) *apigw.Response
}

// RuleConfig - правило в конфигурации
type RuleConfig struct {
	// Name - имя правила. По умолчанию совпадает со стратегией.
	Name string `yaml:"name"`

	// Strategy - network-first, cache-first, stale-while-revalidate или network-only
	Strategy string `yaml:"strategy"`

	// Patterns - регулярные выражения для пути URL. Правило срабатывает,
	// если совпало любое из них.
	Patterns []string `yaml:"patterns,omitempty"`

	// Navigation - правило срабатывает для запросов, ожидающих HTML
	Navigation bool `yaml:"navigation,omitempty"`
}

// Config содержит таблицу маршрутизации запросов по стратегиям
type Config struct {
	// Rules - упорядоченная таблица правил, первое совпадение побеждает
	Rules []RuleConfig `yaml:"rules"`
}

// StaticExtensionPattern - статические ресурсы по расширению
const StaticExtensionPattern = `\.(js|mjs|css|woff2?|ttf|otf|eot|png|jpe?g|gif|svg|webp|avif|ico)$`

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Rules: []RuleConfig{
			{
				Name:     "api",
				Strategy: NetworkFirst.String(),
				Patterns: []string{`^/admin`, `^/api/leads`, `^/api/analytics`},
			},
			{
				Name:     "static",
				Strategy: CacheFirst.String(),
				Patterns: []string{`^/assets/`, `^/uploads/`, `^/api/settings`, StaticExtensionPattern},
			},
			{
				Name:       "navigation",
				Strategy:   StaleWhileRevalidate.String(),
				Navigation: true,
			},
		},
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	_, err := c.Compile()
	return err
}
