package storage

import (
	"fmt"
	"strings"
	"time"
)

// Имена драйверов хранилища
const (
	DriverMemory = "memory"
	DriverS3     = "s3"
	DriverRedis  = "redis"
)

// MemoryConfig содержит конфигурацию хранилища в памяти
type MemoryConfig struct {
	// MaxBytes - квота на все бакеты. 0 - без ограничений.
	MaxBytes int64 `yaml:"max_bytes"`
}

// S3Config содержит конфигурацию S3-хранилища
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`   // URL эндпоинта S3 (например, http://localhost:9000 для MinIO)
	Region    string `yaml:"region"`     // Регион AWS (например, us-east-1)
	Bucket    string `yaml:"bucket"`     // Имя S3-бакета, общего для всех бакетов кэша
	Prefix    string `yaml:"prefix"`     // Префикс ключей внутри S3-бакета
	AccessKey string `yaml:"access_key"` // Access Key для аутентификации
	SecretKey string `yaml:"secret_key"` // Secret Key для аутентификации
}

// RedisConfig содержит конфигурацию Redis-хранилища
type RedisConfig struct {
	// URL - адрес Redis (например, "redis://localhost:6379/0")
	URL string `yaml:"url"`

	// Prefix - префикс всех ключей
	Prefix string `yaml:"prefix"`

	// DialTimeout - таймаут проверки соединения при старте
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Config содержит полную конфигурацию модуля
type Config struct {
	// Driver - один из: memory, s3, redis
	Driver string       `yaml:"driver"`
	Memory MemoryConfig `yaml:"memory"`
	S3     S3Config     `yaml:"s3"`
	Redis  RedisConfig  `yaml:"redis"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverMemory,
		Memory: MemoryConfig{
			MaxBytes: 64 << 20,
		},
		S3: S3Config{
			Endpoint: "http://localhost:9000",
			Region:   "us-east-1",
			Bucket:   "edgecache",
			Prefix:   "cache",
		},
		Redis: RedisConfig{
			URL:         "redis://localhost:6379/0",
			Prefix:      "edgecache",
			DialTimeout: 5 * time.Second,
		},
	}
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverMemory:
		if c.Memory.MaxBytes < 0 {
			return fmt.Errorf("memory.max_bytes cannot be negative")
		}
	case DriverS3:
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("invalid s3 config: %w", err)
		}
	case DriverRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url cannot be empty")
		}
		if c.Redis.DialTimeout <= 0 {
			return fmt.Errorf("redis.dial_timeout must be positive")
		}
	default:
		return fmt.Errorf("unknown storage driver %q (expected memory, s3 or redis)", c.Driver)
	}
	return nil
}

// Validate проверяет корректность конфигурации S3
func (sc *S3Config) Validate() error {
	if sc.Region == "" {
		return fmt.Errorf("region cannot be empty")
	}

	if sc.Bucket == "" {
		return fmt.Errorf("bucket cannot be empty")
	}

	if strings.Contains(sc.Prefix, "//") {
		return fmt.Errorf("prefix cannot contain empty path segments")
	}

	if (sc.AccessKey == "") != (sc.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}

	return nil
}
