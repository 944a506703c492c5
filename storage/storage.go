package storage

import (
	"context"
	"fmt"

	"edgecache/logger"
)

// New создает хранилище по конфигурации
func New(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	switch cfg.Driver {
	case DriverS3:
		return NewS3Storage(ctx, cfg.S3)
	case DriverRedis:
		return NewRedisStorage(ctx, cfg.Redis)
	default:
		logger.Info("Memory storage configured (quota: %d bytes)", cfg.Memory.MaxBytes)
		return NewMemoryStorage(cfg.Memory.MaxBytes), nil
	}
}
