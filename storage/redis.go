package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"edgecache/logger"
)

// maxWatchRetries - число попыток записи при конкурентном изменении реестра
const maxWatchRetries = 5

// RedisStorage хранит бакеты в Redis:
//
//	<prefix>:buckets              ZSET имя бакета -> seq создания
//	<prefix>:seq                  счетчик INCR
//	<prefix>:b:<name>:entries     HASH ключ запроса -> JSON записи
//	<prefix>:b:<name>:order       ZSET ключ запроса -> seq вставки
type RedisStorage struct {
	client  *redis.Client
	prefix  string
	metrics *Metrics
}

// NewRedisStorage подключается к Redis и проверяет соединение
func NewRedisStorage(ctx context.Context, cfg RedisConfig) (*RedisStorage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "edgecache"
	}

	logger.Info("Redis storage connected (prefix: %s)", prefix)
	return newRedisStorageWithClient(client, prefix), nil
}

func newRedisStorageWithClient(client *redis.Client, prefix string) *RedisStorage {
	return &RedisStorage{
		client:  client,
		prefix:  prefix,
		metrics: getMetrics(),
	}
}

// Driver возвращает имя драйвера
func (s *RedisStorage) Driver() string { return DriverRedis }

// Close закрывает соединение с Redis
func (s *RedisStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *RedisStorage) bucketsKey() string { return s.prefix + ":buckets" }
func (s *RedisStorage) seqKey() string     { return s.prefix + ":seq" }
func (s *RedisStorage) entriesKey(name string) string {
	return s.prefix + ":b:" + name + ":entries"
}
func (s *RedisStorage) orderKey(name string) string {
	return s.prefix + ":b:" + name + ":order"
}

// mapRedisError приводит ошибки Redis к ошибкам хранилища
func mapRedisError(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	// maxmemory с политикой noeviction: "OOM command not allowed when used memory > 'maxmemory'"
	if strings.HasPrefix(err.Error(), "OOM ") {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

// Open открывает бакет, создавая его при необходимости
func (s *RedisStorage) Open(ctx context.Context, name string) (Bucket, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty bucket name", ErrInvalidKey)
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err == nil {
		// NX: существующий бакет сохраняет порядок создания
		err = s.client.ZAddNX(ctx, s.bucketsKey(), redis.Z{Score: float64(seq), Member: name}).Err()
	}
	err = mapRedisError(err)
	s.metrics.observe(DriverRedis, "open", err)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", name, err)
	}
	return &redisBucket{storage: s, name: name}, nil
}

// Has проверяет существование бакета
func (s *RedisStorage) Has(ctx context.Context, name string) (bool, error) {
	err := s.client.ZScore(ctx, s.bucketsKey(), name).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, mapRedisError(err)
	}
	return true, nil
}

// Names возвращает имена бакетов в порядке создания
func (s *RedisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.ZRange(ctx, s.bucketsKey(), 0, -1).Result()
	return names, mapRedisError(err)
}

// Delete удаляет бакет со всеми записями
func (s *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, s.bucketsKey(), name)
		pipe.Del(ctx, s.entriesKey(name), s.orderKey(name))
		return nil
	})
	err = mapRedisError(err)
	s.metrics.observe(DriverRedis, "delete_bucket", err)
	if err != nil {
		return false, fmt.Errorf("failed to delete bucket %s: %w", name, err)
	}
	return removed.Val() > 0, nil
}

// redisBucket - бакет кэша в Redis
type redisBucket struct {
	storage *RedisStorage
	name    string
}

func (b *redisBucket) Name() string { return b.name }

func (b *redisBucket) Match(ctx context.Context, key string) (*Entry, bool, error) {
	data, err := b.storage.client.HGet(ctx, b.storage.entriesKey(b.name), key).Bytes()
	if errors.Is(err, redis.Nil) {
		b.storage.metrics.observe(DriverRedis, "match", nil)
		return nil, false, nil
	}
	err = mapRedisError(err)
	b.storage.metrics.observe(DriverRedis, "match", err)
	if err != nil {
		return nil, false, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to decode entry %s: %w", key, err)
	}
	return &entry, true, nil
}

func (b *redisBucket) Put(ctx context.Context, key string, entry *Entry) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	stored := *entry
	stored.Key = key
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}

	s := b.storage
	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err == nil {
		err = b.putRegistered(ctx, key, data, seq)
	}
	if !errors.Is(err, ErrBucketNotFound) {
		err = mapRedisError(err)
	}
	s.metrics.observe(DriverRedis, "put", err)
	return err
}

// putRegistered пишет запись, только если бакет остается в реестре.
// WATCH на реестре отменяет транзакцию, если бакет удален между проверкой и записью.
func (b *redisBucket) putRegistered(ctx context.Context, key string, data []byte, seq int64) error {
	s := b.storage
	write := func(tx *redis.Tx) error {
		if err := tx.ZScore(ctx, s.bucketsKey(), b.name).Err(); err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", ErrBucketNotFound, b.name)
			}
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.entriesKey(b.name), key, data)
			pipe.ZAdd(ctx, s.orderKey(b.name), redis.Z{Score: float64(seq), Member: key})
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxWatchRetries; i++ {
		err = s.client.Watch(ctx, write, s.bucketsKey())
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (b *redisBucket) Delete(ctx context.Context, key string) (bool, error) {
	s := b.storage
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, s.entriesKey(b.name), key)
		pipe.ZRem(ctx, s.orderKey(b.name), key)
		return nil
	})
	err = mapRedisError(err)
	s.metrics.observe(DriverRedis, "delete", err)
	if err != nil {
		return false, err
	}
	return removed.Val() > 0, nil
}

func (b *redisBucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.storage.client.ZRange(ctx, b.storage.orderKey(b.name), 0, -1).Result()
	return keys, mapRedisError(err)
}

func (b *redisBucket) Len(ctx context.Context) (int, error) {
	n, err := b.storage.client.ZCard(ctx, b.storage.orderKey(b.name)).Result()
	return int(n), mapRedisError(err)
}

func (b *redisBucket) EvictOldest(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	s := b.storage
	victims, err := s.client.ZRange(ctx, s.orderKey(b.name), 0, int64(n-1)).Result()
	if err != nil {
		return 0, mapRedisError(err)
	}
	if len(victims) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(victims))
	for i, v := range victims {
		members[i] = v
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.entriesKey(b.name), victims...)
		pipe.ZRem(ctx, s.orderKey(b.name), members...)
		return nil
	})
	err = mapRedisError(err)
	s.metrics.observe(DriverRedis, "evict", err)
	if err != nil {
		return 0, err
	}
	s.metrics.evicted(b.name, len(victims))
	return len(victims), nil
}
