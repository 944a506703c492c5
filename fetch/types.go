package fetch

import (
	"context"
	"errors"

	"edgecache/apigw"
	"edgecache/storage"
)

var (
	// ErrNetwork - запрос к origin не удался (соединение, таймаут, отмена).
	// HTTP-ответ с любым статусом ошибкой сети не считается.
	ErrNetwork = errors.New("network request failed")

	// ErrResponseTooLarge - тело ответа origin больше Config.MaxBodyBytes
	ErrResponseTooLarge = errors.New("origin response too large")
)

// Network - источник ответов "из сети", то есть upstream origin
type Network interface {
	// Fetch выполняет запрос. Ошибка возвращается только при сбое сети,
	// ответы 4xx/5xx возвращаются как есть.
	Fetch(ctx context.Context, req *apigw.Request) (*apigw.Response, error)
}

// Cache - бакет, с которым работает стратегия. storage.Bucket удовлетворяет ему.
type Cache interface {
	Name() string
	Match(ctx context.Context, key string) (*storage.Entry, bool, error)
	Put(ctx context.Context, key string, entry *storage.Entry) error
}

// StoreErrorHook вызывается, когда запись в кэш не удалась.
// Сама запись не повторяется.
type StoreErrorHook func(ctx context.Context, bucket string, err error)
