package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"edgecache/apigw"
	"edgecache/logger"
	"edgecache/storage"
)

// Имена стратегий для логов и метрик
const (
	strategyNetworkFirst = "network-first"
	strategyCacheFirst   = "cache-first"
	strategySWR          = "stale-while-revalidate"
	strategyNetworkOnly  = "network-only"
	strategyOffline      = "offline"
)

// Strategies реализует стратегии кэширования поверх Network.
// Бакеты передаются в каждый вызов, Strategies их не хранит.
type Strategies struct {
	network      Network
	onStoreError StoreErrorHook
	metrics      *Metrics

	// Фоновые обновления, см. Wait
	refreshes sync.WaitGroup
}

// NewStrategies создает набор стратегий. onStoreError может быть nil.
func NewStrategies(network Network, onStoreError StoreErrorHook) *Strategies {
	return &Strategies{
		network:      network,
		onStoreError: onStoreError,
		metrics:      getMetrics(),
	}
}

// NetworkFirst идет в сеть и сохраняет копию успешного ответа.
// При сбое сети отдает копию из cache, а если ее нет - ошибку сети.
func (s *Strategies) NetworkFirst(ctx context.Context, req *apigw.Request, cache Cache) (*apigw.Response, error) {
	resp, err := s.network.Fetch(ctx, req)
	if err == nil {
		s.store(ctx, req, cache, resp)
		s.count(strategyNetworkFirst, "miss")
		resp.Cache = apigw.CacheMiss
		return resp, nil
	}

	if cached, ok := s.match(ctx, req, cache); ok {
		logger.Debug("network-first: %s served from %s after network failure: %v", req.Identity(), cache.Name(), err)
		s.count(strategyNetworkFirst, "stale")
		cached.Cache = apigw.CacheStale
		return cached, nil
	}

	s.count(strategyNetworkFirst, "error")
	return nil, err
}

// CacheFirst отдает копию из cache без ожидания сети и запускает одно
// фоновое обновление. При промахе ждет сеть и сохраняет успешный ответ.
func (s *Strategies) CacheFirst(ctx context.Context, req *apigw.Request, cache Cache) (*apigw.Response, error) {
	if cached, ok := s.match(ctx, req, cache); ok {
		s.refreshInBackground(ctx, req, cache)
		s.count(strategyCacheFirst, "hit")
		cached.Cache = apigw.CacheHit
		return cached, nil
	}

	resp, err := s.network.Fetch(ctx, req)
	if err != nil {
		s.count(strategyCacheFirst, "error")
		return nil, err
	}
	s.store(ctx, req, cache, resp)
	s.count(strategyCacheFirst, "miss")
	resp.Cache = apigw.CacheMiss
	return resp, nil
}

// StaleWhileRevalidate отдает копию из cache и обновляет ее в фоне.
// При промахе ждет сеть.
func (s *Strategies) StaleWhileRevalidate(ctx context.Context, req *apigw.Request, cache Cache) (*apigw.Response, error) {
	if cached, ok := s.match(ctx, req, cache); ok {
		s.refreshInBackground(ctx, req, cache)
		s.count(strategySWR, "hit")
		cached.Cache = apigw.CacheHit
		return cached, nil
	}

	resp, err := s.network.Fetch(ctx, req)
	if err != nil {
		s.count(strategySWR, "error")
		return nil, err
	}
	s.store(ctx, req, cache, resp)
	s.count(strategySWR, "miss")
	resp.Cache = apigw.CacheMiss
	return resp, nil
}

// NetworkOnly проксирует запрос без обращения к кэшу
func (s *Strategies) NetworkOnly(ctx context.Context, req *apigw.Request) (*apigw.Response, error) {
	resp, err := s.network.Fetch(ctx, req)
	if err != nil {
		s.count(strategyNetworkOnly, "error")
		return nil, err
	}
	s.count(strategyNetworkOnly, "bypass")
	resp.Cache = apigw.CacheBypass
	return resp, nil
}

// Precache загружает ресурс и сохраняет его в cache. В отличие от стратегий
// возвращает ошибку, если ресурс не сохранен.
func (s *Strategies) Precache(ctx context.Context, req *apigw.Request, cache Cache) error {
	resp, err := s.network.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if !resp.OK() && !resp.Opaque {
		return fmt.Errorf("%s: unexpected status %d", req.Identity(), resp.StatusCode)
	}
	if err := cache.Put(ctx, req.Identity(), entryFromResponse(resp)); err != nil {
		return fmt.Errorf("store %s: %w", req.Identity(), err)
	}
	return nil
}

// Offline возвращает сохраненную главную страницу из static или
// синтетический 503 "Offline".
func (s *Strategies) Offline(ctx context.Context, static Cache, homeKey string) *apigw.Response {
	if static != nil {
		entry, found, err := static.Match(ctx, homeKey)
		if err != nil {
			logger.Warn("offline fallback: failed to read %s from %s: %v", homeKey, static.Name(), err)
		}
		if found {
			s.count(strategyOffline, "stale")
			resp := responseFromEntry(entry)
			resp.Cache = apigw.CacheStale
			return resp
		}
	}

	s.count(strategyOffline, "offline")
	return OfflineResponse()
}

// OfflineResponse - ответ, когда нет ни сети, ни сохраненной страницы
func OfflineResponse() *apigw.Response {
	headers := make(http.Header)
	headers.Set("Content-Type", "text/plain")
	return &apigw.Response{
		StatusCode: http.StatusServiceUnavailable,
		Headers:    headers,
		Body:       []byte("Offline"),
		Cache:      apigw.CacheOffline,
	}
}

// Wait ждет завершения фоновых обновлений. Используется при остановке и в тестах.
func (s *Strategies) Wait() {
	s.refreshes.Wait()
}

// refreshInBackground перезапрашивает ресурс и обновляет cache.
// Не привязан к отмене запроса страницы, ошибки только логируются.
func (s *Strategies) refreshInBackground(ctx context.Context, req *apigw.Request, cache Cache) {
	ctx = context.WithoutCancel(ctx)

	s.refreshes.Add(1)
	go func() {
		defer s.refreshes.Done()
		defer func() {
			if r := recover(); r != nil {
				s.metrics.BackgroundRefreshTotal.WithLabelValues("panic").Inc()
				logger.Error("background refresh of %s panicked: %v", req.Identity(), r)
			}
		}()

		resp, err := s.network.Fetch(ctx, req)
		if err != nil {
			s.metrics.BackgroundRefreshTotal.WithLabelValues("error").Inc()
			logger.Debug("background refresh of %s failed: %v", req.Identity(), err)
			return
		}
		s.store(ctx, req, cache, resp)
		s.metrics.BackgroundRefreshTotal.WithLabelValues("ok").Inc()
	}()
}

// match ищет копию в cache. Ошибка хранилища считается промахом.
func (s *Strategies) match(ctx context.Context, req *apigw.Request, cache Cache) (*apigw.Response, bool) {
	entry, found, err := cache.Match(ctx, req.Identity())
	if err != nil {
		logger.Warn("cache %s: match %s failed: %v", cache.Name(), req.Identity(), err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	return responseFromEntry(entry), true
}

// store сохраняет успешный или непрозрачный ответ. Ошибки записи
// передаются в onStoreError и не влияют на ответ странице.
func (s *Strategies) store(ctx context.Context, req *apigw.Request, cache Cache, resp *apigw.Response) {
	if !resp.OK() && !resp.Opaque {
		return
	}
	err := cache.Put(ctx, req.Identity(), entryFromResponse(resp))
	if err == nil {
		return
	}

	if errors.Is(err, storage.ErrQuotaExceeded) {
		logger.Warn("cache %s: quota exceeded while storing %s", cache.Name(), req.Identity())
	} else {
		logger.Warn("cache %s: failed to store %s: %v", cache.Name(), req.Identity(), err)
	}
	if s.onStoreError != nil {
		s.onStoreError(ctx, cache.Name(), fmt.Errorf("store %s: %w", req.Identity(), err))
	}
}

func (s *Strategies) count(strategy, result string) {
	s.metrics.StrategyRequestsTotal.WithLabelValues(strategy, result).Inc()
}

func entryFromResponse(resp *apigw.Response) *storage.Entry {
	c := resp.Clone()
	return &storage.Entry{
		StatusCode: c.StatusCode,
		Headers:    c.Headers,
		Body:       c.Body,
		Opaque:     c.Opaque,
		CapturedAt: time.Now(),
	}
}

func responseFromEntry(entry *storage.Entry) *apigw.Response {
	headers := entry.Headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	return &apigw.Response{
		StatusCode: entry.StatusCode,
		Headers:    headers,
		Body:       entry.Body,
		Opaque:     entry.Opaque,
	}
}
