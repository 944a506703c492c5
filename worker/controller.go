package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"edgecache/apigw"
	"edgecache/fetch"
	"edgecache/logger"
	"edgecache/routing"
	"edgecache/storage"
)

// ErrNotActive - операция требует активного контроллера
var ErrNotActive = errors.New("cache controller is not active")

// State - состояние жизненного цикла контроллера
type State int32

const (
	StateInstalling State = iota
	StateInstalled
	StateActive
	StateSuperseded
)

// String возвращает строковое представление состояния
func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActive:
		return "active"
	case StateSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Buckets - бакеты текущей версии кэша. Принадлежат контроллеру
// и передаются стратегиям при каждом вызове.
type Buckets struct {
	Static   storage.Bucket
	Dynamic  storage.Bucket
	Critical storage.Bucket
}

// Controller - контроллер кэша: жизненный цикл, маршрутизация запросов
// по стратегиям, сообщения от страницы и вытеснение по квоте.
type Controller struct {
	config     *Config
	publicURL  *url.URL
	names      BucketNames
	storage    storage.Storage
	strategies *fetch.Strategies
	engine     *routing.Engine
	metrics    *Metrics

	state atomic.Int32

	mu      sync.RWMutex
	buckets Buckets

	// Не больше одного вытеснения одновременно
	evictMu sync.Mutex
}

// New создает контроллер в состоянии installing
func New(config *Config, routingConfig *routing.Config, store storage.Storage, network fetch.Network) (*Controller, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}
	if store == nil || network == nil {
		return nil, fmt.Errorf("storage and network are required")
	}
	publicURL, _ := url.Parse(config.PublicURL)

	c := &Controller{
		config:    config,
		publicURL: publicURL,
		names:     NamesFor(config.Version),
		storage:   store,
		metrics:   getMetrics(),
	}
	c.strategies = fetch.NewStrategies(network, func(ctx context.Context, bucket string, err error) {
		c.HandleError(ctx, err)
	})

	engine, err := routing.NewEngine(&executor{c: c}, routingConfig)
	if err != nil {
		return nil, err
	}
	c.engine = engine

	c.setState(StateInstalling)
	return c, nil
}

// State возвращает текущее состояние
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	if s != StateSuperseded {
		c.metrics.State.Set(float64(s))
	}
}

// Ready сообщает, что контроллер управляет запросами
func (c *Controller) Ready() bool {
	return c.State() == StateActive
}

// Names возвращает имена бакетов текущей версии
func (c *Controller) Names() BucketNames {
	return c.names
}

// Rules возвращает таблицу маршрутизации контроллера
func (c *Controller) Rules() []routing.Rule {
	return c.engine.Rules()
}

// Buckets возвращает открытые бакеты. До Activate часть из них nil.
func (c *Controller) Buckets() Buckets {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buckets
}

// Install загружает критические ресурсы в static. Ошибки отдельных ресурсов
// собираются и возвращаются, но контроллер все равно переходит в installed.
func (c *Controller) Install(ctx context.Context) error {
	if s := c.State(); s != StateInstalling {
		return fmt.Errorf("cannot install controller in state %s", s)
	}
	logger.Info("Cache controller %s: installing, precaching %d resources", c.config.Version, len(c.config.Precache))

	ctx, cancel := context.WithTimeout(ctx, c.config.InstallTimeout)
	defer cancel()

	static, err := c.storage.Open(ctx, c.names.Static)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", c.names.Static, err)
	}
	c.mu.Lock()
	c.buckets.Static = static
	c.mu.Unlock()

	var errs []error
	for _, path := range c.config.Precache {
		req, err := c.precacheRequest(ctx, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := c.strategies.Precache(ctx, req, static); err != nil {
			logger.Warn("Cache controller %s: failed to precache %s: %v", c.config.Version, path, err)
			if errors.Is(err, storage.ErrQuotaExceeded) {
				c.HandleError(ctx, err)
			}
			errs = append(errs, fmt.Errorf("precache %s: %w", path, err))
			continue
		}
		logger.Debug("Cache controller %s: precached %s", c.config.Version, req.Identity())
	}

	c.setState(StateInstalled)
	logger.Info("Cache controller %s: installed (%d of %d resources precached)",
		c.config.Version, len(c.config.Precache)-len(errs), len(c.config.Precache))
	return errors.Join(errs...)
}

// Activate удаляет бакеты прошлых версий и начинает управлять запросами
func (c *Controller) Activate(ctx context.Context) error {
	if s := c.State(); s != StateInstalled {
		return fmt.Errorf("cannot activate controller in state %s", s)
	}

	names, err := c.storage.Names(ctx)
	if err != nil {
		return fmt.Errorf("failed to list buckets: %w", err)
	}
	for _, name := range names {
		if c.names.Contains(name) {
			continue
		}
		if _, err := c.storage.Delete(ctx, name); err != nil {
			logger.Warn("Cache controller %s: failed to delete old bucket %s: %v", c.config.Version, name, err)
			continue
		}
		logger.Info("Cache controller %s: deleted old bucket %s", c.config.Version, name)
	}

	var buckets Buckets
	for _, target := range []struct {
		name   string
		bucket *storage.Bucket
	}{
		{c.names.Static, &buckets.Static},
		{c.names.Dynamic, &buckets.Dynamic},
		{c.names.Critical, &buckets.Critical},
	} {
		b, err := c.storage.Open(ctx, target.name)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", target.name, err)
		}
		*target.bucket = b
	}

	c.mu.Lock()
	c.buckets = buckets
	c.mu.Unlock()

	c.setState(StateActive)
	logger.Info("Cache controller %s: active", c.config.Version)
	return nil
}

// Handle - реализация apigw.RequestHandler
func (c *Controller) Handle(req *apigw.Request) *apigw.Response {
	if !c.Ready() {
		// Неактивный контроллер не трогает кэш
		resp, err := c.strategies.NetworkOnly(req.Ctx(), req)
		if err != nil {
			return &apigw.Response{Error: err}
		}
		return resp
	}
	return c.engine.Handle(req)
}

// HandleError - обработчик ошибок уровня контроллера.
// Ошибка квоты вытесняет старейшую половину dynamic.
func (c *Controller) HandleError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if !errors.Is(err, storage.ErrQuotaExceeded) {
		logger.Error("Cache controller %s: %v", c.config.Version, err)
		return
	}

	logger.Warn("Cache controller %s: storage quota exceeded, evicting old entries: %v", c.config.Version, err)
	if _, evictErr := c.EvictDynamic(ctx); evictErr != nil {
		logger.Error("Cache controller %s: quota eviction failed: %v", c.config.Version, evictErr)
	}
}

// EvictDynamic удаляет старейшую половину записей dynamic (с округлением вниз).
// Если вытеснение уже идет, возвращает 0.
func (c *Controller) EvictDynamic(ctx context.Context) (int, error) {
	if !c.evictMu.TryLock() {
		return 0, nil
	}
	defer c.evictMu.Unlock()

	dynamic := c.Buckets().Dynamic
	if dynamic == nil {
		b, err := c.storage.Open(ctx, c.names.Dynamic)
		if err != nil {
			return 0, fmt.Errorf("failed to open %s: %w", c.names.Dynamic, err)
		}
		dynamic = b
	}

	n, err := dynamic.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", dynamic.Name(), err)
	}
	evicted, err := dynamic.EvictOldest(ctx, n/2)
	if err != nil {
		return evicted, fmt.Errorf("failed to evict from %s: %w", dynamic.Name(), err)
	}

	c.metrics.QuotaEvictionsTotal.Inc()
	logger.Info("Cache controller %s: evicted %d of %d entries from %s", c.config.Version, evicted, n, dynamic.Name())
	return evicted, nil
}

// Supersede выводит контроллер из обслуживания. Новые запросы идут в сеть.
func (c *Controller) Supersede() {
	c.setState(StateSuperseded)
	logger.Info("Cache controller %s: superseded", c.config.Version)
}

// Wait ждет фоновые обновления кэша. Используется при остановке.
func (c *Controller) Wait() {
	c.strategies.Wait()
}

// resolve строит запрос к ресурсу страницы
func (c *Controller) resolve(ctx context.Context, ref string) (*apigw.Request, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid resource %q: %w", ref, err)
	}
	u := c.publicURL.ResolveReference(r)
	u.Fragment = ""

	return &apigw.Request{
		Kind:        apigw.FetchRequest,
		Method:      http.MethodGet,
		URL:         u,
		Headers:     make(http.Header),
		CrossOrigin: u.Scheme != c.publicURL.Scheme || u.Host != c.publicURL.Host,
		Context:     ctx,
	}, nil
}

// precacheRequest строит запрос установки: origin должен перепроверить ресурс
func (c *Controller) precacheRequest(ctx context.Context, ref string) (*apigw.Request, error) {
	req, err := c.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	req.Headers.Set("Cache-Control", "no-cache")
	req.Headers.Set("Pragma", "no-cache")
	return req, nil
}

// homeKey - ключ главной страницы в static для офлайн-режима
func (c *Controller) homeKey() string {
	req, _ := c.resolve(context.Background(), "/")
	return req.Identity()
}
