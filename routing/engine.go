package routing

import (
	"context"
	"fmt"

	"edgecache/apigw"
	"edgecache/logger"
)

// Engine выбирает стратегию кэширования для запроса по таблице правил
type Engine struct {
	// Упорядоченная таблица правил, загружаемая при старте
	rules []Rule

	// Модуль, выполняющий стратегии
	executor StrategyExecutor
}

// NewEngine создает новый экземпляр Engine
func NewEngine(executor StrategyExecutor, config *Config) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}

	rules, err := config.Compile()
	if err != nil {
		return nil, fmt.Errorf("invalid routing config: %w", err)
	}

	return &Engine{
		rules:    rules,
		executor: executor,
	}, nil
}

// Rules возвращает таблицу правил
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Handle - реализация интерфейса RequestHandler. Это точка входа в модуль
func (e *Engine) Handle(req *apigw.Request) (resp *apigw.Response) {
	ctx := req.Ctx()

	// Паника в одном запросе не должна ронять процесс
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Routing Engine: panic while handling %s: %v", req.Identity(), r)
			resp = e.fail(ctx, req, fmt.Errorf("internal error: %v", r))
		}
	}()

	// Шаг 1: запросы, не участвующие в кэшировании, идут прямо в сеть
	if !req.Cacheable() {
		logger.Debug("Routing Engine: %s is not cacheable, passing through", req.Identity())
		r, err := e.executor.NetworkOnly(ctx, req)
		if err != nil {
			return &apigw.Response{Error: err}
		}
		return r
	}

	// Шаг 2: классификация по таблице правил
	rule := Classify(e.rules, req)
	logger.Debug("Routing Engine: %s matched rule %s (%s)", req.Identity(), rule.Name, rule.Strategy)

	// Шаг 3: выполнение стратегии
	var err error
	switch rule.Strategy {
	case NetworkFirst:
		resp, err = e.executor.NetworkFirst(ctx, req)
	case CacheFirst:
		resp, err = e.executor.CacheFirst(ctx, req)
	case StaleWhileRevalidate:
		resp, err = e.executor.StaleWhileRevalidate(ctx, req)
	default:
		resp, err = e.executor.NetworkOnly(ctx, req)
	}

	if err != nil {
		return e.fail(ctx, req, err)
	}
	return resp
}

// fail превращает ошибку стратегии в ответ: офлайн-страница для навигации,
// иначе ошибка, которую шлюз отдаст как 502.
func (e *Engine) fail(ctx context.Context, req *apigw.Request, err error) *apigw.Response {
	if req.Cacheable() && req.IsNavigation() {
		logger.Warn("Routing Engine: navigation %s failed, serving offline fallback: %v", req.Identity(), err)
		return e.executor.Offline(ctx, req)
	}
	logger.Warn("Routing Engine: %s failed: %v", req.Identity(), err)
	return &apigw.Response{Error: err}
}
