package worker

import (
	"context"
	"fmt"

	"edgecache/apigw"
)

// executor связывает стратегии с бакетами контроллера
type executor struct {
	c *Controller
}

func (e *executor) buckets() (Buckets, error) {
	b := e.c.Buckets()
	if b.Static == nil || b.Dynamic == nil {
		return b, ErrNotActive
	}
	return b, nil
}

func (e *executor) NetworkFirst(ctx context.Context, req *apigw.Request) (*apigw.Response, error) {
	b, err := e.buckets()
	if err != nil {
		return nil, fmt.Errorf("network-first %s: %w", req.Identity(), err)
	}
	return e.c.strategies.NetworkFirst(ctx, req, b.Dynamic)
}

func (e *executor) CacheFirst(ctx context.Context, req *apigw.Request) (*apigw.Response, error) {
	b, err := e.buckets()
	if err != nil {
		return nil, fmt.Errorf("cache-first %s: %w", req.Identity(), err)
	}
	return e.c.strategies.CacheFirst(ctx, req, b.Static)
}

func (e *executor) StaleWhileRevalidate(ctx context.Context, req *apigw.Request) (*apigw.Response, error) {
	b, err := e.buckets()
	if err != nil {
		return nil, fmt.Errorf("stale-while-revalidate %s: %w", req.Identity(), err)
	}
	return e.c.strategies.StaleWhileRevalidate(ctx, req, b.Dynamic)
}

func (e *executor) NetworkOnly(ctx context.Context, req *apigw.Request) (*apigw.Response, error) {
	return e.c.strategies.NetworkOnly(ctx, req)
}

func (e *executor) Offline(ctx context.Context, req *apigw.Request) *apigw.Response {
	static := e.c.Buckets().Static
	if static == nil {
		return e.c.strategies.Offline(ctx, nil, "")
	}
	return e.c.strategies.Offline(ctx, static, e.c.homeKey())
}
