package routing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"edgecache/apigw"
)

// MockStrategyExecutor записывает вызванные стратегии
type MockStrategyExecutor struct {
	calls    []string
	err      error
	panicMsg string
}

func (m *MockStrategyExecutor) run(name string) (*apigw.Response, error) {
	m.calls = append(m.calls, name)
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &apigw.Response{StatusCode: http.StatusOK, Body: []byte(name)}, nil
}

func (m *MockStrategyExecutor) NetworkFirst(ctx context.Context, req *apigw.Request) (*apigw.Response, error) {
	return m.run("network-first")
}

func (m *MockStrategyExecutor) CacheFirst(ctx context.Context, req *apigw.Request) (*apigw.Response, error) {
	return m.run("cache-first")
}

func (m *MockStrategyExecutor) StaleWhileRevalidate(ctx context.Context, req *apigw.Request) (*apigw.Response, error) {
	return m.run("stale-while-revalidate")
}

func (m *MockStrategyExecutor) NetworkOnly(ctx context.Context, req *apigw.Request) (*apigw.Response, error) {
	m.calls = append(m.calls, "network-only")
	if m.err != nil {
		return nil, m.err
	}
	return &apigw.Response{StatusCode: http.StatusOK, Body: []byte("network-only")}, nil
}

func (m *MockStrategyExecutor) Offline(ctx context.Context, req *apigw.Request) *apigw.Response {
	m.calls = append(m.calls, "offline")
	return &apigw.Response{StatusCode: http.StatusServiceUnavailable, Body: []byte("Offline")}
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(&MockStrategyExecutor{}, nil)
	if err != nil {
		t.Fatalf("Expected engine to be created, got %v", err)
	}

	if len(engine.Rules()) != 3 {
		t.Errorf("Expected 3 default rules, got %d", len(engine.Rules()))
	}

	_, err = NewEngine(&MockStrategyExecutor{}, &Config{Rules: []RuleConfig{{Strategy: "bogus", Patterns: []string{"^/"}}}})
	if err == nil {
		t.Error("Expected error for invalid config")
	}
}

func TestEngine_Handle_Dispatch(t *testing.T) {
	tests := []struct {
		method   string
		url      string
		accept   string
		expected string
	}{
		{http.MethodGet, "http://example.com/api/leads", "", "network-first"},
		{http.MethodGet, "http://example.com/assets/index.css", "", "cache-first"},
		{http.MethodGet, "http://example.com/", "text/html", "stale-while-revalidate"},
		{http.MethodGet, "http://example.com/robots.txt", "", "network-only"},
		{http.MethodPost, "http://example.com/api/leads", "", "network-only"},
		{http.MethodPut, "http://example.com/assets/index.css", "", "network-only"},
		{http.MethodGet, "chrome-extension://abc/assets/index.js", "", "network-only"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.url, func(t *testing.T) {
			executor := &MockStrategyExecutor{}
			engine, _ := NewEngine(executor, nil)

			resp := engine.Handle(newRequest(tt.method, tt.url, tt.accept))
			if resp.Error != nil {
				t.Fatalf("Unexpected error: %v", resp.Error)
			}
			if len(executor.calls) != 1 || executor.calls[0] != tt.expected {
				t.Errorf("Expected single call to %s, got %v", tt.expected, executor.calls)
			}
		})
	}
}

func TestEngine_Handle_NavigationFailure(t *testing.T) {
	executor := &MockStrategyExecutor{err: errors.New("network down")}
	engine, _ := NewEngine(executor, nil)

	resp := engine.Handle(newRequest(http.MethodGet, "http://example.com/", "text/html"))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected offline fallback, got %d", resp.StatusCode)
	}
	if resp.Error != nil {
		t.Errorf("Offline fallback must not carry an error, got %v", resp.Error)
	}
	if executor.calls[len(executor.calls)-1] != "offline" {
		t.Errorf("Expected offline to be called, got %v", executor.calls)
	}
}

func TestEngine_Handle_NavigationToNetworkFirstFailure(t *testing.T) {
	executor := &MockStrategyExecutor{err: errors.New("network down")}
	engine, _ := NewEngine(executor, nil)

	resp := engine.Handle(newRequest(http.MethodGet, "http://example.com/admin", "text/html"))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected offline fallback for admin navigation, got %d", resp.StatusCode)
	}
}

func TestEngine_Handle_NonNavigationFailure(t *testing.T) {
	netErr := errors.New("network down")
	executor := &MockStrategyExecutor{err: netErr}
	engine, _ := NewEngine(executor, nil)

	resp := engine.Handle(newRequest(http.MethodGet, "http://example.com/api/leads", "application/json"))
	if !errors.Is(resp.Error, netErr) {
		t.Errorf("Expected network error to propagate, got %v", resp.Error)
	}
	for _, c := range executor.calls {
		if c == "offline" {
			t.Error("Offline must not be used for non-navigation requests")
		}
	}
}

func TestEngine_Handle_NonCacheableFailure(t *testing.T) {
	executor := &MockStrategyExecutor{err: errors.New("network down")}
	engine, _ := NewEngine(executor, nil)

	resp := engine.Handle(newRequest(http.MethodPost, "http://example.com/", "text/html"))
	if resp.Error == nil {
		t.Error("Expected error for failed POST")
	}
	if len(executor.calls) != 1 {
		t.Errorf("Expected only network-only call, got %v", executor.calls)
	}
}

func TestEngine_Handle_Panic(t *testing.T) {
	executor := &MockStrategyExecutor{panicMsg: "boom"}
	engine, _ := NewEngine(executor, nil)

	resp := engine.Handle(newRequest(http.MethodGet, "http://example.com/assets/app.js", ""))
	if resp.Error == nil {
		t.Error("Expected panic to be converted to an error")
	}

	resp = engine.Handle(newRequest(http.MethodGet, "http://example.com/", "text/html"))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected offline fallback after panic in navigation, got %d", resp.StatusCode)
	}
}

func TestEngine_Rules_ReturnsCopy(t *testing.T) {
	engine, _ := NewEngine(&MockStrategyExecutor{}, nil)
	rules := engine.Rules()
	rules[0] = Rule{Name: "changed"}
	if engine.Rules()[0].Name == "changed" {
		t.Error("Rules must return a copy")
	}
}
