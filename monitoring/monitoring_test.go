package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if !config.Enabled {
		t.Error("Expected monitoring to be enabled by default")
	}

	if config.ListenAddress != ":9091" {
		t.Errorf("Expected default listen address ':9091', got '%s'", config.ListenAddress)
	}

	if config.MetricsPath != "/metrics" {
		t.Errorf("Expected default metrics path '/metrics', got '%s'", config.MetricsPath)
	}

	if config.ReadTimeout != 30*time.Second {
		t.Errorf("Expected default read timeout 30s, got %v", config.ReadTimeout)
	}

	if config.LivePath != "/health/live" || config.ReadyPath != "/health/ready" {
		t.Errorf("Expected default health paths, got %q and %q", config.LivePath, config.ReadyPath)
	}

	if !config.RuntimeMetrics {
		t.Error("Expected runtime metrics to be enabled by default")
	}
}

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name        string
		config      *Config
		expectError bool
	}{
		{
			name:        "Valid config",
			config:      DefaultConfig(),
			expectError: false,
		},
		{
			name: "Disabled monitoring",
			config: &Config{
				Enabled: false,
			},
			expectError: false,
		},
		{
			name: "Empty listen address",
			config: &Config{
				Enabled:       true,
				ListenAddress: "",
				MetricsPath:   "/metrics",
				ReadTimeout:   30 * time.Second,
				WriteTimeout:  30 * time.Second,
			},
			expectError: true,
		},
		{
			name: "Empty metrics path",
			config: &Config{
				Enabled:       true,
				ListenAddress: ":9091",
				MetricsPath:   "",
				ReadTimeout:   30 * time.Second,
				WriteTimeout:  30 * time.Second,
			},
			expectError: true,
		},
		{
			name: "Health path without slash",
			config: func() *Config {
				c := DefaultConfig()
				c.LivePath = "live"
				return c
			}(),
			expectError: true,
		},
		{
			name: "Ready path shadows metrics",
			config: func() *Config {
				c := DefaultConfig()
				c.ReadyPath = c.MetricsPath
				return c
			}(),
			expectError: true,
		},
		{
			name: "Runtime metrics without interval",
			config: func() *Config {
				c := DefaultConfig()
				c.RuntimeMetricsInterval = 0
				return c
			}(),
			expectError: true,
		},
		{
			name: "Invalid read timeout",
			config: &Config{
				Enabled:       true,
				ListenAddress: ":9091",
				MetricsPath:   "/metrics",
				ReadTimeout:   0,
				WriteTimeout:  30 * time.Second,
			},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.expectError && err == nil {
				t.Error("Expected validation error, but got none")
			}
			if !tc.expectError && err != nil {
				t.Errorf("Expected no validation error, but got: %v", err)
			}
		})
	}
}

func TestRecordClientMetric(t *testing.T) {
	if !RecordClientMetric("LCP", 1234.5) {
		t.Fatal("Expected LCP to be recorded")
	}

	got := testutil.ToFloat64(GetMetrics().ClientPerformance.WithLabelValues("LCP"))
	if got != 1234.5 {
		t.Errorf("Expected LCP gauge 1234.5, got %v", got)
	}

	for _, name := range []string{"", "1st", "with space", "x-y", strings.Repeat("a", 65)} {
		if RecordClientMetric(name, 1) {
			t.Errorf("Expected metric name %q to be rejected", name)
		}
	}
}

func TestCollectRuntimeMetrics(t *testing.T) {
	collectRuntimeMetrics()

	if got := testutil.ToFloat64(GetMetrics().Goroutines); got < 1 {
		t.Errorf("Expected at least one goroutine, got %v", got)
	}
	if got := testutil.ToFloat64(GetMetrics().MemoryUsage); got <= 0 {
		t.Errorf("Expected positive heap usage, got %v", got)
	}
}

func TestNewMonitor(t *testing.T) {
	// Тест с конфигурацией по умолчанию
	monitor, err := New(nil, nil)
	if err != nil {
		t.Fatalf("Expected no error creating monitor, got: %v", err)
	}

	if !monitor.IsEnabled() {
		t.Error("Expected monitor to be enabled by default")
	}

	if monitor.GetConfig().ListenAddress != ":9091" {
		t.Errorf("Expected default config, got %+v", monitor.GetConfig())
	}
}

func TestNewMonitorWithInvalidConfig(t *testing.T) {
	invalidConfig := &Config{
		Enabled:       true,
		ListenAddress: "", // Invalid
		MetricsPath:   "/metrics",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
	}

	_, err := New(invalidConfig, nil)
	if err == nil {
		t.Error("Expected error creating monitor with invalid config")
	}
}

func TestMonitorDisabled(t *testing.T) {
	monitor, err := New(&Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("Expected no error creating disabled monitor, got: %v", err)
	}

	if monitor.IsEnabled() {
		t.Error("Expected monitor to be disabled")
	}

	// Запуск и остановка отключенного монитора не должны вызывать ошибок
	if err := monitor.Start(); err != nil {
		t.Errorf("Expected no error starting disabled monitor, got: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := monitor.Stop(ctx); err != nil {
		t.Errorf("Expected no error stopping disabled monitor, got: %v", err)
	}
}

func TestMonitorStartStop(t *testing.T) {
	// Используем случайный свободный порт, чтобы избежать конфликтов
	config := &Config{
		Enabled:                true,
		ListenAddress:          "127.0.0.1:0",
		MetricsPath:            "/metrics",
		LivePath:               "/health/live",
		ReadyPath:              "/health/ready",
		ReadTimeout:            5 * time.Second,
		WriteTimeout:           5 * time.Second,
		RuntimeMetrics:         true,
		RuntimeMetricsInterval: 10 * time.Millisecond,
	}

	monitor, err := New(config, nil)
	if err != nil {
		t.Fatalf("Expected no error creating monitor, got: %v", err)
	}

	if err := monitor.Start(); err != nil {
		t.Fatalf("Expected no error starting monitor, got: %v", err)
	}

	// Даем время серверу запуститься
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := monitor.Stop(ctx); err != nil {
		t.Errorf("Expected no error stopping monitor, got: %v", err)
	}
}

// readiness - управляемая реализация apigw.ReadinessChecker
type readiness struct {
	ready atomic.Bool
}

func (r *readiness) Ready() bool { return r.ready.Load() }

func TestHealthEndpoints(t *testing.T) {
	ready := &readiness{}
	server := NewServer(DefaultConfig(), ready)
	handler := server.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	if rr := get("/health/live"); rr.Code != http.StatusOK {
		t.Errorf("Expected live 200, got %d", rr.Code)
	}

	rr := get("/health/ready")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected ready 503 before activation, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", ct)
	}

	ready.ready.Store(true)
	if rr := get("/health/ready"); rr.Code != http.StatusOK {
		t.Errorf("Expected ready 200 after activation, got %d", rr.Code)
	}

	server.SetShuttingDown()
	rr = get("/health/ready")
	if rr.Code != http.StatusServiceUnavailable || !strings.Contains(rr.Body.String(), "shutting down") {
		t.Errorf("Expected shutting down 503, got %d %s", rr.Code, rr.Body.String())
	}

	RecordClientMetric("FCP", 800)
	rr = get("/metrics")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `edgecache_client_performance_metric{name="FCP"} 800`) {
		t.Errorf("Expected client metric in /metrics output, got %d", rr.Code)
	}
}

func TestReadyWithoutChecker(t *testing.T) {
	server := NewServer(nil, nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("Expected ready 200 without checker, got %d", rr.Code)
	}
}

func TestCustomHealthPaths(t *testing.T) {
	config := DefaultConfig()
	config.LivePath = "/livez"
	config.ReadyPath = "/readyz"
	server := NewServer(config, nil)

	for _, path := range []string{"/livez", "/readyz"} {
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("Expected %s 200, got %d", path, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected default live path to be unregistered, got %d", rr.Code)
	}
}
