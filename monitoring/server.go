package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"edgecache/apigw"
	"edgecache/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server представляет HTTP сервер для экспорта метрик Prometheus
type Server struct {
	config       *Config
	server       *http.Server
	readiness    apigw.ReadinessChecker
	shuttingDown atomic.Bool

	// Канал для остановки сбора метрик рантайма
	stopRuntimeMetrics chan struct{}
}

// NewServer создает новый сервер метрик. readiness может быть nil.
func NewServer(config *Config, readiness apigw.ReadinessChecker) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	return &Server{
		config:             config,
		readiness:          readiness,
		stopRuntimeMetrics: make(chan struct{}),
	}
}

// Handler возвращает мультиплексор с метриками и health check эндпоинтами
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Регистрируем обработчик метрик
	mux.Handle(s.config.MetricsPath, promhttp.Handler())

	// Добавляем health check эндпоинты
	mux.HandleFunc(s.config.LivePath, s.liveHealthHandler)
	mux.HandleFunc(s.config.ReadyPath, s.readyHealthHandler)
	return mux
}

// Start запускает HTTP сервер для метрик
func (s *Server) Start() error {
	if !s.config.Enabled {
		logger.Info("Monitoring is disabled, skipping metrics server start")
		return nil
	}

	logger.Info("Starting metrics server on %s", s.config.ListenAddress)

	// Создаем HTTP сервер
	s.server = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	// Запускаем сервер в отдельной горутине
	go func() {
		logger.Info("Metrics server listening on %s%s", s.config.ListenAddress, s.config.MetricsPath)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed: %v", err)
		}
	}()

	if s.config.RuntimeMetrics {
		go s.runRuntimeMetrics(s.config.RuntimeMetricsInterval)
	}

	return nil
}

// runRuntimeMetrics периодически снимает показатели рантайма до Stop
func (s *Server) runRuntimeMetrics(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	collectRuntimeMetrics()
	for {
		select {
		case <-ticker.C:
			collectRuntimeMetrics()
		case <-s.stopRuntimeMetrics:
			return
		}
	}
}

// SetShuttingDown переводит ready в 503 на время graceful shutdown
func (s *Server) SetShuttingDown() {
	s.shuttingDown.Store(true)
}

// Stop останавливает HTTP сервер метрик
func (s *Server) Stop(ctx context.Context) error {
	if !s.config.Enabled || s.server == nil {
		return nil
	}

	logger.Info("Stopping metrics server...")

	// Останавливаем сбор метрик рантайма
	close(s.stopRuntimeMetrics)

	// Останавливаем HTTP сервер
	return s.server.Shutdown(ctx)
}

// liveHealthHandler обрабатывает запросы LivePath
func (s *Server) liveHealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok"}`)
}

// readyHealthHandler обрабатывает запросы ReadyPath
func (s *Server) readyHealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Проверяем, не находимся ли мы в состоянии graceful shutdown
	if s.shuttingDown.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"shutting down"}`)
		return
	}

	// Контроллер кэша еще не активирован
	if s.readiness != nil && !s.readiness.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, `{"status":"cache controller not active"}`)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok"}`)
}
