package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edgecache/apigw"
	"edgecache/fetch"
	"edgecache/handlers"
	"edgecache/logger"
	"edgecache/monitoring"
	"edgecache/storage"
	"edgecache/worker"
)

// flagOverrides - значения командной строки, переопределяющие конфигурацию
type flagOverrides struct {
	listenAddr     string
	tlsCert        string
	tlsKey         string
	readTimeout    time.Duration
	writeTimeout   time.Duration
	logLevel       string
	metricsAddr    string
	disableMetrics bool
	origin         string
	bypass         bool
}

func main() {
	// Парсим аргументы командной строки
	var (
		configFile = flag.String("config", "", "Configuration file path (YAML)")
		overrides  flagOverrides
	)
	flag.StringVar(&overrides.listenAddr, "listen", "", "Listen address (overrides config)")
	flag.StringVar(&overrides.tlsCert, "tls-cert", "", "TLS certificate file (overrides config)")
	flag.StringVar(&overrides.tlsKey, "tls-key", "", "TLS key file (overrides config)")
	flag.DurationVar(&overrides.readTimeout, "read-timeout", 0, "Read timeout (overrides config)")
	flag.DurationVar(&overrides.writeTimeout, "write-timeout", 0, "Write timeout (overrides config)")
	flag.StringVar(&overrides.logLevel, "log-level", "", "Log level (debug, info, warn, error) (overrides config)")
	flag.StringVar(&overrides.metricsAddr, "metrics-listen", "", "Metrics server listen address (overrides config)")
	flag.BoolVar(&overrides.disableMetrics, "disable-metrics", false, "Disable metrics collection (overrides config)")
	flag.StringVar(&overrides.origin, "origin", "", "Upstream origin URL (overrides config)")
	flag.BoolVar(&overrides.bypass, "bypass", false, "Proxy every request without caching (overrides config)")
	flag.Parse()

	config, err := loadAppConfig(*configFile, overrides)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Настраиваем логирование
	level := logger.ParseLogLevel(config.Logging.Level)
	logger.Configure(os.Stdout, level, logger.Format(config.Logging.Format))

	logger.Info("Edge cache gateway starting...")
	logger.Info("Log level: %s", level.String())

	ctx := context.Background()

	// Хранилище бакетов живет дольше контроллеров и переживает перезагрузку
	store, err := storage.New(ctx, &config.Storage)
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}
	logger.Info("Storage driver: %s", store.Driver())

	handler, controller, err := buildHandler(ctx, config, store)
	if err != nil {
		log.Fatalf("Failed to create request handler: %v", err)
	}

	// Создаем API Gateway
	gatewayConfig := config.ToAPIGatewayConfig()
	gateway := apigw.New(gatewayConfig, handler)

	// Создаем и запускаем модуль мониторинга
	var monitor *monitoring.Monitor
	if config.Monitoring.Enabled {
		monitor, err = monitoring.New(&config.Monitoring, gateway)
		if err != nil {
			log.Fatalf("Failed to create monitoring module: %v", err)
		}

		if err := monitor.Start(); err != nil {
			log.Fatalf("Failed to start monitoring module: %v", err)
		}

		logger.Info("Monitoring enabled on %s", config.Monitoring.ListenAddress)
	} else {
		logger.Info("Monitoring disabled")
	}

	logger.Info("Configuration:")
	logger.Info("  Listen Address: %s", gatewayConfig.ListenAddress)
	logger.Info("  Public URL: %s", gatewayConfig.PublicURL)
	logger.Info("  Origin: %s", config.Fetch.OriginURL)
	logger.Info("  Read Timeout: %v", gatewayConfig.ReadTimeout)
	logger.Info("  Write Timeout: %v", gatewayConfig.WriteTimeout)
	if gatewayConfig.TLSCertFile != "" {
		logger.Info("  TLS Enabled: Yes")
		logger.Info("  TLS Cert: %s", gatewayConfig.TLSCertFile)
		logger.Info("  TLS Key: %s", gatewayConfig.TLSKeyFile)
	} else {
		logger.Info("  TLS Enabled: No")
	}

	// Настраиваем graceful shutdown и перезагрузку
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Запускаем API Gateway в отдельной горутине
	go func() {
		if err := gateway.Start(); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	logger.Info("Edge cache gateway started successfully")

	// Замененные контроллеры могут еще дописывать фоновые обновления
	var retired []*worker.Controller
	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			logger.Info("Received signal %v, shutting down...", sig)
			break
		}
		next := reload(ctx, *configFile, overrides, config, store, gateway, controller)
		if next != controller && controller != nil {
			retired = append(retired, controller)
		}
		controller = next
	}

	// Создаем контекст с таймаутом для graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if monitor != nil {
		monitor.SetShuttingDown()
	}

	// Останавливаем API Gateway
	if err := gateway.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping API Gateway: %v", err)
	}

	// Дожидаемся фоновых обновлений кэша всех контроллеров до закрытия хранилища
	for _, c := range append(retired, controller) {
		if c != nil {
			c.Wait()
		}
	}

	if err := store.Close(); err != nil {
		logger.Error("Error closing storage: %v", err)
	}

	// Останавливаем мониторинг
	if monitor != nil {
		if err := monitor.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping monitoring: %v", err)
		}
	}

	logger.Info("Edge cache gateway stopped")
}

// loadAppConfig собирает конфигурацию: умолчания, YAML, окружение, флаги
func loadAppConfig(configFile string, overrides flagOverrides) (*AppConfig, error) {
	var config *AppConfig
	if configFile != "" {
		logger.Info("Loading configuration from file: %s", configFile)
		loaded, err := LoadConfig(configFile)
		if err != nil {
			return nil, err
		}
		config = loaded
	} else {
		logger.Warn("Config file not provided, using defaults")
		config = DefaultAppConfig()
		if err := config.ApplyEnv(); err != nil {
			return nil, err
		}
	}

	applyCommandLineOverrides(config, overrides)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// buildHandler создает обработчик запросов и активирует контроллер.
// В режиме bypass контроллер не создается.
func buildHandler(ctx context.Context, config *AppConfig, store storage.Storage) (apigw.RequestHandler, *worker.Controller, error) {
	handler, controller, err := installHandler(ctx, config, store)
	if err != nil || controller == nil {
		return handler, controller, err
	}
	if err := controller.Activate(ctx); err != nil {
		return nil, nil, err
	}
	return handler, controller, nil
}

// installHandler создает обработчик и выполняет precache без активации:
// бакеты прошлых версий остаются нетронутыми.
func installHandler(ctx context.Context, config *AppConfig, store storage.Storage) (apigw.RequestHandler, *worker.Controller, error) {
	network, err := fetch.NewHTTPNetwork(&config.Fetch)
	if err != nil {
		return nil, nil, err
	}

	if config.Server.BypassCache {
		logger.Info("Caching disabled, proxying every request to %s", network.Origin())
		return handlers.NewBypassHandler(network), nil, nil
	}

	controller, err := worker.New(config.ToWorkerConfig(), &config.Routing, store, network)
	if err != nil {
		return nil, nil, err
	}

	// Ошибки отдельных ресурсов не мешают активации
	if err := controller.Install(ctx); err != nil {
		logger.Warn("Precache finished with errors: %v", err)
	}

	for _, rule := range controller.Rules() {
		logger.Info("  Route %s: %s", rule.Name, rule.Strategy)
	}
	return controller, controller, nil
}

// reload перечитывает конфигурацию и заменяет контроллер. При ошибке
// продолжает работать текущий контроллер.
//
// Старый контроллер выводится из обслуживания до активации нового: активация
// удаляет бакеты прошлой версии, и старый контроллер не должен их читать.
func reload(ctx context.Context, configFile string, overrides flagOverrides, current *AppConfig,
	store storage.Storage, gateway *apigw.Gateway, old *worker.Controller) *worker.Controller {

	logger.Info("Received SIGHUP, reloading configuration...")

	config, err := loadAppConfig(configFile, overrides)
	if err != nil {
		logger.Error("Reload failed, keeping current configuration: %v", err)
		return old
	}
	if config.Storage.Driver != current.Storage.Driver {
		logger.Warn("Storage driver change requires restart, keeping %s", current.Storage.Driver)
		config.Storage = current.Storage
	}
	logger.SetGlobalLevel(logger.ParseLogLevel(config.Logging.Level))

	handler, controller, err := installHandler(ctx, config, store)
	if err != nil {
		logger.Error("Reload failed, keeping current controller: %v", err)
		return old
	}

	gateway.SetHandler(handler)
	if old != nil {
		old.Supersede()
	}
	*current = *config

	if controller != nil {
		if err := controller.Activate(ctx); err != nil {
			// Контроллер остается installed и проксирует запросы без кэша
			logger.Error("Failed to activate cache controller %s: %v", config.Worker.Version, err)
			return controller
		}
	}
	logger.Info("Configuration reloaded")
	return controller
}

// applyCommandLineOverrides применяет переопределения из командной строки
func applyCommandLineOverrides(config *AppConfig, o flagOverrides) {
	// Переопределения сервера
	if o.listenAddr != "" {
		config.Server.ListenAddress = o.listenAddr
		logger.Debug("Override: server.listen_address = %s", o.listenAddr)
	}

	if o.tlsCert != "" {
		config.Server.TLSCertFile = o.tlsCert
		logger.Debug("Override: server.tls_cert_file = %s", o.tlsCert)
	}

	if o.tlsKey != "" {
		config.Server.TLSKeyFile = o.tlsKey
		logger.Debug("Override: server.tls_key_file = %s", o.tlsKey)
	}

	if o.readTimeout > 0 {
		config.Server.ReadTimeout = o.readTimeout
		logger.Debug("Override: server.read_timeout = %v", o.readTimeout)
	}

	if o.writeTimeout > 0 {
		config.Server.WriteTimeout = o.writeTimeout
		logger.Debug("Override: server.write_timeout = %v", o.writeTimeout)
	}

	if o.bypass {
		config.Server.BypassCache = true
		logger.Debug("Override: server.bypass_cache = true")
	}

	if o.origin != "" {
		config.Fetch.OriginURL = o.origin
		logger.Debug("Override: fetch.origin_url = %s", o.origin)
	}

	// Переопределения логирования
	if o.logLevel != "" {
		config.Logging.Level = o.logLevel
		logger.Debug("Override: logging.level = %s", o.logLevel)
	}

	// Переопределения мониторинга
	if o.metricsAddr != "" {
		config.Monitoring.ListenAddress = o.metricsAddr
		logger.Debug("Override: monitoring.listen_address = %s", o.metricsAddr)
	}

	if o.disableMetrics {
		config.Monitoring.Enabled = false
		logger.Debug("Override: monitoring.enabled = false")
	}
}
