package apigw

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"edgecache/logger"
)

// Gateway представляет модуль API Gateway
type Gateway struct {
	config         Config
	parser         *RequestParser
	responseWriter *ResponseWriter
	metrics        *Metrics

	mu      sync.RWMutex
	handler RequestHandler
	server  *http.Server
}

// New создает новый экземпляр API Gateway
func New(config Config, handler RequestHandler) *Gateway {
	return &Gateway{
		config:         config,
		handler:        handler,
		parser:         NewRequestParser(config),
		responseWriter: NewResponseWriter(),
		metrics:        getMetrics(),
	}
}

// SetHandler атомарно заменяет обработчик. Используется при перезагрузке
// конфигурации: новые запросы сразу идут в новый контроллер.
func (gw *Gateway) SetHandler(handler RequestHandler) {
	gw.mu.Lock()
	gw.handler = handler
	gw.mu.Unlock()
}

// Handler возвращает текущий обработчик
func (gw *Gateway) Handler() RequestHandler {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return gw.handler
}

// Ready сообщает, готов ли текущий обработчик принимать трафик
func (gw *Gateway) Ready() bool {
	h := gw.Handler()
	if h == nil {
		return false
	}
	if rc, ok := h.(ReadinessChecker); ok {
		return rc.Ready()
	}
	return true
}

// ServeHTTP реализует интерфейс http.Handler
func (gw *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	logger.Debug("Incoming request: %s %s", r.Method, r.URL.Path)

	req, err := gw.parser.Parse(r)
	if err != nil {
		logger.Warn("Failed to parse request: %v", err)
		resp := &Response{StatusCode: http.StatusBadRequest, Error: err}
		code, _ := gw.responseWriter.WriteResponse(w, nil, resp)
		gw.observe(r.Method, code, resp.Cache, start)
		return
	}

	var resp *Response
	if req.Kind == MessageRequest {
		resp = gw.handleMessage(req)
	} else {
		resp = gw.handle(req)
	}

	code, err := gw.responseWriter.WriteResponse(w, req, resp)
	if err != nil {
		logger.Error("Failed to write response: %v", err)
	}

	logger.Info("%s %s -> %d %s (%.3f ms)", req.Method, req.URL.RequestURI(), code, resp.Cache,
		float64(time.Since(start).Microseconds())/1000.0)
	gw.observe(req.Method, code, resp.Cache, start)
}

// handle передает запрос обработчику. Паника обработчика не должна
// ронять соединение и последующие запросы.
func (gw *Gateway) handle(req *Request) (resp *Response) {
	handler := gw.Handler()
	if handler == nil {
		return &Response{Error: errors.New("no request handler configured")}
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Handler panic for %s: %v", req.Identity(), rec)
			resp = &Response{Error: fmt.Errorf("handler panic: %v", rec)}
		}
	}()

	resp = handler.Handle(req)
	if resp == nil {
		resp = &Response{Error: errors.New("handler returned no response")}
	}
	return resp
}

// handleMessage доставляет диагностическое сообщение обработчику
func (gw *Gateway) handleMessage(req *Request) *Response {
	mh, ok := gw.Handler().(MessageHandler)
	if !ok {
		gw.metrics.MessagesTotal.WithLabelValues("unsupported").Inc()
		return &Response{StatusCode: http.StatusNotFound, Headers: make(http.Header)}
	}

	if err := mh.HandleMessage(req.Ctx(), req.Body); err != nil {
		logger.Debug("Message rejected: %v", err)
		gw.metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return &Response{Error: fmt.Errorf("%w: %v", ErrInvalidRequest, err)}
	}

	gw.metrics.MessagesTotal.WithLabelValues("accepted").Inc()
	return &Response{StatusCode: http.StatusAccepted, Headers: make(http.Header)}
}

func (gw *Gateway) observe(method string, code int, cache CacheStatus, start time.Time) {
	gw.metrics.RequestsTotal.WithLabelValues(method, strconv.Itoa(code), string(cache)).Inc()
	gw.metrics.RequestLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// Start запускает сервер
func (gw *Gateway) Start() error {
	gw.mu.Lock()
	gw.server = &http.Server{
		Addr:         gw.config.ListenAddress,
		Handler:      gw,
		ReadTimeout:  gw.config.ReadTimeout,
		WriteTimeout: gw.config.WriteTimeout,
	}
	server := gw.server
	gw.mu.Unlock()

	logger.Info("Starting API Gateway on %s", gw.config.ListenAddress)

	// Проверяем, нужно ли использовать TLS
	var err error
	if gw.config.TLSCertFile != "" && gw.config.TLSKeyFile != "" {
		logger.Info("Starting HTTPS server with TLS")
		err = server.ListenAndServeTLS(gw.config.TLSCertFile, gw.config.TLSKeyFile)
	} else {
		logger.Info("Starting HTTP server")
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop останавливает сервер
func (gw *Gateway) Stop(ctx context.Context) error {
	gw.mu.RLock()
	server := gw.server
	gw.mu.RUnlock()
	if server == nil {
		return nil
	}

	logger.Info("Stopping API Gateway...")
	return server.Shutdown(ctx)
}
