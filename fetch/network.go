package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"edgecache/apigw"
	"edgecache/logger"
)

// hop-by-hop заголовки (RFC 9110, раздел 7.6.1) не передаются через прокси
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPNetwork отправляет запросы страницы на upstream origin
type HTTPNetwork struct {
	client       *http.Client
	origin       *url.URL
	maxBodyBytes int64
	metrics      *Metrics
}

// NewHTTPNetwork создает клиент origin по конфигурации
func NewHTTPNetwork(config *Config) (*HTTPNetwork, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch config: %w", err)
	}
	origin, _ := url.Parse(config.OriginURL)

	return &HTTPNetwork{
		client: &http.Client{
			Timeout: config.Timeout,
			// Редиректы отдаются странице как есть
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		origin:       origin,
		maxBodyBytes: config.MaxBodyBytes,
		metrics:      getMetrics(),
	}, nil
}

// Origin возвращает адрес origin
func (n *HTTPNetwork) Origin() *url.URL {
	u := *n.origin
	return &u
}

// target переписывает URL запроса на origin. Cross-origin запросы идут как есть.
func (n *HTTPNetwork) target(req *apigw.Request) *url.URL {
	if req.CrossOrigin {
		u := *req.URL
		return &u
	}
	u := *n.origin
	u.Path = strings.TrimRight(n.origin.Path, "/") + req.URL.Path
	u.RawPath = ""
	u.RawQuery = req.URL.RawQuery
	u.Fragment = ""
	return &u
}

// Fetch выполняет запрос к origin
func (n *HTTPNetwork) Fetch(ctx context.Context, req *apigw.Request) (*apigw.Response, error) {
	target := n.target(req)

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", ErrNetwork, err)
	}

	httpReq.Header = req.Headers.Clone()
	if httpReq.Header == nil {
		httpReq.Header = make(http.Header)
	}
	removeHopHeaders(httpReq.Header)
	// Сжатие решает транспорт, в кэш попадает распакованное тело
	httpReq.Header.Del("Accept-Encoding")
	if !req.CrossOrigin {
		httpReq.Header.Set("X-Forwarded-Host", req.URL.Host)
		httpReq.Header.Set("X-Forwarded-Proto", req.URL.Scheme)
	}
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-Id", req.RequestID)
	}

	start := time.Now()
	resp, err := n.client.Do(httpReq)
	n.metrics.NetworkFetchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		n.metrics.NetworkFetchTotal.WithLabelValues("error").Inc()
		logger.Debug("Network: %s %s failed: %v", req.Method, target.Redacted(), err)
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, n.maxBodyBytes+1))
	if err != nil {
		n.metrics.NetworkFetchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: failed to read body: %v", ErrNetwork, err)
	}
	if int64(len(data)) > n.maxBodyBytes {
		n.metrics.NetworkFetchTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrResponseTooLarge, target.Redacted(), n.maxBodyBytes)
	}
	n.metrics.NetworkFetchTotal.WithLabelValues("ok").Inc()

	headers := resp.Header.Clone()
	removeHopHeaders(headers)
	headers.Del("Content-Length")

	logger.Debug("Network: %s %s -> %d (%d bytes)", req.Method, target.Redacted(), resp.StatusCode, len(data))
	return &apigw.Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       data,
		Opaque:     req.CrossOrigin,
	}, nil
}

func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
