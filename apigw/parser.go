package apigw

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"edgecache/logger"
)

// RequestParser отвечает за парсинг HTTP запросов в Request
type RequestParser struct {
	publicURL    *url.URL
	messagePath  string
	maxBodyBytes int64
}

// NewRequestParser создает новый экземпляр парсера
func NewRequestParser(config Config) *RequestParser {
	p := &RequestParser{
		messagePath:  config.MessagePath,
		maxBodyBytes: config.MaxBodyBytes,
	}
	if config.PublicURL != "" {
		if u, err := url.Parse(config.PublicURL); err == nil {
			p.publicURL = u
		}
	}
	if p.maxBodyBytes <= 0 {
		p.maxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	return p
}

// Parse анализирует HTTP запрос и создает Request
func (p *RequestParser) Parse(r *http.Request) (*Request, error) {
	logger.Debug("Parsing HTTP request: %s %s", r.Method, r.URL.String())

	target, err := p.absoluteURL(r)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Kind:      FetchRequest,
		Method:    r.Method,
		URL:       target,
		Headers:   r.Header.Clone(),
		RequestID: r.Header.Get("X-Request-Id"),
		Context:   r.Context(),
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if r.Method == http.MethodPost && r.URL.Path == p.messagePath {
		req.Kind = MessageRequest
	}

	// Тело читаем целиком: ответы и запросы кэшируются побайтно
	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(io.LimitReader(r.Body, p.maxBodyBytes+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		if int64(len(body)) > p.maxBodyBytes {
			return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrInvalidRequest, p.maxBodyBytes)
		}
		req.Body = body
	}

	logger.Debug("Parsed request: kind=%s identity=%s navigation=%t", req.Kind, req.Identity(), req.IsNavigation())
	return req, nil
}

// absoluteURL строит абсолютный URL запроса от публичного адреса сервера.
// Хост из absolute-form (прокси-стиль) не попадает в идентичность запроса;
// схему, отличную от http(s), запрос сохраняет, чтобы пройти мимо кэша.
func (p *RequestParser) absoluteURL(r *http.Request) (*url.URL, error) {
	if r.URL == nil {
		return nil, fmt.Errorf("%w: missing URL", ErrInvalidRequest)
	}
	if r.URL.IsAbs() && !isHTTPScheme(r.URL.Scheme) {
		u := *r.URL
		u.Fragment = ""
		return &u, nil
	}

	u := &url.URL{
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}
	if u.Path == "" {
		u.Path = "/"
	}

	if p.publicURL != nil {
		u.Scheme = p.publicURL.Scheme
		u.Host = p.publicURL.Host
		return u, nil
	}

	// Определяем схему из запроса
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	// Также проверяем заголовки для случаев с прокси/балансировщиками
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		u.Scheme = "https"
	}
	u.Host = r.Host
	if u.Host == "" {
		u.Host = r.URL.Host
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidRequest)
	}
	return u, nil
}

func isHTTPScheme(scheme string) bool {
	return strings.EqualFold(scheme, "http") || strings.EqualFold(scheme, "https")
}
