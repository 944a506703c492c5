package apigw

import (
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestParser_Parse(t *testing.T) {
	parser := NewRequestParser(DefaultConfig())

	tests := []struct {
		name             string
		method           string
		target           string
		accept           string
		body             string
		expectedKind     RequestKind
		expectedIdentity string
		expectNavigation bool
		expectCacheable  bool
	}{
		{
			name:             "GET asset",
			method:           "GET",
			target:           "/assets/index.css",
			expectedKind:     FetchRequest,
			expectedIdentity: "GET http://localhost:8080/assets/index.css",
			expectCacheable:  true,
		},
		{
			name:             "GET with query",
			method:           "GET",
			target:           "/api/settings?lang=ru",
			expectedKind:     FetchRequest,
			expectedIdentity: "GET http://localhost:8080/api/settings?lang=ru",
			expectCacheable:  true,
		},
		{
			name:             "HTML navigation",
			method:           "GET",
			target:           "/",
			accept:           "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8",
			expectedKind:     FetchRequest,
			expectedIdentity: "GET http://localhost:8080/",
			expectNavigation: true,
			expectCacheable:  true,
		},
		{
			name:             "POST lead",
			method:           "POST",
			target:           "/api/leads",
			body:             `{"name":"x"}`,
			expectedKind:     FetchRequest,
			expectedIdentity: "POST http://localhost:8080/api/leads",
		},
		{
			name:             "Message channel",
			method:           "POST",
			target:           "/__sw/message",
			body:             `{"type":"PERFORMANCE_METRICS"}`,
			expectedKind:     MessageRequest,
			expectedIdentity: "POST http://localhost:8080/__sw/message",
		},
		{
			name:             "GET on message path is a plain fetch",
			method:           "GET",
			target:           "/__sw/message",
			expectedKind:     FetchRequest,
			expectedIdentity: "GET http://localhost:8080/__sw/message",
			expectCacheable:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r *http.Request
			if tt.body != "" {
				r = httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			} else {
				r = httptest.NewRequest(tt.method, tt.target, nil)
			}
			if tt.accept != "" {
				r.Header.Set("Accept", tt.accept)
			}

			req, err := parser.Parse(r)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if req.Kind != tt.expectedKind {
				t.Errorf("Expected kind %v, got %v", tt.expectedKind, req.Kind)
			}
			if req.Identity() != tt.expectedIdentity {
				t.Errorf("Expected identity %q, got %q", tt.expectedIdentity, req.Identity())
			}
			if req.IsNavigation() != tt.expectNavigation {
				t.Errorf("Expected navigation %t, got %t", tt.expectNavigation, req.IsNavigation())
			}
			if req.Cacheable() != tt.expectCacheable {
				t.Errorf("Expected cacheable %t, got %t", tt.expectCacheable, req.Cacheable())
			}
			if string(req.Body) != tt.body {
				t.Errorf("Expected body %q, got %q", tt.body, string(req.Body))
			}
			if req.RequestID == "" {
				t.Error("Expected request ID to be generated")
			}
		})
	}
}

func TestRequestParser_HostFallback(t *testing.T) {
	config := DefaultConfig()
	config.PublicURL = ""
	parser := NewRequestParser(config)

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		expected string
	}{
		{
			name:     "plain http",
			setup:    func(r *http.Request) {},
			expected: "http://landing.example/faq",
		},
		{
			name: "tls",
			setup: func(r *http.Request) {
				r.TLS = &tls.ConnectionState{}
			},
			expected: "https://landing.example/faq",
		},
		{
			name: "forwarded proto",
			setup: func(r *http.Request) {
				r.Header.Set("X-Forwarded-Proto", "https")
			},
			expected: "https://landing.example/faq",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/faq", nil)
			r.Host = "landing.example"
			tt.setup(r)

			req, err := parser.Parse(r)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if req.URL.String() != tt.expected {
				t.Errorf("Expected URL %q, got %q", tt.expected, req.URL.String())
			}
		})
	}
}

func TestRequestParser_AbsoluteFormKeepsScheme(t *testing.T) {
	parser := NewRequestParser(DefaultConfig())

	r := httptest.NewRequest("GET", "ftp://files.example/pub/readme.txt", nil)
	req, err := parser.Parse(r)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req.IsHTTP() {
		t.Error("ftp request must not be treated as http")
	}
	if req.Cacheable() {
		t.Error("ftp request must not be cacheable")
	}
}

func TestRequestParser_AbsoluteFormUsesPublicHost(t *testing.T) {
	parser := NewRequestParser(DefaultConfig())

	r := httptest.NewRequest("GET", "http://evil.example/assets/app.js?v=2", nil)
	req, err := parser.Parse(r)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := "GET http://localhost:8080/assets/app.js?v=2"
	if req.Identity() != expected {
		t.Errorf("Expected identity %q, got %q", expected, req.Identity())
	}
	if !req.Cacheable() {
		t.Error("absolute-form http request must stay cacheable")
	}
}

func TestRequestParser_BodyLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxBodyBytes = 4
	parser := NewRequestParser(config)

	r := httptest.NewRequest("POST", "/api/leads", strings.NewReader("too large"))
	_, err := parser.Parse(r)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Expected ErrInvalidRequest, got %v", err)
	}
}

func TestRequestParser_KeepsRequestID(t *testing.T) {
	parser := NewRequestParser(DefaultConfig())

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Request-Id", "abc-123")
	req, err := parser.Parse(r)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if req.RequestID != "abc-123" {
		t.Errorf("Expected request ID abc-123, got %q", req.RequestID)
	}
}

func TestRequestKind_String(t *testing.T) {
	tests := []struct {
		kind     RequestKind
		expected string
	}{
		{FetchRequest, "FETCH"},
		{MessageRequest, "MESSAGE"},
		{RequestKind(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := tt.kind.String(); result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}
