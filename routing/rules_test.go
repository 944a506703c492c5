package routing

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgecache/apigw"
)

func newRequest(method, rawURL, accept string) *apigw.Request {
	u, _ := url.Parse(rawURL)
	headers := make(http.Header)
	if accept != "" {
		headers.Set("Accept", accept)
	}
	return &apigw.Request{Method: method, URL: u, Headers: headers}
}

func TestClassifyDefaultRules(t *testing.T) {
	rules, err := DefaultConfig().Compile()
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		accept   string
		expected Strategy
	}{
		{"admin", "/admin", "", NetworkFirst},
		{"admin subpage", "/admin/leads", "text/html", NetworkFirst},
		{"leads api", "/api/leads", "", NetworkFirst},
		{"analytics api", "/api/analytics/events", "", NetworkFirst},
		{"assets", "/assets/index.css", "", CacheFirst},
		{"uploads", "/uploads/hero.jpg", "", CacheFirst},
		{"settings api", "/api/settings", "application/json", CacheFirst},
		{"font by extension", "/fonts/inter-var.woff2", "", CacheFirst},
		{"script by extension", "/sw-helper.mjs", "", CacheFirst},
		{"favicon", "/favicon.ico", "", CacheFirst},
		{"jpeg", "/img/photo.jpeg", "", CacheFirst},
		{"navigation", "/", "text/html,application/xhtml+xml", StaleWhileRevalidate},
		{"navigation to page", "/about", "TEXT/HTML", StaleWhileRevalidate},
		{"asset requested as html", "/assets/page", "text/html", CacheFirst},
		{"other api", "/api/other", "application/json", NetworkOnly},
		{"robots", "/robots.txt", "*/*", NetworkOnly},
		{"extension must be a suffix", "/file.css.map", "", NetworkOnly},
		{"admin prefix only at start", "/x/admin", "", NetworkOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(http.MethodGet, "http://example.com"+tt.path, tt.accept)
			rule := Classify(rules, req)
			assert.Equal(t, tt.expected, rule.Strategy, "path %s matched rule %s", tt.path, rule.Name)
		})
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	all := func(*apigw.Request) bool { return true }
	rules := []Rule{
		{Name: "first", Strategy: CacheFirst, Match: all},
		{Name: "second", Strategy: NetworkFirst, Match: all},
	}
	rule := Classify(rules, newRequest(http.MethodGet, "http://example.com/", ""))
	assert.Equal(t, "first", rule.Name)
}

func TestClassifyEmptyTable(t *testing.T) {
	rule := Classify(nil, newRequest(http.MethodGet, "http://example.com/", "text/html"))
	assert.Equal(t, NetworkOnly, rule.Strategy)
	assert.Equal(t, "default", rule.Name)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"unknown strategy", Config{Rules: []RuleConfig{{Strategy: "cache-only", Patterns: []string{"^/"}}}}},
		{"bad regexp", Config{Rules: []RuleConfig{{Strategy: "cache-first", Patterns: []string{"("}}}}},
		{"empty predicate", Config{Rules: []RuleConfig{{Strategy: "cache-first"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.config.Compile()
			assert.Error(t, err)
			assert.Error(t, tt.config.Validate())
		})
	}
}

func TestCompileNameDefaultsToStrategy(t *testing.T) {
	rules, err := (&Config{Rules: []RuleConfig{{Strategy: "network-first", Patterns: []string{"^/api"}}}}).Compile()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "network-first", rules[0].Name)
}

func TestCompileNavigationWithPatterns(t *testing.T) {
	rules, err := (&Config{Rules: []RuleConfig{{
		Strategy:   "stale-while-revalidate",
		Patterns:   []string{`^/blog/`},
		Navigation: true,
	}}}).Compile()
	require.NoError(t, err)

	assert.True(t, rules[0].Match(newRequest(http.MethodGet, "http://example.com/blog/post", "")))
	assert.True(t, rules[0].Match(newRequest(http.MethodGet, "http://example.com/", "text/html")))
	assert.False(t, rules[0].Match(newRequest(http.MethodGet, "http://example.com/", "")))
}

func TestStrategyString(t *testing.T) {
	for _, s := range []Strategy{NetworkOnly, NetworkFirst, CacheFirst, StaleWhileRevalidate} {
		parsed, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	assert.Equal(t, "unknown", Strategy(42).String())
}
