package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScraperConfig(t *testing.T) {
	config := ScraperConfig{
		BaseURL:        "https://example.com",
		MaxDepth:       5,
		RateLimit:      1.0,
		IgnorePatterns: []string{"/ignore/", "private"},
		Timeout:        10 * time.Second,
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)
	assert.Equal(t, config.BaseURL, s.config.BaseURL)
	assert.Equal(t, config.MaxDepth, s.config.MaxDepth)
	assert.Equal(t, "example.com", s.baseHost)

	_, err = NewWithConfig(ScraperConfig{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestShouldProcessURL(t *testing.T) {
	config := ScraperConfig{
		BaseURL:           "https://example.com",
		IgnorePatterns:    []string{"/ignore/", "private"},
		AllowedExtensions: []string{".html", "/"},
	}

	s, err := NewWithConfig(config)
	require.NoError(t, err)

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/page.html", true},
		{"https://example.com/ignore/page.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			result := s.shouldProcessURL(tt.url)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`
			<html lang="DE">
				<head><title>Start</title><script>var x = 1;</script></head>
				<body>
					<nav>Menu</nav>
					<main>
						<h1>Test Content</h1>
						<p>This is a test paragraph.</p>
						<a href="/page2.html#top">Next</a>
						<a href="/missing.html">Broken</a>
						<a href="https://elsewhere.example/">External</a>
					</main>
				</body>
			</html>
		`))
	})
	mux.HandleFunc("/page2.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><article>Second page. <a href="/">Home</a></article></body></html>`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestScrapeWithMockServer(t *testing.T) {
	server := newSite(t)

	var progress []string
	s, err := NewWithConfig(ScraperConfig{
		BaseURL:    server.URL,
		MaxDepth:   1,
		RateLimit:  100,
		OnProgress: func(url string) { progress = append(progress, url) },
	})
	require.NoError(t, err)

	pages, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Len(t, pages, 2)

	start := pages[0]
	assert.Equal(t, server.URL+"/", start.URL)
	assert.Equal(t, "Start", start.Title)
	assert.Equal(t, "text/html", start.ContentType)
	assert.Equal(t, "de", start.Language)
	assert.Equal(t, 0, start.Depth)
	assert.Contains(t, start.Content, "Test Content")
	assert.Contains(t, start.Content, "This is a test paragraph")
	assert.NotContains(t, start.Content, "Menu")
	assert.NotContains(t, start.Content, "var x")

	second := pages[1]
	assert.Equal(t, server.URL+"/page2.html", second.URL)
	assert.Equal(t, DefaultLanguage, second.Language)
	assert.Equal(t, 1, second.Depth)
	assert.Equal(t, "Second page. Home", second.Content)

	// The broken link is fetched and skipped; the home link is not refetched.
	assert.Len(t, progress, 3)
}

func TestScrapeStartFailure(t *testing.T) {
	server := newSite(t)

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL, RateLimit: 100})
	require.NoError(t, err)

	_, err = s.Scrape(context.Background(), server.URL+"/missing.html")
	assert.Error(t, err)
}

func TestScrapeCancelled(t *testing.T) {
	server := newSite(t)

	s, err := NewWithConfig(ScraperConfig{BaseURL: server.URL, RateLimit: 100})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Scrape(ctx, server.URL+"/")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/html", contentType(""))
	assert.Equal(t, "text/html", contentType("text/html; charset=utf-8"))
	assert.Equal(t, "application/xhtml+xml", contentType("application/xhtml+xml"))
}
