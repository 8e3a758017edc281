package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/vecingest/internal/models"
	"golang.org/x/time/rate"
)

const DefaultLanguage = "en"

type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
	Logger            *slog.Logger
}

// Scraper crawls pages of a single host breadth first.
type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	limiter  *rate.Limiter
	baseHost string
	logger   *slog.Logger
}

type target struct {
	url   string
	depth int
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", config.BaseURL)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
		logger:   config.Logger.With("component", "scraper"),
	}, nil
}

// Scrape fetches start and every same-host page reachable from it within
// MaxDepth links. Pages that fail to load are logged and skipped; an error
// is only returned when start itself fails or ctx ends.
func (s *Scraper) Scrape(ctx context.Context, start string) ([]models.Page, error) {
	var pages []models.Page
	visited := make(map[string]bool)
	queue := []target{{url: start}}

	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]

		if t.depth > s.config.MaxDepth || visited[t.url] || !s.shouldProcessURL(t.url) {
			continue
		}
		visited[t.url] = true

		page, links, err := s.fetch(ctx, t)
		if err != nil {
			if ctx.Err() != nil || t.url == start {
				return pages, err
			}
			s.logger.Warn("skipping page", "url", t.url, "err", err)
			continue
		}
		pages = append(pages, page)

		for _, link := range links {
			if !visited[link] {
				queue = append(queue, target{url: link, depth: t.depth + 1})
			}
		}
	}

	s.logger.Info("crawl finished", "pages", len(pages), "visited", len(visited))
	return pages, nil
}

func (s *Scraper) fetch(ctx context.Context, t target) (models.Page, []string, error) {
	if s.config.OnProgress != nil {
		s.config.OnProgress(t.url)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return models.Page{}, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return models.Page{}, nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return models.Page{}, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Page{}, nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, t.url)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.Page{}, nil, err
	}

	page := models.Page{
		URL:         t.url,
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Content:     s.extractMainContent(doc),
		ContentType: contentType(resp.Header.Get("Content-Type")),
		Language:    pageLanguage(doc),
		Depth:       t.depth,
	}
	return page, s.extractLinks(doc, resp.Request.URL), nil
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Host != s.baseHost {
		return false
	}

	path := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if strings.HasSuffix(path, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func (s *Scraper) extractLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			s.logger.Debug("ignoring link", "href", href, "err", err)
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		links = append(links, abs.String())
	})
	return links
}

func (s *Scraper) extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer").Remove()

	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	if content == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content)
}

func cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")

	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

// contentType drops parameters such as charset from a Content-Type header.
func contentType(header string) string {
	if header == "" {
		return "text/html"
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return header
	}
	return mediaType
}

func pageLanguage(doc *goquery.Document) string {
	lang, ok := doc.Find("html").First().Attr("lang")
	lang = strings.TrimSpace(lang)
	if !ok || lang == "" {
		return DefaultLanguage
	}
	return strings.ToLower(lang)
}
