package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/japaniel/langparser/pkg/logger"
)

const (
	// MaxBodySize bounds a fetched page.
	MaxBodySize = 10 * 1024 * 1024

	DefaultTimeout  = 30 * time.Second
	DefaultCacheTTL = 15 * time.Minute
	// DefaultUserAgent mimics a desktop browser; some sites answer 403 otherwise.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Fetcher downloads pages and keeps recent bodies in a TTL cache so that
// re-parsing the same page does not hit the network.
type Fetcher struct {
	client    *http.Client
	userAgent string
	cache     *gocache.Cache
	log       logger.Logger
}

type FetchOption func(*Fetcher)

func WithHTTPClient(c *http.Client) FetchOption {
	return func(f *Fetcher) { f.client = c }
}

func WithUserAgent(ua string) FetchOption {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithCacheTTL sets the body cache lifetime. A ttl <= 0 disables caching.
func WithCacheTTL(ttl time.Duration) FetchOption {
	return func(f *Fetcher) {
		if ttl <= 0 {
			f.cache = nil
			return
		}
		f.cache = gocache.New(ttl, 2*ttl)
	}
}

func WithFetchLogger(l logger.Logger) FetchOption {
	return func(f *Fetcher) { f.log = l }
}

func NewFetcher(opts ...FetchOption) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		cache:     gocache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = logger.OrDiscard(f.log)
	return f
}

// Fetch returns the body of pageURL.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if f.cache != nil {
		if v, ok := f.cache.Get(pageURL); ok {
			f.log.Debug("page cache hit", "url", pageURL)
			return v.([]byte), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ko;q=0.8,zh;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}
	if resp.ContentLength > MaxBodySize {
		return nil, fmt.Errorf("fetch %s: content-length %d exceeds limit of %d bytes", pageURL, resp.ContentLength, MaxBodySize)
	}

	// Read one byte past the limit to tell a full body from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("fetch %s: body exceeds limit of %d bytes", pageURL, MaxBodySize)
	}

	f.log.Info("fetched page", "url", pageURL, "bytes", len(body))
	if f.cache != nil {
		f.cache.SetDefault(pageURL, body)
	}
	return body, nil
}

// Load fetches pageURL and splits it into regions, either the readability
// article or every text node of the page.
func (f *Fetcher) Load(ctx context.Context, pageURL string, article bool) (Document, error) {
	body, err := f.Fetch(ctx, pageURL)
	if err != nil {
		return Document{}, err
	}
	if article {
		return FromArticle(body, pageURL)
	}
	return FromHTML(body, pageURL)
}
