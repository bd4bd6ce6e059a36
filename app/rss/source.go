package rss

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
	"golang.org/x/time/rate"
)

// Custom map keys filled in by the translators below; gofeed's universal model
// drops both values.
const (
	customTTL       = "ttl"
	customAuthorURI = "author_uri"
)

// Source downloads and parses a feed document. Adapters treat it as opaque.
type Source interface {
	Fetch(ctx context.Context, url string, opts FetchOptions) (*gofeed.Feed, error)
}

type FetchOptions struct {
	Timeout time.Duration
	Headers map[string]string
}

type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}

// DefaultMaxFeedSize caps how much of a feed response is read.
const DefaultMaxFeedSize = 10 << 20

type HTTPSource struct {
	client      *http.Client
	limiter     *rate.Limiter
	maxBodySize int64
}

type SourceOption func(*HTTPSource)

func WithHTTPClient(client *http.Client) SourceOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// WithRateLimit caps outbound requests per second across all adapters sharing
// the source. Zero or negative means unlimited.
func WithRateLimit(perSecond float64) SourceOption {
	return func(s *HTTPSource) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithMaxBodySize overrides DefaultMaxFeedSize. Larger responses fail the fetch.
func WithMaxBodySize(size int64) SourceOption {
	return func(s *HTTPSource) {
		if size > 0 {
			s.maxBodySize = size
		}
	}
}

func NewHTTPSource(opts ...SourceOption) *HTTPSource {
	s := &HTTPSource{
		client:      &http.Client{},
		limiter:     rate.NewLimiter(rate.Inf, 0),
		maxBodySize: DefaultMaxFeedSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSource) Fetch(ctx context.Context, url string, opts FetchOptions) (*gofeed.Feed, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > s.maxBodySize {
		return nil, fmt.Errorf("feed exceeds %d bytes", s.maxBodySize)
	}

	return ParseFeed(data)
}

// ParseFeed parses an RSS, Atom or JSON feed document.
func ParseFeed(data []byte) (*gofeed.Feed, error) {
	feed, err := newParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

// gofeed parsers keep per-document state, so one is built per parse.
func newParser() *gofeed.Parser {
	parser := gofeed.NewParser()
	parser.RSSTranslator = &rssTranslator{}
	parser.AtomTranslator = &atomTranslator{}
	return parser
}

type rssTranslator struct {
	gofeed.DefaultRSSTranslator
}

func (t *rssTranslator) Translate(raw interface{}) (*gofeed.Feed, error) {
	feed, err := t.DefaultRSSTranslator.Translate(raw)
	if err != nil {
		return nil, err
	}
	if rssFeed, ok := raw.(*rss.Feed); ok && rssFeed.TTL != "" {
		if feed.Custom == nil {
			feed.Custom = map[string]string{}
		}
		if _, exists := feed.Custom[customTTL]; !exists {
			feed.Custom[customTTL] = rssFeed.TTL
		}
	}
	return feed, nil
}

type atomTranslator struct {
	gofeed.DefaultAtomTranslator
}

// Translate keeps each entry's first author URI; entries and items translate 1:1
// in document order.
func (t *atomTranslator) Translate(raw interface{}) (*gofeed.Feed, error) {
	feed, err := t.DefaultAtomTranslator.Translate(raw)
	if err != nil {
		return nil, err
	}
	atomFeed, ok := raw.(*atom.Feed)
	if !ok || len(atomFeed.Entries) != len(feed.Items) {
		return feed, nil
	}
	for i, entry := range atomFeed.Entries {
		if len(entry.Authors) == 0 || entry.Authors[0] == nil || entry.Authors[0].URI == "" {
			continue
		}
		item := feed.Items[i]
		if item.Custom == nil {
			item.Custom = map[string]string{}
		}
		item.Custom[customAuthorURI] = entry.Authors[0].URI
	}
	return feed, nil
}
