package rss

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 5

// DiscoveryPaths are probed against a site's origin by Discover. All of them are
// validated at once, so the list must stay small.
var DiscoveryPaths = []string{
	"/feed",
	"/feed.xml",
	"/rss",
	"/rss.xml",
	"/atom.xml",
	"/feed/atom",
	"/blog/feed",
	"/posts.rss",
}

// Observer is notified after every Manager.Fetch with the adapter that served it.
type Observer func(adapter, url string, result Result, elapsed time.Duration)

type ManagerOption func(*managerOptions)

type managerOptions struct {
	source   Source
	observer Observer
}

// WithSource shares one feed source between all built-in adapters.
func WithSource(source Source) ManagerOption {
	return func(o *managerOptions) {
		o.source = source
	}
}

func WithObserver(observer Observer) ManagerOption {
	return func(o *managerOptions) {
		o.observer = observer
	}
}

// Manager picks an adapter for a feed URL. Adapters are tried in registration
// order and the first whose CanHandle matches wins; the default adapter serves
// everything else.
type Manager struct {
	mu       sync.RWMutex
	adapters []Adapter
	fallback Adapter
	observer Observer
}

func NewManager(config AdapterConfig, opts ...ManagerOption) *Manager {
	var options managerOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.source == nil {
		options.source = NewHTTPSource()
	}

	m := &Manager{
		fallback: NewDefaultAdapter(config, options.source),
		observer: options.observer,
	}
	m.RegisterAdapter(NewGitHubAdapter(config, options.source))

	slog.Info("Feed manager initialized", "adapters", len(m.adapters))
	return m
}

// RegisterAdapter appends an adapter with the lowest priority.
func (m *Manager) RegisterAdapter(adapter Adapter) {
	m.mu.Lock()
	m.adapters = append(m.adapters, adapter)
	m.mu.Unlock()

	slog.Debug("Adapter registered", "adapter", adapter.Name())
}

func (m *Manager) Adapter(url string) Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, adapter := range m.adapters {
		if adapter.CanHandle(url) {
			return adapter
		}
	}
	return m.fallback
}

func (m *Manager) Adapters() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.adapters)+1)
	for _, adapter := range m.adapters {
		names = append(names, adapter.Name())
	}
	return append(names, m.fallback.Name())
}

// Fetch never panics: a panicking adapter is reported as a failed Result.
func (m *Manager) Fetch(ctx context.Context, url string) (result Result) {
	name := "unknown"
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Adapter panicked", "adapter", name, "url", url, "panic", r)
			result = Result{Error: fmt.Sprintf("adapter %s panicked: %v", name, r)}
		}
		switch {
		case result.Success && result.Data == nil:
			result = Result{Error: "Failed to parse feed"}
		case !result.Success:
			result.Data = nil
			result.Error = cmp.Or(result.Error, "Failed to parse feed")
		}
		if m.observer != nil {
			m.observer(name, url, result, time.Since(start))
		}
	}()

	adapter := m.Adapter(url)
	name = adapter.Name()
	return adapter.Fetch(ctx, url)
}

// FetchMany fetches urls in sequential batches of concurrency; a batch must
// finish before the next one starts. Every url gets its own entry. Once ctx is
// done no further requests are made and the remaining urls fail with its error.
func (m *Manager) FetchMany(ctx context.Context, urls []string, concurrency int) map[string]Result {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make(map[string]Result, len(urls))
	var mu sync.Mutex

	var cancelled error
	for batch := range slices.Chunk(urls, concurrency) {
		var g errgroup.Group
		for _, feedURL := range batch {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				result := m.Fetch(ctx, feedURL)
				mu.Lock()
				results[feedURL] = result
				mu.Unlock()
				return nil
			})
		}
		if cancelled = g.Wait(); cancelled != nil {
			break
		}
	}

	if cancelled != nil {
		slog.Warn("Batch fetch cancelled", "urls", len(urls), "fetched", len(results), "error", cancelled)
		for _, feedURL := range urls {
			if _, ok := results[feedURL]; !ok {
				results[feedURL] = failure(cancelled)
			}
		}
	}

	return results
}

// Validate costs a full fetch.
func (m *Manager) Validate(ctx context.Context, url string) Validation {
	result := m.Fetch(ctx, url)
	if result.Success {
		return Validation{Valid: true, Title: result.Data.Title}
	}
	return Validation{Error: result.Error}
}

// Discover probes DiscoveryPaths on the origin of siteURL and returns the ones
// that hold a valid feed, in the order their probes finished.
func (m *Manager) Discover(ctx context.Context, siteURL string) []string {
	feeds := []string{}

	base, err := url.Parse(siteURL)
	if err == nil && (base.Scheme == "" || base.Host == "") {
		err = fmt.Errorf("missing scheme or host")
	}
	if err != nil {
		slog.Error("Feed discovery failed", "url", siteURL, "error", err)
		return feeds
	}
	origin := base.Scheme + "://" + base.Host

	var mu sync.Mutex
	var g errgroup.Group
	for _, path := range DiscoveryPaths {
		candidate := origin + path
		g.Go(func() error {
			if m.Validate(ctx, candidate).Valid {
				mu.Lock()
				feeds = append(feeds, candidate)
				mu.Unlock()
			}
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("Feed discovery cancelled", "url", siteURL, "error", err)
	}

	slog.Info("Feeds discovered", "url", siteURL, "count", len(feeds))
	return feeds
}
