package tasks

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lysyi3m/rss-intake/app/database"
	"github.com/lysyi3m/rss-intake/app/feed"
	"github.com/lysyi3m/rss-intake/app/rss"
)

type fakeAdapter struct {
	name string
}

func (a fakeAdapter) Name() string                             { return a.name }
func (a fakeAdapter) CanHandle(string) bool                    { return true }
func (a fakeAdapter) Fetch(context.Context, string) rss.Result { return rss.Result{} }

// fakeFetcher serves canned results per URL and records what was requested.
type fakeFetcher struct {
	mu          sync.Mutex
	results     map[string]rss.Result
	fetched     []string
	concurrency int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) rss.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	return f.result(url)
}

func (f *fakeFetcher) FetchMany(_ context.Context, urls []string, concurrency int) map[string]rss.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.concurrency = concurrency
	results := make(map[string]rss.Result, len(urls))
	for _, url := range urls {
		f.fetched = append(f.fetched, url)
		results[url] = f.result(url)
	}
	return results
}

func (f *fakeFetcher) Adapter(string) rss.Adapter {
	return fakeAdapter{name: "FakeAdapter"}
}

func (f *fakeFetcher) result(url string) rss.Result {
	if result, ok := f.results[url]; ok {
		return result
	}
	return rss.Result{Error: "HTTP error: 404 Not Found", StatusCode: 404}
}

func setupRepos(t *testing.T) (*database.FeedRepo, *database.ItemRepo) {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatal(err)
	}

	return database.NewFeedRepository(db), database.NewItemRepository(db)
}

func loadConfigs(t *testing.T, files map[string]string) *feed.ConfigCache {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name+".yml"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	configCache := feed.NewConfigCache(dir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}
	return configCache
}

func parsedFeed(items ...rss.ParsedItem) rss.Result {
	return rss.Result{Success: true, Data: &rss.ParsedFeed{
		Title:    "Example Feed",
		SiteURL:  "https://example.com",
		Language: "en-us",
		Items:    items,
	}}
}
