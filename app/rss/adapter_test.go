package rss

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceFunc func(ctx context.Context, url string, opts FetchOptions) (*gofeed.Feed, error)

func (f sourceFunc) Fetch(ctx context.Context, url string, opts FetchOptions) (*gofeed.Feed, error) {
	return f(ctx, url, opts)
}

func fixtureSource(t *testing.T, name string) sourceFunc {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)

	return func(context.Context, string, FetchOptions) (*gofeed.Feed, error) {
		return ParseFeed(data)
	}
}

func serveFixture(t *testing.T, name string) *httptest.Server {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDefaultAdapterCanHandleEverything(t *testing.T) {
	adapter := NewDefaultAdapter(AdapterConfig{}, nil)

	for _, url := range []string{"", "https://example.com/feed", "not a url", "https://github.com/a/b/releases.atom"} {
		assert.True(t, adapter.CanHandle(url), url)
	}
}

func TestBaseAdapterFetchRSS(t *testing.T) {
	server := serveFixture(t, "example.rss")
	adapter := NewDefaultAdapter(AdapterConfig{}, NewHTTPSource())

	result := adapter.Fetch(context.Background(), server.URL+"/feed.xml")

	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.Data)
	assert.Empty(t, result.Error)

	feed := result.Data
	assert.Equal(t, "Example Feed", feed.Title)
	assert.Equal(t, "An example feed", feed.Description)
	assert.Equal(t, "https://example.com", feed.SiteURL)
	assert.Equal(t, "https://example.com/logo.png", feed.Image)
	assert.Equal(t, "en-us", feed.Language)
	require.NotNil(t, feed.TTL)
	assert.Equal(t, 60, *feed.TTL)
	require.Len(t, feed.Items, 3)

	item := feed.Items[0]
	assert.Equal(t, "https://example.com/post-1", item.GUID)
	assert.Equal(t, "Test Post 1", item.Title)
	assert.Equal(t, "https://example.com/post-1", item.URL)
	assert.Equal(t, "Short post", item.Description)
	require.NotNil(t, item.PublishedAt)
	assert.True(t, item.PublishedAt.Equal(time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC)), item.PublishedAt.String())
	assert.Equal(t, []string{"news"}, item.Categories)

	assert.Contains(t, item.Content, `<a href="https://example.com/a">world</a>`)
	assert.Equal(t, item.Content, item.FormattedContent.HTML)
	assert.NotContains(t, item.FormattedContent.Text, "<")
	assert.NotContains(t, item.FormattedContent.Text, ">")
	assert.Equal(t, []Image{{URL: "https://example.com/a.png", Alt: "A"}}, item.FormattedContent.Images)
	assert.Equal(t, []Link{{URL: "https://example.com/a", Title: "world"}}, item.FormattedContent.Links)

	require.Len(t, item.Media, 2)
	assert.Equal(t, "https://example.com/v.mp4", item.Media[0].URL)
	assert.Equal(t, MediaVideo, item.Media[0].Type)
	require.NotNil(t, item.Media[0].Width)
	assert.Equal(t, 640, *item.Media[0].Width)
	assert.Nil(t, item.Media[0].Duration)
	assert.Equal(t, MediaImage, item.Media[1].Type)
	assert.Nil(t, item.Media[1].Width)

	require.Len(t, item.Attachments, 1)
	assert.Equal(t, "https://example.com/ep.mp3", item.Attachments[0].URL)
	assert.Equal(t, "audio/mpeg", item.Attachments[0].MimeType)
	require.NotNil(t, item.Attachments[0].Size)
	assert.Equal(t, int64(1234), *item.Attachments[0].Size)

	assert.Contains(t, item.Extra, "slash")
	for _, known := range []string{"title", "link", "guid", "media", "content", "categories", "enclosures"} {
		assert.NotContains(t, item.Extra, known)
	}

	second := feed.Items[1]
	assert.Equal(t, "https://example.com/post-2", second.GUID)
	assert.Equal(t, "Second", second.Description)
	assert.Equal(t, "<p>Second</p>", second.Content)
	assert.Nil(t, second.PublishedAt)
	assert.Empty(t, second.Media)
	assert.NotNil(t, second.Attachments)
}

func TestBaseAdapterSendsUserAgentAndHeaders(t *testing.T) {
	var userAgent, custom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		custom = r.Header.Get("X-Custom")
		_, _ = w.Write([]byte(`<rss version="2.0"><channel><title>T</title></channel></rss>`))
	}))
	defer server.Close()

	adapter := NewDefaultAdapter(AdapterConfig{Headers: map[string]string{"X-Custom": "yes"}}, NewHTTPSource())
	result := adapter.Fetch(context.Background(), server.URL)

	require.True(t, result.Success, result.Error)
	assert.Equal(t, DefaultUserAgent, userAgent)
	assert.Equal(t, "yes", custom)
	assert.Empty(t, result.Data.Items)
	assert.Equal(t, server.URL, result.Data.SiteURL)
}

func TestBaseAdapterFetchFailures(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not a feed"))
	}))
	defer garbage.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	adapter := NewDefaultAdapter(AdapterConfig{Timeout: 100 * time.Millisecond}, NewHTTPSource())

	t.Run("http status", func(t *testing.T) {
		result := adapter.Fetch(context.Background(), notFound.URL)
		assert.False(t, result.Success)
		assert.Nil(t, result.Data)
		assert.Equal(t, http.StatusNotFound, result.StatusCode)
		assert.Equal(t, "HTTP error: 404 Not Found", result.Error)
	})

	t.Run("malformed document", func(t *testing.T) {
		result := adapter.Fetch(context.Background(), garbage.URL)
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Error)
		assert.Zero(t, result.StatusCode)
	})

	t.Run("timeout", func(t *testing.T) {
		result := adapter.Fetch(context.Background(), slow.URL)
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Error)
	})

	t.Run("oversized body", func(t *testing.T) {
		server := serveFixture(t, "example.rss")
		capped := NewDefaultAdapter(AdapterConfig{}, NewHTTPSource(WithMaxBodySize(64)))
		result := capped.Fetch(context.Background(), server.URL)
		assert.False(t, result.Success)
		assert.Equal(t, "feed exceeds 64 bytes", result.Error)

		result = NewDefaultAdapter(AdapterConfig{}, NewHTTPSource()).Fetch(context.Background(), server.URL)
		assert.True(t, result.Success)
	})

	t.Run("source error", func(t *testing.T) {
		failing := NewDefaultAdapter(AdapterConfig{}, sourceFunc(func(context.Context, string, FetchOptions) (*gofeed.Feed, error) {
			return nil, errors.New("connection refused")
		}))
		result := failing.Fetch(context.Background(), "https://example.com/feed")
		assert.False(t, result.Success)
		assert.Equal(t, "connection refused", result.Error)
	})
}

func TestSyntheticGUIDChangesBetweenFetches(t *testing.T) {
	adapter := NewDefaultAdapter(AdapterConfig{}, fixtureSource(t, "example.rss"))
	clock := time.UnixMilli(1_700_000_000_000)
	adapter.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}

	first := adapter.Fetch(context.Background(), "https://example.com/feed.xml")
	second := adapter.Fetch(context.Background(), "https://example.com/feed.xml")

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Equal(t, "https://example.com/feed.xml-1700000000001", first.Data.Items[2].GUID)
	assert.Equal(t, "https://example.com/feed.xml-1700000000002", second.Data.Items[2].GUID)
	assert.Equal(t, first.Data.Items[0].GUID, second.Data.Items[0].GUID)
}

func TestIsSyntheticGUID(t *testing.T) {
	adapter := NewDefaultAdapter(AdapterConfig{}, fixtureSource(t, "example.rss"))
	adapter.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	result := adapter.Fetch(context.Background(), "https://example.com/feed.xml")
	require.True(t, result.Success)

	assert.False(t, IsSyntheticGUID(result.Data.Items[0], "https://example.com/feed.xml"))
	assert.True(t, IsSyntheticGUID(result.Data.Items[2], "https://example.com/feed.xml"))
	assert.False(t, IsSyntheticGUID(result.Data.Items[2], "https://other.example.com/feed.xml"))
	assert.False(t, IsSyntheticGUID(ParsedItem{GUID: "https://example.com/feed.xml-draft"}, "https://example.com/feed.xml"))
	assert.False(t, IsSyntheticGUID(ParsedItem{GUID: "https://example.com/feed.xml-1"}, ""))
}

func TestCustomRules(t *testing.T) {
	source := sourceFunc(func(context.Context, string, FetchOptions) (*gofeed.Feed, error) {
		return &gofeed.Feed{Items: []*gofeed.Item{{
			GUID:    "1",
			Content: `<div><span class="score">42</span><a class="more" href="/read">more</a></div>`,
		}}}, nil
	})

	adapter := NewDefaultAdapter(AdapterConfig{CustomRules: []CustomRule{
		{Name: "score", Selector: ".score"},
		{Name: "more", Selector: "a.more", Attribute: "href", Transform: func(s string) string { return "https://example.com" + s }},
		{Name: "missing", Selector: ".nothing"},
	}}, source)

	result := adapter.Fetch(context.Background(), "https://example.com/feed")

	require.True(t, result.Success)
	extra := result.Data.Items[0].Extra
	assert.Equal(t, "42", extra["score"])
	assert.Equal(t, "https://example.com/read", extra["more"])
	assert.NotContains(t, extra, "missing")
}

func TestApplyRulesInitializesExtra(t *testing.T) {
	item := ParsedItem{GUID: "1", Content: `<p class="lead">Lead paragraph</p>`}

	ApplyRules(&item, []CustomRule{{Name: "lead", Selector: "p.lead"}, {Selector: "p"}})

	assert.Equal(t, map[string]any{"lead": "Lead paragraph"}, item.Extra)

	empty := ParsedItem{GUID: "2"}
	ApplyRules(&empty, []CustomRule{{Name: "lead", Selector: "p.lead"}})
	assert.Nil(t, empty.Extra)
}

func TestFeedImageFallbacks(t *testing.T) {
	assert.Equal(t, "", feedImage(&gofeed.Feed{}))
	assert.Equal(t, "raw.png", feedImage(&gofeed.Feed{Custom: map[string]string{"image": "raw.png"}}))
	assert.Equal(t, "itunes.png", feedImage(&gofeed.Feed{ITunesExt: &ext.ITunesFeedExtension{Image: "itunes.png"}}))
	assert.Equal(t, "url.png", feedImage(&gofeed.Feed{
		Image:  &gofeed.Image{URL: "url.png"},
		Custom: map[string]string{"image": "raw.png"},
	}))
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, MediaVideo, mediaType("video/mp4"))
	assert.Equal(t, MediaAudio, mediaType("AUDIO"))
	assert.Equal(t, MediaImage, mediaType("image/png"))
	assert.Equal(t, MediaImage, mediaType(""))
}

func TestMergeConfig(t *testing.T) {
	defaults := AdapterConfig{UserAgent: "adapter", Headers: map[string]string{"A": "default", "B": "default"}}
	caller := AdapterConfig{Timeout: 5 * time.Second, Headers: map[string]string{"B": "caller"}}

	merged := MergeConfig(defaults, caller)

	assert.Equal(t, 5*time.Second, merged.Timeout)
	assert.Equal(t, "adapter", merged.UserAgent)
	assert.Equal(t, map[string]string{"A": "default", "B": "caller"}, merged.Headers)

	merged = MergeConfig(defaults, AdapterConfig{UserAgent: "caller"})
	assert.Equal(t, DefaultTimeout, merged.Timeout)
	assert.Equal(t, "caller", merged.UserAgent)
}
