package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lysyi3m/rss-intake/app/rss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	version, dirty, err := RunMigrations(db)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	return db
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := RunMigrations(db)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

func TestFeedRepository(t *testing.T) {
	repo := NewFeedRepository(setupTestDB(t))

	feed, err := repo.GetFeed("missing")
	require.NoError(t, err)
	assert.Nil(t, feed)

	require.NoError(t, repo.UpsertFeed("example", "https://example.com/feed.xml"))
	require.NoError(t, repo.UpsertFeed("example", "https://example.com/feed.xml"))

	count, err := repo.GetFeedCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	ttl := 90
	published := time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC)
	nextFetch := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateFeedMetadata("example", FeedMetadata{
		Title:           "Example",
		Link:            "https://example.com",
		Description:     "An example",
		ImageURL:        "https://example.com/logo.png",
		Language:        "en-us",
		TTL:             &ttl,
		Adapter:         "DefaultAdapter",
		FeedPublishedAt: &published,
	}, nextFetch))

	feed, err = repo.GetFeed("example")
	require.NoError(t, err)
	require.NotNil(t, feed)
	assert.NotEmpty(t, feed.ID)
	assert.Equal(t, "Example", feed.Title)
	assert.Equal(t, "en-US", feed.Language)
	require.NotNil(t, feed.TTL)
	assert.Equal(t, 90, *feed.TTL)
	assert.Equal(t, "DefaultAdapter", feed.Adapter)
	require.NotNil(t, feed.NextFetchAt)
	assert.True(t, feed.NextFetchAt.Equal(nextFetch))
	require.NotNil(t, feed.FeedPublishedAt)
	assert.True(t, feed.FeedPublishedAt.Equal(published))
	assert.NotNil(t, feed.LastFetchedAt)

	require.NoError(t, repo.UpdateFeedError("example", "HTTP error: 500 Internal Server Error", nextFetch))
	feed, err = repo.GetFeed("example")
	require.NoError(t, err)
	assert.Equal(t, "HTTP error: 500 Internal Server Error", feed.LastError)
	assert.Equal(t, "Example", feed.Title)

	require.NoError(t, repo.UpsertFeed("example", "https://example.com/other.xml"))
	feed, err = repo.GetFeed("example")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/other.xml", feed.FeedURL)
	assert.Nil(t, feed.NextFetchAt)

	feeds, err := repo.GetFeeds()
	require.NoError(t, err)
	assert.Len(t, feeds, 1)
}

func TestItemRepository(t *testing.T) {
	db := setupTestDB(t)
	feedRepo := NewFeedRepository(db)
	itemRepo := NewItemRepository(db)
	require.NoError(t, feedRepo.UpsertFeed("example", "https://example.com/feed.xml"))

	size := int64(1234)
	width := 640
	first := FeedItem{
		GUID:        "https://example.com/post-1",
		Title:       "Post 1",
		Link:        "https://example.com/post-1",
		Description: "First",
		Content:     "<p>First</p>",
		PublishedAt: time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC),
		Author:      "Jane",
		Categories:  []string{"news", "go"},
		Media:       []rss.MediaItem{{URL: "https://example.com/v.mp4", Type: rss.MediaVideo, Width: &width}},
		Attachments: []rss.Attachment{{URL: "https://example.com/ep.mp3", MimeType: "audio/mpeg", Size: &size}},
		Extra:       map[string]any{"version": "2.3.1"},
		ContentHash: "hash-1",
	}
	second := FeedItem{
		GUID:         "https://example.com/post-2",
		Title:        "Post 2",
		Link:         "https://example.com/post-2",
		PublishedAt:  time.Date(2026, 1, 23, 0, 0, 0, 0, time.UTC),
		ContentHash:  "hash-2",
		IsFiltered:   true,
		FilterReason: "Excluded by title filter: contains 'Post 2'",
	}

	require.NoError(t, itemRepo.UpsertItem("example", first))
	require.NoError(t, itemRepo.UpsertItem("example", second))
	require.Error(t, itemRepo.UpsertItem("missing", first))

	first.Title = "Post 1 (updated)"
	require.NoError(t, itemRepo.UpsertItem("example", first))

	total, visible, filtered, err := itemRepo.GetItemStats("example")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1}, []int{total, visible, filtered})

	items, err := itemRepo.GetVisibleItems("example", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, "Post 1 (updated)", item.Title)
	assert.Equal(t, []string{"news", "go"}, item.Categories)
	require.Len(t, item.Media, 1)
	assert.Equal(t, rss.MediaVideo, item.Media[0].Type)
	require.NotNil(t, item.Enclosure())
	assert.Equal(t, int64(1234), *item.Enclosure().Size)
	assert.Equal(t, "2.3.1", item.Extra["version"])
	assert.True(t, item.PublishedAt.Equal(first.PublishedAt))
	assert.Equal(t, "pending", item.ContentExtractionStatus)

	all, err := itemRepo.GetAllItems("example")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "https://example.com/post-2", all[0].GUID)
	assert.Nil(t, all[0].Enclosure())

	isDuplicate, _, err := itemRepo.CheckDuplicate("example", first.GUID, "hash-1")
	require.NoError(t, err)
	assert.False(t, isDuplicate)

	isDuplicate, duplicateID, err := itemRepo.CheckDuplicate("example", "https://example.com/mirror", "hash-1")
	require.NoError(t, err)
	assert.True(t, isDuplicate)
	assert.Equal(t, item.ID, *duplicateID)

	require.NoError(t, itemRepo.UpdateItemFilterStatus(all[0].ID, false, ""))
	count, err := itemRepo.GetItemCount("example")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	visibleItems, err := itemRepo.GetVisibleItems("example", 1)
	require.NoError(t, err)
	require.Len(t, visibleItems, 1)
	assert.Equal(t, "https://example.com/post-2", visibleItems[0].GUID)
}

func TestItemExtractionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	feedRepo := NewFeedRepository(db)
	itemRepo := NewItemRepository(db)
	require.NoError(t, feedRepo.UpsertFeed("example", "https://example.com/feed.xml"))

	require.NoError(t, itemRepo.UpsertItem("example", FeedItem{
		GUID: "a", Link: "https://example.com/a", Content: "summary", PublishedAt: time.Now(), ContentHash: "a",
	}))
	require.NoError(t, itemRepo.UpsertItem("example", FeedItem{
		GUID: "b", Link: "https://example.com/b", PublishedAt: time.Now(), ContentHash: "b",
	}))
	require.NoError(t, itemRepo.UpsertItem("example", FeedItem{
		GUID: "no-link", PublishedAt: time.Now(), ContentHash: "c",
	}))

	pending, err := itemRepo.GetItemsForExtraction("example", 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	byLink := map[string]string{}
	for _, item := range pending {
		byLink[item.Link] = item.ID
	}

	now := time.Now()
	require.NoError(t, itemRepo.UpdateExtractedContentAndStatus(byLink["https://example.com/a"], "<p>full article</p>", "success", &now, ""))
	for range MaxExtractionAttempts {
		require.NoError(t, itemRepo.UpdateExtractionStatus(byLink["https://example.com/b"], "failed", &now, "timeout"))
	}

	pending, err = itemRepo.GetItemsForExtraction("example", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// a feed refresh must not overwrite extracted content
	require.NoError(t, itemRepo.UpsertItem("example", FeedItem{
		GUID: "a", Link: "https://example.com/a", Content: "summary again", PublishedAt: time.Now(), ContentHash: "a",
	}))
	items, err := itemRepo.GetAllItems("example")
	require.NoError(t, err)
	for _, item := range items {
		if item.GUID == "a" {
			assert.Equal(t, "<p>full article</p>", item.Content)
			assert.Equal(t, "success", item.ContentExtractionStatus)
			assert.NotNil(t, item.ContentExtractedAt)
		}
		if item.GUID == "b" {
			assert.Equal(t, "timeout", item.ContentExtractionError)
			assert.Equal(t, MaxExtractionAttempts, item.ExtractionAttempts)
		}
	}
}

func TestCanonicalLanguage(t *testing.T) {
	assert.Equal(t, "en-US", canonicalLanguage("en-us"))
	assert.Equal(t, "de", canonicalLanguage(" de "))
	assert.Equal(t, "", canonicalLanguage(""))
	assert.Equal(t, "not a language!", canonicalLanguage("not a language!"))
}
