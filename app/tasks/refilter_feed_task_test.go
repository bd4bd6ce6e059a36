package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/lysyi3m/rss-intake/app/database"
	"github.com/lysyi3m/rss-intake/app/feed"
)

func TestRefilterFeedTask(t *testing.T) {
	feedRepo, itemRepo := setupRepos(t)
	if err := feedRepo.UpsertFeed("example", "https://example.com/feed.xml"); err != nil {
		t.Fatal(err)
	}

	for _, item := range []database.FeedItem{
		{GUID: "1", Title: "Go release", PublishedAt: time.Now(), ContentHash: "1"},
		{GUID: "2", Title: "Rust release", PublishedAt: time.Now(), ContentHash: "2", IsFiltered: true, FilterReason: "old rule"},
	} {
		if err := itemRepo.UpsertItem("example", item); err != nil {
			t.Fatal(err)
		}
	}

	feedConfig := &feed.Config{Name: "example", Filters: []feed.ConfigFilter{{Field: "title", Excludes: []string{"go"}}}}
	task := NewRefilterFeedTask("example", feedConfig, feed.NewFilterer(), itemRepo)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	items, err := itemRepo.GetAllItems("example")
	if err != nil {
		t.Fatal(err)
	}
	for _, item := range items {
		switch item.GUID {
		case "1":
			if !item.IsFiltered || item.FilterReason != "Excluded by title filter: contains 'go'" {
				t.Errorf("Expected item 1 to be filtered, got %v '%s'", item.IsFiltered, item.FilterReason)
			}
		case "2":
			if item.IsFiltered || item.FilterReason != "" {
				t.Errorf("Expected item 2 to be visible, got %v '%s'", item.IsFiltered, item.FilterReason)
			}
		}
	}
}
