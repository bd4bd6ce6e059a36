package feed

import (
	"testing"
	"time"

	"github.com/lysyi3m/rss-intake/app/rss"
)

func TestParserRun(t *testing.T) {
	published := time.Date(2026, 1, 22, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	buildDate := time.Date(2026, 1, 22, 10, 0, 0, 0, time.UTC)
	ttl := 60

	parsed := &rss.ParsedFeed{
		Title:         "Example Feed",
		Description:   "Example description",
		SiteURL:       "https://example.com",
		Image:         "https://example.com/logo.png",
		Language:      "en-us",
		LastBuildDate: &buildDate,
		TTL:           &ttl,
		Items: []rss.ParsedItem{
			{
				GUID:        "https://example.com/post-1",
				Title:       "Post 1",
				URL:         "https://example.com/post-1",
				Description: "Short",
				Content:     `<p>Body</p><span class="score">42</span>`,
				Author:      "Jane",
				PublishedAt: &published,
				Categories:  []string{"news"},
				Extra:       map[string]any{"comments": "3"},
			},
			{
				GUID:  "post-2",
				Title: "Post 2",
			},
		},
	}

	processedAt := time.Date(2026, 1, 23, 0, 0, 0, 0, time.UTC)
	parser := NewParser()
	parser.now = func() time.Time { return processedAt }

	feedConfig := &Config{Rules: []rss.CustomRule{{Name: "score", Selector: ".score"}}}
	metadata, items := parser.Run(parsed, "DefaultAdapter", feedConfig)

	if metadata.Title != "Example Feed" || metadata.Link != "https://example.com" {
		t.Errorf("Unexpected metadata %+v", metadata)
	}
	if metadata.ImageURL != "https://example.com/logo.png" {
		t.Errorf("Expected image URL, got '%s'", metadata.ImageURL)
	}
	if metadata.TTL == nil || *metadata.TTL != 60 {
		t.Errorf("Expected TTL 60, got %v", metadata.TTL)
	}
	if metadata.Adapter != "DefaultAdapter" {
		t.Errorf("Expected adapter DefaultAdapter, got '%s'", metadata.Adapter)
	}
	if metadata.FeedPublishedAt == nil || !metadata.FeedPublishedAt.Equal(buildDate) {
		t.Errorf("Expected feed published at %v, got %v", buildDate, metadata.FeedPublishedAt)
	}

	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.Link != "https://example.com/post-1" {
		t.Errorf("Expected link from item URL, got '%s'", first.Link)
	}
	if !first.PublishedAt.Equal(published) || first.PublishedAt.Location() != time.UTC {
		t.Errorf("Expected UTC published time %v, got %v", published.UTC(), first.PublishedAt)
	}
	if first.Extra["score"] != "42" || first.Extra["comments"] != "3" {
		t.Errorf("Expected rule result merged into extra, got %v", first.Extra)
	}
	if _, leaked := parsed.Items[0].Extra["score"]; leaked {
		t.Error("Rules must not modify the adapter result")
	}
	if first.ContentHash == "" {
		t.Error("Expected content hash to be set")
	}

	if !items[1].PublishedAt.Equal(processedAt) {
		t.Errorf("Expected fallback published time %v, got %v", processedAt, items[1].PublishedAt)
	}
}

func TestParserRunWithoutConfig(t *testing.T) {
	_, items := NewParser().Run(&rss.ParsedFeed{Items: []rss.ParsedItem{{GUID: "1"}}}, "GitHubAdapter", nil)
	if len(items) != 1 || items[0].GUID != "1" {
		t.Errorf("Unexpected items %+v", items)
	}
}

func TestParserRunStabilizesFetchTimeGUIDs(t *testing.T) {
	feedConfig := &Config{Name: "notes", URL: "https://example.com/feed"}
	fetchTimeGUID := "https://example.com/feed-1792220234453"

	run := func(stamp string) []Item {
		_, items := NewParser().Run(&rss.ParsedFeed{Items: []rss.ParsedItem{
			{GUID: "https://example.com/feed-" + stamp, Title: "First note"},
			{GUID: "https://example.com/feed-" + stamp, Title: "Second note"},
			{GUID: "https://example.com/feed-" + stamp, Title: "Second note"},
			{GUID: "kept", Title: "Has id"},
		}}, "DefaultAdapter", feedConfig)
		return items
	}

	items := run("1792220234453")
	seen := map[string]bool{}
	for _, item := range items {
		if item.GUID == fetchTimeGUID {
			t.Errorf("Expected fetch-time GUID to be replaced for '%s'", item.Title)
		}
		if seen[item.GUID] {
			t.Errorf("Expected unique GUIDs, '%s' repeats", item.GUID)
		}
		seen[item.GUID] = true
	}
	if items[3].GUID != "kept" {
		t.Errorf("Expected source GUID to be kept, got '%s'", items[3].GUID)
	}
	if items[2].GUID != items[1].GUID+"-2" {
		t.Errorf("Expected counter suffix for identical entry, got '%s' and '%s'", items[1].GUID, items[2].GUID)
	}

	later := run("1792220299999")
	for i := range items {
		if items[i].GUID != later[i].GUID {
			t.Errorf("Expected GUID to be stable across fetches, got '%s' and '%s'", items[i].GUID, later[i].GUID)
		}
	}
}

func TestContentHashGeneration(t *testing.T) {
	a := generateContentHash(Item{GUID: "1", Title: "Same", Link: "https://example.com/a"})
	b := generateContentHash(Item{GUID: "2", Title: "Same", Link: "https://example.com/a"})
	c := generateContentHash(Item{GUID: "1", Title: "Other", Link: "https://example.com/a"})

	if a != b {
		t.Error("Items with the same title and link should share a hash")
	}
	if a == c {
		t.Error("Items with different titles should not share a hash")
	}
	if len(a) != 64 {
		t.Errorf("Expected hex sha256 of length 64, got %d", len(a))
	}
}
