package database

import (
	"time"

	"github.com/lysyi3m/rss-intake/app/rss"
)

type FeedItem struct {
	GUID         string
	Title        string
	Link         string
	Description  string
	Content      string
	PublishedAt  time.Time
	Author       string
	AuthorURL    string
	AuthorAvatar string
	Categories   []string
	Media        []rss.MediaItem
	Attachments  []rss.Attachment
	Extra        map[string]any

	ContentHash  string
	IsFiltered   bool
	FilterReason string
}

type FeedMetadata struct {
	Title           string
	Link            string
	Description     string
	ImageURL        string
	Language        string
	TTL             *int
	Adapter         string
	FeedPublishedAt *time.Time
}

type FeedRepository interface {
	GetFeed(feedName string) (*Feed, error)
	GetFeeds() ([]Feed, error)
	GetFeedCount() (int, error)

	UpsertFeed(feedName, feedURL string) error
	UpdateFeedMetadata(feedName string, metadata FeedMetadata, nextFetch time.Time) error
	UpdateFeedError(feedName string, fetchErr string, nextFetch time.Time) error
}

type ItemForExtraction struct {
	ID   string
	Link string
}

type ItemRepository interface {
	GetVisibleItems(feedName string, limit int) ([]Item, error)
	GetAllItems(feedName string) ([]Item, error)
	GetItemCount(feedName string) (int, error)
	GetItemStats(feedName string) (int, int, int, error)

	UpsertItem(feedName string, item FeedItem) error
	UpdateItemFilterStatus(itemID string, isFiltered bool, reason string) error

	CheckDuplicate(feedName, guid, contentHash string) (bool, *string, error)

	GetItemsForExtraction(feedName string, limit int) ([]ItemForExtraction, error)
	UpdateExtractionStatus(itemID string, status string, extractedAt *time.Time, errorMsg string) error
	UpdateExtractedContentAndStatus(itemID string, content string, status string, extractedAt *time.Time, errorMsg string) error
}
