package database

import (
	"time"

	"github.com/lysyi3m/rss-intake/app/rss"
)

type Feed struct {
	ID              string // Database UUID
	Name            string // Configuration feed identifier derived from filename
	FeedURL         string // RSS/Atom feed URL from configuration
	Link            string // Homepage URL reported by the feed
	Title           string
	Description     string
	ImageURL        string
	Language        string // BCP 47 canonical form
	TTL             *int   // minutes
	Adapter         string // adapter that served the last fetch
	LastError       string
	LastFetchedAt   *time.Time
	NextFetchAt     *time.Time
	FeedPublishedAt *time.Time // lastBuildDate reported by the feed
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Item struct {
	ID                      string
	FeedID                  string
	GUID                    string
	Link                    string
	Title                   string
	Description             string
	Content                 string
	PublishedAt             time.Time
	Author                  string
	AuthorURL               string
	AuthorAvatar            string
	Categories              []string
	Media                   []rss.MediaItem
	Attachments             []rss.Attachment
	Extra                   map[string]any
	IsFiltered              bool
	FilterReason            string
	ContentHash             string
	CreatedAt               time.Time
	ContentExtractedAt      *time.Time
	ContentExtractionStatus string // pending, success, failed, skipped
	ContentExtractionError  string
	ExtractionAttempts      int
}

// Enclosure is the first attachment, the only one RSS 2.0 can carry.
func (i Item) Enclosure() *rss.Attachment {
	if len(i.Attachments) == 0 {
		return nil
	}
	return &i.Attachments[0]
}
