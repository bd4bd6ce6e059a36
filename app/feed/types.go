package feed

import (
	"time"

	"github.com/lysyi3m/rss-intake/app/rss"
)

// Feed processing types

type Metadata struct {
	Title           string
	Link            string
	Description     string
	ImageURL        string
	Language        string
	TTL             *int // minutes
	Adapter         string
	FeedPublishedAt *time.Time
}

type Item struct {
	GUID         string
	Title        string
	Link         string
	Description  string
	Content      string
	PublishedAt  time.Time // NOT NULL in storage, fetch time when the feed has none
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

// Configuration types

type Config struct {
	Name     string           // Derived from filename (without .yml extension)
	URL      string           `yaml:"url"`
	Settings ConfigSettings   `yaml:"settings"`
	Filters  []ConfigFilter   `yaml:"filters"`
	Rules    []rss.CustomRule `yaml:"rules"`
}

type ConfigSettings struct {
	Enabled         bool `yaml:"enabled"`
	RefreshInterval int  `yaml:"refresh_interval"` // seconds
	MaxItems        int  `yaml:"max_items"`
	ExtractContent  bool `yaml:"extract_content"` // enable content extraction
}

type ConfigFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}
