package rss

import (
	"context"
	"time"
)

type Adapter interface {
	Name() string
	CanHandle(url string) bool
	Fetch(ctx context.Context, url string) Result
}

type ParsedFeed struct {
	Title         string       `json:"title,omitempty"`
	Description   string       `json:"description,omitempty"`
	SiteURL       string       `json:"siteUrl,omitempty"`
	Image         string       `json:"image,omitempty"`
	Language      string       `json:"language,omitempty"`
	LastBuildDate *time.Time   `json:"lastBuildDate,omitempty"`
	TTL           *int         `json:"ttl,omitempty"` // minutes
	Items         []ParsedItem `json:"items"`
}

type ParsedItem struct {
	GUID             string           `json:"guid"`
	Title            string           `json:"title,omitempty"`
	URL              string           `json:"url,omitempty"`
	Description      string           `json:"description,omitempty"`
	Content          string           `json:"content,omitempty"`
	Author           string           `json:"author,omitempty"`
	AuthorURL        string           `json:"authorUrl,omitempty"`
	AuthorAvatar     string           `json:"authorAvatar,omitempty"`
	PublishedAt      *time.Time       `json:"publishedAt,omitempty"`
	Categories       []string         `json:"categories"`
	Media            []MediaItem      `json:"media"`
	Attachments      []Attachment     `json:"attachments"`
	FormattedContent FormattedContent `json:"formattedContent"`
	Extra            map[string]any   `json:"extra"`
}

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

type MediaItem struct {
	URL      string    `json:"url"`
	Type     MediaType `json:"type"`
	Width    *int      `json:"width,omitempty"`
	Height   *int      `json:"height,omitempty"`
	Duration *int      `json:"duration,omitempty"` // seconds
	Blurhash string    `json:"blurhash,omitempty"`
}

// Attachment is an enclosure attached to an item (podcast audio, PDF, ...).
type Attachment struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     *int64 `json:"size,omitempty"`
}

type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

type Link struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// FormattedContent is the display-ready form of an item body. Images and links
// are found by pattern matching over the raw HTML, not by a DOM parse.
type FormattedContent struct {
	HTML     string         `json:"html,omitempty"`
	Text     string         `json:"text,omitempty"`
	Markdown string         `json:"markdown,omitempty"`
	Images   []Image        `json:"images"`
	Links    []Link         `json:"links"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Result is the outcome of a fetch. Data is set iff Success; Error is set iff not.
type Result struct {
	Success    bool        `json:"success"`
	Data       *ParsedFeed `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	StatusCode int         `json:"statusCode,omitempty"`
}

type Validation struct {
	Valid bool   `json:"valid"`
	Title string `json:"title,omitempty"`
	Error string `json:"error,omitempty"`
}
