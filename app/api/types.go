package api

import (
	"context"

	"github.com/lysyi3m/rss-intake/app/database"
	"github.com/lysyi3m/rss-intake/app/feed"
	"github.com/lysyi3m/rss-intake/app/rss"
	"github.com/lysyi3m/rss-intake/app/tasks"
)

type GeneratorInterface interface {
	Run(feed database.Feed, items []database.Item) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

// FeedInspector answers ad-hoc questions about arbitrary feed URLs.
type FeedInspector interface {
	Fetch(ctx context.Context, url string) rss.Result
	Validate(ctx context.Context, url string) rss.Validation
	Discover(ctx context.Context, siteURL string) []string
	Adapter(url string) rss.Adapter
	Adapters() []string
}

var _ FeedInspector = (*rss.Manager)(nil)

type Handler struct {
	feedRepo    database.FeedRepository
	itemRepo    database.ItemRepository
	generator   GeneratorInterface
	configCache *feed.ConfigCache
	filterer    *feed.Filterer
	inspector   FeedInspector
	scheduler   tasks.TaskSchedulerInterface
}

type feedURLRequest struct {
	URL string `json:"url" binding:"required,url"`
}
