package tasks

import (
	"context"

	"github.com/lysyi3m/rss-intake/app/feed"
	"github.com/lysyi3m/rss-intake/app/rss"
)

// TaskSchedulerInterface is the part of the scheduler the API depends on.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	NewProcessTask(feedConfig *feed.Config) *ProcessFeedTask
}

// FeedFetcher retrieves feeds through the adapter registry.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) rss.Result
	FetchMany(ctx context.Context, urls []string, concurrency int) map[string]rss.Result
	Adapter(url string) rss.Adapter
}

var _ FeedFetcher = (*rss.Manager)(nil)
