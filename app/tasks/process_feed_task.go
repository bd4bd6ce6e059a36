package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-intake/app/database"
	"github.com/lysyi3m/rss-intake/app/feed"
)

// ProcessFeedTask fetches and stores a single feed, used for startup and
// manual reloads.
type ProcessFeedTask struct {
	Task
	FeedConfig *feed.Config
	fetcher    FeedFetcher
	store      *feedStore
}

func NewProcessFeedTask(feedName string, feedConfig *feed.Config, fetcher FeedFetcher, parser *feed.Parser, filterer *feed.Filterer, feedRepo database.FeedRepository, itemRepo database.ItemRepository) *ProcessFeedTask {
	return &ProcessFeedTask{
		Task:       NewTask(TaskTypeProcessFeed, feedName),
		FeedConfig: feedConfig,
		fetcher:    fetcher,
		store:      newFeedStore(parser, filterer, feedRepo, itemRepo),
	}
}

func (t *ProcessFeedTask) Execute(ctx context.Context) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	if !t.FeedConfig.Settings.Enabled {
		slog.Debug("Feed disabled, skipping", "feed", t.FeedName)
		return nil
	}

	adapter := t.fetcher.Adapter(t.FeedConfig.URL).Name()
	result := t.fetcher.Fetch(ctx, t.FeedConfig.URL)

	stats, err := t.store.store(t.FeedConfig, adapter, result)
	if err != nil {
		return fmt.Errorf("failed to process feed %s: %w", t.FeedName, err)
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedName,
		"adapter", adapter,
		"duration", t.GetDuration(),
		"total", stats.Total,
		"duplicates", stats.Duplicates,
		"filtered", stats.Filtered,
		"new", stats.New)

	return nil
}
