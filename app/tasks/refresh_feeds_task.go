package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/rss-intake/app/database"
	"github.com/lysyi3m/rss-intake/app/feed"
)

// RefreshFeedsTask fetches every due feed in one bounded batch and stores the
// results. A failed fetch is recorded on its feed and does not fail the task.
type RefreshFeedsTask struct {
	Task
	configCache *feed.ConfigCache
	fetcher     FeedFetcher
	concurrency int
	feedRepo    database.FeedRepository
	store       *feedStore
}

func NewRefreshFeedsTask(configCache *feed.ConfigCache, fetcher FeedFetcher, concurrency int, parser *feed.Parser, filterer *feed.Filterer, feedRepo database.FeedRepository, itemRepo database.ItemRepository) *RefreshFeedsTask {
	return &RefreshFeedsTask{
		Task:        NewTask(TaskTypeRefreshFeeds, ""),
		configCache: configCache,
		fetcher:     fetcher,
		concurrency: concurrency,
		feedRepo:    feedRepo,
		store:       newFeedStore(parser, filterer, feedRepo, itemRepo),
	}
}

func (t *RefreshFeedsTask) Execute(ctx context.Context) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	due, err := t.dueConfigs()
	if err != nil {
		return err
	}
	if len(due) == 0 {
		slog.Debug("No feeds due for refresh")
		return nil
	}

	urls := make([]string, 0, len(due))
	for _, feedConfig := range due {
		urls = append(urls, feedConfig.URL)
	}

	results := t.fetcher.FetchMany(ctx, urls, t.concurrency)

	var errs []error
	var fetched, failed int
	for _, feedConfig := range due {
		result, ok := results[feedConfig.URL]
		if !ok {
			continue
		}

		adapter := t.fetcher.Adapter(feedConfig.URL).Name()
		stats, err := t.store.store(feedConfig, adapter, result)
		switch {
		case errors.Is(err, ErrFetchFailed):
			failed++
			slog.Warn("Feed refresh failed", "feed", feedConfig.Name, "adapter", adapter, "error", result.Error, "status_code", result.StatusCode)
		case err != nil:
			errs = append(errs, fmt.Errorf("feed %s: %w", feedConfig.Name, err))
		default:
			fetched++
			slog.Debug("Feed refreshed", "feed", feedConfig.Name, "adapter", adapter, "total", stats.Total, "new", stats.New, "duplicates", stats.Duplicates, "filtered", stats.Filtered)
		}
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"duration", t.GetDuration(),
		"due", len(due),
		"fetched", fetched,
		"failed", failed,
		"errors", len(errs))

	return errors.Join(errs...)
}

// dueConfigs returns enabled subscriptions whose next fetch time has passed.
// Feeds missing from the database are registered and treated as due.
func (t *RefreshFeedsTask) dueConfigs() ([]*feed.Config, error) {
	now := time.Now().UTC()

	var due []*feed.Config
	for _, feedConfig := range t.configCache.GetEnabledConfigs() {
		dbFeed, err := t.feedRepo.GetFeed(feedConfig.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to get feed %s: %w", feedConfig.Name, err)
		}

		if dbFeed == nil {
			if err := t.feedRepo.UpsertFeed(feedConfig.Name, feedConfig.URL); err != nil {
				return nil, fmt.Errorf("failed to register feed %s: %w", feedConfig.Name, err)
			}
		} else if dbFeed.NextFetchAt != nil && dbFeed.NextFetchAt.After(now) {
			slog.Debug("Feed not due for refresh yet", "feed", feedConfig.Name, "next_fetch_at", dbFeed.NextFetchAt)
			continue
		}

		due = append(due, feedConfig)
	}

	return due, nil
}
