package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/rss-intake/app/database"
	"github.com/lysyi3m/rss-intake/app/feed"
)

// RefilterFeedTask re-evaluates stored items against the current filters
// and updates only the items whose status changed.
type RefilterFeedTask struct {
	Task
	FeedConfig *feed.Config
	filterer   *feed.Filterer
	itemRepo   database.ItemRepository
}

func NewRefilterFeedTask(feedName string, feedConfig *feed.Config, filterer *feed.Filterer, itemRepo database.ItemRepository) *RefilterFeedTask {
	return &RefilterFeedTask{
		Task:       NewTask(TaskTypeRefilterFeed, feedName),
		FeedConfig: feedConfig,
		filterer:   filterer,
		itemRepo:   itemRepo,
	}
}

func (t *RefilterFeedTask) Execute(ctx context.Context) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	items, err := t.itemRepo.GetAllItems(t.FeedName)
	if err != nil {
		return fmt.Errorf("failed to get feed items: %w", err)
	}

	feedItems := make([]feed.Item, len(items))
	for i, item := range items {
		feedItems[i] = feed.Item{
			GUID:        item.GUID,
			Title:       item.Title,
			Link:        item.Link,
			Description: item.Description,
			Content:     item.Content,
			PublishedAt: item.PublishedAt,
			Author:      item.Author,
			Categories:  item.Categories,
			ContentHash: item.ContentHash,
		}
	}

	filteredItems := t.filterer.Run(feedItems, t.FeedConfig)

	updatedCount := 0
	errorCount := 0

	for i, filteredItem := range filteredItems {
		original := items[i]
		if original.IsFiltered == filteredItem.IsFiltered && original.FilterReason == filteredItem.FilterReason {
			continue
		}

		if err := t.itemRepo.UpdateItemFilterStatus(original.ID, filteredItem.IsFiltered, filteredItem.FilterReason); err != nil {
			slog.Error("Failed to update item filter status", "item_id", original.ID, "error", err)
			errorCount++
			continue
		}
		updatedCount++
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"updated", updatedCount,
		"errors", errorCount)

	return nil
}
