package tasks

import (
	"errors"
	"fmt"
	"time"

	"github.com/lysyi3m/rss-intake/app/database"
	"github.com/lysyi3m/rss-intake/app/feed"
	"github.com/lysyi3m/rss-intake/app/rss"
)

// ErrFetchFailed marks a fetch that was recorded on the feed as its last error.
var ErrFetchFailed = errors.New("failed to fetch feed")

type storeStats struct {
	Total      int
	Duplicates int
	Filtered   int
	New        int
}

// feedStore persists one fetch outcome for a subscription: metadata and
// schedule on the feed row, filtered and deduplicated items on the items table.
type feedStore struct {
	parser   *feed.Parser
	filterer *feed.Filterer
	feedRepo database.FeedRepository
	itemRepo database.ItemRepository
	now      func() time.Time
}

func newFeedStore(parser *feed.Parser, filterer *feed.Filterer, feedRepo database.FeedRepository, itemRepo database.ItemRepository) *feedStore {
	return &feedStore{
		parser:   parser,
		filterer: filterer,
		feedRepo: feedRepo,
		itemRepo: itemRepo,
		now:      time.Now,
	}
}

func (s *feedStore) store(feedConfig *feed.Config, adapter string, result rss.Result) (storeStats, error) {
	var stats storeStats

	if !result.Success || result.Data == nil {
		nextFetch := s.nextFetch(feedConfig, nil)
		if err := s.feedRepo.UpdateFeedError(feedConfig.Name, result.Error, nextFetch); err != nil {
			return stats, fmt.Errorf("failed to record fetch error: %w", err)
		}
		return stats, fmt.Errorf("%w: %s", ErrFetchFailed, result.Error)
	}

	metadata, items := s.parser.Run(result.Data, adapter, feedConfig)
	stats.Total = len(items)

	fresh := make([]feed.Item, 0, len(items))
	for _, item := range items {
		isDuplicate, _, err := s.itemRepo.CheckDuplicate(feedConfig.Name, item.GUID, item.ContentHash)
		if err != nil {
			return stats, fmt.Errorf("failed to check for duplicates: %w", err)
		}
		if isDuplicate {
			stats.Duplicates++
			continue
		}
		fresh = append(fresh, item)
	}

	for _, item := range s.filterer.Run(fresh, feedConfig) {
		if item.IsFiltered {
			stats.Filtered++
		} else {
			stats.New++
		}
		if err := s.itemRepo.UpsertItem(feedConfig.Name, toFeedItem(item)); err != nil {
			return stats, fmt.Errorf("failed to upsert item: %w", err)
		}
	}

	err := s.feedRepo.UpdateFeedMetadata(feedConfig.Name, database.FeedMetadata{
		Title:           metadata.Title,
		Link:            metadata.Link,
		Description:     metadata.Description,
		ImageURL:        metadata.ImageURL,
		Language:        metadata.Language,
		TTL:             metadata.TTL,
		Adapter:         metadata.Adapter,
		FeedPublishedAt: metadata.FeedPublishedAt,
	}, s.nextFetch(feedConfig, metadata.TTL))
	if err != nil {
		return stats, fmt.Errorf("failed to update feed metadata and next fetch time: %w", err)
	}

	return stats, nil
}

// nextFetch honours the feed's own TTL when it asks for a longer pause than
// the configured refresh interval.
func (s *feedStore) nextFetch(feedConfig *feed.Config, ttl *int) time.Time {
	interval := time.Duration(feedConfig.Settings.RefreshInterval) * time.Second
	if ttl != nil {
		interval = max(interval, time.Duration(*ttl)*time.Minute)
	}
	return s.now().UTC().Add(interval)
}

func toFeedItem(item feed.Item) database.FeedItem {
	return database.FeedItem{
		GUID:         item.GUID,
		Title:        item.Title,
		Link:         item.Link,
		Description:  item.Description,
		Content:      item.Content,
		PublishedAt:  item.PublishedAt,
		Author:       item.Author,
		AuthorURL:    item.AuthorURL,
		AuthorAvatar: item.AuthorAvatar,
		Categories:   item.Categories,
		Media:        item.Media,
		Attachments:  item.Attachments,
		Extra:        item.Extra,
		ContentHash:  item.ContentHash,
		IsFiltered:   item.IsFiltered,
		FilterReason: item.FilterReason,
	}
}
