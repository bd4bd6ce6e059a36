package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lysyi3m/rss-intake/app/database"
	"github.com/lysyi3m/rss-intake/app/feed"
)

// maxArticleSize caps how much of a linked page is read for extraction.
const maxArticleSize = 10 << 20

// ExtractContentTask replaces item bodies with the readable article found at
// each item's link.
type ExtractContentTask struct {
	Task
	FeedConfig       *feed.Config
	httpClient       *http.Client
	contentExtractor *feed.ContentExtractor
	itemRepo         database.ItemRepository
	userAgent        string
	timeout          time.Duration
}

func NewExtractContentTask(feedName string, feedConfig *feed.Config, httpClient *http.Client, contentExtractor *feed.ContentExtractor, itemRepo database.ItemRepository, userAgent string, timeout time.Duration) *ExtractContentTask {
	return &ExtractContentTask{
		Task:             NewTask(TaskTypeExtractContent, feedName),
		FeedConfig:       feedConfig,
		httpClient:       httpClient,
		contentExtractor: contentExtractor,
		itemRepo:         itemRepo,
		userAgent:        userAgent,
		timeout:          timeout,
	}
}

func (t *ExtractContentTask) Execute(ctx context.Context) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	if !t.FeedConfig.Settings.ExtractContent {
		slog.Debug("Content extraction disabled for feed", "feed", t.FeedName)
		return nil
	}

	items, err := t.itemRepo.GetItemsForExtraction(t.FeedName, t.FeedConfig.Settings.MaxItems)
	if err != nil {
		return fmt.Errorf("failed to get items for content extraction: %w", err)
	}

	if len(items) == 0 {
		slog.Debug("No items need content extraction", "feed", t.FeedName)
		return nil
	}

	successCount := 0
	errorCount := 0

	for _, item := range items {
		if err := checkContext(ctx); err != nil {
			return err
		}

		if err := t.extractContentForItem(ctx, item); err != nil {
			slog.Error("Failed to extract content for item", "item_id", item.ID, "url", item.Link, "error", err)
			errorCount++

			now := time.Now().UTC()
			if err := t.itemRepo.UpdateExtractionStatus(item.ID, "failed", &now, err.Error()); err != nil {
				slog.Error("Failed to update content extraction status", "item_id", item.ID, "error", err)
			}
			continue
		}
		successCount++
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedName,
		"duration", t.GetDuration(),
		"success", successCount,
		"errors", errorCount)

	return nil
}

func (t *ExtractContentTask) extractContentForItem(ctx context.Context, item database.ItemForExtraction) error {
	pageURL, err := url.Parse(item.Link)
	if err != nil {
		return fmt.Errorf("invalid item link: %w", err)
	}

	data, err := t.fetchArticleContent(ctx, pageURL.String())
	if err != nil {
		return fmt.Errorf("failed to fetch article content: %w", err)
	}

	extractedContent, err := t.contentExtractor.Run(data, pageURL)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := t.itemRepo.UpdateExtractedContentAndStatus(item.ID, extractedContent, "success", &now, ""); err != nil {
		return fmt.Errorf("failed to update extracted content and status: %w", err)
	}

	slog.Debug("Content extracted successfully", "item_id", item.ID, "url", item.Link, "content_length", len(extractedContent))
	return nil
}

func (t *ExtractContentTask) fetchArticleContent(ctx context.Context, url string) ([]byte, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, fmt.Errorf("content type is not HTML: %s", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArticleSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
