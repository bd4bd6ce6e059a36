package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const MaxExtractionAttempts = 3

var _ ItemRepository = (*ItemRepo)(nil)

type ItemRepo struct {
	db *DB
}

func NewItemRepository(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

const itemColumns = `i.id, i.feed_id, i.guid, i.link, i.title, i.description, i.content, i.published_at,
	i.author, i.author_url, i.author_avatar, i.categories, i.media, i.attachments, i.extra,
	i.is_filtered, i.filter_reason, i.content_hash, i.created_at,
	i.content_extracted_at, i.content_extraction_status, i.content_extraction_error, i.extraction_attempts`

// CheckDuplicate reports whether another item of the feed (different guid) has the same content hash.
func (r *ItemRepo) CheckDuplicate(feedName, guid, contentHash string) (bool, *string, error) {
	var duplicateID string
	err := r.db.QueryRow(`
		SELECT i.id
		FROM items i
		JOIN feeds f ON f.id = i.feed_id
		WHERE f.name = ? AND i.content_hash = ? AND i.guid <> ?
		LIMIT 1
	`, feedName, contentHash, guid).Scan(&duplicateID)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("failed to check duplicate: %w", err)
	}

	return true, &duplicateID, nil
}

// UpsertItem inserts an item or refreshes it by (feed, guid). Content that was
// already replaced by a successful extraction is kept.
func (r *ItemRepo) UpsertItem(feedName string, item FeedItem) error {
	categories, err := encodeJSON(item.Categories, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode categories: %w", err)
	}
	media, err := encodeJSON(item.Media, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode media: %w", err)
	}
	attachments, err := encodeJSON(item.Attachments, "[]")
	if err != nil {
		return fmt.Errorf("failed to encode attachments: %w", err)
	}
	extra, err := encodeJSON(item.Extra, "{}")
	if err != nil {
		return fmt.Errorf("failed to encode extra: %w", err)
	}

	result, err := r.db.Exec(`
		INSERT INTO items (
			id, feed_id, guid, link, title, description, content, published_at,
			author, author_url, author_avatar, categories, media, attachments, extra,
			is_filtered, filter_reason, content_hash, created_at
		)
		SELECT ?, f.id, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		FROM feeds f
		WHERE f.name = ?
		ON CONFLICT (feed_id, guid) DO UPDATE SET
			link = excluded.link,
			title = excluded.title,
			description = excluded.description,
			content = CASE WHEN items.content_extraction_status = 'success' THEN items.content ELSE excluded.content END,
			published_at = excluded.published_at,
			author = excluded.author,
			author_url = excluded.author_url,
			author_avatar = excluded.author_avatar,
			categories = excluded.categories,
			media = excluded.media,
			attachments = excluded.attachments,
			extra = excluded.extra,
			is_filtered = excluded.is_filtered,
			filter_reason = excluded.filter_reason,
			content_hash = excluded.content_hash
	`, uuid.NewString(), item.GUID, item.Link, item.Title, item.Description, item.Content, item.PublishedAt.UTC(),
		item.Author, item.AuthorURL, item.AuthorAvatar, categories, media, attachments, extra,
		item.IsFiltered, item.FilterReason, item.ContentHash, time.Now().UTC(), feedName)
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("failed to upsert item: feed '%s' not found", feedName)
	}

	return nil
}

func (r *ItemRepo) GetVisibleItems(feedName string, limit int) ([]Item, error) {
	return r.queryItems(`
		SELECT `+itemColumns+`
		FROM items i
		JOIN feeds f ON f.id = i.feed_id
		WHERE f.name = ? AND i.is_filtered = 0
		ORDER BY i.published_at DESC
		LIMIT ?
	`, feedName, limit)
}

// GetAllItems returns all items for a feed (including filtered ones)
func (r *ItemRepo) GetAllItems(feedName string) ([]Item, error) {
	return r.queryItems(`
		SELECT `+itemColumns+`
		FROM items i
		JOIN feeds f ON f.id = i.feed_id
		WHERE f.name = ?
		ORDER BY i.published_at DESC
	`, feedName)
}

func (r *ItemRepo) GetItemCount(feedName string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM items i JOIN feeds f ON f.id = i.feed_id WHERE f.name = ?
	`, feedName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

// GetItemStats returns total, visible and filtered item counts for a feed
func (r *ItemRepo) GetItemStats(feedName string) (int, int, int, error) {
	var total, visible, filtered int
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN i.is_filtered = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN i.is_filtered = 1 THEN 1 ELSE 0 END), 0)
		FROM items i
		JOIN feeds f ON f.id = i.feed_id
		WHERE f.name = ?
	`, feedName).Scan(&total, &visible, &filtered)

	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to get item stats: %w", err)
	}

	return total, visible, filtered, nil
}

func (r *ItemRepo) UpdateItemFilterStatus(itemID string, isFiltered bool, filterReason string) error {
	_, err := r.db.Exec(`UPDATE items SET is_filtered = ?, filter_reason = ? WHERE id = ?`, isFiltered, filterReason, itemID)
	if err != nil {
		return fmt.Errorf("failed to update item filter status: %w", err)
	}
	return nil
}

// GetItemsForExtraction returns visible items still waiting for extraction,
// including failed ones below MaxExtractionAttempts.
func (r *ItemRepo) GetItemsForExtraction(feedName string, limit int) ([]ItemForExtraction, error) {
	rows, err := r.db.Query(`
		SELECT i.id, i.link
		FROM items i
		JOIN feeds f ON f.id = i.feed_id
		WHERE f.name = ?
		  AND i.is_filtered = 0
		  AND i.link <> ''
		  AND (i.content_extraction_status = 'pending'
		       OR (i.content_extraction_status = 'failed' AND i.extraction_attempts < ?))
		ORDER BY i.published_at DESC
		LIMIT ?
	`, feedName, MaxExtractionAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get items for extraction: %w", err)
	}
	defer rows.Close()

	var items []ItemForExtraction
	for rows.Next() {
		var item ItemForExtraction
		if err := rows.Scan(&item.ID, &item.Link); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

func (r *ItemRepo) UpdateExtractionStatus(itemID string, status string, extractedAt *time.Time, errorMsg string) error {
	_, err := r.db.Exec(`
		UPDATE items
		SET content_extraction_status = ?, content_extracted_at = ?, content_extraction_error = ?,
		    extraction_attempts = extraction_attempts + 1
		WHERE id = ?
	`, status, utcOrNil(extractedAt), errorMsg, itemID)
	if err != nil {
		return fmt.Errorf("failed to update extraction status: %w", err)
	}
	return nil
}

func (r *ItemRepo) UpdateExtractedContentAndStatus(itemID string, content string, status string, extractedAt *time.Time, errorMsg string) error {
	_, err := r.db.Exec(`
		UPDATE items
		SET content = ?, content_extraction_status = ?, content_extracted_at = ?, content_extraction_error = ?,
		    extraction_attempts = extraction_attempts + 1
		WHERE id = ?
	`, content, status, utcOrNil(extractedAt), errorMsg, itemID)
	if err != nil {
		return fmt.Errorf("failed to update extracted content: %w", err)
	}
	return nil
}

func (r *ItemRepo) queryItems(query string, args ...any) ([]Item, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		var categories, media, attachments, extra string
		err := rows.Scan(
			&item.ID, &item.FeedID, &item.GUID, &item.Link, &item.Title, &item.Description, &item.Content,
			&item.PublishedAt, &item.Author, &item.AuthorURL, &item.AuthorAvatar,
			&categories, &media, &attachments, &extra,
			&item.IsFiltered, &item.FilterReason, &item.ContentHash, &item.CreatedAt,
			&item.ContentExtractedAt, &item.ContentExtractionStatus, &item.ContentExtractionError, &item.ExtractionAttempts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}

		if err := decodeJSON(categories, &item.Categories); err != nil {
			return nil, fmt.Errorf("failed to decode categories of item %s: %w", item.ID, err)
		}
		if err := decodeJSON(media, &item.Media); err != nil {
			return nil, fmt.Errorf("failed to decode media of item %s: %w", item.ID, err)
		}
		if err := decodeJSON(attachments, &item.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments of item %s: %w", item.ID, err)
		}
		if err := decodeJSON(extra, &item.Extra); err != nil {
			return nil, fmt.Errorf("failed to decode extra of item %s: %w", item.ID, err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}

func encodeJSON(value any, empty string) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func decodeJSON(data string, target any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), target)
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
