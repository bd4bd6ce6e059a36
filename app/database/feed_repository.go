package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

var _ FeedRepository = (*FeedRepo)(nil)

type FeedRepo struct {
	db *DB
}

func NewFeedRepository(db *DB) *FeedRepo {
	return &FeedRepo{db: db}
}

const feedColumns = `id, name, feed_url, link, title, description, image_url, language, ttl, adapter, last_error,
	last_fetched_at, next_fetch_at, feed_published_at, created_at, updated_at`

func scanFeed(row interface{ Scan(...any) error }) (*Feed, error) {
	var feed Feed
	var ttl sql.NullInt64
	err := row.Scan(
		&feed.ID, &feed.Name, &feed.FeedURL, &feed.Link, &feed.Title, &feed.Description, &feed.ImageURL,
		&feed.Language, &ttl, &feed.Adapter, &feed.LastError,
		&feed.LastFetchedAt, &feed.NextFetchAt, &feed.FeedPublishedAt, &feed.CreatedAt, &feed.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ttl.Valid {
		minutes := int(ttl.Int64)
		feed.TTL = &minutes
	}
	return &feed, nil
}

func (r *FeedRepo) GetFeed(feedName string) (*Feed, error) {
	row := r.db.QueryRow(`SELECT `+feedColumns+` FROM feeds WHERE name = ?`, feedName)

	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	return feed, nil
}

func (r *FeedRepo) GetFeeds() ([]Feed, error) {
	rows, err := r.db.Query(`SELECT ` + feedColumns + ` FROM feeds ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

func (r *FeedRepo) GetFeedCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

// UpsertFeed registers a configured feed. A changed URL resets the schedule so
// the new source is fetched on the next tick.
func (r *FeedRepo) UpsertFeed(feedName, feedURL string) error {
	now := time.Now().UTC()

	_, err := r.db.Exec(`
		INSERT INTO feeds (id, name, feed_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			next_fetch_at = CASE WHEN feeds.feed_url <> excluded.feed_url THEN NULL ELSE feeds.next_fetch_at END,
			feed_url = excluded.feed_url,
			updated_at = excluded.updated_at
	`, uuid.NewString(), feedName, feedURL, now, now)

	if err != nil {
		return fmt.Errorf("failed to upsert feed: %w", err)
	}

	return nil
}

func (r *FeedRepo) UpdateFeedMetadata(feedName string, metadata FeedMetadata, nextFetch time.Time) error {
	now := time.Now().UTC()

	var ttl any
	if metadata.TTL != nil {
		ttl = *metadata.TTL
	}

	var feedPublishedAt any
	if metadata.FeedPublishedAt != nil {
		feedPublishedAt = metadata.FeedPublishedAt.UTC()
	}

	_, err := r.db.Exec(`
		UPDATE feeds
		SET title = ?, link = ?, description = ?, image_url = ?, language = ?, ttl = ?, adapter = ?,
		    feed_published_at = ?, last_error = '', last_fetched_at = ?, next_fetch_at = ?, updated_at = ?
		WHERE name = ?
	`, metadata.Title, metadata.Link, metadata.Description, metadata.ImageURL, canonicalLanguage(metadata.Language),
		ttl, metadata.Adapter, feedPublishedAt, now, nextFetch.UTC(), now, feedName)

	if err != nil {
		return fmt.Errorf("failed to update feed metadata: %w", err)
	}

	return nil
}

func (r *FeedRepo) UpdateFeedError(feedName string, fetchErr string, nextFetch time.Time) error {
	_, err := r.db.Exec(`
		UPDATE feeds
		SET last_error = ?, last_fetched_at = ?, next_fetch_at = ?
		WHERE name = ?
	`, fetchErr, time.Now().UTC(), nextFetch.UTC(), feedName)

	if err != nil {
		return fmt.Errorf("failed to update feed error: %w", err)
	}

	return nil
}

// canonicalLanguage normalizes a feed's language to its BCP 47 form
// ("en-us" becomes "en-US"). Unparseable values are stored as given.
func canonicalLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	return tag.String()
}
