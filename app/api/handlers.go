package api

import (
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/rss-intake/app/database"
	"github.com/lysyi3m/rss-intake/app/feed"
	"github.com/lysyi3m/rss-intake/app/tasks"
)

func NewHandler(configCache *feed.ConfigCache, feedRepo database.FeedRepository,
	itemRepo database.ItemRepository, filterer *feed.Filterer, inspector FeedInspector,
	scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		feedRepo:    feedRepo,
		itemRepo:    itemRepo,
		generator:   feed.NewGenerator(),
		configCache: configCache,
		filterer:    filterer,
		inspector:   inspector,
		scheduler:   scheduler,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	name := c.Param("name")

	feedConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		slog.Warn("Feed configuration not found", "feed", name, "error", err)
		c.Status(http.StatusNotFound)
		return
	}

	feed, err := h.feedRepo.GetFeed(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if feed == nil {
		slog.Warn("Feed not found in database", "feed", name)
		c.Status(http.StatusNotFound)
		return
	}

	items, err := h.itemRepo.GetVisibleItems(name, feedConfig.Settings.MaxItems)
	if err != nil {
		slog.Error("Database error", "operation", "get_items", "feed", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(*feed, items)
	if err != nil {
		slog.Error("RSS generation error", "feed", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.Header("X-Feed-Name", name)
	c.Header("X-Last-Updated", feed.UpdatedAt.Format(time.RFC3339))

	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(rss))
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"status":                "ok",
		"timestamp":             time.Now().In(time.Local).Format(time.RFC3339),
		"loaded_configurations": h.configCache.GetConfigCount(),
		"adapters":              h.inspector.Adapters(),
	}

	feedCount, err := h.feedRepo.GetFeedCount()
	if err != nil {
		slog.Error("Database error", "operation", "get_feed_count", "error", err)
		health["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	health["feeds"] = feedCount

	c.JSON(http.StatusOK, health)
}

// APIListFeeds lists every subscription plus stored feeds whose subscription
// file was removed, ordered by name.
func (h *Handler) APIListFeeds(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	stored, err := h.feedRepo.GetFeeds()
	if err != nil {
		slog.Error("Database error", "operation", "get_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	rows := make(map[string]database.Feed, len(stored))
	for _, feed := range stored {
		rows[feed.Name] = feed
	}

	names := slices.Collect(maps.Keys(configs))
	for name := range rows {
		if _, ok := configs[name]; !ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	feeds := make([]gin.H, 0, len(names))
	for _, name := range names {
		feedInfo := gin.H{
			"name":       name,
			"title":      "",
			"configured": false,
			"enabled":    false,
		}

		if feedConfig, ok := configs[name]; ok {
			feedInfo["url"] = feedConfig.URL
			feedInfo["configured"] = true
			feedInfo["enabled"] = feedConfig.Settings.Enabled
			feedInfo["max_items"] = feedConfig.Settings.MaxItems
			feedInfo["refresh_interval"] = (time.Duration(feedConfig.Settings.RefreshInterval) * time.Second).String()
			feedInfo["filters"] = len(feedConfig.Filters)
			feedInfo["rules"] = len(feedConfig.Rules)
		}

		if feed, ok := rows[name]; ok {
			if _, set := feedInfo["url"]; !set {
				feedInfo["url"] = feed.FeedURL
			}
			feedInfo["title"] = feed.Title
			feedInfo["adapter"] = feed.Adapter
			feedInfo["last_error"] = feed.LastError
			feedInfo["last_fetched_at"] = feed.LastFetchedAt
			feedInfo["next_fetch_at"] = feed.NextFetchAt
			feedInfo["updated_at"] = feed.UpdatedAt
		}

		if itemCount, err := h.itemRepo.GetItemCount(name); err == nil {
			feedInfo["item_count"] = itemCount
		}

		feeds = append(feeds, feedInfo)
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) APIGetFeedDetails(c *gin.Context) {
	name := c.Param("name")

	feedConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed configuration not found"})
		return
	}

	feed, err := h.feedRepo.GetFeed(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if feed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found in database"})
		return
	}

	details := gin.H{
		"name":             name,
		"url":              feedConfig.URL,
		"title":            feed.Title,
		"enabled":          feedConfig.Settings.Enabled,
		"max_items":        feedConfig.Settings.MaxItems,
		"refresh_interval": (time.Duration(feedConfig.Settings.RefreshInterval) * time.Second).String(),
		"extract_content":  feedConfig.Settings.ExtractContent,
		"filters":          feedConfig.Filters,
		"rules":            feedConfig.Rules,
		"adapter":          h.inspector.Adapter(feedConfig.URL).Name(),
	}

	details["database"] = gin.H{
		"id":              feed.ID,
		"name":            feed.Name,
		"link":            feed.Link,
		"language":        feed.Language,
		"ttl":             feed.TTL,
		"adapter":         feed.Adapter,
		"last_error":      feed.LastError,
		"last_fetched_at": feed.LastFetchedAt,
		"next_fetch_at":   feed.NextFetchAt,
		"created_at":      feed.CreatedAt,
		"updated_at":      feed.UpdatedAt,
	}

	total, visible, filtered, err := h.itemRepo.GetItemStats(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_item_stats", "feed", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	details["items"] = gin.H{
		"total":    total,
		"visible":  visible,
		"filtered": filtered,
	}

	c.JSON(http.StatusOK, details)
}

// APIReloadFeed rereads the feed's config file, then syncs, refilters and
// refetches the feed in the background.
func (h *Handler) APIReloadFeed(c *gin.Context) {
	name := c.Param("name")

	if _, err := h.configCache.GetConfig(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed configuration not found"})
		return
	}

	feedConfig, err := h.configCache.LoadConfig(name)
	if err != nil {
		slog.Error("Error reloading configuration", "feed", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to reload configuration",
			"details": err.Error(),
		})
		return
	}

	reloadTasks := []tasks.TaskInterface{
		tasks.NewSyncFeedConfigTask(name, feedConfig, h.feedRepo),
		tasks.NewRefilterFeedTask(name, feedConfig, h.filterer, h.itemRepo),
	}
	if feedConfig.Settings.Enabled {
		reloadTasks = append(reloadTasks, h.scheduler.NewProcessTask(feedConfig))
	}

	enqueued := make([]gin.H, 0, len(reloadTasks))
	for _, task := range reloadTasks {
		if err := h.scheduler.EnqueueTask(task); err != nil {
			slog.Error("Error enqueueing task", "type", task.GetType(), "feed", name, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to enqueue " + string(task.GetType()) + " task",
				"details": err.Error(),
			})
			return
		}
		enqueued = append(enqueued, gin.H{"id": task.GetID(), "type": task.GetType()})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Configuration reloaded and tasks enqueued successfully",
		"feed": gin.H{
			"name": name,
			"url":  feedConfig.URL,
		},
		"tasks": enqueued,
	})
}

// APIPreviewFeed fetches an arbitrary feed URL without storing anything.
func (h *Handler) APIPreviewFeed(c *gin.Context) {
	var req feedURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	adapter := h.inspector.Adapter(req.URL).Name()
	result := h.inspector.Fetch(c.Request.Context(), req.URL)
	if !result.Success {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":       result.Error,
			"status_code": result.StatusCode,
			"adapter":     adapter,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"adapter": adapter,
		"feed":    result.Data,
	})
}

func (h *Handler) APIValidateFeed(c *gin.Context) {
	var req feedURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	validation := h.inspector.Validate(c.Request.Context(), req.URL)
	status := http.StatusOK
	if !validation.Valid {
		status = http.StatusUnprocessableEntity
	}

	c.JSON(status, validation)
}

func (h *Handler) APIDiscoverFeeds(c *gin.Context) {
	var req feedURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	feeds := h.inspector.Discover(c.Request.Context(), req.URL)

	c.JSON(http.StatusOK, gin.H{
		"url":   req.URL,
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) APIListAdapters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"adapters": h.inspector.Adapters()})
}
