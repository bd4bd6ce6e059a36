package tasks

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lysyi3m/rss-intake/app/cfg"
	"github.com/lysyi3m/rss-intake/app/database"
	"github.com/lysyi3m/rss-intake/app/feed"
	"github.com/lysyi3m/rss-intake/app/metrics"
	"github.com/lysyi3m/rss-intake/app/rss"
)

const (
	taskQueueSize  = 300
	taskTimeout    = 5 * time.Minute
	maxRetryDelay  = 30 * time.Second
	retryBaseDelay = time.Second
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	feedRepo         database.FeedRepository
	itemRepo         database.ItemRepository
	configCache      *feed.ConfigCache
	fetcher          FeedFetcher
	httpClient       *http.Client
	parser           *feed.Parser
	filterer         *feed.Filterer
	contentExtractor *feed.ContentExtractor
	userAgent        string
	fetchTimeout     time.Duration
	fetchConcurrency int
	interval         time.Duration
	workerCount      int
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	taskQueue        chan TaskInterface
}

func NewScheduler(configCache *feed.ConfigCache, feedRepo database.FeedRepository,
	itemRepo database.ItemRepository, fetcher FeedFetcher, httpClient *http.Client,
	parser *feed.Parser, filterer *feed.Filterer, contentExtractor *feed.ContentExtractor) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		feedRepo:         feedRepo,
		itemRepo:         itemRepo,
		configCache:      configCache,
		fetcher:          fetcher,
		httpClient:       httpClient,
		parser:           parser,
		filterer:         filterer,
		contentExtractor: contentExtractor,
		userAgent:        cmp.Or(cfg.UserAgent, rss.DefaultUserAgent),
		fetchTimeout:     cfg.FetchTimeoutDuration(),
		fetchConcurrency: cfg.FetchConcurrency,
		interval:         time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount:      cfg.WorkerCount,
		ctx:              ctx,
		cancel:           cancel,
		taskQueue:        make(chan TaskInterface, taskQueueSize),
	}
}

func (s *Scheduler) Start() {
	for i := range s.workerCount {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()

	slog.Info("Scheduler started", "workers", s.workerCount, "interval", s.interval, "fetch_concurrency", s.fetchConcurrency)
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	slog.Info("Scheduler stopped", "pending_tasks", len(s.taskQueue))
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		metrics.SetQueueDepth(len(s.taskQueue))
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// NewRefreshTask builds the batch refresh over all due feeds.
func (s *Scheduler) NewRefreshTask() *RefreshFeedsTask {
	return NewRefreshFeedsTask(s.configCache, s.fetcher, s.fetchConcurrency, s.parser, s.filterer, s.feedRepo, s.itemRepo)
}

// NewProcessTask builds a single-feed fetch, used for manual reloads.
func (s *Scheduler) NewProcessTask(feedConfig *feed.Config) *ProcessFeedTask {
	return NewProcessFeedTask(feedConfig.Name, feedConfig, s.fetcher, s.parser, s.filterer, s.feedRepo, s.itemRepo)
}

func (s *Scheduler) newExtractTask(feedConfig *feed.Config) *ExtractContentTask {
	return NewExtractContentTask(feedConfig.Name, feedConfig, s.httpClient, s.contentExtractor, s.itemRepo, s.userAgent, s.fetchTimeout)
}

func (s *Scheduler) enqueueStartupTasks() {
	feedConfigs := s.configCache.GetConfigs()
	if len(feedConfigs) == 0 {
		slog.Debug("No feed configurations found")
		return
	}

	slog.Debug("Processing feed configurations", "count", len(feedConfigs))

	for _, feedConfig := range feedConfigs {
		syncTask := NewSyncFeedConfigTask(feedConfig.Name, feedConfig, s.feedRepo)
		if err := s.EnqueueTask(syncTask); err != nil {
			slog.Warn("Failed to enqueue SyncFeedConfigTask", "feed", feedConfig.Name, "error", err)
		}
	}

	s.enqueueTasks()
}

func (s *Scheduler) enqueueTasks() {
	if err := s.EnqueueTask(s.NewRefreshTask()); err != nil {
		slog.Warn("Failed to enqueue RefreshFeedsTask", "error", err)
	}

	for _, feedConfig := range s.configCache.GetEnabledConfigs() {
		if !feedConfig.Settings.ExtractContent {
			continue
		}
		if err := s.EnqueueTask(s.newExtractTask(feedConfig)); err != nil {
			slog.Warn("Failed to enqueue ExtractContentTask", "feed", feedConfig.Name, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			metrics.SetQueueDepth(len(s.taskQueue))
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		metrics.RecordTask(string(task.GetType()), "success", task.GetDuration())
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "feed", task.GetFeedName(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		metrics.RecordTask(string(task.GetType()), "failed", task.GetDuration())
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	metrics.RecordTask(string(task.GetType()), "retry", task.GetDuration())
	task.IncrementRetryCount()
	delay := retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "feed", task.GetFeedName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", delay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}

// retryDelay doubles from one second per attempt, capped at maxRetryDelay.
func retryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		return retryBaseDelay
	}
	if retryCount > 6 {
		return maxRetryDelay
	}
	return min(retryBaseDelay<<(retryCount-1), maxRetryDelay)
}
