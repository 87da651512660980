package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/common"
	"github.com/ternarybob/dragonfly/internal/destinations/youtube"
	"github.com/ternarybob/dragonfly/internal/handlers"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"github.com/ternarybob/dragonfly/internal/models"
	"github.com/ternarybob/dragonfly/internal/pipeline"
	"github.com/ternarybob/dragonfly/internal/queue"
	"github.com/ternarybob/dragonfly/internal/services/events"
	"github.com/ternarybob/dragonfly/internal/services/scheduler"
	"github.com/ternarybob/dragonfly/internal/services/tasks"
	"github.com/ternarybob/dragonfly/internal/sources/douyin"
	storage "github.com/ternarybob/dragonfly/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *storage.Manager
	QueueManager   *queue.Manager
	WorkerPool     *queue.WorkerPool

	EventService     interfaces.EventService
	TaskService      *tasks.Service
	SchedulerService *scheduler.Service

	SourceClient interfaces.SourceClient
	Uploader     *youtube.Uploader

	Detector  *pipeline.Detector
	Fetcher   *pipeline.Fetcher
	Publisher *pipeline.Publisher

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	AccountHandler   *handlers.AccountHandler
	TaskHandler      *handlers.TaskHandler
	OAuthHandler     *handlers.OAuthHandler
	SchedulerHandler *handlers.SchedulerHandler
	WSHandler        *handlers.WebSocketHandler
}

// New creates and wires all application components
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := a.initStorage(); err != nil {
		return nil, err
	}

	if err := a.initServices(); err != nil {
		return nil, err
	}

	a.initHandlers()

	return a, nil
}

func (a *App) initStorage() error {
	if err := os.MkdirAll(a.Config.Storage.Downloads, 0o755); err != nil {
		return fmt.Errorf("failed to create downloads directory: %w", err)
	}

	storageManager, err := storage.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	a.Logger.Info().
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage initialized")

	return nil
}

func (a *App) initServices() error {
	queueManager, err := queue.NewManager(a.StorageManager.DB().Badger(), a.Logger, &a.Config.Queue)
	if err != nil {
		return fmt.Errorf("failed to initialize queue: %w", err)
	}
	a.QueueManager = queueManager

	a.EventService = events.NewService(a.Logger)

	a.TaskService = tasks.NewService(a.StorageManager.TaskStorage(), a.EventService, a.Logger)

	sourceClient, err := douyin.NewClient(&a.Config.Source, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize source client: %w", err)
	}
	a.SourceClient = sourceClient

	a.Uploader = youtube.NewUploader(&a.Config.YouTube, a.Logger)

	a.SchedulerService = scheduler.NewService(a.StorageManager.AccountStorage(), a.QueueManager, a.Logger)

	a.Detector = pipeline.NewDetector(a.StorageManager.FingerprintStorage(), a.SourceClient, a.QueueManager, a.Logger)

	downloadClient := &http.Client{Timeout: 10 * time.Minute}
	a.Fetcher = pipeline.NewFetcher(a.TaskService, a.QueueManager, downloadClient, a.Config.Storage.Downloads, a.Config.Source.UserAgent, a.Logger)

	a.Publisher = pipeline.NewPublisher(a.TaskService, a.StorageManager.AccountStorage(), a.Uploader, a.Logger)

	a.WorkerPool = queue.NewWorkerPool(a.QueueManager, a.Logger)
	a.WorkerPool.RegisterHandler(models.QueueCheck, a.Detector.Handle)
	a.WorkerPool.RegisterHandler(models.QueueFetch, a.Fetcher.Handle)
	a.WorkerPool.RegisterHandler(models.QueuePublish, a.Publisher.Handle)

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.AccountHandler = handlers.NewAccountHandler(a.StorageManager.AccountStorage(), a.Logger)
	a.TaskHandler = handlers.NewTaskHandler(a.TaskService, a.Logger)
	a.OAuthHandler = handlers.NewOAuthHandler(a.StorageManager.AccountStorage(), a.Uploader, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger, &a.Config.WebSocket)
}

// Start launches the background pipeline and scheduler
func (a *App) Start(ctx context.Context) error {
	if err := a.WorkerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	if a.Config.Scheduler.Enabled {
		if err := a.SchedulerService.Start(a.Config.Scheduler.Schedule); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		a.Logger.Info().
			Str("schedule", a.Config.Scheduler.Schedule).
			Msg("Scheduler started")
	} else {
		a.Logger.Warn().Msg("Scheduler disabled - checks must be triggered manually")
	}

	return nil
}

// Close shuts down all components in reverse dependency order
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application components")

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	if a.WorkerPool != nil {
		if err := a.WorkerPool.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop worker pool")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
