package core

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/go-co-op/gocron"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vrsandeep/tunedl/internal/auth"
	"github.com/vrsandeep/tunedl/internal/config"
	"github.com/vrsandeep/tunedl/internal/db"
	"github.com/vrsandeep/tunedl/internal/downloader"
	"github.com/vrsandeep/tunedl/internal/events"
	"github.com/vrsandeep/tunedl/internal/fetcher"
	"github.com/vrsandeep/tunedl/internal/jobs"
	"github.com/vrsandeep/tunedl/internal/logger"
	"github.com/vrsandeep/tunedl/internal/progress"
	"github.com/vrsandeep/tunedl/internal/queue"
	"github.com/vrsandeep/tunedl/internal/relay"
	"github.com/vrsandeep/tunedl/internal/store"
	"github.com/vrsandeep/tunedl/internal/util"
	"github.com/vrsandeep/tunedl/internal/websocket"
	"github.com/vrsandeep/tunedl/migrations"
)

// Version is stamped at build time with -ldflags "-X .../core.Version=...".
var Version = "dev"

// App holds the core components of the application that are shared
// between the server and the CLI. Everything is built explicitly in New;
// nothing lives in package-level state.
type App struct {
	config *config.Config
	log    *zap.Logger
	db     *sql.DB
	store  *store.Store

	hub   *websocket.Hub
	pub   events.Publisher
	rdb   *redis.Client
	relay *relay.Relay

	queue     *queue.Queue
	tracker   *progress.Tracker
	processor *downloader.Processor
	auth      *auth.Manager

	jobManager *jobs.JobManager
	scheduler  *gocron.Scheduler
}

// Option customises App construction.
type Option func(*options)

type options struct {
	fetcher fetcher.Fetcher
}

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// New loads config.yml, builds the logger and then the App.
func New(opts ...Option) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return NewWithConfig(cfg, log, opts...)
}

// NewWithConfig sets up the database, runs migrations and wires every
// component. Nothing runs in the background until Start.
func NewWithConfig(cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(database, migrations.FS, log); err != nil {
		// We can't proceed without a valid database schema.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	a := &App{
		config: cfg,
		log:    log,
		db:     database,
		store:  store.New(database),
		auth:   auth.NewManager(cfg.Auth.JWTSecret),
	}

	a.hub = websocket.NewHub(log.Named("hub"), websocket.Options{
		PingInterval: cfg.PingInterval(),
		IdleTimeout:  cfg.IdleTimeout(),
		SendBuffer:   cfg.Gateway.SendBuffer,
	})
	a.pub = a.hub

	if cfg.Redis.Addr != "" {
		rdb, err := relay.Connect(context.Background(), cfg)
		if err != nil {
			database.Close()
			return nil, err
		}
		a.rdb = rdb
		a.relay = relay.New(a.hub, rdb, cfg.Redis.Channel, log.Named("relay"))
		a.pub = a.relay
	}

	f := o.fetcher
	if f == nil {
		if err := util.EnsureWritableDir(cfg.Fetcher.DownloadDir); err != nil {
			a.Close()
			return nil, fmt.Errorf("download directory: %w", err)
		}
		f = fetcher.NewHTTPFetcher(cfg.Fetcher.DownloadDir, cfg.FetchTimeout(), log.Named("fetcher"))
	}

	a.queue = queue.New(a.store, a.pub)
	a.tracker = progress.NewTracker(a.pub, cfg.Retention())
	a.processor = downloader.NewProcessor(a.queue, a.tracker, f, a.pub, a.store, log.Named("batch"),
		downloader.Options{MaxConcurrent: cfg.Batch.MaxConcurrent})

	a.jobManager = jobs.NewManager(log.Named("jobs"))
	jobs.RegisterAll(a.jobManager)

	log.Info("core application setup complete")
	return a, nil
}

// Start launches the hub, the relay and the job scheduler.
func (a *App) Start(ctx context.Context) error {
	go a.hub.Run()
	if a.relay != nil {
		if err := a.relay.Start(ctx); err != nil {
			return err
		}
	}
	a.scheduler = jobs.StartJobs(a)
	return nil
}

// WatchConfig applies runtime-safe settings when config.yml changes.
func (a *App) WatchConfig() {
	config.Watch(func(cfg *config.Config, e fsnotify.Event) {
		a.tracker.SetRetention(cfg.Retention())
		a.log.Info("configuration reloaded",
			zap.String("file", e.Name),
			zap.Duration("progress_retention", cfg.Retention()))
	})
}

// Close gracefully stops background work and releases resources.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.processor != nil {
		a.processor.Stop()
	}
	if a.jobManager != nil {
		a.jobManager.Shutdown()
	}
	if a.relay != nil {
		a.relay.Close()
	}
	if a.hub != nil {
		a.hub.Stop()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	a.log.Sync()
}

func (a *App) Config() *config.Config           { return a.config }
func (a *App) Logger() *zap.Logger              { return a.log }
func (a *App) DB() *sql.DB                      { return a.db }
func (a *App) Store() *store.Store              { return a.store }
func (a *App) WsHub() *websocket.Hub            { return a.hub }
func (a *App) Publisher() events.Publisher      { return a.pub }
func (a *App) Queue() *queue.Queue              { return a.queue }
func (a *App) Tracker() *progress.Tracker       { return a.tracker }
func (a *App) Processor() *downloader.Processor { return a.processor }
func (a *App) Auth() *auth.Manager              { return a.auth }
func (a *App) JobManager() *jobs.JobManager     { return a.jobManager }
