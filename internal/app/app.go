package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Music-Vine/conductor/internal/bulk"
	"github.com/Music-Vine/conductor/internal/models"
	"github.com/Music-Vine/conductor/internal/repository"
	"github.com/Music-Vine/conductor/internal/repository/memory"
	"github.com/Music-Vine/conductor/internal/service"
	"github.com/Music-Vine/conductor/internal/workflow"
	"github.com/Music-Vine/conductor/pkg/cache"
	"github.com/Music-Vine/conductor/pkg/config"
	"github.com/Music-Vine/conductor/pkg/database"
	"github.com/Music-Vine/conductor/pkg/jobs"
)

// Stores groups the storage backends selected by configuration.
type Stores struct {
	Assets interface {
		FindByID(ctx context.Context, id string) (*models.Asset, error)
		List(ctx context.Context, filter models.AssetFilter) ([]models.Asset, int, error)
		Update(ctx context.Context, asset *models.Asset) error
	}
	Users interface {
		FindByID(ctx context.Context, id string) (*models.User, error)
		List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
		SetActive(ctx context.Context, id string, active bool, at time.Time) error
	}
	Audit interface {
		CreateAuditLog(ctx context.Context, log *models.AuditLog) error
		CreateBulkOperation(ctx context.Context, op *models.BulkOperation) error
		GetBulkOperation(ctx context.Context, id string) (*models.BulkOperation, error)
		ListBulkOperations(ctx context.Context, filter models.BulkOperationFilter) ([]models.BulkOperation, error)
	}
	Locks service.EntityLocker
}

// App holds every wired service. Build it once per process.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *service.MetricsService
	Tokens  *service.TokenService
	Assets  *service.AssetService
	Users   *service.UserService
	Audit   *service.AuditService
	Bulk    *service.BulkService
	Queue   *jobs.Queue

	Checks map[string]func(ctx context.Context) error

	db    *sqlx.DB
	redis *redis.Client
}

// Build opens the configured backends and wires the services on top of them.
// The returned App owns the connections; call Close when done.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: service.NewMetricsService(),
		Checks:  map[string]func(ctx context.Context) error{},
	}

	stores, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	clock := models.SystemClock
	validate := validator.New()
	engine := workflow.NewEngine(workflow.WithClock(clock), workflow.WithPlatforms(cfg.Workflow.Platforms...))

	a.Tokens = service.NewTokenService(service.TokenConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
	}, clock)
	a.Audit = service.NewAuditService(stores.Audit, logger, cfg.Audit.ListMax)
	a.Assets = service.NewAssetService(stores.Assets, engine, validate, logger,
		service.WithAssetAudit(a.Audit),
		service.WithTransitionMetrics(a.Metrics),
	)
	a.Users = service.NewUserService(stores.Users, clock, logger)

	runner := bulk.NewRunner(a.Audit, logger, bulk.WithRunnerClock(clock), bulk.WithObserver(a.Metrics))
	a.Bulk = service.NewBulkService(a.Assets, a.Users, runner, validate, logger,
		service.BulkConfig{MaxItems: cfg.Bulk.MaxItems, LockTTL: cfg.Bulk.LockTTL},
		service.WithEntityLocker(stores.Locks),
		service.WithBulkActivity(a.Metrics),
	)

	a.Queue = jobs.NewQueue("bulk", a.Bulk.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Bulk.BackgroundWorkers,
		MaxRetries: 0,
		Logger:     logger,
		Detached:   true,
		OnDrop:     a.Bulk.DiscardJob,
	})
	a.Bulk.AttachQueue(a.Queue)

	return a, nil
}

func (a *App) openStores(ctx context.Context) (*Stores, error) {
	cfg := a.Config
	stores := &Stores{}
	driver, seeded := config.StoreMemory, false

	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.db = db
		driver = config.StorePostgres
		stores.Assets = repository.NewAssetRepository(db)
		stores.Users = repository.NewUserRepository(db)
		stores.Audit = repository.NewAuditRepository(db)
		a.Checks["database"] = db.PingContext
	default:
		assets := memory.NewAssetStore()
		users := memory.NewUserStore()
		if cfg.Store.SeedMock {
			memory.Seed(assets, users, models.SystemClock.Now())
			seeded = true
		}
		stores.Assets = assets
		stores.Users = users
		stores.Audit = memory.NewAuditStore()
	}

	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client != nil {
		a.redis = client
		stores.Locks = repository.NewLockRepository(client, a.Logger)
		a.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	} else {
		stores.Locks = memory.NewLockStore()
	}

	a.Logger.Info("stores ready",
		zap.String("driver", driver),
		zap.Bool("redis_locks", client != nil),
		zap.Bool("seeded", seeded),
	)
	return stores, nil
}

// Close releases backend connections.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Warn("close database", zap.Error(err))
		}
	}
}
