package modules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"chatpilot.io/pilot/internal/access"
	"chatpilot.io/pilot/internal/api/handlers"
	"chatpilot.io/pilot/internal/config"
	"chatpilot.io/pilot/internal/credits"
	"chatpilot.io/pilot/internal/infrastructure"
	"chatpilot.io/pilot/internal/jobs"
	"chatpilot.io/pilot/internal/notification"
	"chatpilot.io/pilot/internal/pkg/logger"
	"chatpilot.io/pilot/internal/pkg/worker"
	"chatpilot.io/pilot/internal/ratelimit"
	"chatpilot.io/pilot/internal/repository/memory"
	"chatpilot.io/pilot/internal/repository/postgres"
	"chatpilot.io/pilot/internal/seed"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module. Exactly one storage driver is populated.
type Infrastructure struct {
	Config      *config.Config
	DB          *infrastructure.DatabaseClients // nil with the memory driver
	Redis       *redis.Client                   // nil unless the redis backend is selected
	Pools       *worker.Pools
	RiverClient *river.Client[pgx.Tx]

	Bots           access.BotReader
	CreditStore    credits.Store
	Inbox          notification.Inbox
	RateLimitStore ratelimit.Store

	// MemoryWindows is set when windows live in process and need pruning.
	MemoryWindows *ratelimit.MemoryStore

	Checks map[string]handlers.HealthChecker
}

// NewInfrastructure opens the configured stores and worker pools.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		JournalPoolSize: cfg.Worker.JournalPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}
	infra := &Infrastructure{
		Config: cfg,
		Pools:  pools,
		Checks: make(map[string]handlers.HealthChecker),
	}

	switch cfg.Storage.Driver {
	case config.StorageDriverPostgres:
		err = infra.openPostgres(ctx)
	case config.StorageDriverMemory:
		err = infra.openMemory(ctx)
	default:
		err = fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		infra.Close()
		return nil, err
	}

	if err := infra.openRateLimitStore(ctx); err != nil {
		infra.Close()
		return nil, err
	}

	logger.Info("Infrastructure initialized",
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("ratelimit_backend", cfg.RateLimitBackend()),
	)
	return infra, nil
}

func (i *Infrastructure) openPostgres(ctx context.Context) error {
	db, err := infrastructure.NewDatabaseClients(ctx, i.Config.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	i.DB = db

	if i.Config.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}

	i.Bots = db.Queries
	i.CreditStore = postgres.NewCreditStore(db.Queries)
	i.Inbox = db.Queries
	i.Checks["database"] = db.Queries
	return nil
}

func (i *Infrastructure) openMemory(ctx context.Context) error {
	bots := memory.NewBotStore()
	i.Bots = bots
	i.CreditStore = credits.NewMemoryStore()
	i.Inbox = notification.NewMemoryInbox()

	if path := i.Config.Storage.BotsFile; path != "" {
		fixture, err := seed.LoadFile(path)
		if err != nil {
			return err
		}
		// Owners get their trial on first debit or sign-in.
		res, err := seed.Apply(ctx, fixture, bots, nil)
		if err != nil {
			return err
		}
		logger.Info("Loaded bots fixture", zap.String("path", path), zap.Int("bots", res.Bots))
	} else {
		logger.Warn("memory storage driver without storage.bots_file; every bot lookup will be denied")
	}
	return nil
}

func (i *Infrastructure) openRateLimitStore(ctx context.Context) error {
	switch backend := i.Config.RateLimitBackend(); backend {
	case config.RateLimitBackendPostgres:
		if i.DB == nil {
			return fmt.Errorf("ratelimit backend postgres requires the postgres storage driver")
		}
		i.RateLimitStore = postgres.NewRateLimitStore(i.DB.Queries)
	case config.RateLimitBackendRedis:
		client, err := infrastructure.NewRedisClient(ctx, i.Config.Redis)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		i.Redis = client
		i.RateLimitStore = ratelimit.NewRedisStore(client, i.Config.Redis.KeyPrefix)
		i.Checks["redis"] = infrastructure.RedisPinger{Client: client}
	case config.RateLimitBackendMemory:
		store := ratelimit.NewMemoryStore()
		i.MemoryWindows = store
		i.RateLimitStore = store
	default:
		return fmt.Errorf("unsupported ratelimit backend %q", backend)
	}
	return nil
}

// InitRiver creates the River client once every module registered its workers.
// It is a no-op without PostgreSQL.
func (i *Infrastructure) InitRiver(workers *river.Workers) error {
	if i == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if i.DB == nil {
		return nil
	}
	pruneWindows := i.Config.RateLimitBackend() == config.RateLimitBackendPostgres
	if err := i.DB.InitRiverClient(workers, jobs.PeriodicJobs(pruneWindows), i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	i.RiverClient = i.DB.RiverClient
	return nil
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
