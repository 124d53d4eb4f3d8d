package commands

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wonny/aegis/v13/timeline/internal/backfill"
	"github.com/wonny/aegis/v13/timeline/internal/engineconfig"
	"github.com/wonny/aegis/v13/timeline/internal/evolution"
	"github.com/wonny/aegis/v13/timeline/internal/metrics"
	"github.com/wonny/aegis/v13/timeline/internal/realtime"
	"github.com/wonny/aegis/v13/timeline/internal/scheduler"
	"github.com/wonny/aegis/v13/timeline/internal/snapshot"
	"github.com/wonny/aegis/v13/timeline/internal/temporal"
	"github.com/wonny/aegis/v13/timeline/internal/transition"
	"github.com/wonny/aegis/v13/timeline/internal/universe"
	"github.com/wonny/aegis/v13/timeline/pkg/config"
	"github.com/wonny/aegis/v13/timeline/pkg/database"
	"github.com/wonny/aegis/v13/timeline/pkg/logger"
	"github.com/wonny/aegis/v13/timeline/pkg/redis"
)

// app holds the wired engine shared by all commands
// ⭐ SSOT: 의존성 조립은 여기서만
type app struct {
	cfg      *config.Config
	engine   *engineconfig.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Recorder

	universes   *universe.Repository
	snapshots   *snapshot.Service
	resolver    *temporal.Resolver
	backfill    *backfill.Engine
	schedules   *scheduler.Manager
	analyzer    *transition.ImpactAnalyzer
	transitions *transition.Manager
	hub         *realtime.Hub
}

// loadEngineConfig reads the tuning file from --engine-config or ENGINE_CONFIG_PATH
func loadEngineConfig(cfg *config.Config, log *logger.Logger) (*engineconfig.Config, error) {
	path := engineConfig
	if path == "" {
		path = cfg.Timeline.EngineConfigPath
	}
	if path == "" {
		ec := engineconfig.Default()
		// 환경변수 값이 기본값보다 우선
		ec.Scheduler.FailureThreshold = cfg.Timeline.FailureThreshold
		ec.Scheduler.Tick = cfg.Timeline.SchedulerTick
		ec.Backfill.MaxDates = cfg.Timeline.BackfillMaxDates
		ec.Resolver.CacheTTL = cfg.Timeline.ResolverCacheTTL
		return ec, engineconfig.Validate(ec)
	}

	ec, _, err := engineconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load engine config %s: %w", path, err)
	}
	hash, _ := engineconfig.Hash(ec)
	log.WithFields(map[string]interface{}{
		"path": path,
		"hash": hash,
	}).Info("Engine config loaded")
	return ec, nil
}

// newApp loads config, connects storage and wires every service
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg)

	ec, err := loadEngineConfig(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	rdb, err := redis.New(cfg)
	if err != nil {
		// 캐시/락 없이도 동작
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
		rdb = redis.Disabled()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	rec := metrics.New(registry)

	a := &app{
		cfg:      cfg,
		engine:   ec,
		log:      log,
		db:       db,
		redis:    rdb,
		registry: registry,
		metrics:  rec,
		hub:      realtime.NewHub(log),
	}

	a.universes = universe.NewRepository(db.Pool, log)
	store := snapshot.NewPostgresStore(db.Pool)
	tracker := evolution.NewTracker(ec.Evolution)
	a.resolver = temporal.NewResolver(store, tracker, redis.NewCache(rdb, "timeline"), ec.Resolver.CacheTTL, rec, log)
	a.snapshots = snapshot.NewService(store, log,
		snapshot.WithDirectory(a.universes),
		snapshot.WithPublisher(a.hub),
		snapshot.WithInvalidator(a.resolver),
		snapshot.WithMetrics(rec),
	)
	a.backfill = backfill.NewEngine(a.snapshots, ec.Backfill, log,
		backfill.WithLocker(redis.NewLocker(rdb, "timeline")),
		backfill.WithUniverseChecker(a.universes),
		backfill.WithMetrics(rec),
	)
	a.schedules = scheduler.NewManager(scheduler.NewPostgresRepository(db.Pool), ec.Scheduler.ManagerConfig, rec, log)
	a.analyzer = transition.NewImpactAnalyzer(ec.Impact)
	a.transitions = transition.NewManager(
		transition.NewPlanner(a.analyzer, ec.Transition, log),
		transition.NewPostgresRepository(db.Pool),
		rec, log,
	)

	if err := db.Ping(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return a, nil
}

// dispatchJob builds the cron job that executes due schedules
func (a *app) dispatchJob() *scheduler.DispatchJob {
	return scheduler.NewDispatchJob(a.schedules, scheduler.NewSnapshotExecutor(a.snapshots), a.engine.Scheduler.Tick, a.log)
}

// Close releases storage connections
func (a *app) Close() {
	a.hub.Close()
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("close redis")
	}
	a.db.Close()
}
