package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/tournevent/uadirectory/internal/config"
	"github.com/tournevent/uadirectory/internal/database"
	"github.com/tournevent/uadirectory/internal/directory"
	"github.com/tournevent/uadirectory/internal/dirsync"
	"github.com/tournevent/uadirectory/internal/graphql"
	"github.com/tournevent/uadirectory/internal/lookup"
	"github.com/tournevent/uadirectory/internal/server"
	"github.com/tournevent/uadirectory/internal/telemetry"
	"github.com/tournevent/uadirectory/internal/waybill"
	"github.com/tournevent/uadirectory/pkg/carrier"
	"github.com/tournevent/uadirectory/pkg/carrier/catalog"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

// initTracer returns a no-op tracer when OTEL is disabled.
func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return noop.NewTracerProvider().Tracer(cfg.ServiceName), func(context.Context) error { return nil }, nil
	}

	tracer, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
	if err != nil {
		return noop.NewTracerProvider().Tracer(cfg.ServiceName), func(context.Context) error { return nil }, err
	}
	_, span := tracer.Start(ctx, "uadirectory.startup", trace.WithAttributes(cfg.Attributes()...))
	span.End()
	return tracer, shutdown, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := database.Connect(ctx, cfg.DBType, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, cfg.DBType); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initCarrierFactory(cfg *config.Config, logger *otelzap.Logger, tracer trace.Tracer) *carrier.Factory {
	return carrier.NewFactory(catalog.New(logger, tracer), cfg.CarrierSettings())
}

// directoryCarriers lists the enabled carriers that publish directories.
func directoryCarriers(factory *carrier.Factory) []string {
	return lo.Filter(factory.Enabled(), func(id string, _ int) bool {
		return factory.Registry().SupportsDirectories(id)
	})
}

func initCache(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) lookup.Cache {
	if cfg.RedisAddr == "" {
		return lookup.NewMemoryCache(cfg.CacheTTL)
	}

	rc := lookup.NewRedisCache(lookup.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Prefix:   cfg.ServiceName,
		TTL:      cfg.CacheTTL,
	})
	if err := rc.Ping(ctx); err != nil {
		logger.Warn("Redis unreachable, lookups will read the store until it recovers",
			zap.String("addr", cfg.RedisAddr),
			zap.Error(err),
		)
	}
	return rc
}

// app is the fully wired service.
type app struct {
	factory      *carrier.Factory
	store        *directory.Store
	orchestrator *dirsync.Orchestrator
	scheduler    *dirsync.Scheduler
	lookup       *lookup.Service
	waybills     *waybill.Service
	server       *server.Server
}

func buildApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, logger *otelzap.Logger, tracer trace.Tracer, metrics *telemetry.Metrics) *app {
	factory := initCarrierFactory(cfg, logger, tracer)
	store := directory.NewStore(db, directory.ParseLanguages(cfg.LanguagePriority))

	orchestrator := dirsync.NewOrchestrator(dirsync.Config{BatchSize: cfg.SyncBatchSize}, factory, store, logger, tracer, metrics)
	scheduler := dirsync.NewScheduler(dirsync.SchedulerConfig{
		InitialDelay: cfg.InitialSyncDelay,
		ManualDelay:  cfg.ManualSyncDelay,
		Interval:     cfg.RefreshInterval,
	}, orchestrator, logger)

	lookups := lookup.NewService(lookup.Config{DefaultCarrier: cfg.DefaultCarrier},
		store, factory.Registry(), initCache(ctx, cfg, logger), logger, metrics)
	orchestrator.OnComplete(func(ctx context.Context, r *dirsync.Report) {
		lookups.InvalidateCarrier(ctx, r.Carrier)
	})

	waybills := waybill.NewService(factory, store, cfg.DefaultCarrier, logger, metrics)

	resolver := graphql.NewResolver(graphql.Deps{
		Factory:   factory,
		Lookup:    lookups,
		Waybills:  waybills,
		Scheduler: scheduler,
		Directory: store,
	}, logger, metrics)

	return &app{
		factory:      factory,
		store:        store,
		orchestrator: orchestrator,
		scheduler:    scheduler,
		lookup:       lookups,
		waybills:     waybills,
		server:       server.New(server.Config{Port: cfg.Port}, resolver, logger, metrics),
	}
}

// scheduleSyncs queues a first sync for carriers never synced and installs
// recurring syncs when auto-refresh is on. Initial jobs survive
// ScheduleRecurring, which only replaces recurring ones.
func (a *app) scheduleSyncs(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) error {
	carriers := directoryCarriers(a.factory)
	for _, id := range carriers {
		_, synced, err := a.store.LastSyncFor(ctx, id)
		if err != nil {
			return fmt.Errorf("reading last sync for %s: %w", id, err)
		}
		if !synced && a.scheduler.ScheduleInitial(id) {
			logger.Ctx(ctx).Info("Scheduled initial directory sync", zap.String("carrier", id))
		}
	}
	if cfg.AutoRefresh {
		a.scheduler.ApplyAutoRefresh(true, carriers...)
	}
	return nil
}
