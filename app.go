package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"eventinsight/internal/analytics"
	"eventinsight/internal/config"
	"eventinsight/internal/db"
	"eventinsight/internal/lease"
	"eventinsight/internal/metrics"
	"eventinsight/internal/registry"
)

// app holds the components shared by the serve and aggregate commands.
type app struct {
	log        *zap.Logger
	db         *gorm.DB
	lease      *lease.Redis
	gateway    *analytics.Gateway
	aggregator *analytics.Aggregator
	registry   *registry.Registry
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, reg prometheus.Registerer) (*app, error) {
	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Error("Failed to connect database", zap.Error(err))
		return nil, err
	}

	a := &app{log: log, db: sqlDB, registry: registry.New()}

	var locker analytics.Locker = lease.Noop{}
	if cfg.RedisURL != "" {
		a.lease, err = lease.Dial(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		locker = a.lease
		log.Info("Aggregation lease enabled", zap.Duration("ttl", cfg.LeaseTTL))
	}

	m := metrics.New(reg)
	raw := db.NewRawEventStore(sqlDB)
	counters := db.NewCounterStore(sqlDB)

	a.gateway = analytics.NewGateway(raw, counters, m, log)
	a.aggregator = analytics.NewAggregator(raw, counters, log,
		analytics.WithBatchSize(cfg.AggregationBatchSize),
		analytics.WithLocker(locker, cfg.LeaseTTL),
		analytics.WithMetrics(m),
	)

	if err := analytics.Publish(a.registry, a.gateway, a.aggregator); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.lease != nil {
		if err := a.lease.Close(); err != nil {
			a.log.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.log.Warn("Failed to close database", zap.Error(err))
		}
	}
}
