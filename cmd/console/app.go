package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"govconsole/internal/canister"
	"govconsole/internal/config"
	"govconsole/internal/logger"
	"govconsole/internal/metrics"
	"govconsole/internal/services/views"
	"govconsole/internal/store/memory"
	"govconsole/internal/store/postgres"
	"govconsole/internal/store/repositories"
)

// app holds the collaborators shared by the commands
type app struct {
	cfg       config.Cfg
	logs      *logger.Ring
	metrics   *metrics.Metrics
	client    *canister.Client
	proposals repositories.ProposalRepository
	govs      repositories.GovernanceRepository
	stores    views.Stores

	pool       *pgxpool.Pool
	redis      *redis.Client
	stopLogObs func()
}

func loadConfig() (config.Cfg, *logger.Ring, error) {
	cfg := config.Load()
	ring := logger.Setup(logger.Options{Level: cfg.Log.Level, Env: cfg.App.Env, Buffer: cfg.Log.Buffer})
	if err := cfg.Validate(); err != nil {
		return cfg, ring, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, ring, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, ring, err := loadConfig()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		cfg:     cfg,
		logs:    ring,
		metrics: metrics.New(reg),
		client:  canister.NewClient(cfg.Governance.URL, cfg.Governance.TimeoutSec),
		stores:  views.MemoryStores{},
	}
	a.stopLogObs = ring.Listen(func(e logger.Entry) { a.metrics.ObserveLogEntry(e.Level) })

	if cfg.DB.DSN != "" {
		pool, err := postgres.Open(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		if err := postgres.Migrate(ctx, pool); err != nil {
			a.Close()
			return nil, err
		}
		a.proposals = postgres.NewProposalRepository(pool)
		a.govs = postgres.NewGovernanceRepository(pool)
	} else {
		log.Warn().Msg("DB_DSN not set, proposal mirror is kept in memory")
		a.proposals = memory.NewProposalRepository()
		a.govs = memory.NewGovernanceRepository()
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			a.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		a.redis = rdb
		a.stores = views.RedisStores{Client: rdb, TTL: cfg.Redis.SessionTTL}
	}
	return a, nil
}

func (a *app) Close() {
	a.stopLogObs()
	a.client.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
