package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"studycal/internal/config"
	"studycal/internal/history"
	"studycal/internal/ics"
	appLog "studycal/internal/log"
	"studycal/internal/metrics"
	"studycal/internal/planner"
	"studycal/internal/scheduler"
	"studycal/internal/store"
)

// services are the long-lived dependencies of one command.
type services struct {
	planner *planner.Service
	metrics *metrics.Metrics
	closers []func() error
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			appLog.Warn("close failed", "err", err)
		}
	}
}

// buildServices wires the planner from config. The store and Redis
// history are optional and enabled by their config sections.
func buildServices(ctx context.Context, cfg *config.Config, sources []ics.Source, m *metrics.Metrics) (*services, error) {
	svc := &services{metrics: m}
	loc := scheduler.ResolveLocation(cfg.Timezone)

	opts := planner.Options{
		Engine:         scheduler.New(cfg.EngineOptions()),
		Feeds:          ics.NewFetcher(cfg.CacheDir, nil),
		Sources:        sources,
		Location:       loc,
		Preferences:    cfg.Preferences,
		Horizon:        cfg.Horizon(),
		MaxOccurrences: cfg.Scheduler.MaxOccurrences,
		Metrics:        m,
	}

	if cfg.Database.DSN != "" {
		db, err := store.Open(ctx, store.Options{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.closers = append(svc.closers, db.Close)
		if err := store.Migrate(ctx, db); err != nil {
			svc.Close()
			return nil, err
		}
		if err := m.RegisterDB(db.DB, "studycal"); err != nil {
			appLog.Warn("db stats collector not registered", "err", err)
		}
		opts.Store = store.New(db)
		appLog.Info("event store enabled")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			svc.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		rs := history.NewRedisStore(client, cfg.Redis.HistoryTTL)
		svc.closers = append(svc.closers, rs.Close)
		opts.History = rs
		appLog.Info("redis history enabled", "addr", cfg.Redis.Addr)
	}

	svc.planner = planner.New(opts)
	return svc, nil
}

// fileSources turns local calendar paths into fetch sources.
func fileSources(paths []string) []ics.Source {
	out := make([]ics.Source, 0, len(paths))
	for i, p := range paths {
		out = append(out, ics.Source{ID: fmt.Sprintf("file-%d", i+1), URL: p})
	}
	return out
}
