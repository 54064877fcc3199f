package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jonathan/patchnotes/internal/config"
	"github.com/jonathan/patchnotes/internal/db"
	"github.com/jonathan/patchnotes/internal/memstore"
	"github.com/jonathan/patchnotes/internal/pipeline"
	"github.com/jonathan/patchnotes/internal/query"
	"github.com/jonathan/patchnotes/internal/server"
	"github.com/jonathan/patchnotes/internal/sources"
	"github.com/jonathan/patchnotes/internal/types"
	"github.com/jonathan/patchnotes/internal/upsert"
)

// store is everything the commands need from a backend. Both *db.DB and
// *memstore.Store satisfy it.
type store interface {
	upsert.Store
	query.Reader
	pipeline.CheckpointStore
	pipeline.RunLog
	server.UserStore
}

var (
	_ store = (*db.DB)(nil)
	_ store = (*memstore.Store)(nil)
)

// app wires the store, adapters, scheduler and query service.
type app struct {
	cfg       *config.Config
	store     store
	scheduler *pipeline.Scheduler
	query     *query.Service
	close     func()
}

// newApp loads configuration and connects the store. With memory set the
// store lives in process and is lost on exit.
func newApp(ctx context.Context, memory bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var (
		st      store
		closeFn = func() {}
	)
	if memory {
		log.Printf("[app] using in-memory store")
		st = memstore.New()
	} else {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required (or use --memory)")
		}
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, err
		}
		st = database
		closeFn = database.Close
	}

	adapters, skipped := buildAdapters(cfg)
	if len(adapters) == 0 {
		closeFn()
		return nil, fmt.Errorf("no upstream adapters configured")
	}

	scheduler := pipeline.NewScheduler(adapters, upsert.New(st), st, st, pipeline.Options{
		StaleAfter:     time.Duration(cfg.StaleAfter),
		AdapterTimeout: time.Duration(cfg.AdapterTimeout),
		Skipped:        skipped,
	})
	syncer := query.SyncerFunc(func(ctx context.Context) error {
		_, err := scheduler.SyncIfStale(ctx)
		return err
	})

	return &app{
		cfg:       cfg,
		store:     st,
		scheduler: scheduler,
		query:     query.NewService(st, syncer),
		close:     closeFn,
	}, nil
}

// buildAdapters creates an adapter per upstream. Upstreams that need a key
// are skipped with a warning when it is missing, and their kinds returned.
func buildAdapters(cfg *config.Config) ([]sources.Adapter, []types.Kind) {
	var skipped []types.Kind
	adapters := []sources.Adapter{
		sources.NewFederalRegister(sources.FederalRegisterOptions{}),
	}
	if cfg.CongressAPIKey != "" {
		adapters = append(adapters, sources.NewCongress(sources.CongressOptions{
			APIKey:     cfg.CongressAPIKey,
			MaxResults: cfg.CongressMaxResults,
		}))
	} else {
		skipped = append(skipped, types.KindBill)
		log.Printf("[app] warning: CONGRESS_API_KEY not set, bills will not be synced; run preload for the missed window once it is set")
	}
	if cfg.RegulationsAPIKey != "" {
		adapters = append(adapters, sources.NewRegulations(sources.RegulationsOptions{
			APIKey:            cfg.RegulationsAPIKey,
			DetailConcurrency: cfg.DetailConcurrency,
		}))
	} else {
		skipped = append(skipped, types.KindRule, types.KindProposedRule)
		log.Printf("[app] warning: REGULATIONS_API_KEY not set, rules will not be synced; run preload for the missed window once it is set")
	}
	return adapters, skipped
}
