// Package main provides the combat daemon: it hosts the combat engine,
// restores in-progress combats from the snapshot store, autosaves them and
// advances stalled turns.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sharronesofer/visual-dm-sub028/internal/config"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/combat"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/content"
	"github.com/sharronesofer/visual-dm-sub028/internal/game/dice"
	"github.com/sharronesofer/visual-dm-sub028/internal/observability"
	"github.com/sharronesofer/visual-dm-sub028/internal/server"
	"github.com/sharronesofer/visual-dm-sub028/internal/storage/postgres"
	"github.com/sharronesofer/visual-dm-sub028/internal/storage/sqlite"
)

// snapshotStore is what the daemon needs from a storage driver.
type snapshotStore interface {
	combat.SnapshotStore
	Prune(ctx context.Context, combatID string, keep int) (int64, error)
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	scenarioPath := flag.String("scenario", "", "optional scenario YAML to start a combat from")
	keep := flag.Int("keep", 10, "snapshots kept per combat after each autosave")
	flag.Parse()
	if *keep < 1 {
		log.Fatalf("-keep must be >= 1, got %d", *keep)
	}

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger("combatd", cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	defer observability.RedirectStdLog(logger)()

	src := dice.NewCryptoSource()
	if cfg.Combat.Seed != 0 {
		src = dice.NewSeededSource(cfg.Combat.Seed)
		logger.Warn("using seeded dice", zap.Uint64("seed", cfg.Combat.Seed))
	}
	roller := dice.NewLoggedRoller(src, logger)

	bundle, err := content.Load(content.Paths{
		ActionsDir:       cfg.Content.ActionsDir,
		EffectsDir:       cfg.Content.EffectsDir,
		ScriptsDir:       cfg.Content.ScriptsDir,
		InstructionLimit: cfg.Content.InstructionLimit,
	}, roller, logger)
	if err != nil {
		logger.Fatal("loading content", zap.Error(err))
	}
	defer bundle.Close()

	engine := combat.NewEngine(bundle.Actions, combat.Options{
		MovementBudget: cfg.Combat.MovementBudget,
		Source:         src,
		Logger:         logger,
		Telemetry:      combat.NewLoggingTelemetry(logger),
		Templates:      bundle.Effects,
		AutoResolve:    cfg.Combat.AutoResolve,
		LogLimit:       cfg.Combat.LogLimit,
		HistoryLimit:   cfg.Combat.HistoryLimit,
	}, cfg.Combat.TurnTimeout)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("opening snapshot store", zap.Error(err))
	}
	defer closeStore()

	if store != nil {
		n, err := engine.RestoreAll(ctx, store)
		if err != nil {
			logger.Error("some combats could not be restored", zap.Error(err))
		}
		logger.Info("combats restored", zap.Int("count", n))
	}

	if *scenarioPath != "" {
		if err := startScenario(ctx, engine, *scenarioPath); err != nil {
			logger.Fatal("starting scenario", zap.String("path", *scenarioPath), zap.Error(err))
		}
	}

	lc := server.NewLifecycle(logger)
	idle := make(chan struct{})
	lc.Add("engine", &server.FuncService{
		StartFn: func() error { <-idle; return nil },
		StopFn: func() {
			for _, id := range engine.IDs() {
				_ = engine.End(id)
			}
			close(idle)
		},
	})
	if store != nil && cfg.Storage.AutosaveInterval > 0 {
		lc.Add("autosave", server.NewPeriodicService("autosave", cfg.Storage.AutosaveInterval,
			autosave(engine, store, *keep), logger))
	}

	logger.Info("combat daemon ready",
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("combats", len(engine.IDs())),
		zap.Duration("turn_timeout", cfg.Combat.TurnTimeout),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lc.Run(ctx); err != nil {
		logger.Error("daemon stopped with error", zap.Error(err))
	}
}

// openStore returns the configured snapshot store, or nil for the "none"
// driver.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (snapshotStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewSnapshotRepository(pool.DB()), pool.Close, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

// pruneWorkers bounds concurrent Prune calls during autosave.
const pruneWorkers = 4

// autosave snapshots every hosted combat and trims each history to keep rows.
func autosave(engine *combat.Engine, store snapshotStore, keep int) func(context.Context) error {
	return func(ctx context.Context) error {
		saveErr := engine.SaveAll(ctx, store)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(pruneWorkers)
		for _, id := range engine.IDs() {
			g.Go(func() error {
				if _, err := store.Prune(gctx, id, keep); err != nil {
					return fmt.Errorf("pruning %s: %w", id, err)
				}
				return nil
			})
		}
		return errors.Join(saveErr, g.Wait())
	}
}

func startScenario(ctx context.Context, engine *combat.Engine, path string) error {
	s, err := content.LoadScenario(path)
	if err != nil {
		return err
	}
	// Already restored from the store.
	if _, err := engine.View(s.ID); err == nil {
		return nil
	}
	id, err := engine.Create(s.ID)
	if err != nil {
		return fmt.Errorf("creating combat: %w", err)
	}
	if err := engine.Do(ctx, id, s.Seed); err != nil {
		_ = engine.End(id)
		return err
	}
	return nil
}
