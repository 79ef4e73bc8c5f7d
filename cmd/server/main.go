package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundlens/lead-engine/internal/api"
	"github.com/fundlens/lead-engine/internal/config"
	"github.com/fundlens/lead-engine/internal/db"
	"github.com/fundlens/lead-engine/internal/predict"
	"github.com/fundlens/lead-engine/internal/query"
	"github.com/fundlens/lead-engine/internal/scheduler"
	"github.com/fundlens/lead-engine/internal/usac"
)

// refreshJob runs the batch engine on the configured schedule. A run
// already holding the lock is skipped, not an error.
type refreshJob struct {
	engine *predict.Engine
	log    zerolog.Logger
}

func (j refreshJob) Name() string { return "scheduled-refresh" }

func (j refreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	summary, err := j.engine.Run(ctx, predict.RunOptions{})
	if err != nil {
		if errors.Is(err, predict.ErrRunInProgress) {
			j.log.Warn().Msg("Skipping scheduled refresh, another run is in progress")
			return nil
		}
		return err
	}

	j.log.Info().
		Str("batch_id", summary.BatchID).
		Str("status", string(summary.Status)).
		Int("total", summary.Total).
		Msg("Scheduled refresh finished")
	return nil
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg := config.Load()

	detectorCfg, err := config.LoadDetectorConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load detector config")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, log); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	store := db.NewStore(pool)
	source := usac.NewClient(cfg.USACBaseURL, log)

	detectors := []predict.Detector{
		predict.NewContractExpiryDetector(source, store, detectorCfg.ContractExpiry, log),
		predict.NewEquipmentRefreshDetector(source, store, detectorCfg.EquipmentRefresh, log),
		predict.NewBudgetCycleDetector(source, store, detectorCfg.BudgetCycle, log),
	}
	engine := predict.NewEngine(store, detectors, log)

	// Sweep leads whose window has already closed before serving traffic.
	if expired, err := store.ExpireStale(ctx, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Msg("Stale-lead sweep failed")
	} else if expired > 0 {
		log.Info().Int64("expired", expired).Msg("Dismissed stale leads")
	}

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.RefreshCron, refreshJob{engine: engine, log: log}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.RefreshCron).Msg("Failed to register refresh job")
	}
	sched.Start()
	defer sched.Stop()

	svc := query.NewService(store, log)
	srv := api.NewServer(cfg, svc, store, engine, log)

	log.Info().Str("port", cfg.Port).Msg("Server starting")
	if err := srv.Start(cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
