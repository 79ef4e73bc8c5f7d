package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fundlens/lead-engine/internal/models"
)

func (s *Store) CreateRun(ctx context.Context, run *models.BatchRun) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO batch_runs (batch_id, started_at, status) VALUES ($1, $2, $3)",
		run.BatchID, run.StartedAt, models.RunStatusRunning)
	if err != nil {
		return fmt.Errorf("create batch run: %w", err)
	}
	run.Status = models.RunStatusRunning
	return nil
}

// FinalizeRun writes the terminal state of a run. It is called exactly once
// per batch; the row is never mutated again afterwards.
func (s *Store) FinalizeRun(ctx context.Context, run *models.BatchRun) error {
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE batch_runs SET
			completed_at = $1,
			status = $2,
			contract_expiry_count = $3,
			equipment_refresh_count = $4,
			budget_cycle_count = $5,
			errors = $6,
			duration_seconds = $7
		WHERE batch_id = $8
	`, run.CompletedAt, run.Status,
		run.ContractExpiryCount, run.EquipmentRefreshCount, run.BudgetCycleCount,
		errs, run.DurationSeconds, run.BatchID)
	if err != nil {
		return fmt.Errorf("finalize batch run %s: %w", run.BatchID, err)
	}
	return nil
}

const runCols = `batch_id, started_at, completed_at, status,
	contract_expiry_count, equipment_refresh_count, budget_cycle_count,
	errors, duration_seconds`

func scanRun(scan func(dest ...any) error) (models.BatchRun, error) {
	var r models.BatchRun
	err := scan(
		&r.BatchID, &r.StartedAt, &r.CompletedAt, &r.Status,
		&r.ContractExpiryCount, &r.EquipmentRefreshCount, &r.BudgetCycleCount,
		&r.Errors, &r.DurationSeconds,
	)
	return r, err
}

// LatestRun returns the most recent batch run, or nil when none has run yet.
func (s *Store) LatestRun(ctx context.Context) (*models.BatchRun, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM batch_runs ORDER BY started_at DESC LIMIT 1", runCols))
	r, err := scanRun(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return &r, nil
}

func (s *Store) RecentRuns(ctx context.Context, limit int) ([]models.BatchRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM batch_runs ORDER BY started_at DESC LIMIT $1", runCols), limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var runs []models.BatchRun
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("recent runs scan: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
