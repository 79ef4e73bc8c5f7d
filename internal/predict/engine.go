package predict

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fundlens/lead-engine/internal/models"
)

// ErrRunInProgress is returned when another batch holds the run lock.
var ErrRunInProgress = errors.New("a batch run is already in progress")

// RunOptions selects the scope of a batch run.
type RunOptions struct {
	States       []string
	ForceRefresh bool
}

// Engine orchestrates one full batch: it serializes runs behind the
// single-flight lock, walks the detectors in a fixed order and records the
// outcome in the run log. One failing detector never stops the others.
type Engine struct {
	repo      Repository
	detectors []Detector
	now       func() time.Time
	log       zerolog.Logger
}

func NewEngine(repo Repository, detectors []Detector, log zerolog.Logger) *Engine {
	return &Engine{
		repo:      repo,
		detectors: detectors,
		now:       time.Now,
		log:       log.With().Str("component", "engine").Logger(),
	}
}

func newBatchID(started time.Time) string {
	return started.Format("20060102T150405Z") + "-" + strings.Split(uuid.NewString(), "-")[0]
}

func (e *Engine) Run(ctx context.Context, opts RunOptions) (*models.RunSummary, error) {
	release, ok, err := e.repo.AcquireRunLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			e.log.Error().Err(err).Msg("Failed to release run lock")
		}
	}()

	started := e.now().UTC()
	run := &models.BatchRun{
		BatchID:   newBatchID(started),
		StartedAt: started,
	}
	if err := e.repo.CreateRun(ctx, run); err != nil {
		// Repository unavailable at run start is the one fatal case: no run
		// log row exists, so surface the error to the caller/scheduler.
		return nil, fmt.Errorf("create run log: %w", err)
	}

	e.log.Info().Str("batch_id", run.BatchID).Bool("force_refresh", opts.ForceRefresh).Msg("Batch run started")

	if opts.ForceRefresh {
		cleared, err := e.repo.ClearActive(ctx)
		if err != nil {
			return e.finalize(ctx, run, started, nil, models.RunStatusFailed,
				append(run.Errors, fmt.Sprintf("force refresh: %v", err)))
		}
		e.log.Info().Int64("cleared", cleared).Msg("Cleared active opportunities before refresh")
	}

	scope := Scope{States: opts.States}
	counts := map[models.PredictionType]int{}
	var runErrors []string
	cancelled := false

	for _, d := range e.detectors {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		count, err := d.Detect(ctx, run.BatchID, scope)
		run.SetCount(d.Type(), count)
		counts[d.Type()] = count

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				cancelled = true
				break
			}
			runErrors = append(runErrors, fmt.Sprintf("%s: %v", d.Name(), err))
			e.log.Error().Err(err).Str("detector", d.Name()).Msg("Detector failed, continuing with remaining detectors")
			continue
		}
		e.log.Info().Str("detector", d.Name()).Int("inserted", count).Msg("Detector completed")
	}

	var status models.RunStatus
	switch {
	case cancelled:
		status = models.RunStatusCancelled
	case len(runErrors) == 0:
		status = models.RunStatusCompleted
	case len(runErrors) < len(e.detectors):
		status = models.RunStatusCompletedWithErrors
	default:
		status = models.RunStatusFailed
	}

	return e.finalize(ctx, run, started, counts, status, runErrors)
}

func (e *Engine) finalize(ctx context.Context, run *models.BatchRun, started time.Time,
	counts map[models.PredictionType]int, status models.RunStatus, runErrors []string) (*models.RunSummary, error) {

	completed := e.now().UTC()
	run.CompletedAt = &completed
	run.DurationSeconds = completed.Sub(started).Seconds()
	run.Status = status
	run.Errors = runErrors

	// Finalization must survive caller cancellation, otherwise a cancelled
	// batch leaves its run log permanently "running".
	if err := e.repo.FinalizeRun(context.WithoutCancel(ctx), run); err != nil {
		return nil, fmt.Errorf("finalize run log: %w", err)
	}

	if counts == nil {
		counts = map[models.PredictionType]int{}
	}
	summary := &models.RunSummary{
		BatchID:         run.BatchID,
		Total:           run.Total(),
		CountsByType:    counts,
		Errors:          runErrors,
		DurationSeconds: run.DurationSeconds,
		Status:          status,
	}

	e.log.Info().
		Str("batch_id", run.BatchID).
		Str("status", string(status)).
		Int("total", summary.Total).
		Int("errors", len(runErrors)).
		Float64("duration_seconds", run.DurationSeconds).
		Msg("Batch run finished")

	return summary, nil
}
