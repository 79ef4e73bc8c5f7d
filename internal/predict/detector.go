package predict

import (
	"context"
	"time"

	"github.com/fundlens/lead-engine/internal/models"
	"github.com/fundlens/lead-engine/internal/usac"
)

// Scope narrows a batch run to a subset of the dataset.
type Scope struct {
	States []string
}

// Detector is one heuristic miner. Detect returns the number of new
// opportunities inserted for this batch.
type Detector interface {
	Name() string
	Type() models.PredictionType
	Detect(ctx context.Context, batchID string, scope Scope) (int, error)
}

// Repository is the slice of the store the batch side needs: dedup lookups,
// chunked inserts, run-log bookkeeping and the single-flight lock.
type Repository interface {
	HasActiveOpportunity(ctx context.Context, t models.PredictionType, naturalKey string) (bool, error)
	InsertOpportunities(ctx context.Context, opps []models.Opportunity) (int, error)
	ClearActive(ctx context.Context) (int64, error)
	CreateRun(ctx context.Context, run *models.BatchRun) error
	FinalizeRun(ctx context.Context, run *models.BatchRun) error
	AcquireRunLock(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// RecordSource is the external public-record client consumed by detectors.
type RecordSource interface {
	ExpiringContracts(ctx context.Context, from, to time.Time, opts usac.QueryOptions) ([]usac.ContractRecord, error)
	EquipmentPurchases(ctx context.Context, sinceFundingYear int, opts usac.QueryOptions) ([]usac.EquipmentRecord, error)
	BudgetBalances(ctx context.Context, opts usac.QueryOptions) ([]usac.BudgetRecord, error)
}

// insertChunkSize bounds each committed chunk so a crash mid-run loses at
// most one chunk of work; the dedup guard makes re-runs safe.
const insertChunkSize = 100

// chunkWriter accumulates drafts and flushes them in bounded chunks,
// checking for cancellation at each chunk boundary.
type chunkWriter struct {
	repo     Repository
	pending  []models.Opportunity
	inserted int
}

func newChunkWriter(repo Repository) *chunkWriter {
	return &chunkWriter{repo: repo}
}

func (w *chunkWriter) add(ctx context.Context, o models.Opportunity) error {
	w.pending = append(w.pending, o)
	if len(w.pending) >= insertChunkSize {
		return w.flush(ctx)
	}
	return nil
}

func (w *chunkWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := w.repo.InsertOpportunities(ctx, w.pending)
	if err != nil {
		return err
	}
	w.inserted += n
	w.pending = w.pending[:0]
	return nil
}
