package predict

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fundlens/lead-engine/internal/config"
	"github.com/fundlens/lead-engine/internal/models"
	"github.com/fundlens/lead-engine/internal/usac"
)

// fakeRepo is an in-memory Repository for detector and engine tests.
type fakeRepo struct {
	mu sync.Mutex

	activeKeys map[string]bool
	inserted   []models.Opportunity
	runs       []*models.BatchRun
	clearCalls int
	lockHeld   bool

	hasActiveErr error
	insertErr    error
	createRunErr error
	clearErr     error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{activeKeys: map[string]bool{}}
}

func activeKey(t models.PredictionType, naturalKey string) string {
	return string(t) + "|" + naturalKey
}

func (r *fakeRepo) HasActiveOpportunity(ctx context.Context, t models.PredictionType, naturalKey string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasActiveErr != nil {
		return false, r.hasActiveErr
	}
	return r.activeKeys[activeKey(t, naturalKey)], nil
}

func (r *fakeRepo) InsertOpportunities(ctx context.Context, opps []models.Opportunity) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return 0, r.insertErr
	}
	for _, o := range opps {
		r.activeKeys[activeKey(o.PredictionType, o.NaturalKey)] = true
	}
	r.inserted = append(r.inserted, opps...)
	return len(opps), nil
}

func (r *fakeRepo) ClearActive(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clearErr != nil {
		return 0, r.clearErr
	}
	r.clearCalls++
	n := int64(len(r.activeKeys))
	r.activeKeys = map[string]bool{}
	return n, nil
}

func (r *fakeRepo) CreateRun(ctx context.Context, run *models.BatchRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createRunErr != nil {
		return r.createRunErr
	}
	run.Status = models.RunStatusRunning
	copied := *run
	r.runs = append(r.runs, &copied)
	return nil
}

func (r *fakeRepo) FinalizeRun(ctx context.Context, run *models.BatchRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.runs {
		if existing.BatchID == run.BatchID {
			copied := *run
			r.runs[i] = &copied
			return nil
		}
	}
	return fmt.Errorf("no run log row for batch %s", run.BatchID)
}

func (r *fakeRepo) AcquireRunLock(ctx context.Context) (func(context.Context) error, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lockHeld {
		return nil, false, nil
	}
	r.lockHeld = true
	return func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.lockHeld = false
		return nil
	}, true, nil
}

func (r *fakeRepo) lastRun() *models.BatchRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) == 0 {
		return nil
	}
	return r.runs[len(r.runs)-1]
}

// fakeSource serves canned USAC records.
type fakeSource struct {
	contracts []usac.ContractRecord
	equipment []usac.EquipmentRecord
	budgets   []usac.BudgetRecord

	contractsErr error
	equipmentErr error
	budgetsErr   error

	lastOpts usac.QueryOptions
}

func (s *fakeSource) ExpiringContracts(ctx context.Context, from, to time.Time, opts usac.QueryOptions) ([]usac.ContractRecord, error) {
	s.lastOpts = opts
	if s.contractsErr != nil {
		return nil, s.contractsErr
	}
	return s.contracts, nil
}

func (s *fakeSource) EquipmentPurchases(ctx context.Context, sinceFundingYear int, opts usac.QueryOptions) ([]usac.EquipmentRecord, error) {
	s.lastOpts = opts
	if s.equipmentErr != nil {
		return nil, s.equipmentErr
	}
	return s.equipment, nil
}

func (s *fakeSource) BudgetBalances(ctx context.Context, opts usac.QueryOptions) ([]usac.BudgetRecord, error) {
	s.lastOpts = opts
	if s.budgetsErr != nil {
		return nil, s.budgetsErr
	}
	return s.budgets, nil
}

// fixedClock pins detector/engine time for deterministic scoring windows.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testDetectorConfig() (contract config.ContractExpiryConfig, equipment config.EquipmentRefreshConfig, budget config.BudgetCycleConfig) {
	contract = config.ContractExpiryConfig{
		LookaheadMonths:    12,
		ExpiringSoonMonths: 6,
		MinDealValue:       10000,
		HighValueThreshold: 50000,
		RecordLimit:        2000,
	}
	equipment = config.EquipmentRefreshConfig{
		RefreshCycleYears:  5,
		LookbackYears:      10,
		MinDealValue:       10000,
		HighValueThreshold: 50000,
		RecordLimit:        2000,
	}
	budget = config.BudgetCycleConfig{
		LookaheadMonths: 12,
		MinDealValue:    10000,
		RecordLimit:     2000,
	}
	return contract, equipment, budget
}
