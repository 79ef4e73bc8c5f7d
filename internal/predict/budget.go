package predict

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundlens/lead-engine/internal/config"
	"github.com/fundlens/lead-engine/internal/models"
	"github.com/fundlens/lead-engine/internal/usac"
)

// Budget-cycle scoring weights.
const (
	budgetBaseScore     = 0.60
	budgetUnspentBonus  = 0.20
	budgetCycleEndBonus = 0.20
	budgetGraceDays     = 90
)

// BudgetCycleDetector finds entities sitting on unspent Category 2 budget
// as the cycle end approaches. Unspent allocation is use-it-or-lose-it, so
// a large remainder late in the cycle signals imminent purchasing.
type BudgetCycleDetector struct {
	source RecordSource
	repo   Repository
	cfg    config.BudgetCycleConfig
	now    func() time.Time
	log    zerolog.Logger
}

func NewBudgetCycleDetector(source RecordSource, repo Repository, cfg config.BudgetCycleConfig, log zerolog.Logger) *BudgetCycleDetector {
	return &BudgetCycleDetector{
		source: source,
		repo:   repo,
		cfg:    cfg,
		now:    time.Now,
		log:    log.With().Str("detector", "budget-cycle").Logger(),
	}
}

func (d *BudgetCycleDetector) Name() string { return "budget-cycle" }

func (d *BudgetCycleDetector) Type() models.PredictionType {
	return models.PredictionBudgetCycleReset
}

func (d *BudgetCycleDetector) Detect(ctx context.Context, batchID string, scope Scope) (int, error) {
	now := d.now().UTC()

	records, err := d.source.BudgetBalances(ctx, usac.QueryOptions{
		States: scope.States,
		Limit:  d.cfg.RecordLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch budget balances: %w", err)
	}

	writer := newChunkWriter(d.repo)
	seen := map[string]bool{}

	for _, rec := range records {
		opp, ok := d.evaluate(rec, now, batchID)
		if !ok {
			continue
		}
		if seen[opp.NaturalKey] {
			continue
		}
		dup, err := d.repo.HasActiveOpportunity(ctx, models.PredictionBudgetCycleReset, opp.NaturalKey)
		if err != nil {
			return writer.inserted, err
		}
		if dup {
			continue
		}
		seen[opp.NaturalKey] = true
		if err := writer.add(ctx, opp); err != nil {
			return writer.inserted, err
		}
	}

	if err := writer.flush(ctx); err != nil {
		return writer.inserted, err
	}
	return writer.inserted, nil
}

func (d *BudgetCycleDetector) evaluate(rec usac.BudgetRecord, now time.Time, batchID string) (models.Opportunity, bool) {
	if rec.BEN == "" || rec.CycleLabel == "" {
		d.log.Warn().Str("entity", rec.EntityName).Msg("Skipping record with missing natural-key fields")
		return models.Opportunity{}, false
	}

	total, err := parseMoney(rec.BudgetTotal)
	if err != nil {
		d.log.Warn().Str("ben", rec.BEN).Err(err).Msg("Skipping record")
		return models.Opportunity{}, false
	}
	remaining, err := parseMoney(rec.BudgetRemaining)
	if err != nil {
		d.log.Warn().Str("ben", rec.BEN).Err(err).Msg("Skipping record")
		return models.Opportunity{}, false
	}
	cycleEnd, err := parseDate(rec.CycleEndDate)
	if err != nil {
		d.log.Warn().Str("ben", rec.BEN).Err(err).Msg("Skipping record")
		return models.Opportunity{}, false
	}

	if remaining < d.cfg.MinDealValue {
		return models.Opportunity{}, false
	}

	mostlyUnspent := remaining > total/2
	endingSoon := cycleEnd.After(now) && cycleEnd.Before(now.AddDate(0, d.cfg.LookaheadMonths, 0))

	score := budgetBaseScore
	if mostlyUnspent {
		score += budgetUnspentBonus
	}
	if endingSoon {
		score += budgetCycleEndBonus
	}

	reason := fmt.Sprintf("%d%% of the %s Category 2 budget is unspent (%s of %s) with the cycle ending %s",
		percentOf(remaining, total), rec.CycleLabel,
		formatMoney(remaining), formatMoney(total), cycleEnd.Format("January 2006"))

	expiresAt := cycleEnd.AddDate(0, 0, budgetGraceDays)
	actionDate := cycleEnd

	return models.Opportunity{
		PredictionType:      models.PredictionBudgetCycleReset,
		ConfidenceScore:     clampScore(score),
		PredictionReason:    reason,
		PredictedActionDate: &actionDate,
		EntityID:            rec.BEN,
		EntityName:          rec.EntityName,
		State:               rec.State,
		EntityType:          rec.EntityType,
		EstimatedValue:      remaining,
		ServiceCategory:     "Category 2",
		BudgetTotal:         total,
		BudgetRemaining:     remaining,
		BudgetCycle:         rec.CycleLabel,
		NaturalKey:          rec.BEN + ":" + rec.CycleLabel,
		SourceRecordIDs:     []string{},
		SourceDataset:       usac.Dataset,
		Status:              models.StatusNew,
		BatchID:             batchID,
		ExpiresAt:           &expiresAt,
	}, true
}
