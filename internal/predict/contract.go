package predict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundlens/lead-engine/internal/config"
	"github.com/fundlens/lead-engine/internal/models"
	"github.com/fundlens/lead-engine/internal/usac"
)

// Contract-expiry scoring weights.
const (
	contractBaseScore      = 0.70
	contractFundedBonus    = 0.10
	contractHighValueBonus = 0.10
	contractSoonBonus      = 0.10
	contractGraceDays      = 30
)

// ContractExpiryDetector mines funded FRNs whose service contract expires
// inside the lookahead window. Districts typically rebid 3-6 months before
// expiration, so a nearer expiry scores higher.
type ContractExpiryDetector struct {
	source RecordSource
	repo   Repository
	cfg    config.ContractExpiryConfig
	now    func() time.Time
	log    zerolog.Logger
}

func NewContractExpiryDetector(source RecordSource, repo Repository, cfg config.ContractExpiryConfig, log zerolog.Logger) *ContractExpiryDetector {
	return &ContractExpiryDetector{
		source: source,
		repo:   repo,
		cfg:    cfg,
		now:    time.Now,
		log:    log.With().Str("detector", "contract-expiry").Logger(),
	}
}

func (d *ContractExpiryDetector) Name() string { return "contract-expiry" }

func (d *ContractExpiryDetector) Type() models.PredictionType {
	return models.PredictionContractExpiry
}

func (d *ContractExpiryDetector) Detect(ctx context.Context, batchID string, scope Scope) (int, error) {
	now := d.now().UTC()
	to := now.AddDate(0, d.cfg.LookaheadMonths, 0)

	records, err := d.source.ExpiringContracts(ctx, now, to, usac.QueryOptions{
		States: scope.States,
		Limit:  d.cfg.RecordLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch expiring contracts: %w", err)
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
		dup, err := d.repo.HasActiveOpportunity(ctx, models.PredictionContractExpiry, opp.NaturalKey)
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

func (d *ContractExpiryDetector) evaluate(rec usac.ContractRecord, now time.Time, batchID string) (models.Opportunity, bool) {
	if rec.BEN == "" || rec.ContractNumber == "" {
		d.log.Warn().Str("frn", rec.FRN).Msg("Skipping record with missing natural-key fields")
		return models.Opportunity{}, false
	}

	expiry, err := parseDate(rec.ContractExpiryDate)
	if err != nil {
		d.log.Warn().Str("ben", rec.BEN).Str("contract", rec.ContractNumber).Err(err).Msg("Skipping record")
		return models.Opportunity{}, false
	}

	value, err := parseMoney(rec.CommittedAmount)
	if err != nil {
		d.log.Warn().Str("ben", rec.BEN).Str("contract", rec.ContractNumber).Err(err).Msg("Skipping record")
		return models.Opportunity{}, false
	}
	if value < d.cfg.MinDealValue {
		return models.Opportunity{}, false
	}

	funded := strings.EqualFold(strings.TrimSpace(rec.FRNStatus), "funded")
	highValue := value > d.cfg.HighValueThreshold
	soon := expiry.Before(now.AddDate(0, d.cfg.ExpiringSoonMonths, 0))

	score := contractBaseScore
	if funded {
		score += contractFundedBonus
	}
	if highValue {
		score += contractHighValueBonus
	}
	if soon {
		score += contractSoonBonus
	}

	reason := fmt.Sprintf("Contract %s expires %s with %s committed",
		rec.ContractNumber, expiry.Format("January 2006"), formatMoney(value))
	if rec.ServiceProvider != "" {
		reason = fmt.Sprintf("Contract %s with %s expires %s; %s committed",
			rec.ContractNumber, rec.ServiceProvider, expiry.Format("January 2006"), formatMoney(value))
	}
	if funded {
		reason += "; FRN is actively funded"
	}
	if soon {
		reason += fmt.Sprintf("; expires within %d months", d.cfg.ExpiringSoonMonths)
	}

	expiresAt := expiry.AddDate(0, 0, contractGraceDays)
	actionDate := expiry

	return models.Opportunity{
		PredictionType:      models.PredictionContractExpiry,
		ConfidenceScore:     clampScore(score),
		PredictionReason:    reason,
		PredictedActionDate: &actionDate,
		EntityID:            rec.BEN,
		EntityName:          rec.EntityName,
		State:               rec.State,
		EntityType:          rec.EntityType,
		EstimatedValue:      value,
		ServiceCategory:     rec.ServiceCategory,
		VendorBrand:         rec.ServiceProvider,
		ProductType:         rec.ServiceType,
		ContractNumber:      rec.ContractNumber,
		ContractExpiresAt:   &expiry,
		CurrentProviderID:   rec.SPIN,
		NaturalKey:          rec.BEN + ":" + rec.ContractNumber,
		SourceRecordIDs:     sourceIDs(rec.ApplicationNumber, rec.FRN),
		SourceDataset:       usac.Dataset,
		Status:              models.StatusNew,
		BatchID:             batchID,
		ExpiresAt:           &expiresAt,
	}, true
}

func sourceIDs(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
