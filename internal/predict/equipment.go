package predict

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundlens/lead-engine/internal/config"
	"github.com/fundlens/lead-engine/internal/models"
	"github.com/fundlens/lead-engine/internal/usac"
)

// Equipment-refresh scoring weights.
const (
	equipmentBaseScore       = 0.50
	equipmentOverdueBonusMax = 0.20
	equipmentHighValueBonus  = 0.15
	equipmentBrandBonus      = 0.15
)

// recognizedBrands are manufacturers with an established E-Rate resale
// channel; a known brand makes the refresh path more predictable.
var recognizedBrands = []string{
	"cisco", "meraki", "aruba", "hpe", "hewlett packard", "juniper",
	"fortinet", "ruckus", "extreme networks", "ubiquiti", "palo alto",
}

func recognizedBrand(manufacturer string) bool {
	m := strings.ToLower(strings.TrimSpace(manufacturer))
	if m == "" {
		return false
	}
	for _, b := range recognizedBrands {
		if strings.Contains(m, b) {
			return true
		}
	}
	return false
}

// EquipmentRefreshDetector finds entities whose Category 2 equipment is at
// or past the expected refresh cycle. Line items are rolled up per entity
// and manufacturer, which is also the natural key.
type EquipmentRefreshDetector struct {
	source RecordSource
	repo   Repository
	cfg    config.EquipmentRefreshConfig
	now    func() time.Time
	log    zerolog.Logger
}

func NewEquipmentRefreshDetector(source RecordSource, repo Repository, cfg config.EquipmentRefreshConfig, log zerolog.Logger) *EquipmentRefreshDetector {
	return &EquipmentRefreshDetector{
		source: source,
		repo:   repo,
		cfg:    cfg,
		now:    time.Now,
		log:    log.With().Str("detector", "equipment-refresh").Logger(),
	}
}

func (d *EquipmentRefreshDetector) Name() string { return "equipment-refresh" }

func (d *EquipmentRefreshDetector) Type() models.PredictionType {
	return models.PredictionEquipmentRefresh
}

// fleet is the per-(entity, manufacturer) rollup of equipment line items.
type fleet struct {
	rec          usac.EquipmentRecord
	totalValue   float64
	earliestYear int
	itemCount    int
	sourceIDs    []string
}

func (d *EquipmentRefreshDetector) Detect(ctx context.Context, batchID string, scope Scope) (int, error) {
	now := d.now().UTC()
	since := now.Year() - d.cfg.LookbackYears

	records, err := d.source.EquipmentPurchases(ctx, since, usac.QueryOptions{
		States: scope.States,
		Limit:  d.cfg.RecordLimit,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch equipment purchases: %w", err)
	}

	fleets := map[string]*fleet{}
	var keys []string
	for _, rec := range records {
		if rec.BEN == "" || strings.TrimSpace(rec.Manufacturer) == "" {
			d.log.Warn().Str("frn", rec.FRN).Msg("Skipping record with missing natural-key fields")
			continue
		}
		year, err := parseYear(rec.FundingYear)
		if err != nil {
			d.log.Warn().Str("ben", rec.BEN).Err(err).Msg("Skipping record")
			continue
		}
		cost, err := parseMoney(rec.Cost)
		if err != nil {
			d.log.Warn().Str("ben", rec.BEN).Err(err).Msg("Skipping record")
			continue
		}

		key := rec.BEN + ":" + strings.ToLower(strings.TrimSpace(rec.Manufacturer))
		f, ok := fleets[key]
		if !ok {
			f = &fleet{rec: rec, earliestYear: year}
			fleets[key] = f
			keys = append(keys, key)
		}
		f.totalValue += cost
		f.itemCount++
		if year < f.earliestYear {
			f.earliestYear = year
		}
		f.sourceIDs = append(f.sourceIDs, sourceIDs(rec.ApplicationNumber, rec.FRN)...)
	}
	// Map iteration order is random; keep enumeration (and therefore chunk
	// commit order) stable across runs.
	sort.Strings(keys)

	writer := newChunkWriter(d.repo)
	for _, key := range keys {
		opp, ok := d.evaluate(key, fleets[key], now, batchID)
		if !ok {
			continue
		}
		dup, err := d.repo.HasActiveOpportunity(ctx, models.PredictionEquipmentRefresh, opp.NaturalKey)
		if err != nil {
			return writer.inserted, err
		}
		if dup {
			continue
		}
		if err := writer.add(ctx, opp); err != nil {
			return writer.inserted, err
		}
	}

	if err := writer.flush(ctx); err != nil {
		return writer.inserted, err
	}
	return writer.inserted, nil
}

func (d *EquipmentRefreshDetector) evaluate(key string, f *fleet, now time.Time, batchID string) (models.Opportunity, bool) {
	if f.totalValue < d.cfg.MinDealValue {
		return models.Opportunity{}, false
	}

	cycle := d.cfg.RefreshCycleYears
	age := now.Year() - f.earliestYear
	if age < cycle {
		return models.Opportunity{}, false
	}

	yearsOverdue := age - cycle
	if yearsOverdue > cycle {
		yearsOverdue = cycle
	}

	score := equipmentBaseScore
	score += equipmentOverdueBonusMax * float64(yearsOverdue) / float64(cycle)
	highValue := f.totalValue > d.cfg.HighValueThreshold
	if highValue {
		score += equipmentHighValueBonus
	}
	known := recognizedBrand(f.rec.Manufacturer)
	if known {
		score += equipmentBrandBonus
	}

	reason := fmt.Sprintf("%d %s item(s) purchased in FY%d are %d year(s) into a %d-year refresh cycle; %s original investment",
		f.itemCount, f.rec.Manufacturer, f.earliestYear, age, cycle, formatMoney(f.totalValue))
	if yearsOverdue > 0 {
		reason += fmt.Sprintf("; %d year(s) past expected refresh", yearsOverdue)
	}

	// Funding years start July 1; the refresh becomes actionable at the
	// start of the year the cycle completes.
	refreshDate := time.Date(f.earliestYear+cycle, time.July, 1, 0, 0, 0, 0, time.UTC)
	expiresAt := refreshDate.AddDate(1, 0, 0)

	return models.Opportunity{
		PredictionType:      models.PredictionEquipmentRefresh,
		ConfidenceScore:     clampScore(score),
		PredictionReason:    reason,
		PredictedActionDate: &refreshDate,
		EntityID:            f.rec.BEN,
		EntityName:          f.rec.EntityName,
		State:               f.rec.State,
		EntityType:          f.rec.EntityType,
		EstimatedValue:      f.totalValue,
		ServiceCategory:     f.rec.ServiceCategory,
		VendorBrand:         f.rec.Manufacturer,
		ProductType:         f.rec.ProductType,
		EquipmentModel:      f.rec.Model,
		PurchaseYear:        f.earliestYear,
		NaturalKey:          key,
		SourceRecordIDs:     dedupeStrings(f.sourceIDs),
		SourceDataset:       usac.Dataset,
		Status:              models.StatusNew,
		BatchID:             batchID,
		ExpiresAt:           &expiresAt,
	}, true
}

func dedupeStrings(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
