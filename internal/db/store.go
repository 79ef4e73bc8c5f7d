package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fundlens/lead-engine/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type ListParams struct {
	Types          []models.PredictionType
	States         []string
	Brand          string // case-insensitive substring match on vendor_brand
	MinConfidence  float64
	MinValue       float64
	Statuses       []models.Status // defaults to the active set
	IncludeExpired bool
	SortBy         string
	SortAsc        bool
	Limit          int
	Offset         int
}

type ListResult struct {
	Opportunities []models.Opportunity `json:"opportunities"`
	Total         int                  `json:"total"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
	HasMore       bool                 `json:"has_more"`
}

const selectCols = `id, prediction_type, confidence_score, prediction_reason, predicted_action_date,
	entity_id, entity_name, state, entity_type,
	estimated_value, service_category, vendor_brand, product_type,
	contract_number, contract_expires_at, current_provider_id,
	equipment_model, purchase_year,
	budget_total, budget_remaining, budget_cycle,
	natural_key, source_record_ids, source_dataset,
	status, batch_id, created_at, updated_at, expires_at`

// sortColumns whitelists the scalar fields list() may order by. Anything
// outside this map falls back to confidence_score.
var sortColumns = map[string]string{
	"confidence_score":      "confidence_score",
	"estimated_value":       "estimated_value",
	"predicted_action_date": "predicted_action_date",
	"created_at":            "created_at",
	"updated_at":            "updated_at",
	"expires_at":            "expires_at",
	"entity_name":           "entity_name",
	"state":                 "state",
}

func scanOpportunity(scan func(dest ...any) error) (models.Opportunity, error) {
	var o models.Opportunity
	err := scan(
		&o.ID, &o.PredictionType, &o.ConfidenceScore, &o.PredictionReason, &o.PredictedActionDate,
		&o.EntityID, &o.EntityName, &o.State, &o.EntityType,
		&o.EstimatedValue, &o.ServiceCategory, &o.VendorBrand, &o.ProductType,
		&o.ContractNumber, &o.ContractExpiresAt, &o.CurrentProviderID,
		&o.EquipmentModel, &o.PurchaseYear,
		&o.BudgetTotal, &o.BudgetRemaining, &o.BudgetCycle,
		&o.NaturalKey, &o.SourceRecordIDs, &o.SourceDataset,
		&o.Status, &o.BatchID, &o.CreatedAt, &o.UpdatedAt, &o.ExpiresAt,
	)
	return o, err
}

// buildListFilter builds the WHERE clause and args for ListOpportunities.
// Kept pure so the filter composition is testable without a database.
func buildListFilter(params ListParams) (string, []any) {
	where := "WHERE 1=1"
	var args []any
	argIdx := 1

	statuses := params.Statuses
	if len(statuses) == 0 {
		statuses = models.ActiveStatuses
	}
	statusStrings := make([]string, 0, len(statuses))
	for _, s := range statuses {
		statusStrings = append(statusStrings, string(s))
	}
	where += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
	args = append(args, statusStrings)
	argIdx++

	if !params.IncludeExpired {
		where += " AND (expires_at IS NULL OR expires_at > NOW())"
	}

	if len(params.Types) > 0 {
		typeStrings := make([]string, 0, len(params.Types))
		for _, t := range params.Types {
			typeStrings = append(typeStrings, string(t))
		}
		where += fmt.Sprintf(" AND prediction_type = ANY($%d)", argIdx)
		args = append(args, typeStrings)
		argIdx++
	}
	if len(params.States) > 0 {
		where += fmt.Sprintf(" AND state = ANY($%d)", argIdx)
		args = append(args, params.States)
		argIdx++
	}
	if params.Brand != "" {
		where += fmt.Sprintf(" AND vendor_brand ILIKE '%%' || $%d || '%%'", argIdx)
		args = append(args, params.Brand)
		argIdx++
	}
	if params.MinConfidence > 0 {
		where += fmt.Sprintf(" AND confidence_score >= $%d", argIdx)
		args = append(args, params.MinConfidence)
		argIdx++
	}
	if params.MinValue > 0 {
		where += fmt.Sprintf(" AND estimated_value >= $%d", argIdx)
		args = append(args, params.MinValue)
		argIdx++
	}

	return where, args
}

// orderClause returns the ORDER BY for the given sort field. The id tiebreak
// keeps pagination stable across repeated calls with the same filter set.
func orderClause(sortBy string, asc bool) string {
	col, ok := sortColumns[sortBy]
	if !ok {
		col = "confidence_score"
	}
	dir := "DESC"
	if asc {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s NULLS LAST, id ASC", col, dir)
}

func (s *Store) ListOpportunities(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}
	if params.Limit > 200 {
		params.Limit = 200
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	where, args := buildListFilter(params)

	var total int
	countSQL := "SELECT COUNT(*) FROM opportunities " + where
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	selectSQL := fmt.Sprintf("SELECT %s FROM opportunities %s%s LIMIT $%d OFFSET $%d",
		selectCols, where, orderClause(params.SortBy, params.SortAsc), len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var opps []models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	if opps == nil {
		opps = []models.Opportunity{}
	}

	return &ListResult{
		Opportunities: opps,
		Total:         total,
		Limit:         params.Limit,
		Offset:        params.Offset,
		HasMore:       params.Offset+len(opps) < total,
	}, nil
}

func (s *Store) GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	sql := fmt.Sprintf("SELECT %s FROM opportunities WHERE id = $1", selectCols)
	row := s.pool.QueryRow(ctx, sql, id)

	o, err := scanOpportunity(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get opportunity: %w", err)
	}
	return &o, nil
}

// MarkViewed promotes a NEW opportunity to VIEWED. Viewing an already-viewed
// row is a no-op, which keeps the get-with-side-effect path idempotent.
func (s *Store) MarkViewed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE opportunities SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.StatusViewed, id, models.StatusNew)
	if err != nil {
		return fmt.Errorf("mark viewed: %w", err)
	}
	return nil
}

// UpdateStatus applies a lifecycle transition, enforcing the transition
// table. Returns models.ErrNotFound or models.ErrInvalidTransition.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, next models.Status) error {
	if !next.Valid() {
		return models.ErrInvalidTransition
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback(ctx)

	var current models.Status
	err = tx.QueryRow(ctx, "SELECT status FROM opportunities WHERE id = $1 FOR UPDATE", id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrNotFound
		}
		return fmt.Errorf("load status: %w", err)
	}

	if !models.CanTransition(current, next) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current, next)
	}
	if current == next {
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE opportunities SET status = $1, updated_at = NOW() WHERE id = $2", next, id); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return tx.Commit(ctx)
}

// HasActiveOpportunity is the dedup guard lookup: does an active row already
// exist for this prediction type and natural key?
func (s *Store) HasActiveOpportunity(ctx context.Context, t models.PredictionType, naturalKey string) (bool, error) {
	statusStrings := make([]string, 0, len(models.ActiveStatuses))
	for _, st := range models.ActiveStatuses {
		statusStrings = append(statusStrings, string(st))
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM opportunities
			WHERE prediction_type = $1 AND natural_key = $2 AND status = ANY($3)
		)
	`, t, naturalKey, statusStrings).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return exists, nil
}

const insertOpportunitySQL = `
	INSERT INTO opportunities (
		prediction_type, confidence_score, prediction_reason, predicted_action_date,
		entity_id, entity_name, state, entity_type,
		estimated_value, service_category, vendor_brand, product_type,
		contract_number, contract_expires_at, current_provider_id,
		equipment_model, purchase_year,
		budget_total, budget_remaining, budget_cycle,
		natural_key, source_record_ids, source_dataset,
		status, batch_id, expires_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8,
		$9, $10, $11, $12,
		$13, $14, $15,
		$16, $17,
		$18, $19, $20,
		$21, $22, $23,
		$24, $25, $26
	)`

// InsertOpportunities writes one chunk of detector output in a single
// transaction. Callers bound chunk size so a crash mid-run loses at most one
// chunk; the dedup guard makes the re-run safe.
func (s *Store) InsertOpportunities(ctx context.Context, opps []models.Opportunity) (int, error) {
	if len(opps) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin insert chunk: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, o := range opps {
		status := o.Status
		if status == "" {
			status = models.StatusNew
		}
		sourceIDs := o.SourceRecordIDs
		if sourceIDs == nil {
			sourceIDs = []string{}
		}
		if _, err := tx.Exec(ctx, insertOpportunitySQL,
			o.PredictionType, o.ConfidenceScore, o.PredictionReason, o.PredictedActionDate,
			o.EntityID, o.EntityName, o.State, o.EntityType,
			o.EstimatedValue, o.ServiceCategory, o.VendorBrand, o.ProductType,
			o.ContractNumber, o.ContractExpiresAt, o.CurrentProviderID,
			o.EquipmentModel, o.PurchaseYear,
			o.BudgetTotal, o.BudgetRemaining, o.BudgetCycle,
			o.NaturalKey, sourceIDs, o.SourceDataset,
			status, o.BatchID, o.ExpiresAt,
		); err != nil {
			return 0, fmt.Errorf("insert opportunity (entity %s): %w", o.EntityID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit insert chunk: %w", err)
	}
	return len(opps), nil
}

// ClearActive moves NEW and VIEWED rows to DISMISSED ahead of a force
// refresh. History stays queryable; CONTACTED rows are deliberately left
// alone since someone is already working them.
func (s *Store) ClearActive(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE opportunities SET status = $1, updated_at = NOW() WHERE status = ANY($2)",
		models.StatusDismissed, []string{string(models.StatusNew), string(models.StatusViewed)})
	if err != nil {
		return 0, fmt.Errorf("clear active: %w", err)
	}
	return tag.RowsAffected(), nil
}

type Aggregation struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type StatsResult struct {
	Total               int              `json:"total"`
	ByType              map[string]int   `json:"by_type"`
	ByStatus            map[string]int   `json:"by_status"`
	AvgConfidence       float64          `json:"avg_confidence"`
	TotalEstimatedValue float64          `json:"total_estimated_value"`
	TopStates           []Aggregation    `json:"top_states"`
	TopBrands           []Aggregation    `json:"top_brands"`
	LastRefresh         *models.BatchRun `json:"last_refresh"`
}

// Stats aggregates over the active set; expired rows are excluded unless
// includeExpired is set (historical statistics).
func (s *Store) Stats(ctx context.Context, includeExpired bool) (*StatsResult, error) {
	where := "WHERE status = ANY($1)"
	if !includeExpired {
		where += " AND (expires_at IS NULL OR expires_at > NOW())"
	}
	statusStrings := make([]string, 0, len(models.ActiveStatuses))
	for _, st := range models.ActiveStatuses {
		statusStrings = append(statusStrings, string(st))
	}
	args := []any{statusStrings}

	result := &StatsResult{
		ByType:   map[string]int{},
		ByStatus: map[string]int{},
	}

	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*), COALESCE(AVG(confidence_score), 0), COALESCE(SUM(estimated_value), 0) FROM opportunities "+where,
		args...).Scan(&result.Total, &result.AvgConfidence, &result.TotalEstimatedValue)
	if err != nil {
		return nil, fmt.Errorf("stats totals: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		"SELECT prediction_type, COUNT(*) FROM opportunities "+where+" GROUP BY prediction_type", args...)
	if err != nil {
		return nil, fmt.Errorf("stats by type: %w", err)
	}
	for rows.Next() {
		var t string
		var count int
		if err := rows.Scan(&t, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("stats by type scan: %w", err)
		}
		result.ByType[t] = count
	}
	rows.Close()

	rows, err = s.pool.Query(ctx,
		"SELECT status, COUNT(*) FROM opportunities "+where+" GROUP BY status", args...)
	if err != nil {
		return nil, fmt.Errorf("stats by status: %w", err)
	}
	for rows.Next() {
		var st string
		var count int
		if err := rows.Scan(&st, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("stats by status scan: %w", err)
		}
		result.ByStatus[st] = count
	}
	rows.Close()

	result.TopStates, err = s.topValues(ctx, "state", where, args)
	if err != nil {
		return nil, err
	}
	result.TopBrands, err = s.topValues(ctx, "vendor_brand", where, args)
	if err != nil {
		return nil, err
	}

	last, err := s.LatestRun(ctx)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	result.LastRefresh = last

	return result, nil
}

func (s *Store) topValues(ctx context.Context, column, where string, args []any) ([]Aggregation, error) {
	q := fmt.Sprintf(
		"SELECT %s, COUNT(*) FROM opportunities %s AND %s <> '' GROUP BY %s ORDER BY COUNT(*) DESC, %s ASC LIMIT 5",
		column, where, column, column, column)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("stats top %s: %w", column, err)
	}
	defer rows.Close()

	var aggs []Aggregation
	for rows.Next() {
		var a Aggregation
		if err := rows.Scan(&a.Value, &a.Count); err != nil {
			return nil, fmt.Errorf("stats top %s scan: %w", column, err)
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// ExpireStale is a maintenance sweep used by tooling; default reads already
// exclude expired rows, so this only tidies the status column for reporting.
func (s *Store) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE opportunities SET status = $1, updated_at = NOW()
		WHERE status = ANY($2) AND expires_at IS NOT NULL AND expires_at <= $3
	`, models.StatusDismissed, []string{string(models.StatusNew), string(models.StatusViewed)}, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale: %w", err)
	}
	return tag.RowsAffected(), nil
}
