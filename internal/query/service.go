package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fundlens/lead-engine/internal/db"
	"github.com/fundlens/lead-engine/internal/models"
)

// ErrInvalidFilter marks caller mistakes in list or stats parameters.
var ErrInvalidFilter = errors.New("invalid filter")

// Store is the persistence surface the read API needs.
type Store interface {
	ListOpportunities(ctx context.Context, params db.ListParams) (*db.ListResult, error)
	GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error)
	MarkViewed(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, next models.Status) error
	Stats(ctx context.Context, includeExpired bool) (*db.StatsResult, error)
	LatestRun(ctx context.Context) (*models.BatchRun, error)
}

// Service validates filters and applies the view-tracking side effects the
// raw store does not own.
type Service struct {
	store Store
	log   zerolog.Logger
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("component", "query").Logger(),
	}
}

// List returns a filtered, sorted, paginated page of opportunities.
func (s *Service) List(ctx context.Context, params db.ListParams) (*db.ListResult, error) {
	for _, t := range params.Types {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown prediction type %q", ErrInvalidFilter, t)
		}
	}
	for _, st := range params.Statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, st)
		}
	}
	if params.MinConfidence < 0 || params.MinConfidence > 1 {
		return nil, fmt.Errorf("%w: min confidence must be within [0, 1]", ErrInvalidFilter)
	}
	if params.MinValue < 0 {
		return nil, fmt.Errorf("%w: min value must not be negative", ErrInvalidFilter)
	}
	if params.Limit < 0 || params.Offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidFilter)
	}

	return s.store.ListOpportunities(ctx, params)
}

// Get fetches one opportunity. With markViewed set, a row still in "new"
// moves to "viewed" first; the returned row reflects the transition.
func (s *Service) Get(ctx context.Context, id uuid.UUID, markViewed bool) (*models.Opportunity, error) {
	if markViewed {
		if err := s.store.MarkViewed(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.store.GetOpportunity(ctx, id)
}

// UpdateStatus applies a workflow transition. Invalid targets surface as
// models.ErrInvalidTransition from the store.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, next models.Status) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, next)
	}
	if err := s.store.UpdateStatus(ctx, id, next); err != nil {
		return err
	}
	s.log.Info().Str("id", id.String()).Str("status", string(next)).Msg("Opportunity status updated")
	return nil
}

// Stats aggregates the current active set, or the full history when
// includeExpired is set.
func (s *Service) Stats(ctx context.Context, includeExpired bool) (*db.StatsResult, error) {
	return s.store.Stats(ctx, includeExpired)
}

// LastRefresh reports the most recent batch run, nil when none has run yet.
func (s *Service) LastRefresh(ctx context.Context) (*models.BatchRun, error) {
	return s.store.LatestRun(ctx)
}
