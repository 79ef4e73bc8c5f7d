package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fundlens/lead-engine/internal/models"
)

func TestBuildListFilter_DefaultsToActiveNonExpired(t *testing.T) {
	where, args := buildListFilter(ListParams{})

	require.Contains(t, where, "status = ANY($1)")
	require.Contains(t, where, "expires_at IS NULL OR expires_at > NOW()")
	require.Len(t, args, 1)
	require.Equal(t, []string{"new", "viewed", "contacted"}, args[0])
}

func TestBuildListFilter_IncludeExpiredDropsExpiryClause(t *testing.T) {
	where, _ := buildListFilter(ListParams{IncludeExpired: true})
	require.NotContains(t, where, "expires_at")
}

func TestBuildListFilter_AllFiltersNumberedInOrder(t *testing.T) {
	where, args := buildListFilter(ListParams{
		Types:         []models.PredictionType{models.PredictionContractExpiry},
		States:        []string{"TX", "CA"},
		Brand:         "cisco",
		MinConfidence: 0.8,
		MinValue:      25000,
	})

	require.Contains(t, where, "prediction_type = ANY($2)")
	require.Contains(t, where, "state = ANY($3)")
	require.Contains(t, where, "vendor_brand ILIKE '%' || $4 || '%'")
	require.Contains(t, where, "confidence_score >= $5")
	require.Contains(t, where, "estimated_value >= $6")
	require.Len(t, args, 6)
	require.Equal(t, "cisco", args[3])
}

func TestBuildListFilter_ExplicitStatusesOverrideDefault(t *testing.T) {
	_, args := buildListFilter(ListParams{Statuses: []models.Status{models.StatusDismissed}})
	require.Equal(t, []string{"dismissed"}, args[0])
}

func TestOrderClause_WhitelistAndTiebreak(t *testing.T) {
	require.Equal(t, " ORDER BY estimated_value DESC NULLS LAST, id ASC", orderClause("estimated_value", false))
	require.Equal(t, " ORDER BY created_at ASC NULLS LAST, id ASC", orderClause("created_at", true))
}

func TestOrderClause_UnknownFieldFallsBack(t *testing.T) {
	clause := orderClause("confidence_score; DROP TABLE opportunities", false)
	require.True(t, strings.HasPrefix(clause, " ORDER BY confidence_score DESC"))
	require.Contains(t, clause, "id ASC")
}
