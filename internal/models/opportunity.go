package models

import (
	"time"

	"github.com/google/uuid"
)

type PredictionType string

const (
	PredictionContractExpiry    PredictionType = "contract_expiry"
	PredictionEquipmentRefresh  PredictionType = "equipment_refresh"
	PredictionBudgetCycleReset  PredictionType = "budget_cycle_reset"
	PredictionHistoricalPattern PredictionType = "historical_pattern"
)

// PredictionTypes lists every type the data model knows about, including
// historical_pattern which no detector emits yet.
var PredictionTypes = []PredictionType{
	PredictionContractExpiry,
	PredictionEquipmentRefresh,
	PredictionBudgetCycleReset,
	PredictionHistoricalPattern,
}

func (p PredictionType) Valid() bool {
	for _, known := range PredictionTypes {
		if p == known {
			return true
		}
	}
	return false
}

// Opportunity is a single predicted lead produced by a detector run.
type Opportunity struct {
	ID             uuid.UUID      `json:"id"`
	PredictionType PredictionType `json:"prediction_type"`

	ConfidenceScore     float64    `json:"confidence_score"`
	PredictionReason    string     `json:"prediction_reason"`
	PredictedActionDate *time.Time `json:"predicted_action_date"`

	// Subject billed entity.
	EntityID   string `json:"entity_id"` // BEN
	EntityName string `json:"entity_name"`
	State      string `json:"state"`
	EntityType string `json:"entity_type"`

	EstimatedValue  float64 `json:"estimated_value"`
	ServiceCategory string  `json:"service_category"`
	VendorBrand     string  `json:"vendor_brand"`
	ProductType     string  `json:"product_type"`

	// Contract expiry specifics.
	ContractNumber    string     `json:"contract_number,omitempty"`
	ContractExpiresAt *time.Time `json:"contract_expires_at,omitempty"`
	CurrentProviderID string     `json:"current_provider_id,omitempty"` // SPIN

	// Equipment refresh specifics.
	EquipmentModel string `json:"equipment_model,omitempty"`
	PurchaseYear   int    `json:"purchase_year,omitempty"`

	// Budget cycle specifics.
	BudgetTotal     float64 `json:"budget_total,omitempty"`
	BudgetRemaining float64 `json:"budget_remaining,omitempty"`
	BudgetCycle     string  `json:"budget_cycle,omitempty"`

	// NaturalKey identifies the real-world lead this row represents; its
	// composition is type-specific (see the predict package). At most one
	// active row may exist per (prediction_type, natural_key).
	NaturalKey string `json:"natural_key"`

	SourceRecordIDs []string `json:"source_record_ids"`
	SourceDataset   string   `json:"source_dataset"`

	Status    Status     `json:"status"`
	BatchID   string     `json:"batch_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}
