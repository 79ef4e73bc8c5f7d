package models

import "time"

type RunStatus string

const (
	RunStatusRunning             RunStatus = "running"
	RunStatusCompleted           RunStatus = "completed"
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
	RunStatusFailed              RunStatus = "failed"
	RunStatusCancelled           RunStatus = "cancelled"
)

// BatchRun is the write-once-then-finalize log row for one orchestrated run.
type BatchRun struct {
	BatchID     string     `json:"batch_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Status      RunStatus  `json:"status"`

	ContractExpiryCount   int `json:"contract_expiry_count"`
	EquipmentRefreshCount int `json:"equipment_refresh_count"`
	BudgetCycleCount      int `json:"budget_cycle_count"`

	Errors          []string `json:"errors"`
	DurationSeconds float64  `json:"duration_seconds"`
}

func (r *BatchRun) Total() int {
	return r.ContractExpiryCount + r.EquipmentRefreshCount + r.BudgetCycleCount
}

// SetCount stores a per-detector count by prediction type.
func (r *BatchRun) SetCount(t PredictionType, n int) {
	switch t {
	case PredictionContractExpiry:
		r.ContractExpiryCount = n
	case PredictionEquipmentRefresh:
		r.EquipmentRefreshCount = n
	case PredictionBudgetCycleReset:
		r.BudgetCycleCount = n
	}
}

// RunSummary is what the orchestrator returns to its caller.
type RunSummary struct {
	BatchID         string                 `json:"batch_id"`
	Total           int                    `json:"total"`
	CountsByType    map[PredictionType]int `json:"counts_by_type"`
	Errors          []string               `json:"errors"`
	DurationSeconds float64                `json:"duration_seconds"`
	Status          RunStatus              `json:"status"`
}
