package usac

// Record payloads from the USAC open-data API. Numeric and date fields come
// back as strings and are parsed downstream; a malformed field should only
// skip its own record.

// ContractRecord is one funding request with an associated contract.
type ContractRecord struct {
	ApplicationNumber  string `json:"application_number"`
	FRN                string `json:"frn"`
	BEN                string `json:"ben"`
	EntityName         string `json:"organization_name"`
	State              string `json:"state"`
	EntityType         string `json:"applicant_type"`
	ContractNumber     string `json:"contract_number"`
	ContractExpiryDate string `json:"contract_expiry_date"`
	ServiceCategory    string `json:"service_category"`
	ServiceType        string `json:"service_type"`
	SPIN               string `json:"spin"`
	ServiceProvider    string `json:"service_provider_name"`
	CommittedAmount    string `json:"funding_commitment_request"`
	FRNStatus          string `json:"frn_status"`
}

// EquipmentRecord is one Category 2 equipment line item.
type EquipmentRecord struct {
	ApplicationNumber string `json:"application_number"`
	FRN               string `json:"frn"`
	BEN               string `json:"ben"`
	EntityName        string `json:"organization_name"`
	State             string `json:"state"`
	EntityType        string `json:"applicant_type"`
	Manufacturer      string `json:"make"`
	Model             string `json:"model"`
	ProductType       string `json:"function"`
	FundingYear       string `json:"funding_year"`
	Cost              string `json:"total_eligible_line_item_cost"`
	ServiceCategory   string `json:"service_category"`
}

// BudgetRecord is one entity's Category 2 budget position.
type BudgetRecord struct {
	BEN             string `json:"ben"`
	EntityName      string `json:"organization_name"`
	State           string `json:"state"`
	EntityType      string `json:"applicant_type"`
	BudgetTotal     string `json:"c2_budget"`
	BudgetRemaining string `json:"c2_remaining_budget"`
	CycleLabel      string `json:"cycle"`
	CycleEndDate    string `json:"cycle_end_date"`
}
