package config

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed detectors.yaml
var detectorsYAML embed.FS

// Config holds process-level runtime settings read from the environment.
type Config struct {
	Port           string
	DatabaseURL    string
	USACBaseURL    string
	AdminJWTSecret string
	RefreshCron    string
	CORSOrigins    []string
}

// Load reads the environment (optionally via a local .env) into a Config.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:           getenv("PORT", "8081"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		USACBaseURL:    getenv("USAC_BASE_URL", "https://opendata.usac.org"),
		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
		RefreshCron:    getenv("REFRESH_CRON", "@weekly"),
	}

	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:4200"}
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ContractExpiryConfig tunes the contract-expiry detector.
type ContractExpiryConfig struct {
	LookaheadMonths    int     `yaml:"lookahead_months"`
	ExpiringSoonMonths int     `yaml:"expiring_soon_months"`
	MinDealValue       float64 `yaml:"min_deal_value"`
	HighValueThreshold float64 `yaml:"high_value_threshold"`
	RecordLimit        int     `yaml:"record_limit"`
}

// EquipmentRefreshConfig tunes the equipment-refresh detector.
type EquipmentRefreshConfig struct {
	RefreshCycleYears  int     `yaml:"refresh_cycle_years"`
	LookbackYears      int     `yaml:"lookback_years"`
	MinDealValue       float64 `yaml:"min_deal_value"`
	HighValueThreshold float64 `yaml:"high_value_threshold"`
	RecordLimit        int     `yaml:"record_limit"`
}

// BudgetCycleConfig tunes the budget-cycle-reset detector.
type BudgetCycleConfig struct {
	LookaheadMonths int     `yaml:"lookahead_months"`
	MinDealValue    float64 `yaml:"min_deal_value"`
	RecordLimit     int     `yaml:"record_limit"`
}

// DetectorConfig bundles the heuristic thresholds for all detectors.
type DetectorConfig struct {
	ContractExpiry   ContractExpiryConfig   `yaml:"contract_expiry"`
	EquipmentRefresh EquipmentRefreshConfig `yaml:"equipment_refresh"`
	BudgetCycle      BudgetCycleConfig      `yaml:"budget_cycle"`
}

type detectorFile struct {
	Detectors DetectorConfig `yaml:"detectors"`
}

// LoadDetectorConfig reads the embedded detectors.yaml. Environment variable
// references inside the file (e.g. ${RECORD_LIMIT}) are expanded first.
func LoadDetectorConfig() (DetectorConfig, error) {
	data, err := detectorsYAML.ReadFile("detectors.yaml")
	if err != nil {
		return DetectorConfig{}, fmt.Errorf("read embedded detectors.yaml: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var file detectorFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return DetectorConfig{}, fmt.Errorf("parse detectors.yaml: %w", err)
	}
	return file.Detectors, nil
}
