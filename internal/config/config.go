package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/paylend/loan-service/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Port             string
	DBConn           string
	LogLevel         string
	JWTSecret        string
	HMACSecret       string
	EncryptionKey    string
	CBRURL           string
	RateMarginPct    float64
	DefaultAfterDays int
	FeeSweepSpec     string
	FeeTiersPath     string
	FeeTiers         []models.FeeTier
	SMTPHost         string
	SMTPPort         string
	SMTPUser         string
	SMTPPassword     string
	SMTPFrom         string
}

// NewConfig loads configuration from the environment, with an optional .env
// file and an optional YAML late-fee tier table.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DBConn:        getEnv("DB_CONN", "host=localhost port=5432 user=lending password=lending dbname=lending sslmode=disable"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:     getEnv("JWT_SECRET", "secret"),
		HMACSecret:    getEnv("HMAC_SECRET", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		EncryptionKey: getEnv("ENCRYPTION_KEY", "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6"),
		CBRURL:        getEnv("CBR_URL", "https://www.cbr.ru/DailyInfoWebServ/DailyInfo.asmx"),
		FeeSweepSpec:  getEnv("FEE_SWEEP_SPEC", "0 3 * * *"),
		FeeTiersPath:  getEnv("FEE_TIERS_PATH", ""),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUser:      getEnv("SMTP_USER", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:      getEnv("SMTP_FROM", "no-reply@paylend.local"),
	}

	days, err := strconv.Atoi(getEnv("DEFAULT_AFTER_DAYS", "60"))
	if err != nil || days <= 0 {
		return nil, fmt.Errorf("DEFAULT_AFTER_DAYS must be a positive integer")
	}
	cfg.DefaultAfterDays = days

	margin, err := strconv.ParseFloat(getEnv("RATE_MARGIN_PCT", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("RATE_MARGIN_PCT must be numeric")
	}
	cfg.RateMarginPct = margin

	tiers, err := loadFeeTiers(cfg.FeeTiersPath)
	if err != nil {
		return nil, err
	}
	cfg.FeeTiers = tiers

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.HMACSecret == "" {
		return nil, fmt.Errorf("HMAC_SECRET is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}

	return cfg, nil
}

// DefaultFeeTiers is the tier table used when FEE_TIERS_PATH is unset:
// no fee inside the first week, 5% from day 8, 10% from day 31.
func DefaultFeeTiers() []models.FeeTier {
	return []models.FeeTier{
		{MinDays: 0, FeePercent: decimal.Zero},
		{MinDays: 8, FeePercent: decimal.NewFromInt(5)},
		{MinDays: 31, FeePercent: decimal.NewFromInt(10)},
	}
}

func loadFeeTiers(path string) ([]models.FeeTier, error) {
	if path == "" {
		return DefaultFeeTiers(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fee tier table: %w", err)
	}
	var doc struct {
		Tiers []struct {
			MinDays    int    `yaml:"min_days"`
			FeePercent string `yaml:"fee_percent"`
		} `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse fee tier table: %w", err)
	}
	if len(doc.Tiers) == 0 {
		return nil, fmt.Errorf("fee tier table is empty")
	}
	tiers := make([]models.FeeTier, 0, len(doc.Tiers))
	for i, t := range doc.Tiers {
		if i > 0 && t.MinDays <= doc.Tiers[i-1].MinDays {
			return nil, fmt.Errorf("fee tier table must be ascending by min_days")
		}
		pct, err := decimal.NewFromString(t.FeePercent)
		if err != nil {
			return nil, fmt.Errorf("invalid fee percentage %q: %w", t.FeePercent, err)
		}
		tiers = append(tiers, models.FeeTier{MinDays: t.MinDays, FeePercent: pct})
	}
	return tiers, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
