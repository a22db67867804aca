package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string `mapstructure:"PORT"`
	Env                 string `mapstructure:"ENV"`
	ClinicalDatabaseURL string `mapstructure:"CLINICAL_DATABASE_URL"`
	ImagingDatabaseURL  string `mapstructure:"IMAGING_DATABASE_URL"`
	JournalDatabaseURL  string `mapstructure:"JOURNAL_DATABASE_URL"`
	DBMaxConns          int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32  `mapstructure:"DB_MIN_CONNS"`
	PortalBaseURL       string `mapstructure:"PORTAL_BASE_URL"`
	PortalClientID      string `mapstructure:"PORTAL_CLIENT_ID"`
	PortalClientSecret  string `mapstructure:"PORTAL_CLIENT_SECRET"`
	PortalSubject       string `mapstructure:"PORTAL_SUBJECT"`
	AgeThresholdYears   int    `mapstructure:"AGE_THRESHOLD_YEARS"`
	RecheckWindowDays   int    `mapstructure:"RECHECK_WINDOW_DAYS"`
	StagingDir          string `mapstructure:"STAGING_DIR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("PORTAL_SUBJECT", "Discharge of patient")
	v.SetDefault("AGE_THRESHOLD_YEARS", 22)
	v.SetDefault("RECHECK_WINDOW_DAYS", 30)
	v.SetDefault("STAGING_DIR", "/tmp/handover")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("CLINICAL_DATABASE_URL")
	v.BindEnv("IMAGING_DATABASE_URL")
	v.BindEnv("JOURNAL_DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("PORTAL_BASE_URL")
	v.BindEnv("PORTAL_CLIENT_ID")
	v.BindEnv("PORTAL_CLIENT_SECRET")
	v.BindEnv("PORTAL_SUBJECT")
	v.BindEnv("AGE_THRESHOLD_YEARS")
	v.BindEnv("RECHECK_WINDOW_DAYS")
	v.BindEnv("STAGING_DIR")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.ClinicalDatabaseURL == "" {
		return nil, fmt.Errorf("CLINICAL_DATABASE_URL is required")
	}
	if cfg.JournalDatabaseURL == "" {
		// The journal schema may live in the same database as the clinical
		// replica when no dedicated journal database is provisioned.
		cfg.JournalDatabaseURL = cfg.ClinicalDatabaseURL
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration can run a batch. The imaging
// database and portal credentials are not needed by `serve` or `migrate`,
// so they are checked here rather than in Load.
func (c *Config) Validate() error {
	if c.ImagingDatabaseURL == "" {
		return fmt.Errorf("IMAGING_DATABASE_URL is required")
	}
	if c.PortalBaseURL == "" {
		return fmt.Errorf("PORTAL_BASE_URL is required")
	}
	if !strings.HasPrefix(c.PortalBaseURL, "http://") && !strings.HasPrefix(c.PortalBaseURL, "https://") {
		return fmt.Errorf("PORTAL_BASE_URL must be an http(s) URL, got %q", c.PortalBaseURL)
	}
	if c.PortalClientID == "" || c.PortalClientSecret == "" {
		return fmt.Errorf("PORTAL_CLIENT_ID and PORTAL_CLIENT_SECRET are required")
	}
	if c.AgeThresholdYears <= 0 {
		return fmt.Errorf("AGE_THRESHOLD_YEARS must be positive, got %d", c.AgeThresholdYears)
	}
	if c.RecheckWindowDays <= 0 {
		return fmt.Errorf("RECHECK_WINDOW_DAYS must be positive, got %d", c.RecheckWindowDays)
	}
	return nil
}
