package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string  `mapstructure:"PORT"`
	Env         string  `mapstructure:"ENV"`
	AuthMode    string  `mapstructure:"AUTH_MODE"`
	JWTSecret   string  `mapstructure:"JWT_SECRET"`
	DatabaseURL string  `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32   `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32   `mapstructure:"DB_MIN_CONNS"`

	// Identity resolution tuning. Thresholds are points on the 0-100 match
	// scale; they are carried into the match engine as an explicit value
	// object so tests can vary them.
	MatchConfirmThreshold     float64 `mapstructure:"MATCH_CONFIRM_THRESHOLD"`
	MatchAutoConfirmThreshold float64 `mapstructure:"MATCH_AUTO_CONFIRM_THRESHOLD"`
	QualityThreshold          float64 `mapstructure:"QUALITY_THRESHOLD"`
	MPIIDPrefix               string  `mapstructure:"MPI_ID_PREFIX"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MATCH_CONFIRM_THRESHOLD", 85)
	v.SetDefault("MATCH_AUTO_CONFIRM_THRESHOLD", 95)
	v.SetDefault("QUALITY_THRESHOLD", 70)
	v.SetDefault("MPI_ID_PREFIX", "MPI")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("AUTH_MODE")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("MATCH_CONFIRM_THRESHOLD")
	v.BindEnv("MATCH_AUTO_CONFIRM_THRESHOLD")
	v.BindEnv("QUALITY_THRESHOLD")
	v.BindEnv("MPI_ID_PREFIX")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise the mode is inferred: ENV=development runs
// without auth, anything else requires a JWT secret.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "jwt"
}

// Validate checks that the configuration is safe to run and that the match
// thresholds are coherent: both on the 0-100 scale, auto-confirm at least as
// strict as confirm.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "jwt" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"jwt\", got %q", mode)
	}
	if mode == "jwt" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE is \"jwt\" (current ENV=%q)", c.Env)
	}

	if c.MatchConfirmThreshold < 0 || c.MatchConfirmThreshold > 100 {
		return fmt.Errorf("MATCH_CONFIRM_THRESHOLD must be in [0,100], got %g", c.MatchConfirmThreshold)
	}
	if c.MatchAutoConfirmThreshold < 0 || c.MatchAutoConfirmThreshold > 100 {
		return fmt.Errorf("MATCH_AUTO_CONFIRM_THRESHOLD must be in [0,100], got %g", c.MatchAutoConfirmThreshold)
	}
	if c.MatchAutoConfirmThreshold < c.MatchConfirmThreshold {
		return fmt.Errorf("MATCH_AUTO_CONFIRM_THRESHOLD (%g) must be >= MATCH_CONFIRM_THRESHOLD (%g)",
			c.MatchAutoConfirmThreshold, c.MatchConfirmThreshold)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 100 {
		return fmt.Errorf("QUALITY_THRESHOLD must be in [0,100], got %g", c.QualityThreshold)
	}
	if c.MPIIDPrefix == "" {
		return fmt.Errorf("MPI_ID_PREFIX must not be empty")
	}

	return nil
}
