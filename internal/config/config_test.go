package config

import (
	"os"
	"testing"
)

func loadWithEnv(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	for k, v := range env {
		os.Setenv(k, v)
		t.Cleanup(func() { os.Unsetenv(k) })
	}
	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWithEnv(t, map[string]string{
		"DATABASE_URL": "postgres://localhost/mpi",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.MatchConfirmThreshold != 85 {
		t.Errorf("expected confirm threshold 85, got %g", cfg.MatchConfirmThreshold)
	}
	if cfg.MatchAutoConfirmThreshold != 95 {
		t.Errorf("expected auto-confirm threshold 95, got %g", cfg.MatchAutoConfirmThreshold)
	}
	if cfg.MPIIDPrefix != "MPI" {
		t.Errorf("expected default prefix MPI, got %s", cfg.MPIIDPrefix)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestValidate_ThresholdOrdering(t *testing.T) {
	cfg := &Config{
		Env:                       "development",
		MatchConfirmThreshold:     90,
		MatchAutoConfirmThreshold: 80,
		QualityThreshold:          70,
		MPIIDPrefix:               "MPI",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when auto-confirm < confirm")
	}
}

func TestValidate_JWTModeRequiresSecret(t *testing.T) {
	cfg := &Config{
		Env:                       "production",
		MatchConfirmThreshold:     85,
		MatchAutoConfirmThreshold: 95,
		QualityThreshold:          70,
		MPIIDPrefix:               "MPI",
	}
	if mode := cfg.ResolvedAuthMode(); mode != "jwt" {
		t.Fatalf("expected jwt mode in production, got %s", mode)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error without JWT_SECRET in production")
	}
	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config with secret: %v", err)
	}
}

func TestValidate_ThresholdRange(t *testing.T) {
	cfg := &Config{
		Env:                       "development",
		MatchConfirmThreshold:     -1,
		MatchAutoConfirmThreshold: 95,
		QualityThreshold:          70,
		MPIIDPrefix:               "MPI",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative threshold")
	}
}
