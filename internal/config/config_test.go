package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.DatabaseDSN != defaultDatabaseDSN || !cfg.RemoteConfigured() {
		t.Fatalf("expected default database dsn, got %q", cfg.DatabaseDSN)
	}
	if cfg.StorageDriver != StorageDriverFS {
		t.Fatalf("unexpected storage driver %q", cfg.StorageDriver)
	}
	if cfg.TokenTTL != 12*time.Hour {
		t.Fatalf("unexpected token ttl %s", cfg.TokenTTL)
	}
	if cfg.EmailEnabled {
		t.Fatalf("email notifications should default to disabled")
	}
}

func TestLoadRejectsUnknownStorageDriver(t *testing.T) {
	configViper := NewViper()
	configViper.Set("storage.driver", "s3")
	_, err := Load(configViper)
	if err == nil || !strings.Contains(err.Error(), "storage.driver") {
		t.Fatalf("expected storage driver error, got %v", err)
	}
}

func TestEmptyDatabaseDSNMeansLocalOnly(t *testing.T) {
	configViper := NewViper()
	configViper.Set("database.dsn", "  ")
	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RemoteConfigured() {
		t.Fatalf("blank dsn should leave the shared store unconfigured")
	}
}

func TestValidateServerRequiresSigningSecret(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "short")
	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.ValidateServer(); err == nil {
		t.Fatalf("expected short signing secret to be rejected")
	}

	cfg.SigningSecret = "0123456789abcdef"
	if err := cfg.ValidateServer(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAllowedOriginsAcceptCommaSeparatedValues(t *testing.T) {
	configViper := NewViper()
	configViper.Set("http.allowed_origins", []string{"https://a.example.com, https://b.example.com", " "})
	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(cfg.HTTPAllowedOrigins, "|") != "https://a.example.com|https://b.example.com" {
		t.Fatalf("unexpected origins %v", cfg.HTTPAllowedOrigins)
	}
}
