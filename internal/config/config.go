package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                = "PROOFING"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseDSN       = "proofing.db"
	defaultLocalPath         = "proofing-local.db"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultStorageDriver     = StorageDriverFS
	defaultStorageRoot       = "storage"
	defaultStoragePublicURL  = "http://localhost:8080/storage"
	defaultPhotosBucket      = "photos"
	defaultEmailFromName     = "Galerie Photo"
	defaultAppBaseURL        = "http://localhost:5173"
	defaultTokenTTLMinutes   = 720
	minimumSigningSecretSize = 16
)

const (
	// StorageDriverFS stores blobs on the local filesystem.
	StorageDriverFS = "fs"
	// StorageDriverGCS stores blobs in Google Cloud Storage.
	StorageDriverGCS = "gcs"
)

// AppConfig captures runtime configuration for the proofing client runtime.
type AppConfig struct {
	HTTPAddress        string
	HTTPAllowedOrigins []string
	LogLevel           string
	LogFormat          string

	DatabaseDSN string
	LocalPath   string

	StorageDriver        string
	StorageRoot          string
	StoragePublicBaseURL string
	PhotosBucket         string

	SendGridAPIKey      string
	EmailFromAddress    string
	EmailFromName       string
	PhotographerAddress string
	EmailEnabled        bool

	AppBaseURL    string
	SigningSecret string
	TokenTTL      time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("local.path", defaultLocalPath)
	configViper.SetDefault("storage.driver", defaultStorageDriver)
	configViper.SetDefault("storage.root", defaultStorageRoot)
	configViper.SetDefault("storage.public_base_url", defaultStoragePublicURL)
	configViper.SetDefault("storage.photos_bucket", defaultPhotosBucket)
	configViper.SetDefault("email.from_name", defaultEmailFromName)
	configViper.SetDefault("email.enabled", false)
	configViper.SetDefault("app.base_url", defaultAppBaseURL)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		HTTPAllowedOrigins:   splitList(configViper.GetStringSlice("http.allowed_origins")),
		LogLevel:             configViper.GetString("log.level"),
		LogFormat:            configViper.GetString("log.format"),
		DatabaseDSN:          strings.TrimSpace(configViper.GetString("database.dsn")),
		LocalPath:            strings.TrimSpace(configViper.GetString("local.path")),
		StorageDriver:        strings.ToLower(strings.TrimSpace(configViper.GetString("storage.driver"))),
		StorageRoot:          configViper.GetString("storage.root"),
		StoragePublicBaseURL: strings.TrimRight(configViper.GetString("storage.public_base_url"), "/"),
		PhotosBucket:         strings.TrimSpace(configViper.GetString("storage.photos_bucket")),
		SendGridAPIKey:       configViper.GetString("email.sendgrid_api_key"),
		EmailFromAddress:     strings.TrimSpace(configViper.GetString("email.from_address")),
		EmailFromName:        configViper.GetString("email.from_name"),
		PhotographerAddress:  strings.TrimSpace(configViper.GetString("email.photographer_address")),
		EmailEnabled:         configViper.GetBool("email.enabled"),
		AppBaseURL:           strings.TrimRight(configViper.GetString("app.base_url"), "/"),
		SigningSecret:        configViper.GetString("auth.signing_secret"),
		TokenTTL:             time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// RemoteConfigured reports whether a shared record store DSN was supplied.
func (c AppConfig) RemoteConfigured() bool {
	return c.DatabaseDSN != ""
}

// ValidateServer checks the settings only the HTTP server depends on.
func (c AppConfig) ValidateServer() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if len(strings.TrimSpace(c.SigningSecret)) < minimumSigningSecretSize {
		return fmt.Errorf("auth.signing_secret must be at least %d characters", minimumSigningSecretSize)
	}
	return nil
}

func (c AppConfig) validate() error {
	if c.LocalPath == "" {
		return fmt.Errorf("local.path is required")
	}
	if c.PhotosBucket == "" {
		return fmt.Errorf("storage.photos_bucket is required")
	}
	switch c.StorageDriver {
	case StorageDriverFS:
		if strings.TrimSpace(c.StorageRoot) == "" {
			return fmt.Errorf("storage.root is required for the fs driver")
		}
	case StorageDriverGCS:
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", StorageDriverFS, StorageDriverGCS, c.StorageDriver)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	return nil
}

// splitList accepts both repeated values and comma separated entries.
func splitList(values []string) []string {
	var result []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
