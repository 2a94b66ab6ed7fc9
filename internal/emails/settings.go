package emails

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/MarcoPoloResearchLab/proofing/internal/localstore"
)

// ErrInvalidAddress indicates an unparseable photographer address.
var ErrInvalidAddress = errors.New("emails: invalid photographer address")

// Settings is the per-device notification toggle.
type Settings struct {
	Enabled             bool   `json:"enabled"`
	PhotographerAddress string `json:"photographerAddress"`
}

// KeyValueStore persists the settings on this device.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// SettingsStore reads and writes Settings, falling back to defaults until
// the device saves its own.
type SettingsStore struct {
	store    KeyValueStore
	defaults Settings
}

// NewSettingsStore builds a store seeded with defaults.
func NewSettingsStore(store KeyValueStore, defaults Settings) *SettingsStore {
	return &SettingsStore{store: store, defaults: defaults}
}

// Load returns the saved settings or the defaults when none were saved.
func (s *SettingsStore) Load(ctx context.Context) (Settings, error) {
	if s.store == nil {
		return s.defaults, nil
	}
	raw, ok, err := s.store.Get(ctx, localstore.KeyEmailSettings)
	if err != nil {
		return s.defaults, err
	}
	if !ok {
		return s.defaults, nil
	}
	var settings Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return s.defaults, fmt.Errorf("emails: decode settings: %w", err)
	}
	return settings, nil
}

// Save validates and persists settings.
func (s *SettingsStore) Save(ctx context.Context, settings Settings) (Settings, error) {
	settings.PhotographerAddress = strings.TrimSpace(settings.PhotographerAddress)
	if settings.PhotographerAddress != "" {
		parsed, err := mail.ParseAddress(settings.PhotographerAddress)
		if err != nil {
			return Settings{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		settings.PhotographerAddress = parsed.Address
	}
	if settings.Enabled && settings.PhotographerAddress == "" {
		return Settings{}, fmt.Errorf("%w: required when notifications are enabled", ErrInvalidAddress)
	}
	if s.store == nil {
		s.defaults = settings
		return settings, nil
	}
	encoded, err := json.Marshal(settings)
	if err != nil {
		return Settings{}, err
	}
	if err := s.store.Set(ctx, localstore.KeyEmailSettings, string(encoded)); err != nil {
		return Settings{}, err
	}
	return settings, nil
}
