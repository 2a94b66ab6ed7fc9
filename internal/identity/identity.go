// Package identity assigns the per-device identifier and the optional,
// unauthenticated user session used to attribute favorites and comments.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/proofing/internal/localstore"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	minNameLength = 2
	maxNameLength = 50
	suffixLength  = 9
)

// ErrInvalidName indicates a rejected display name.
var ErrInvalidName = errors.New("identity: invalid name")

// Latin letters with their accents, digits, spaces, hyphens and apostrophes.
var namePattern = regexp.MustCompile(`^[\p{Latin}\p{M}0-9 '\-]+$`)

// InvalidNameError carries the human-readable rejection reason.
type InvalidNameError struct {
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidName, e.Reason)
}

func (e *InvalidNameError) Unwrap() error {
	return ErrInvalidName
}

// KeyValueStore is the device-local persistence the provider writes to.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Session is the locally persisted display identity. It is an attribution
// hint only and never grants access to anything.
type Session struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	DeviceID  string    `json:"deviceId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Principal tags writes with who made them.
type Principal struct {
	DeviceID string
	UserID   string
	UserName string
}

// HasUser reports whether a session contributed a user identity.
func (p Principal) HasUser() bool {
	return p.UserID != ""
}

// Config wires the provider's dependencies.
type Config struct {
	Store  KeyValueStore
	Clock  func() time.Time
	Random func() string
	Logger *zap.Logger
}

// Provider implements the identity operations for one device.
type Provider struct {
	store  KeyValueStore
	clock  func() time.Time
	random func() string
	logger *zap.Logger

	mu             sync.Mutex
	memoryDeviceID string
	memorySession  *Session
}

// NewProvider builds a provider. A nil store keeps identity in memory only.
func NewProvider(cfg Config) *Provider {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	random := cfg.Random
	if random == nil {
		random = randomSuffix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{store: cfg.Store, clock: clock, random: random, logger: logger}
}

// DeviceID returns the persisted device identifier, creating it on first use.
// It never fails: when persistence is unavailable the id lives in memory.
func (p *Provider) DeviceID(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A new id is only written after a successful read found none, so a
	// transient read error never replaces the persisted id.
	persist := false
	if p.store != nil {
		stored, ok, err := p.store.Get(ctx, localstore.KeyDeviceID)
		switch {
		case err != nil:
			p.logger.Warn("device id read failed; using an in-memory id", zap.Error(err))
		case ok && strings.TrimSpace(stored) != "":
			return stored
		default:
			persist = true
		}
	}
	if p.memoryDeviceID == "" {
		p.memoryDeviceID = fmt.Sprintf("device_%d_%s", p.clock().UnixMilli(), p.random())
	}
	if persist {
		if err := p.store.Set(ctx, localstore.KeyDeviceID, p.memoryDeviceID); err != nil {
			p.logger.Warn("device id not persisted; keeping it in memory", zap.Error(err))
		}
	}
	return p.memoryDeviceID
}

// CreateSession validates userName and persists a new session for deviceID.
func (p *Provider) CreateSession(ctx context.Context, userName, deviceID string) (Session, error) {
	name, err := ValidateName(userName)
	if err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(deviceID) == "" {
		deviceID = p.DeviceID(ctx)
	}
	now := p.clock().UTC()
	session := Session{
		UserID:    fmt.Sprintf("user_%d_%s", now.UnixMilli(), p.random()),
		UserName:  name,
		DeviceID:  deviceID,
		CreatedAt: now,
	}
	if p.store == nil {
		p.mu.Lock()
		p.memorySession = &session
		p.mu.Unlock()
		return session, nil
	}
	encoded, err := json.Marshal(session)
	if err != nil {
		return Session{}, err
	}
	if err := p.store.Set(ctx, localstore.KeyUserSession, string(encoded)); err != nil {
		return Session{}, fmt.Errorf("identity: persist session: %w", err)
	}
	p.logger.Info("user session created", zap.String("user_id", session.UserID), zap.String("device_id", deviceID))
	return session, nil
}

// CurrentSession returns the persisted session, if any. Unreadable sessions count as absent.
func (p *Provider) CurrentSession(ctx context.Context) (Session, bool) {
	if p.store == nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.memorySession == nil {
			return Session{}, false
		}
		return *p.memorySession, true
	}
	raw, ok, err := p.store.Get(ctx, localstore.KeyUserSession)
	if err != nil {
		p.logger.Warn("session read failed", zap.Error(err))
		return Session{}, false
	}
	if !ok {
		return Session{}, false
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil || session.UserID == "" {
		p.logger.Warn("discarding unreadable session", zap.Error(err))
		return Session{}, false
	}
	return session, true
}

// IsLoggedIn reports whether a session exists.
func (p *Provider) IsLoggedIn(ctx context.Context) bool {
	_, ok := p.CurrentSession(ctx)
	return ok
}

// ClearSession forgets the current session.
func (p *Provider) ClearSession(ctx context.Context) error {
	if p.store == nil {
		p.mu.Lock()
		p.memorySession = nil
		p.mu.Unlock()
		return nil
	}
	return p.store.Delete(ctx, localstore.KeyUserSession)
}

// Principal combines the device id with the session, when one exists.
func (p *Provider) Principal(ctx context.Context) Principal {
	principal := Principal{DeviceID: p.DeviceID(ctx)}
	if session, ok := p.CurrentSession(ctx); ok {
		principal.UserID = session.UserID
		principal.UserName = session.UserName
	}
	return principal
}

// ValidateName trims and checks a display name, returning the trimmed value.
func ValidateName(userName string) (string, error) {
	name := strings.TrimSpace(userName)
	length := utf8.RuneCountInString(name)
	switch {
	case length == 0:
		return "", &InvalidNameError{Reason: "Le nom est requis"}
	case length < minNameLength:
		return "", &InvalidNameError{Reason: fmt.Sprintf("Le nom doit contenir au moins %d caractères", minNameLength)}
	case length > maxNameLength:
		return "", &InvalidNameError{Reason: fmt.Sprintf("Le nom ne peut pas dépasser %d caractères", maxNameLength)}
	case !namePattern.MatchString(name):
		return "", &InvalidNameError{Reason: "Le nom ne peut contenir que des lettres, chiffres, espaces, tirets et apostrophes"}
	}
	return name, nil
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLength]
}
