// Package auth issues and validates the gallery access tokens handed out
// after a client unlocks a password-protected gallery.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultTokenTTL = 12 * time.Hour
	// CookieName carries the access token for browser clients.
	CookieName = "proofing_gallery_access"
	// HeaderName carries the access token for API clients.
	HeaderName = "X-Gallery-Token"
	// QueryParam carries the access token where headers cannot be set (websockets).
	QueryParam = "access_token"
)

var (
	ErrMissingSigningSecret = errors.New("access tokens: signing secret required")
	ErrMissingIssuer        = errors.New("access tokens: issuer required")
	ErrMissingAudience      = errors.New("access tokens: audience required")
	ErrInvalidTTL           = errors.New("access tokens: ttl must be positive")
	ErrMissingToken         = errors.New("access tokens: token required")
	ErrInvalidToken         = errors.New("access tokens: invalid token")
	ErrExpiredToken         = errors.New("access tokens: token expired")
	ErrGalleryMismatch      = errors.New("access tokens: token does not grant this gallery")
)

// AccessTokenIssuerConfig configures the HS256 issuer.
type AccessTokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// AccessTokenIssuer issues tokens whose subject is the unlocked gallery id.
type AccessTokenIssuer struct {
	signingSecret []byte
	issuer        string
	audience      string
	ttl           time.Duration
	clock         func() time.Time
}

// NewAccessTokenIssuer validates the configuration and builds an issuer.
func NewAccessTokenIssuer(cfg AccessTokenIssuerConfig) (*AccessTokenIssuer, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningSecret
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		return nil, ErrMissingAudience
	}
	if cfg.TokenTTL < 0 {
		return nil, ErrInvalidTTL
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &AccessTokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		audience:      audience,
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (i *AccessTokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue produces a signed token for galleryID and its lifetime in seconds.
func (i *AccessTokenIssuer) Issue(galleryID string) (string, int64, error) {
	galleryID = strings.TrimSpace(galleryID)
	if galleryID == "" {
		return "", 0, fmt.Errorf("%w: gallery id required", ErrInvalidToken)
	}
	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   galleryID,
		Issuer:    i.issuer,
		Audience:  []string{i.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// Validate checks the token and returns the gallery id it grants.
func (i *AccessTokenIssuer) Validate(tokenString string) (string, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", ErrMissingToken
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			return i.signingSecret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(i.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Authorize validates the token found on r and checks it grants galleryID.
// Sources are tried in order: X-Gallery-Token header, Authorization bearer
// token, cookie, then the access_token query parameter.
func (i *AccessTokenIssuer) Authorize(r *http.Request, galleryID string) error {
	granted, err := i.Validate(TokenFromRequest(r))
	if err != nil {
		return err
	}
	if granted != galleryID {
		return ErrGalleryMismatch
	}
	return nil
}

// TokenFromRequest extracts the access token from r, or "" when absent.
func TokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := strings.TrimSpace(r.Header.Get(HeaderName)); token != "" {
		return token
	}
	if header := r.Header.Get("Authorization"); len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if cookie, err := r.Cookie(CookieName); err == nil && cookie != nil {
		return cookie.Value
	}
	if r.URL != nil {
		return strings.TrimSpace(r.URL.Query().Get(QueryParam))
	}
	return ""
}
