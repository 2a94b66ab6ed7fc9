package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T, clock func() time.Time) *AccessTokenIssuer {
	t.Helper()
	issuer, err := NewAccessTokenIssuer(AccessTokenIssuerConfig{
		SigningSecret: []byte("secret-key"),
		Issuer:        "proofing-api",
		Audience:      "proofing-gallery",
		TokenTTL:      30 * time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}
	return issuer
}

func TestNewAccessTokenIssuerValidatesConfig(t *testing.T) {
	testCases := []struct {
		name string
		cfg  AccessTokenIssuerConfig
		want error
	}{
		{name: "missing secret", cfg: AccessTokenIssuerConfig{Issuer: "a", Audience: "b"}, want: ErrMissingSigningSecret},
		{name: "missing issuer", cfg: AccessTokenIssuerConfig{SigningSecret: []byte("s"), Audience: "b"}, want: ErrMissingIssuer},
		{name: "missing audience", cfg: AccessTokenIssuerConfig{SigningSecret: []byte("s"), Issuer: "a"}, want: ErrMissingAudience},
		{name: "negative ttl", cfg: AccessTokenIssuerConfig{SigningSecret: []byte("s"), Issuer: "a", Audience: "b", TokenTTL: -time.Second}, want: ErrInvalidTTL},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := NewAccessTokenIssuer(testCase.cfg); !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
		})
	}

	issuer, err := NewAccessTokenIssuer(AccessTokenIssuerConfig{SigningSecret: []byte("s"), Issuer: "a", Audience: "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if issuer.TTL() != defaultTokenTTL {
		t.Fatalf("expected default ttl, got %s", issuer.TTL())
	}
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, func() time.Time { return now })

	token, expiresIn, err := issuer.Issue("g1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expires in %d", expiresIn)
	}
	galleryID, err := issuer.Validate(token)
	if err != nil || galleryID != "g1" {
		t.Fatalf("expected g1, got %q (%v)", galleryID, err)
	}

	if _, _, err := issuer.Issue("  "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for blank gallery, got %v", err)
	}
}

func TestValidateRejectsBadTokens(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, func() time.Time { return now })
	token, _, err := issuer.Issue("g1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := issuer.Validate(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
	if _, err := issuer.Validate("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}

	other, err := NewAccessTokenIssuer(AccessTokenIssuerConfig{
		SigningSecret: []byte("other-secret"),
		Issuer:        "proofing-api",
		Audience:      "proofing-gallery",
		Clock:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}
	if _, err := other.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature rejection, got %v", err)
	}

	later := newTestIssuer(t, func() time.Time { return now.Add(time.Hour) })
	if _, err := later.Validate(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestAuthorizeReadsTokenSources(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, func() time.Time { return now })
	token, _, err := issuer.Issue("g1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	header := httptest.NewRequest(http.MethodGet, "/galleries/g1", nil)
	header.Header.Set(HeaderName, token)
	bearer := httptest.NewRequest(http.MethodGet, "/galleries/g1", nil)
	bearer.Header.Set("Authorization", "Bearer "+token)
	cookie := httptest.NewRequest(http.MethodGet, "/galleries/g1", nil)
	cookie.AddCookie(&http.Cookie{Name: CookieName, Value: token})

	query := httptest.NewRequest(http.MethodGet, "/galleries/g1/events?access_token="+token, nil)

	for name, request := range map[string]*http.Request{"header": header, "bearer": bearer, "cookie": cookie, "query": query} {
		if err := issuer.Authorize(request, "g1"); err != nil {
			t.Fatalf("%s: expected authorized, got %v", name, err)
		}
	}
	if err := issuer.Authorize(header, "g2"); !errors.Is(err, ErrGalleryMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := issuer.Authorize(httptest.NewRequest(http.MethodGet, "/", nil), "g1"); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
}
