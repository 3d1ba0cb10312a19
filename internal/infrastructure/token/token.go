// Package token mints and verifies the short-lived credentials that guard
// the relay's trust boundary.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"linkrelay/internal/ports"
)

const defaultTTL = 60 * time.Second

// Config carries the shared HS256 secret, the issuer claim value, and the
// token lifetime. Tokens are minted fresh per outbound call and never reused
// past expiry.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

type relayClaims struct {
	Source string `json:"source"`
	jwt.RegisteredClaims
}

// Issuer mints signed tokens.
type Issuer struct {
	cfg Config
}

var _ ports.TokenIssuer = (*Issuer)(nil)

// NewIssuer builds an issuer; an empty secret is rejected at startup, not
// here, so composition can fail fast with a clearer message.
func NewIssuer(cfg Config) *Issuer {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	return &Issuer{cfg: cfg}
}

// Mint signs a fresh token asserting the issuer and the originating source.
func (i *Issuer) Mint(source string) (string, error) {
	now := time.Now()
	claims := relayClaims{
		Source: source,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verifier checks incoming tokens.
type Verifier struct {
	secret []byte
}

var _ ports.TokenVerifier = (*Verifier)(nil)

// NewVerifier builds a verifier for the shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a raw token. Only HS256 is accepted; expiry and
// issued-at are enforced by the parser.
func (v *Verifier) Verify(raw string) (ports.TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &relayClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return ports.TokenClaims{}, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := parsed.Claims.(*relayClaims)
	if !ok || !parsed.Valid {
		return ports.TokenClaims{}, errors.New("invalid token claims")
	}
	if claims.Issuer == "" {
		return ports.TokenClaims{}, errors.New("token missing issuer claim")
	}
	return ports.TokenClaims{Issuer: claims.Issuer, Source: claims.Source}, nil
}
