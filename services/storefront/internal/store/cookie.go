package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const cookieIssuer = "bookzone-storefront"

// CookieSigner issues and validates the HS256-signed value of the slot
// cookie. The cookie carries only the opaque slot id.
type CookieSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCookieSigner builds a signer; the secret must be at least 32 bytes.
func NewCookieSigner(secret string, ttl time.Duration) (*CookieSigner, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &CookieSigner{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the cookie lifetime.
func (s *CookieSigner) TTL() time.Duration {
	return s.ttl
}

// Sign returns a signed cookie value for slotID.
func (s *CookieSigner) Sign(slotID string) (string, error) {
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		return "", ErrNoSlot
	}
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		ID:        slotID,
		Issuer:    cookieIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify validates raw and returns the slot id it carries and when the
// cookie expires.
func (s *CookieSigner) Verify(raw string) (string, time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cookieIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("verify slot cookie: %w", err)
	}
	if strings.TrimSpace(claims.ID) == "" {
		return "", time.Time{}, ErrNoSlot
	}
	return claims.ID, claims.ExpiresAt.Time, nil
}

// Renew reports whether a cookie expiring at expires is past half its
// lifetime and should be signed again.
func (s *CookieSigner) Renew(expires time.Time) bool {
	return expires.Sub(s.now()) < s.ttl/2
}
