package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RevocationChecker is the subset of the token registry the Minter needs to check
// revocation. It is implemented by *Registry; declared here so Minter can be
// tested against a fake.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Minter issues and validates signed access/refresh token pairs.
type Minter struct {
	secret      []byte
	issuer      string
	accessTTL   time.Duration
	refreshTTL  time.Duration
	revocations RevocationChecker
}

// NewMinter creates a Minter. secret must be at least 32 bytes; it is the
// shared HMAC signing key for HS256.
func NewMinter(secret []byte, issuer string, accessTTL, refreshTTL time.Duration, revocations RevocationChecker) (*Minter, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token: signing secret must be at least 32 bytes, got %d", len(secret))
	}
	return &Minter{
		secret:      secret,
		issuer:      issuer,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		revocations: revocations,
	}, nil
}

// Mint issues a fresh access/refresh token pair for clientID. Both tokens
// carry the same jti, so revoking it (token.Registry.Revoke) invalidates
// the pair together rather than leaving the refresh token usable after its
// access token has been revoked.
func (m *Minter) Mint(clientID string, roles []string) (Pair, error) {
	now := time.Now().UTC()
	jti := uuid.NewString()

	access, accessExp, err := m.sign(clientID, roles, TypeAccess, jti, now, m.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := m.sign(clientID, roles, TypeRefresh, jti, now, m.refreshTTL)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:           access,
		RefreshToken:          refresh,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: refreshExp,
	}, nil
}

func (m *Minter) sign(clientID string, roles []string, tokenType, jti string, issuedAt time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := issuedAt.Add(ttl)
	claims := Claims{
		ClientID: clientID,
		Roles:    roles,
		Type:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   clientID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses and verifies a token, checking its signature, expiry,
// type, and revocation status. wantType must be TypeAccess or TypeRefresh.
func (m *Minter) Validate(ctx context.Context, raw, wantType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("token: unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return nil, fmt.Errorf("token: invalid: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("token: invalid")
	}
	if claims.Type != wantType {
		return nil, ErrWrongType
	}

	if m.revocations != nil {
		revoked, err := m.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("token: check revocation: %w", err)
		}
		if revoked {
			return nil, ErrRevoked
		}
	}

	return claims, nil
}
