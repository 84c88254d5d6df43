package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/toolgate/toolgate/internal/adapter/outbound/jsonstore"
)

// Record is one minted token pair as tracked by the registry: it stores
// hashes of the access and refresh token, never the tokens themselves,
// keyed by the jti they share. Revoking a Record invalidates both tokens
// at once, since Minter.Validate checks revocation by jti alone.
type Record struct {
	JTI              string    `json:"jti"`
	ClientID         string    `json:"client_id"`
	Username         string    `json:"username,omitempty"`
	Type             string    `json:"type,omitempty"`
	AccessTokenHash  string    `json:"access_token_hash,omitempty"`
	RefreshTokenHash string    `json:"refresh_token_hash,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	AccessExpiresAt  time.Time `json:"access_expires_at,omitempty"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	Revoked          bool      `json:"revoked"`
	RevokedAt        time.Time `json:"revoked_at,omitempty"`
}

type registryState struct {
	Tokens map[string]*Record `json:"tokens"`
}

// Registry persists token records to tokens.json so revocation state
// survives a process restart. Validity of a presented token is checked from
// its signed claims; the registry additionally stores a SHA-256 hash of each
// minted token, never the plaintext. Records are looked up by jti
// (GetByJTI) or by owner (ListForOwner).
type Registry struct {
	store *jsonstore.Store[registryState]
}

// NewRegistry creates a Registry backed by the file at path.
func NewRegistry(path string, logger *slog.Logger) *Registry {
	return &Registry{
		store: jsonstore.New(path, logger, func() *registryState {
			return &registryState{Tokens: map[string]*Record{}}
		}),
	}
}

// hashToken returns a stable, non-reversible fingerprint of a token value
// suitable for storage and later lookup.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Create stores a record for a freshly minted pair, hashing both tokens.
func (r *Registry) Create(ctx context.Context, jti, clientID, username, accessToken, refreshToken string, accessExpiresAt, refreshExpiresAt time.Time) (*Record, error) {
	rec := &Record{
		JTI:              jti,
		ClientID:         clientID,
		Username:         username,
		AccessTokenHash:  hashToken(accessToken),
		RefreshTokenHash: hashToken(refreshToken),
		CreatedAt:        time.Now().UTC(),
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
		ExpiresAt:        refreshExpiresAt,
	}
	err := r.store.Update(func(s *registryState) error {
		s.Tokens[jti] = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByJTI returns the record minted with the given jti, or ErrNotFound.
func (r *Registry) GetByJTI(ctx context.Context, jti string) (*Record, error) {
	s, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	rec, ok := s.Tokens[jti]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// ListForOwner returns every record minted for clientID, most useful for an
// operator auditing a client's live sessions.
func (r *Registry) ListForOwner(ctx context.Context, clientID string) ([]*Record, error) {
	s, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0)
	for _, rec := range s.Tokens {
		if rec.ClientID == clientID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Revoke marks jti as revoked so Minter.Validate rejects it even before
// its natural expiry. If no record was created for jti (e.g. a caller
// revoking by jti alone, without going through Create), a bare record is
// created so the revocation is still remembered.
func (r *Registry) Revoke(ctx context.Context, jti, clientID, tokenType string, expiresAt time.Time) error {
	return r.store.Update(func(s *registryState) error {
		rec, ok := s.Tokens[jti]
		if !ok {
			rec = &Record{JTI: jti, ClientID: clientID, Type: tokenType, CreatedAt: time.Now().UTC()}
			s.Tokens[jti] = rec
		}
		rec.Revoked = true
		rec.RevokedAt = time.Now().UTC()
		if expiresAt.After(rec.ExpiresAt) {
			rec.ExpiresAt = expiresAt
		}
		return nil
	})
}

// RevokeAllForClient revokes every tracked token belonging to clientID, used
// when a credential is disabled or deleted.
func (r *Registry) RevokeAllForClient(ctx context.Context, clientID string, jtis []string, tokenType string, expiresAt time.Time) error {
	return r.store.Update(func(s *registryState) error {
		for _, jti := range jtis {
			rec, ok := s.Tokens[jti]
			if !ok {
				rec = &Record{JTI: jti, ClientID: clientID, Type: tokenType, CreatedAt: time.Now().UTC()}
				s.Tokens[jti] = rec
			}
			rec.Revoked = true
			rec.RevokedAt = time.Now().UTC()
			if expiresAt.After(rec.ExpiresAt) {
				rec.ExpiresAt = expiresAt
			}
		}
		return nil
	})
}

// IsRevoked reports whether jti has been revoked. It satisfies the Minter's
// RevocationChecker interface. Because a pair's access and refresh token
// share one jti, revoking either invalidates both.
func (r *Registry) IsRevoked(ctx context.Context, jti string) (bool, error) {
	s, err := r.store.Load()
	if err != nil {
		return false, err
	}
	rec, ok := s.Tokens[jti]
	if !ok {
		return false, nil
	}
	return rec.Revoked, nil
}

// PurgeExpired removes records for tokens whose natural expiration has
// already passed, keeping tokens.json from growing unbounded. No goroutine
// in this module calls it; callers run it explicitly.
func (r *Registry) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	purged := 0
	err := r.store.Update(func(s *registryState) error {
		for jti, rec := range s.Tokens {
			if now.After(rec.ExpiresAt) {
				delete(s.Tokens, jti)
				purged++
			}
		}
		return nil
	})
	return purged, err
}
