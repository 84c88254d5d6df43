// Package token mints and tracks JWT access/refresh token pairs for
// authenticated clients. Tokens are signed with HS256 via golang-jwt/jwt/v5;
// a jti claim ties each token to a registry record so it can be revoked
// before its natural expiry. Both tokens in a pair share one jti, so
// revoking it invalidates the pair together.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TypeAccess and TypeRefresh distinguish the two tokens minted per pair.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// ErrRevoked is returned by Validate when the token's jti has been revoked.
var ErrRevoked = errors.New("token: revoked")

// ErrWrongType is returned when a token of one type is presented where the
// other was expected (e.g. an access token submitted to the refresh flow).
var ErrWrongType = errors.New("token: wrong token type")

// ErrNotFound is returned when a registry lookup finds no record for the
// given jti.
var ErrNotFound = errors.New("token: not found")

// Claims is the JWT payload minted for a client. It carries enough identity
// to authorize a request without a registry round trip, but authorization
// decisions still consult the live credential record for role changes.
type Claims struct {
	ClientID string   `json:"client_id"`
	Roles    []string `json:"roles,omitempty"`
	Type     string   `json:"type"`
	jwt.RegisteredClaims
}

// Pair is the access/refresh token pair returned by a successful mint.
type Pair struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}
