// Package server is the composition root: it wires credential, token,
// tool, orchestrator, and audit components into the registered-method
// table an rpc.Machine dispatches against, and exposes one Machine per
// connection to a transport adapter.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/toolgate/toolgate/internal/domain/audit"
	"github.com/toolgate/toolgate/internal/domain/credential"
	"github.com/toolgate/toolgate/internal/domain/orchestrator"
	"github.com/toolgate/toolgate/internal/domain/rpc"
	"github.com/toolgate/toolgate/internal/domain/token"
	"github.com/toolgate/toolgate/internal/domain/tool"
	"github.com/toolgate/toolgate/internal/domain/validation"
)

// Server holds every long-lived component a connection's Machine needs to
// call into. One Server is shared by every connection; each connection gets
// its own rpc.Machine and rpc.ClientContext.
type Server struct {
	Credentials  *credential.Registry
	Tokens       *token.Minter
	TokenLog     *token.Registry
	Tools        *tool.Registry
	Orchestrator *orchestrator.Orchestrator
	Handlers     map[string]orchestrator.Handler
	Audit        audit.Store
	Logger       *slog.Logger
	Sanitizer    *validation.Sanitizer

	ServerInfo   rpc.ServerInfo
	Capabilities map[string]interface{}
}

// NewMachine builds a fresh per-connection Machine wired to this Server's
// registered-method table.
func (s *Server) NewMachine(connectionID string) *rpc.Machine {
	return rpc.NewMachine(connectionID, s.ServerInfo, s.Capabilities, s.methodTable())
}

func (s *Server) methodTable() map[string]rpc.HandlerFunc {
	return map[string]rpc.HandlerFunc{
		"auth/token":   s.handleAuthToken,
		"auth/refresh": s.handleAuthRefresh,
		"auth/revoke":  s.handleAuthRevoke,
		"tools/list":   s.handleToolsList,
		"tools/call":   s.handleToolsCall,
	}
}

type authTokenParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleAuthToken(ctx context.Context, cc *rpc.ClientContext, params json.RawMessage) (interface{}, error) {
	var p authTokenParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "auth/token: malformed params")
	}
	if p.Username == "" || p.Password == "" {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "auth/token: username and password are required")
	}

	rec, err := s.Credentials.Authenticate(ctx, p.Username, p.Password)
	if err != nil {
		s.appendAuth(ctx, cc.ID(), p.Username, audit.StatusDenied, "authentication failed")
		return nil, rpc.NewError(rpc.CodeAuthenticationFailure, "invalid username or password")
	}

	pair, err := s.Tokens.Mint(rec.ID, rec.Roles)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}

	claims, err := s.Tokens.Validate(ctx, pair.AccessToken, token.TypeAccess)
	if err != nil {
		return nil, fmt.Errorf("validate minted token: %w", err)
	}
	if _, err := s.TokenLog.Create(ctx, claims.ID, rec.ID, rec.Username, pair.AccessToken, pair.RefreshToken, pair.AccessTokenExpiresAt, pair.RefreshTokenExpiresAt); err != nil {
		return nil, fmt.Errorf("record token: %w", err)
	}
	cc.RecordAuth(rec.Username, rec.Roles, claims.ID)
	s.appendAuth(ctx, rec.ID, rec.Username, audit.StatusSuccess, "authenticated")

	return pair, nil
}

type authRefreshParams struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleAuthRefresh(ctx context.Context, cc *rpc.ClientContext, params json.RawMessage) (interface{}, error) {
	var p authRefreshParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "auth/refresh: malformed params")
	}
	if p.RefreshToken == "" {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "auth/refresh: refresh_token is required")
	}

	claims, err := s.Tokens.Validate(ctx, p.RefreshToken, token.TypeRefresh)
	if err != nil {
		return nil, rpc.NewError(rpc.CodeAuthenticationFailure, "invalid or expired refresh token")
	}

	rec, err := s.Credentials.Get(ctx, claims.ClientID)
	if err != nil || !rec.Enabled {
		return nil, rpc.NewError(rpc.CodeAuthenticationFailure, "client no longer eligible")
	}

	pair, err := s.Tokens.Mint(rec.ID, rec.Roles)
	if err != nil {
		return nil, fmt.Errorf("mint token: %w", err)
	}
	newClaims, err := s.Tokens.Validate(ctx, pair.AccessToken, token.TypeAccess)
	if err != nil {
		return nil, fmt.Errorf("validate minted token: %w", err)
	}
	if _, err := s.TokenLog.Create(ctx, newClaims.ID, rec.ID, rec.Username, pair.AccessToken, pair.RefreshToken, pair.AccessTokenExpiresAt, pair.RefreshTokenExpiresAt); err != nil {
		return nil, fmt.Errorf("record token: %w", err)
	}
	cc.RecordAuth(rec.Username, rec.Roles, newClaims.ID)
	return pair, nil
}

type authRevokeParams struct {
	JTI string `json:"jti"`
}

func (s *Server) handleAuthRevoke(ctx context.Context, cc *rpc.ClientContext, params json.RawMessage) (interface{}, error) {
	if !cc.IsAuthenticated() {
		return nil, rpc.NewError(rpc.CodeAuthorizationFailure, "auth/revoke requires an authenticated connection")
	}
	var p authRevokeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "auth/revoke: malformed params")
	}
	if p.JTI == "" {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "auth/revoke: jti is required")
	}

	if err := s.TokenLog.Revoke(ctx, p.JTI, cc.ID(), token.TypeAccess, time.Now().Add(24*time.Hour)); err != nil {
		return nil, fmt.Errorf("revoke token: %w", err)
	}
	s.appendAuth(ctx, cc.ID(), cc.Username(), audit.StatusSuccess, "token revoked")
	return map[string]interface{}{"status": "revoked"}, nil
}

func (s *Server) handleToolsList(ctx context.Context, cc *rpc.ClientContext, params json.RawMessage) (interface{}, error) {
	if !cc.IsAuthenticated() {
		return nil, rpc.NewError(rpc.CodeAuthorizationFailure, "tools/list requires authentication")
	}
	return map[string]interface{}{"tools": s.Tools.List(ctx)}, nil
}

type toolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, cc *rpc.ClientContext, params json.RawMessage) (interface{}, error) {
	if !cc.IsAuthenticated() {
		return nil, rpc.NewError(rpc.CodeAuthorizationFailure, "tools/call requires authentication")
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(params, &raw); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "tools/call: malformed params")
	}

	sanitizer := s.Sanitizer
	if sanitizer == nil {
		sanitizer = validation.NewSanitizer()
	}
	sanitized, err := sanitizer.SanitizeToolCall(raw)
	if err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, err.Error())
	}

	var p toolsCallParams
	if err := remarshal(sanitized, &p); err != nil {
		return nil, rpc.NewError(rpc.CodeInvalidParams, "tools/call: malformed params")
	}

	result, err := s.Orchestrator.Call(ctx, cc.ID(), p.Name, p.Arguments, s.Handlers)
	if err != nil {
		return nil, translateOrchestratorError(err)
	}
	return result, nil
}

// remarshal round-trips v through JSON into dst, used to turn a sanitized
// map[string]interface{} back into a typed params struct.
func remarshal(v interface{}, dst interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func translateOrchestratorError(err error) error {
	oerr, ok := err.(*orchestrator.Error)
	if !ok {
		return rpc.NewError(rpc.CodeExecutionError, "execution failed")
	}
	switch oerr.Class {
	case orchestrator.FailureValidation:
		return rpc.NewError(rpc.CodeInvalidParams, oerr.Error())
	case orchestrator.FailureDenied:
		return rpc.NewError(rpc.CodePermissionDenied, oerr.Error())
	case orchestrator.FailureTimeout:
		return rpc.NewErrorWithData(rpc.CodeExecutionError, "tool call timed out", map[string]string{"kind": "timeout"})
	default:
		return rpc.NewErrorWithData(rpc.CodeExecutionError, "tool call failed", map[string]string{"kind": "internal"})
	}
}

func (s *Server) appendAuth(ctx context.Context, clientID, username string, status audit.Status, message string) {
	if s.Audit == nil {
		return
	}
	err := s.Audit.Append(ctx, audit.Entry{
		Timestamp: time.Now().UTC(),
		EventType: audit.EventAuthenticate,
		ClientID:  clientID,
		Username:  username,
		Status:    status,
		Message:   message,
	})
	if err != nil {
		s.Logger.Error("audit append failed", "error", err, "event", audit.EventAuthenticate)
	}
}
