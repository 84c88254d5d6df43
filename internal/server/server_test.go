package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/toolgate/toolgate/internal/domain/audit"
	"github.com/toolgate/toolgate/internal/domain/authz"
	"github.com/toolgate/toolgate/internal/domain/credential"
	"github.com/toolgate/toolgate/internal/domain/orchestrator"
	"github.com/toolgate/toolgate/internal/domain/permission"
	"github.com/toolgate/toolgate/internal/domain/quota"
	"github.com/toolgate/toolgate/internal/domain/rpc"
	"github.com/toolgate/toolgate/internal/domain/sandbox"
	"github.com/toolgate/toolgate/internal/domain/token"
	"github.com/toolgate/toolgate/internal/domain/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type memAudit struct {
	entries []audit.Entry
}

func (m *memAudit) Append(ctx context.Context, e audit.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memAudit) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var out []audit.Entry
	for _, e := range m.entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T) (*Server, *memAudit) {
	t.Helper()
	dir := t.TempDir()
	logger := testLogger()

	creds := credential.NewRegistry(filepath.Join(dir, "clients.json"), logger)
	tokenLog := token.NewRegistry(filepath.Join(dir, "tokens.json"), logger)
	minter, err := token.NewMinter([]byte("01234567890123456789012345678901"), "toolgate-test", time.Minute, time.Hour, tokenLog)
	if err != nil {
		t.Fatalf("NewMinter: %v", err)
	}

	tools := tool.NewRegistry()
	_ = tools.Register(tool.Tool{
		Name:        "echo",
		InputSchema: tool.Schema{Type: "object"},
		HandlerRef:  "echo",
	})

	dirs, err := sandbox.NewDirManager(filepath.Join(dir, "sandbox"))
	if err != nil {
		t.Fatalf("NewDirManager: %v", err)
	}
	state := sandbox.NewStateStore(dirs, logger)
	grants := permission.NewStore()
	am := &memAudit{}

	quotaMgr := quota.NewManager(quota.Limits{MaxProcesses: 10})
	orch := orchestrator.New(tools, grants, authz.NewEngine(nil), quotaMgr, dirs, state, am, logger, nil)
	handlers := map[string]orchestrator.Handler{
		"echo": func(ctx context.Context, call orchestrator.HandlerCall) (interface{}, error) {
			return "pong", nil
		},
	}

	s := &Server{
		Credentials:  creds,
		Tokens:       minter,
		TokenLog:     tokenLog,
		Tools:        tools,
		Orchestrator: orch,
		Handlers:     handlers,
		Audit:        am,
		Logger:       logger,
		ServerInfo:   rpc.ServerInfo{Name: "toolgate", Version: "test"},
		Capabilities: map[string]interface{}{},
	}

	if _, err := creds.Create(context.Background(), "alice", "correct-horse-battery", "", []string{"user"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	return s, am
}

func req(id int64, method string, params interface{}) *jsonrpc.Request {
	raw, _ := json.Marshal(params)
	jid, _ := jsonrpc.MakeID(float64(id))
	return &jsonrpc.Request{ID: jid, Method: method, Params: json.RawMessage(raw)}
}

func initialize(t *testing.T, m *rpc.Machine) {
	t.Helper()
	resp := m.Dispatch(context.Background(), req(0, "initialize", map[string]interface{}{}))
	if resp == nil || resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp)
	}
}

func TestServer_AuthTokenAndToolsList(t *testing.T) {
	s, _ := newTestServer(t)
	m := s.NewMachine("conn-1")
	initialize(t, m)

	resp := m.Dispatch(context.Background(), req(1, "auth/token", authTokenParams{Username: "alice", Password: "correct-horse-battery"}))
	if resp == nil || resp.Error != nil {
		t.Fatalf("auth/token failed: %+v", resp)
	}
	if !m.ClientContext().IsAuthenticated() {
		t.Fatal("expected connection to be authenticated after auth/token")
	}

	listResp := m.Dispatch(context.Background(), req(2, "tools/list", map[string]interface{}{}))
	if listResp == nil || listResp.Error != nil {
		t.Fatalf("tools/list failed: %+v", listResp)
	}
}

func TestServer_AuthTokenWrongPassword(t *testing.T) {
	s, am := newTestServer(t)
	m := s.NewMachine("conn-1")
	initialize(t, m)

	resp := m.Dispatch(context.Background(), req(1, "auth/token", authTokenParams{Username: "alice", Password: "wrong"}))
	if resp == nil || resp.Error == nil {
		t.Fatal("expected auth failure")
	}
	if resp.Error.Code != rpc.CodeAuthenticationFailure {
		t.Errorf("expected CodeAuthenticationFailure, got %d", resp.Error.Code)
	}
	found := false
	for _, e := range am.entries {
		if e.Status == audit.StatusDenied {
			found = true
		}
	}
	if !found {
		t.Error("expected a denied audit entry for failed auth")
	}
}

func TestServer_ToolsCallRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	m := s.NewMachine("conn-1")
	initialize(t, m)

	resp := m.Dispatch(context.Background(), req(1, "tools/call", toolsCallParams{Name: "echo"}))
	if resp == nil || resp.Error == nil {
		t.Fatal("expected authorization failure")
	}
	if resp.Error.Code != rpc.CodeAuthorizationFailure {
		t.Errorf("expected CodeAuthorizationFailure, got %d", resp.Error.Code)
	}
}

func TestServer_ToolsCallSucceedsAfterAuth(t *testing.T) {
	s, _ := newTestServer(t)
	m := s.NewMachine("conn-1")
	initialize(t, m)

	authResp := m.Dispatch(context.Background(), req(1, "auth/token", authTokenParams{Username: "alice", Password: "correct-horse-battery"}))
	if authResp == nil || authResp.Error != nil {
		t.Fatalf("auth/token failed: %+v", authResp)
	}

	resp := m.Dispatch(context.Background(), req(2, "tools/call", toolsCallParams{Name: "echo", Arguments: map[string]interface{}{}}))
	if resp == nil || resp.Error != nil {
		t.Fatalf("tools/call failed: %+v", resp)
	}
}

func authenticatedMachine(t *testing.T, s *Server) *rpc.Machine {
	t.Helper()
	m := s.NewMachine("conn-1")
	initialize(t, m)
	authResp := m.Dispatch(context.Background(), req(1, "auth/token", authTokenParams{Username: "alice", Password: "correct-horse-battery"}))
	if authResp == nil || authResp.Error != nil {
		t.Fatalf("auth/token failed: %+v", authResp)
	}
	return m
}

func TestServer_ToolsCallRejectsPathTraversalInName(t *testing.T) {
	s, _ := newTestServer(t)
	m := authenticatedMachine(t, s)

	resp := m.Dispatch(context.Background(), req(2, "tools/call", toolsCallParams{Name: "../echo"}))
	if resp == nil || resp.Error == nil {
		t.Fatal("expected a path-traversal tool name to be rejected")
	}
	if resp.Error.Code != rpc.CodeInvalidParams {
		t.Errorf("expected CodeInvalidParams, got %d", resp.Error.Code)
	}
}

func TestServer_ToolsCallStripsNullBytesFromArguments(t *testing.T) {
	s, _ := newTestServer(t)
	m := authenticatedMachine(t, s)

	resp := m.Dispatch(context.Background(), req(2, "tools/call", toolsCallParams{
		Name:      "echo",
		Arguments: map[string]interface{}{"note": "hi\x00there"},
	}))
	if resp == nil || resp.Error != nil {
		t.Fatalf("tools/call failed: %+v", resp)
	}
}
