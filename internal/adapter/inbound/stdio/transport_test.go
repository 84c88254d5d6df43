package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/toolgate/toolgate/internal/domain/rpc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMachine() *rpc.Machine {
	handlers := map[string]rpc.HandlerFunc{
		"tools/list": func(ctx context.Context, cc *rpc.ClientContext, params json.RawMessage) (interface{}, error) {
			return map[string]interface{}{"tools": []string{}}, nil
		},
		"boom": func(ctx context.Context, cc *rpc.ClientContext, params json.RawMessage) (interface{}, error) {
			return nil, rpc.NewError(rpc.CodePermissionDenied, "denied")
		},
	}
	return rpc.NewMachine("stdio-test", rpc.ServerInfo{Name: "toolgate", Version: "test"}, nil, handlers)
}

func runTransport(t *testing.T, in string) string {
	t.Helper()
	var out bytes.Buffer
	tr := New(strings.NewReader(in), &out, newTestMachine(), testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tr.Run(ctx); err != nil && err.Error() != "context deadline exceeded" {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func TestTransport_InitializeThenToolsList(t *testing.T) {
	input := `{"jsonrpc":"2.0","method":"initialize","id":1}` + "\n" +
		`{"jsonrpc":"2.0","method":"tools/list","id":2}` + "\n"
	out := runTransport(t, input)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 response lines, got %d: %q", len(lines), out)
	}

	var initResp, listResp map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &initResp); err != nil {
		t.Fatalf("unmarshal initialize response: %v", err)
	}
	if _, hasErr := initResp["error"]; hasErr {
		t.Errorf("expected no error in initialize response: %v", initResp)
	}
	if err := json.Unmarshal([]byte(lines[1]), &listResp); err != nil {
		t.Fatalf("unmarshal tools/list response: %v", err)
	}
	if _, hasErr := listResp["error"]; hasErr {
		t.Errorf("expected no error in tools/list response: %v", listResp)
	}
}

func TestTransport_RejectsBeforeInitialize(t *testing.T) {
	input := `{"jsonrpc":"2.0","method":"tools/list","id":1}` + "\n"
	out := runTransport(t, input)

	var resp struct {
		Error *struct {
			Code int64 `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != rpc.CodeInvalidRequest {
		t.Errorf("expected CodeInvalidRequest, got %+v", resp.Error)
	}
}

func TestTransport_MalformedLineGetsParseError(t *testing.T) {
	input := `not json at all` + "\n"
	out := runTransport(t, input)

	var resp struct {
		Error *struct {
			Code int64 `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != rpc.CodeParseError {
		t.Errorf("expected CodeParseError, got %+v", resp.Error)
	}
}

func TestTransport_HandlerErrorPreservesCode(t *testing.T) {
	input := `{"jsonrpc":"2.0","method":"initialize","id":1}` + "\n" +
		`{"jsonrpc":"2.0","method":"boom","id":2}` + "\n"
	out := runTransport(t, input)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 response lines, got %d: %q", len(lines), out)
	}

	var resp struct {
		Error *struct {
			Code int64 `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != rpc.CodePermissionDenied {
		t.Errorf("expected CodePermissionDenied, got %+v", resp.Error)
	}
}

func TestTransport_NotificationGetsNoResponse(t *testing.T) {
	input := `{"jsonrpc":"2.0","method":"initialize","id":1}` + "\n" +
		`{"jsonrpc":"2.0","method":"tools/list"}` + "\n"
	out := runTransport(t, input)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the initialize response, got %d lines: %q", len(lines), out)
	}
}

func TestTransport_EOFReturnsNilError(t *testing.T) {
	var out bytes.Buffer
	tr := New(strings.NewReader(""), &out, newTestMachine(), testLogger())
	if err := tr.Run(context.Background()); err != nil {
		t.Errorf("expected nil error on clean EOF, got %v", err)
	}
}
