// Package ws provides the WebSocket transport adapter: an HTTP server that
// upgrades a single path to a WebSocket, one Machine per connection,
// JSON-RPC framed as individual text messages (WebSocket's own framing
// replaces the length prefix the TCP transport needs).
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/toolgate/toolgate/internal/domain/rpc"
	"github.com/toolgate/toolgate/pkg/mcp"
)

// Transport runs an HTTP server exposing Path as a WebSocket upgrade
// endpoint, dispatching each connection's JSON-RPC messages through a
// fresh Machine built by NewMachine.
type Transport struct {
	Addr         string
	Path         string
	NewMachine   func(connectionID string) *rpc.Machine
	Logger       *slog.Logger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	upgrader websocket.Upgrader
}

// New creates a Transport serving WebSocket upgrades for path on addr.
func New(addr, path string, newMachine func(string) *rpc.Machine, logger *slog.Logger, readTimeout, writeTimeout time.Duration) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		Addr: addr, Path: path, NewMachine: newMachine, Logger: logger,
		ReadTimeout: readTimeout, WriteTimeout: writeTimeout,
		// CheckOrigin always allows: this transport sits behind the same
		// deny-by-default permission-grant authorization as every other
		// transport, not behind browser same-origin trust.
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (t *Transport) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(t.Path, t.handleUpgrade)

	srv := &http.Server{Addr: t.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		t.Logger.Info("ws: listening", "addr", t.Addr, "path", t.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("ws: serve: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (t *Transport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.Logger.Warn("ws: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	machine := t.NewMachine(connID)
	var writeMu sync.Mutex
	ctx := r.Context()

	for {
		if t.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(t.ReadTimeout))
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Logger.Debug("ws: connection closed", "connection_id", connID, "error", err)
			return
		}

		resp := t.dispatch(ctx, machine, data)
		if resp == nil {
			continue
		}

		writeMu.Lock()
		if t.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(t.WriteTimeout))
		}
		writeErr := conn.WriteMessage(websocket.TextMessage, resp)
		writeMu.Unlock()
		if writeErr != nil {
			t.Logger.Warn("ws: write failed", "connection_id", connID, "error", writeErr)
			return
		}
	}
}

func (t *Transport) dispatch(ctx context.Context, machine *rpc.Machine, data []byte) []byte {
	msg, err := mcp.DecodeMessage(data)
	if err != nil {
		return encodeResponse(&jsonrpc.Response{Error: &jsonrpc.Error{Code: rpc.CodeParseError, Message: "failed to parse request"}})
	}

	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		return encodeResponse(&jsonrpc.Response{Error: &jsonrpc.Error{Code: rpc.CodeInvalidRequest, Message: "expected a request"}})
	}

	resp := machine.Dispatch(ctx, req)
	if resp == nil {
		return nil
	}
	return encodeResponse(resp)
}

func encodeResponse(resp *jsonrpc.Response) []byte {
	raw, err := mcp.EncodeMessage(resp)
	if err != nil {
		return nil
	}
	return raw
}
