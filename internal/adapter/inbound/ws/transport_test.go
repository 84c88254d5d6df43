package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/toolgate/toolgate/internal/domain/rpc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMachine(connID string) *rpc.Machine {
	handlers := map[string]rpc.HandlerFunc{
		"tools/list": func(ctx context.Context, cc *rpc.ClientContext, params json.RawMessage) (interface{}, error) {
			return map[string]interface{}{"tools": []string{}}, nil
		},
	}
	return rpc.NewMachine(connID, rpc.ServerInfo{Name: "toolgate", Version: "test"}, nil, handlers)
}

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestTransport_InitializeThenToolsList(t *testing.T) {
	addr := freePort(t)
	tr := New(addr, "/ws", newTestMachine, testLogger(), time.Second, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- tr.Run(ctx) }()

	var conn *websocket.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","method":"initialize","id":1}`)); err != nil {
		t.Fatalf("write initialize: %v", err)
	}
	_, initResp, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read initialize response: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(initResp, &decoded); err != nil {
		t.Fatalf("unmarshal initialize response: %v", err)
	}
	if _, hasErr := decoded["error"]; hasErr {
		t.Fatalf("initialize returned error: %v", decoded)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","method":"tools/list","id":2}`)); err != nil {
		t.Fatalf("write tools/list: %v", err)
	}
	_, listResp, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read tools/list response: %v", err)
	}
	if err := json.Unmarshal(listResp, &decoded); err != nil {
		t.Fatalf("unmarshal tools/list response: %v", err)
	}
	if _, hasErr := decoded["error"]; hasErr {
		t.Fatalf("tools/list returned error: %v", decoded)
	}

	cancel()
	<-errCh
}

func TestTransport_MalformedMessageReturnsParseError(t *testing.T) {
	addr := freePort(t)
	tr := New(addr, "/ws", newTestMachine, testLogger(), time.Second, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- tr.Run(ctx) }()

	var conn *websocket.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, resp, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(resp, &decoded); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if _, hasErr := decoded["error"]; !hasErr {
		t.Fatalf("expected parse error response, got %v", decoded)
	}

	cancel()
	<-errCh
}
