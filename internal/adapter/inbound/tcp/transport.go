// Package tcp provides the TCP transport adapter: it frames JSON-RPC
// messages over a raw socket with a 4-byte big-endian length prefix, one
// Machine per accepted connection.
package tcp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/toolgate/toolgate/internal/domain/rpc"
	"github.com/toolgate/toolgate/pkg/mcp"
)

// maxMessageSize bounds a single length-prefixed frame to guard against a
// malicious or malfunctioning client claiming an unbounded length.
const maxMessageSize = 10 * 1024 * 1024

// Transport accepts TCP connections on Addr and dispatches each
// length-prefixed JSON-RPC message through a fresh Machine built by
// NewMachine.
type Transport struct {
	Addr         string
	NewMachine   func(connectionID string) *rpc.Machine
	Logger       *slog.Logger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates a Transport listening on addr. readTimeout/writeTimeout of
// zero disable the corresponding deadline.
func New(addr string, newMachine func(string) *rpc.Machine, logger *slog.Logger, readTimeout, writeTimeout time.Duration) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		Addr: addr, NewMachine: newMachine, Logger: logger,
		ReadTimeout: readTimeout, WriteTimeout: writeTimeout,
	}
}

// Run listens on Addr and serves connections until ctx is cancelled or the
// listener fails.
func (t *Transport) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.Addr)
	if err != nil {
		return fmt.Errorf("tcp: listen %s: %w", t.Addr, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	t.Logger.Info("tcp: listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("tcp: accept: %w", err)
		}
		go t.handleConn(ctx, conn)
	}
}

func (t *Transport) handleConn(ctx context.Context, conn net.Conn) {
	connID := uuid.NewString()
	defer conn.Close()

	machine := t.NewMachine(connID)
	var writeMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(t.ReadTimeout))
		}

		data, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				t.Logger.Debug("tcp: connection closed", "connection_id", connID, "error", err)
			}
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
		writeErr := t.writeFrame(conn, resp)
		writeMu.Unlock()
		if writeErr != nil {
			t.Logger.Warn("tcp: write failed", "connection_id", connID, "error", writeErr)
			return
		}
	}
}

// dispatch decodes one frame's JSON-RPC message, runs it through machine,
// and encodes the response. Returns nil for a notification, which never
// receives a reply.
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

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > maxMessageSize {
		return nil, fmt.Errorf("tcp: frame too large: %d bytes", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (t *Transport) writeFrame(w io.Writer, raw []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(raw)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(raw)
	return err
}
