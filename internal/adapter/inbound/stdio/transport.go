// Package stdio provides the stdio transport adapter: it frames
// newline-delimited JSON-RPC messages over stdin/stdout and dispatches
// each one through an rpc.Machine.
package stdio

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/toolgate/toolgate/internal/domain/rpc"
	"github.com/toolgate/toolgate/pkg/mcp"
)

// Transport reads newline-delimited JSON-RPC requests from In, dispatches
// each through a single Machine (stdio serves exactly one connection per
// process), and writes responses to Out.
type Transport struct {
	In      io.Reader
	Out     io.Writer
	Machine *rpc.Machine
	Logger  *slog.Logger

	writeMu sync.Mutex
}

// New creates a Transport reading from in and writing to out, dispatching
// through machine.
func New(in io.Reader, out io.Writer, machine *rpc.Machine, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{In: in, Out: out, Machine: machine, Logger: logger}
}

// Run reads requests until In is exhausted, ctx is cancelled, or the
// scanner hits an unrecoverable read error. It never closes In or Out; the
// caller owns their lifecycle.
func (t *Transport) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(t.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if len(line) == 0 {
				continue
			}
			t.handleLine(ctx, line)
		}
	}
}

func (t *Transport) handleLine(ctx context.Context, line []byte) {
	msg, err := mcp.DecodeMessage(line)
	if err != nil {
		t.write(&jsonrpc.Response{Error: &jsonrpc.Error{Code: rpc.CodeParseError, Message: "failed to parse request"}})
		return
	}

	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		t.write(&jsonrpc.Response{Error: &jsonrpc.Error{Code: rpc.CodeInvalidRequest, Message: "expected a request"}})
		return
	}

	resp := t.Machine.Dispatch(ctx, req)
	if resp == nil {
		return
	}
	t.write(resp)
}

func (t *Transport) write(resp *jsonrpc.Response) {
	raw, err := mcp.EncodeMessage(resp)
	if err != nil {
		t.Logger.Error("stdio: encode response failed", "error", err)
		return
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.Out.Write(append(raw, '\n')); err != nil {
		t.Logger.Error("stdio: write response failed", "error", err)
	}
}
