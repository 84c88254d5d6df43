package rpc

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// ProtocolVersion is the MCP protocol version this server reports and
// expects during the initialize handshake.
const ProtocolVersion = "2024-11"

// HandlerFunc processes one registered method call. params is the raw
// request params (nil for a call with no params). Returning an *Error
// controls the JSON-RPC error code reported to the caller; any other
// error is reported as CodeInternalError.
type HandlerFunc func(ctx context.Context, cc *ClientContext, params json.RawMessage) (interface{}, error)

// ServerInfo describes this server in the initialize response.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Machine is the per-connection protocol state machine: fresh ->
// initialized -> (initialized|fresh), dispatching initialized-state
// requests to a registered-method table.
type Machine struct {
	state        State
	cc           *ClientContext
	handlers     map[string]HandlerFunc
	capabilities map[string]interface{}
	serverInfo   ServerInfo
}

// NewMachine creates a Machine for one connection, identified by
// connectionID, with the given registered method table.
func NewMachine(connectionID string, serverInfo ServerInfo, capabilities map[string]interface{}, handlers map[string]HandlerFunc) *Machine {
	if handlers == nil {
		handlers = map[string]HandlerFunc{}
	}
	return &Machine{
		state:        StateFresh,
		cc:           NewClientContext(connectionID),
		handlers:     handlers,
		capabilities: capabilities,
		serverInfo:   serverInfo,
	}
}

// State returns the connection's current lifecycle state.
func (m *Machine) State() State { return m.state }

// ClientContext returns the connection's security context.
func (m *Machine) ClientContext() *ClientContext { return m.cc }

// Dispatch processes one decoded request and returns its response, or nil
// for a notification (a request with no id), which never receives a reply.
func (m *Machine) Dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	m.cc.RecordRequest()
	isCall := req.IsCall()

	switch req.Method {
	case "initialize":
		return m.handleInitialize(req, isCall)
	case "shutdown":
		return m.handleShutdown(req, isCall)
	}

	if m.state != StateInitialized {
		return m.errorResponse(req, isCall, NewError(CodeInvalidRequest, "client must call initialize first"))
	}

	handler, ok := m.handlers[req.Method]
	if !ok {
		return m.errorResponse(req, isCall, NewError(CodeMethodNotFound, "method not found: "+req.Method))
	}

	result, err := handler(ctx, m.cc, req.Params)
	if err != nil {
		return m.errorResponse(req, isCall, toRPCError(err))
	}
	if !isCall {
		return nil
	}
	return m.resultResponse(req, result)
}

func (m *Machine) handleInitialize(req *jsonrpc.Request, isCall bool) *jsonrpc.Response {
	if m.state != StateFresh {
		return m.errorResponse(req, isCall, NewError(CodeInvalidState, "already initialized"))
	}
	m.state = StateInitialized
	result := map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities":    m.capabilities,
		"serverInfo":      m.serverInfo,
	}
	return m.resultResponse(req, result)
}

func (m *Machine) handleShutdown(req *jsonrpc.Request, isCall bool) *jsonrpc.Response {
	if m.state != StateInitialized {
		return m.errorResponse(req, isCall, NewError(CodeInvalidState, "not initialized"))
	}
	m.state = StateFresh
	return m.resultResponse(req, map[string]interface{}{"status": "ok"})
}

func (m *Machine) resultResponse(req *jsonrpc.Request, result interface{}) *jsonrpc.Response {
	if !req.IsCall() {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return &jsonrpc.Response{ID: req.ID, Error: &jsonrpc.Error{Code: CodeInternalError, Message: "failed to encode result"}}
	}
	return &jsonrpc.Response{ID: req.ID, Result: raw}
}

func (m *Machine) errorResponse(req *jsonrpc.Request, isCall bool, rerr *Error) *jsonrpc.Response {
	if !isCall {
		return nil
	}
	jerr := &jsonrpc.Error{Code: rerr.Code, Message: rerr.Message}
	if rerr.Data != nil {
		if raw, err := json.Marshal(rerr.Data); err == nil {
			jerr.Data = json.RawMessage(raw)
		}
	}
	return &jsonrpc.Response{ID: req.ID, Error: jerr}
}

// toRPCError coerces a handler's returned error into an *Error, defaulting
// to an internal error that does not leak the original message.
func toRPCError(err error) *Error {
	if rerr, ok := err.(*Error); ok {
		return rerr
	}
	return NewError(CodeInternalError, "internal error")
}
