// Package orchestrator runs the full tool-call pipeline: validate the
// arguments against a tool's schema, authorize the call against the
// client's permission grants, acquire a sandbox context and a process
// quota slot, run the handler under a timeout, shape the result, and
// append an audit entry on every exit path.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/toolgate/toolgate/internal/domain/audit"
	"github.com/toolgate/toolgate/internal/domain/authz"
	"github.com/toolgate/toolgate/internal/domain/permission"
	"github.com/toolgate/toolgate/internal/domain/policy"
	"github.com/toolgate/toolgate/internal/domain/quota"
	"github.com/toolgate/toolgate/internal/domain/sandbox"
	"github.com/toolgate/toolgate/internal/domain/schema"
	"github.com/toolgate/toolgate/internal/domain/tool"
)

// DefaultTimeout is used when a tool does not declare its own.
const DefaultTimeout = 30 * time.Second

// Handler executes one tool call's business logic. call carries
// whatever the handler needs from the sandbox (jail directory, state
// store); it does not itself decide permissions or quota - the
// orchestrator has already done that.
type Handler func(ctx context.Context, call HandlerCall) (interface{}, error)

// HandlerCall is what a Handler receives: the validated arguments plus the
// calling client's sandbox context.
type HandlerCall struct {
	ClientID string
	Args     map[string]interface{}
	Jail     string
	State    *sandbox.StateStore
}

// Result is the MCP-shaped outcome of a tools/call dispatch.
type Result struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError"`
}

// ContentItem is one element of a Result's content array.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Failure classes, used to tag audit entries and pick an RPC error code.
type FailureClass string

const (
	FailureNone       FailureClass = ""
	FailureValidation FailureClass = "validation_error"
	FailureDenied     FailureClass = "permission_denied"
	FailureTimeout    FailureClass = "timeout"
	FailureError      FailureClass = "error"
)

// Error carries a FailureClass alongside the underlying error so callers
// (the registered-method handler wiring the rpc.Machine) can translate it
// into the correct JSON-RPC error code.
type Error struct {
	Class FailureClass
	Err   error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Orchestrator wires together every component a tool call touches.
type Orchestrator struct {
	Tools        *tool.Registry
	Grants       *permission.Store
	Authz        *authz.Engine
	Quota        *quota.Manager
	Dirs         *sandbox.DirManager
	State        *sandbox.StateStore
	Audit        audit.Store
	Logger       *slog.Logger
	Tracer       oteltrace.Tracer
	MaxResultLen int
}

// New creates an Orchestrator. tracer may be nil, in which case the global
// no-op tracer is used.
func New(tools *tool.Registry, grants *permission.Store, authzEngine *authz.Engine, quotaMgr *quota.Manager, dirs *sandbox.DirManager, state *sandbox.StateStore, auditStore audit.Store, logger *slog.Logger, tracer oteltrace.Tracer) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		Tools: tools, Grants: grants, Authz: authzEngine, Quota: quotaMgr,
		Dirs: dirs, State: state, Audit: auditStore, Logger: logger,
		Tracer: tracer, MaxResultLen: 4000,
	}
}

// handlerRegistry maps a tool's HandlerRef to the Handler that implements
// it. Set once at startup by the composition root.
type handlerRegistry = map[string]Handler

// Call runs the full pipeline for one tools/call invocation.
func (o *Orchestrator) Call(ctx context.Context, clientID, toolName string, args map[string]interface{}, handlers handlerRegistry) (*Result, error) {
	start := time.Now()
	ctx, span := o.startSpan(ctx, toolName)
	defer span.End()

	t, err := o.Tools.Get(ctx, toolName)
	if err != nil {
		return nil, o.fail(ctx, clientID, toolName, start, FailureError, fmt.Errorf("unknown tool: %w", err))
	}

	if errs := schema.Validate(t.InputSchema, args); len(errs) > 0 {
		return nil, o.fail(ctx, clientID, toolName, start, FailureValidation, formatSchemaErrors(errs))
	}

	evalCtx := policy.EvaluationContext{
		ToolName:      toolName,
		ToolArguments: args,
		ClientID:      clientID,
		RequestTime:   start,
	}
	grants := o.Grants.Grants(clientID)
	decision, err := o.Authz.Authorize(ctx, grants, t.RequiredPermissions, evalCtx)
	if err != nil {
		return nil, o.fail(ctx, clientID, toolName, start, FailureError, fmt.Errorf("authorization: %w", err))
	}
	if !decision.Allowed {
		return nil, o.fail(ctx, clientID, toolName, start, FailureDenied, fmt.Errorf("%s", decision.Reason))
	}

	jail, err := o.Dirs.JailDir(clientID)
	if err != nil {
		return nil, o.fail(ctx, clientID, toolName, start, FailureError, fmt.Errorf("sandbox: %w", err))
	}

	handler, ok := handlers[t.HandlerRef]
	if !ok {
		return nil, o.fail(ctx, clientID, toolName, start, FailureError, fmt.Errorf("no handler registered for %q", t.HandlerRef))
	}

	override := hasQuotaOverride(grants)
	req := quota.Requirement{CPUMillis: t.EstimatedCPUMillis, MemoryBytes: t.EstimatedMemoryBytes, DiskBytes: t.EstimatedDiskBytes}
	if allowed, reason := o.Quota.Check(clientID, req, override); !allowed {
		return nil, o.fail(ctx, clientID, toolName, start, FailureDenied, fmt.Errorf("quota: %s", reason))
	}

	if err := o.Quota.AcquireProcess(clientID); err != nil {
		return nil, o.fail(ctx, clientID, toolName, start, FailureDenied, err)
	}
	defer o.Quota.ReleaseProcess(clientID)

	if req.CPUMillis > 0 {
		if err := o.Quota.AllocateCPU(clientID, req.CPUMillis); err != nil && !override {
			return nil, o.fail(ctx, clientID, toolName, start, FailureDenied, err)
		}
	}
	if req.MemoryBytes > 0 {
		if err := o.Quota.AllocateMemory(clientID, req.MemoryBytes); err != nil && !override {
			return nil, o.fail(ctx, clientID, toolName, start, FailureDenied, err)
		}
	}
	if req.DiskBytes > 0 {
		if err := o.Quota.AllocateDisk(clientID, req.DiskBytes); err != nil && !override {
			return nil, o.fail(ctx, clientID, toolName, start, FailureDenied, err)
		}
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	result, err := o.runWithTimeout(ctx, handler, HandlerCall{ClientID: clientID, Args: args, Jail: jail, State: o.State}, timeout)
	if err != nil {
		if err == context.DeadlineExceeded {
			return nil, o.fail(ctx, clientID, toolName, start, FailureTimeout, fmt.Errorf("tool %q timed out after %s", toolName, timeout))
		}
		return nil, o.fail(ctx, clientID, toolName, start, FailureError, err)
	}

	shaped := shapeResult(result)
	o.appendAudit(ctx, clientID, toolName, audit.StatusSuccess, start, args, "", shaped)
	return shaped, nil
}

func (o *Orchestrator) runWithTimeout(ctx context.Context, h Handler, call HandlerCall, timeout time.Duration) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		res, err := h(ctx, call)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		return o.result, o.err
	}
}

func shapeResult(result interface{}) *Result {
	text, ok := result.(string)
	if !ok {
		raw, err := json.Marshal(result)
		if err != nil {
			text = fmt.Sprintf("%v", result)
		} else {
			text = string(raw)
		}
	}
	return &Result{Content: []ContentItem{{Type: "text", Text: text}}, IsError: false}
}

func (o *Orchestrator) fail(ctx context.Context, clientID, toolName string, start time.Time, class FailureClass, err error) error {
	o.appendAudit(ctx, clientID, toolName, classToStatus(class), start, nil, truncate(err.Error(), o.MaxResultLen), nil)
	return &Error{Class: class, Err: err}
}

func classToStatus(class FailureClass) audit.Status {
	switch class {
	case FailureDenied:
		return audit.StatusDenied
	case FailureNone:
		return audit.StatusSuccess
	default:
		return audit.StatusError
	}
}

func (o *Orchestrator) appendAudit(ctx context.Context, clientID, toolName string, status audit.Status, start time.Time, args map[string]interface{}, errText string, result *Result) {
	entry := audit.Entry{
		Timestamp: start,
		EventType: audit.EventToolCall,
		ClientID:  clientID,
		Status:    status,
		Message:   toolName,
		Error:     errText,
		Detail: map[string]interface{}{
			"elapsed_ms": time.Since(start).Milliseconds(),
			"args":       audit.RedactSensitiveArgs(args),
		},
	}
	if result != nil && len(result.Content) > 0 {
		entry.Detail["result"] = truncate(result.Content[0].Text, o.MaxResultLen)
	}
	if o.Audit != nil {
		if err := o.Audit.Append(ctx, entry); err != nil {
			o.Logger.Error("audit append failed", "error", err, "tool", toolName, "client_id", clientID)
		}
	}
}

func (o *Orchestrator) startSpan(ctx context.Context, toolName string) (context.Context, oteltrace.Span) {
	tracer := o.Tracer
	if tracer == nil {
		return ctx, oteltrace.SpanFromContext(ctx)
	}
	ctx, span := tracer.Start(ctx, "orchestrator.call", oteltrace.WithAttributes(attribute.String("tool.name", toolName)))
	span.SetStatus(codes.Ok, "")
	return ctx, span
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

func hasQuotaOverride(grants []permission.Grant) bool {
	for _, g := range grants {
		if g.Type == permission.QuotaOverride {
			return true
		}
	}
	return false
}

func formatSchemaErrors(errs []*schema.Error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %s", errs[0].Path, errs[0].Reason)
}
