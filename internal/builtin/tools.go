// Package builtin registers the small set of always-available tools every
// Toolgate server exposes: reading and writing a client's sandboxed
// variable bag. These give a client a minimal, permission-gated way to
// carry state across tool calls without needing an external worker.
package builtin

import (
	"context"
	"fmt"

	"github.com/toolgate/toolgate/internal/domain/orchestrator"
	"github.com/toolgate/toolgate/internal/domain/permission"
	"github.com/toolgate/toolgate/internal/domain/tool"
)

const (
	stateGetHandlerRef = "builtin.state_get"
	stateSetHandlerRef = "builtin.state_set"
	stateAllHandlerRef = "builtin.state_all"
)

// Register adds the built-in tool descriptors to tools and returns their
// handlers keyed by HandlerRef, ready to be merged into the server's
// handler table.
func Register(tools *tool.Registry) (map[string]orchestrator.Handler, error) {
	descriptors := []tool.Tool{
		{
			Name:        "state_get",
			Description: "Read a variable from the caller's sandboxed state bag.",
			InputSchema: tool.Schema{
				Type:       "object",
				Properties: map[string]tool.Schema{"key": {Type: "string"}},
				Required:   []string{"key"},
			},
			RequiredPermissions: []permission.Requirement{{Type: permission.VariableRead}},
			HandlerRef:          stateGetHandlerRef,
		},
		{
			Name:        "state_set",
			Description: "Write a variable into the caller's sandboxed state bag.",
			InputSchema: tool.Schema{
				Type: "object",
				Properties: map[string]tool.Schema{
					"key":   {Type: "string"},
					"value": {Type: "string"},
				},
				Required: []string{"key", "value"},
			},
			RequiredPermissions: []permission.Requirement{{Type: permission.VariableWrite}},
			HandlerRef:          stateSetHandlerRef,
		},
		{
			Name:                "state_list",
			Description:         "List every variable in the caller's sandboxed state bag.",
			InputSchema:         tool.Schema{Type: "object"},
			RequiredPermissions: []permission.Requirement{{Type: permission.VariableRead}},
			HandlerRef:          stateAllHandlerRef,
		},
	}

	for _, d := range descriptors {
		if err := tools.Register(d); err != nil {
			return nil, fmt.Errorf("builtin: register %s: %w", d.Name, err)
		}
	}

	handlers := map[string]orchestrator.Handler{
		stateGetHandlerRef: handleStateGet,
		stateSetHandlerRef: handleStateSet,
		stateAllHandlerRef: handleStateAll,
	}
	return handlers, nil
}

func handleStateGet(ctx context.Context, call orchestrator.HandlerCall) (interface{}, error) {
	key, _ := call.Args["key"].(string)
	if key == "" {
		return nil, fmt.Errorf("builtin: state_get requires a non-empty key")
	}
	value, ok, err := call.State.Get(ctx, call.ClientID, key)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"key": key, "value": value, "found": ok}, nil
}

func handleStateSet(ctx context.Context, call orchestrator.HandlerCall) (interface{}, error) {
	key, _ := call.Args["key"].(string)
	if key == "" {
		return nil, fmt.Errorf("builtin: state_set requires a non-empty key")
	}
	value := call.Args["value"]
	if err := call.State.Set(ctx, call.ClientID, key, value); err != nil {
		return nil, err
	}
	return map[string]interface{}{"key": key, "stored": true}, nil
}

func handleStateAll(ctx context.Context, call orchestrator.HandlerCall) (interface{}, error) {
	all, err := call.State.All(ctx, call.ClientID)
	if err != nil {
		return nil, err
	}
	return all, nil
}
