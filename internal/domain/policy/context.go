package policy

import "time"

// EvaluationContext contains all information needed to evaluate a policy rule.
type EvaluationContext struct {
	// ToolName is the name of the tool being invoked.
	ToolName string
	// ToolArguments are the arguments passed to the tool.
	ToolArguments map[string]interface{}
	// ClientRoles are the roles assigned to the calling client.
	ClientRoles []string
	// ClientID is the authenticated client's identifier.
	ClientID string
	// RequestTime is when the tool call was received.
	RequestTime time.Time
}
