package policy

import "context"

// PolicyEngine evaluates tool calls against loaded CEL policies.
type PolicyEngine interface {
	// Evaluate evaluates a tool call against loaded policies.
	// Returns Decision with Allowed=true/false and reason.
	Evaluate(ctx context.Context, evalCtx EvaluationContext) (Decision, error)
}

// Store persists and retrieves policies.
type Store interface {
	// GetAllPolicies returns all enabled policies.
	GetAllPolicies(ctx context.Context) ([]Policy, error)
	// SavePolicy creates or updates a policy.
	SavePolicy(ctx context.Context, p *Policy) error
	// DeletePolicy removes a policy by ID.
	DeletePolicy(ctx context.Context, id string) error
}
