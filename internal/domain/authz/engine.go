// Package authz authorizes a tool call: every permission a tool declares it
// needs must be covered by a grant on the calling client, deny-by-default.
// An optional CEL policy layer can be stacked on top, but it is strictly
// additive — it can turn an allow into a deny, never the reverse.
package authz

import (
	"context"
	"fmt"

	"github.com/toolgate/toolgate/internal/domain/permission"
	"github.com/toolgate/toolgate/internal/domain/policy"
)

// Decision is the outcome of authorizing a tool call.
type Decision struct {
	Allowed bool
	Reason  string
	RuleID  string
}

// Engine checks a client's permission grants against a tool's declared
// requirements, then optionally narrows the result through a secondary CEL
// policy evaluation.
type Engine struct {
	policy policy.PolicyEngine // optional; nil disables the secondary layer
}

// NewEngine creates an Engine. policyEngine may be nil to run permission
// checks alone.
func NewEngine(policyEngine policy.PolicyEngine) *Engine {
	return &Engine{policy: policyEngine}
}

// Authorize evaluates required against grants. If every requirement is
// covered and a secondary policy engine is configured, its decision is
// consulted and can only add a denial on top of an otherwise-allowed call.
func (e *Engine) Authorize(ctx context.Context, grants []permission.Grant, required []permission.Requirement, evalCtx policy.EvaluationContext) (Decision, error) {
	for _, req := range required {
		if !anyGrantAllows(grants, req) {
			return Decision{
				Allowed: false,
				Reason:  fmt.Sprintf("missing permission %s for resource %q", req.Type, req.Resource),
			}, nil
		}
	}

	if e.policy == nil {
		return Decision{Allowed: true, Reason: "permission grants satisfied"}, nil
	}

	policyDecision, err := e.policy.Evaluate(ctx, evalCtx)
	if err != nil {
		return Decision{}, fmt.Errorf("authz: policy evaluation: %w", err)
	}
	if !policyDecision.Allowed {
		return Decision{
			Allowed: false,
			Reason:  policyDecision.Reason,
			RuleID:  policyDecision.RuleID,
		}, nil
	}

	return Decision{Allowed: true, Reason: "permission grants satisfied", RuleID: policyDecision.RuleID}, nil
}

func anyGrantAllows(grants []permission.Grant, req permission.Requirement) bool {
	for _, g := range grants {
		if g.Allows(req.Type, req.Resource) {
			return true
		}
	}
	return false
}
