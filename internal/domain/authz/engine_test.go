package authz

import (
	"context"
	"testing"

	"github.com/toolgate/toolgate/internal/domain/permission"
	"github.com/toolgate/toolgate/internal/domain/policy"
)

type stubPolicyEngine struct {
	decision policy.Decision
	err      error
}

func (s stubPolicyEngine) Evaluate(ctx context.Context, evalCtx policy.EvaluationContext) (policy.Decision, error) {
	return s.decision, s.err
}

func TestEngine_DeniesWhenGrantMissing(t *testing.T) {
	e := NewEngine(nil)
	required := []permission.Requirement{{Type: permission.FilesystemRead, Resource: "/data/a.csv"}}

	d, err := e.Authorize(context.Background(), nil, required, policy.EvaluationContext{})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Allowed {
		t.Error("expected deny-by-default when no grant exists")
	}
}

func TestEngine_AllowsWhenGrantCovers(t *testing.T) {
	e := NewEngine(nil)
	grants := []permission.Grant{{Type: permission.FilesystemRead, Kind: permission.MatchGlob, Patterns: []string{"/data/*"}}}
	required := []permission.Requirement{{Type: permission.FilesystemRead, Resource: "/data/a.csv"}}

	d, err := e.Authorize(context.Background(), grants, required, policy.EvaluationContext{})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Allowed {
		t.Errorf("expected allow, got deny: %s", d.Reason)
	}
}

func TestEngine_PolicyLayerCanOnlyDeny(t *testing.T) {
	grants := []permission.Grant{{Type: permission.FilesystemRead, Kind: permission.MatchGlob, Patterns: []string{"/data/*"}}}
	required := []permission.Requirement{{Type: permission.FilesystemRead, Resource: "/data/a.csv"}}

	denying := NewEngine(stubPolicyEngine{decision: policy.Decision{Allowed: false, Reason: "blocked by rule"}})
	d, err := denying.Authorize(context.Background(), grants, required, policy.EvaluationContext{})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Allowed {
		t.Error("expected policy layer to be able to deny")
	}

	allowing := NewEngine(stubPolicyEngine{decision: policy.Decision{Allowed: true}})
	d, err = allowing.Authorize(context.Background(), grants, required, policy.EvaluationContext{})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Allowed {
		t.Error("expected allow when both layers agree")
	}
}

func TestEngine_PolicyLayerCannotOverturnMissingGrant(t *testing.T) {
	e := NewEngine(stubPolicyEngine{decision: policy.Decision{Allowed: true}})
	required := []permission.Requirement{{Type: permission.ShellExec}}

	d, err := e.Authorize(context.Background(), nil, required, policy.EvaluationContext{})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Allowed {
		t.Error("expected the missing permission grant to deny regardless of the policy layer")
	}
}
