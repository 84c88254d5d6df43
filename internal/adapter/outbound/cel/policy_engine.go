package cel

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/toolgate/toolgate/internal/domain/policy"
)

// Engine is a policy.PolicyEngine backed by CEL rule expressions loaded
// from a policy.Store. Compiled programs are cached by rule ID so a
// repeated tool call does not re-parse and re-typecheck the same
// expression.
type Engine struct {
	store     policy.Store
	evaluator *Evaluator
	logger    *slog.Logger

	mu      sync.Mutex
	cache   map[string]cel.Program
	sources map[string]string // rule ID -> condition, to invalidate the cache on edit
}

// NewPolicyEngine creates a CEL-backed policy.PolicyEngine reading its
// rules from store.
func NewPolicyEngine(store policy.Store, evaluator *Evaluator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		evaluator: evaluator,
		logger:    logger,
		cache:     map[string]cel.Program{},
		sources:   map[string]string{},
	}
}

// Evaluate loads every enabled policy, walks their rules in priority order
// (lowest Priority first, policies then rules within a policy), and
// returns the decision of the first rule whose ToolMatch glob matches the
// call's tool name and whose Condition evaluates to true. A call that
// matches no rule is allowed: the policy layer is additive and only
// narrows what the primary permission-grant check already allowed.
func (e *Engine) Evaluate(ctx context.Context, evalCtx policy.EvaluationContext) (policy.Decision, error) {
	policies, err := e.store.GetAllPolicies(ctx)
	if err != nil {
		return policy.Decision{}, fmt.Errorf("cel: load policies: %w", err)
	}

	sort.Slice(policies, func(i, j int) bool { return policies[i].Priority < policies[j].Priority })

	for _, p := range policies {
		rules := append([]policy.Rule(nil), p.Rules...)
		sort.Slice(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })

		for _, rule := range rules {
			matched, err := filepath.Match(rule.ToolMatch, evalCtx.ToolName)
			if err != nil {
				e.logger.Warn("cel: invalid tool_match pattern", "rule_id", rule.ID, "pattern", rule.ToolMatch, "error", err)
				continue
			}
			if !matched {
				continue
			}

			prg, err := e.compiled(rule)
			if err != nil {
				return policy.Decision{}, fmt.Errorf("cel: compile rule %s: %w", rule.ID, err)
			}

			ok, err := e.evaluator.Evaluate(prg, evalCtx)
			if err != nil {
				return policy.Decision{}, fmt.Errorf("cel: evaluate rule %s: %w", rule.ID, err)
			}
			if !ok {
				continue
			}

			return policy.Decision{
				Allowed:  rule.Action == policy.ActionAllow,
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Reason:   fmt.Sprintf("policy %q rule %q (%s)", p.Name, rule.Name, rule.Action),
			}, nil
		}
	}

	return policy.Decision{Allowed: true, Reason: "no policy rule matched"}, nil
}

// compiled returns the cached program for rule, recompiling it if the
// rule's condition has changed since the last lookup.
func (e *Engine) compiled(rule policy.Rule) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[rule.ID]; ok && e.sources[rule.ID] == rule.Condition {
		return prg, nil
	}

	prg, err := e.evaluator.Compile(rule.Condition)
	if err != nil {
		return nil, err
	}
	e.cache[rule.ID] = prg
	e.sources[rule.ID] = rule.Condition
	return prg, nil
}

var _ policy.PolicyEngine = (*Engine)(nil)
