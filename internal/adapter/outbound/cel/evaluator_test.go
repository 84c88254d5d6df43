package cel

import (
	"strings"
	"testing"
	"time"

	"github.com/toolgate/toolgate/internal/domain/policy"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if eval == nil {
		t.Fatal("NewEvaluator() returned nil")
	}
}

func TestCompile_ValidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`tool_name == "read_file"`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if prg == nil {
		t.Fatal("Compile() returned nil program")
	}
}

func TestCompile_InvalidExpression(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	_, err = eval.Compile(`this is not valid CEL !!!`)
	if err == nil {
		t.Fatal("Compile() expected error for invalid expression, got nil")
	}
}

func TestEvaluate_TrueCondition(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`tool_name == "read_file"`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	evalCtx := policy.EvaluationContext{
		ToolName:    "read_file",
		RequestTime: time.Now(),
	}

	result, err := eval.Evaluate(prg, evalCtx)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result {
		t.Error("expected true")
	}
}

func TestEvaluate_FalseCondition(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`tool_name == "delete_file"`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	evalCtx := policy.EvaluationContext{
		ToolName:    "read_file",
		RequestTime: time.Now(),
	}

	result, err := eval.Evaluate(prg, evalCtx)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if result {
		t.Error("expected false")
	}
}

func TestEvaluate_GlobFunction(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`glob("file_*", tool_name)`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	evalCtx := policy.EvaluationContext{ToolName: "file_read", RequestTime: time.Now()}
	result, err := eval.Evaluate(prg, evalCtx)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result {
		t.Error("expected glob match to be true")
	}
}

func TestEvaluate_ClientRolesAndArgs(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`"admin" in client_roles && tool_arg(tool_args, "path") == "/tmp/data"`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}

	evalCtx := policy.EvaluationContext{
		ToolName:      "read_file",
		ToolArguments: map[string]interface{}{"path": "/tmp/data"},
		ClientRoles:   []string{"admin"},
		RequestTime:   time.Now(),
	}

	result, err := eval.Evaluate(prg, evalCtx)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	if !result {
		t.Error("expected true")
	}
}

func TestValidateExpression_TooLong(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	longExpr := `tool_name == "` + strings.Repeat("a", maxExpressionLength) + `"`
	if err := eval.ValidateExpression(longExpr); err == nil {
		t.Error("expected error for overlong expression")
	}
}

func TestValidateExpression_Empty(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if err := eval.ValidateExpression(""); err == nil {
		t.Error("expected error for empty expression")
	}
}

func TestValidateExpression_TooDeeplyNested(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	expr := strings.Repeat("(", maxNestingDepth+1) + "true" + strings.Repeat(")", maxNestingDepth+1)
	if err := eval.ValidateExpression(expr); err == nil {
		t.Error("expected error for excessive nesting")
	}
}

func TestValidateExpression_Valid(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}
	if err := eval.ValidateExpression(`tool_name == "read_file"`); err != nil {
		t.Errorf("expected valid expression, got %v", err)
	}
}

func TestEvaluate_NonBooleanResultErrors(t *testing.T) {
	eval, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error: %v", err)
	}

	prg, err := eval.Compile(`tool_name`)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if _, err := eval.Evaluate(prg, policy.EvaluationContext{ToolName: "x"}); err == nil {
		t.Error("expected error for non-boolean result")
	}
}
