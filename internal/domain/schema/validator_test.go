package schema

import (
	"testing"

	"github.com/toolgate/toolgate/internal/domain/tool"
)

func TestValidate_MissingRequired(t *testing.T) {
	s := tool.Schema{Type: "object", Required: []string{"path"}, Properties: map[string]tool.Schema{
		"path": {Type: "string"},
	}}

	errs := Validate(s, map[string]interface{}{})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}
}

func TestValidate_WrongType(t *testing.T) {
	s := tool.Schema{Type: "object", Properties: map[string]tool.Schema{
		"count": {Type: "number"},
	}}

	errs := Validate(s, map[string]interface{}{"count": "not-a-number"})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
}

func TestValidate_EnumViolation(t *testing.T) {
	s := tool.Schema{Type: "object", Properties: map[string]tool.Schema{
		"mode": {Type: "string", Enum: []string{"read", "write"}},
	}}

	errs := Validate(s, map[string]interface{}{"mode": "delete"})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
}

func TestValidate_ValidPasses(t *testing.T) {
	s := tool.Schema{Type: "object", Required: []string{"path"}, Properties: map[string]tool.Schema{
		"path": {Type: "string"},
		"mode": {Type: "string", Enum: []string{"read", "write"}},
	}}

	errs := Validate(s, map[string]interface{}{"path": "/tmp/x", "mode": "read"})
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestValidate_UnknownTypeDoesNotFail(t *testing.T) {
	s := tool.Schema{Type: "object", Properties: map[string]tool.Schema{
		"payload": {Type: "binary"},
	}}

	errs := Validate(s, map[string]interface{}{"payload": map[string]interface{}{"anything": 1}})
	if len(errs) != 0 {
		t.Errorf("expected unrecognized schema type to pass validation, got %v", errs)
	}
}

func TestValidate_NestedArrayItems(t *testing.T) {
	s := tool.Schema{Type: "object", Properties: map[string]tool.Schema{
		"tags": {Type: "array", Items: &tool.Schema{Type: "string"}},
	}}

	errs := Validate(s, map[string]interface{}{"tags": []interface{}{"a", 5}})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error for non-string array item, got %d", len(errs))
	}
}
