// Package schema validates tool call arguments against a tool's declared
// input schema (the minimal JSON-Schema subset in tool.Schema): object
// type, property types, required properties, and enum membership.
package schema

import (
	"fmt"

	"github.com/toolgate/toolgate/internal/domain/tool"
)

// Error describes a single schema validation failure, with a JSON-pointer
// style path to the offending field.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Validate checks args against s, returning every violation found rather
// than stopping at the first one so a caller can report them all at once.
func Validate(s tool.Schema, args map[string]interface{}) []*Error {
	return validateObject("$", s, args)
}

func validateObject(path string, s tool.Schema, value map[string]interface{}) []*Error {
	var errs []*Error

	for _, req := range s.Required {
		if _, ok := value[req]; !ok {
			errs = append(errs, &Error{Path: path + "." + req, Reason: "missing required property"})
		}
	}

	for name, propSchema := range s.Properties {
		v, present := value[name]
		if !present {
			continue
		}
		errs = append(errs, validateValue(path+"."+name, propSchema, v)...)
	}

	return errs
}

func validateValue(path string, s tool.Schema, value interface{}) []*Error {
	switch s.Type {
	case "", "any":
		return nil
	case "object":
		m, ok := value.(map[string]interface{})
		if !ok {
			return []*Error{{Path: path, Reason: "expected object"}}
		}
		return validateObject(path, s, m)
	case "array":
		arr, ok := value.([]interface{})
		if !ok {
			return []*Error{{Path: path, Reason: "expected array"}}
		}
		if s.Items == nil {
			return nil
		}
		var errs []*Error
		for i, item := range arr {
			errs = append(errs, validateValue(fmt.Sprintf("%s[%d]", path, i), *s.Items, item)...)
		}
		return errs
	case "string":
		str, ok := value.(string)
		if !ok {
			return []*Error{{Path: path, Reason: "expected string"}}
		}
		if len(s.Enum) > 0 && !contains(s.Enum, str) {
			return []*Error{{Path: path, Reason: fmt.Sprintf("value %q not in enum %v", str, s.Enum)}}
		}
		return nil
	case "number", "integer":
		switch value.(type) {
		case float64, int, int64:
			return nil
		default:
			return []*Error{{Path: path, Reason: "expected number"}}
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return []*Error{{Path: path, Reason: "expected boolean"}}
		}
		return nil
	default:
		// An unrecognized type tag is not a validation failure: a tool
		// descriptor is free to declare a type this validator doesn't
		// special-case, and such values pass through unchecked.
		return nil
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
