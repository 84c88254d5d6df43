package cel

import (
	"path/filepath"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/toolgate/toolgate/internal/domain/policy"
)

// NewPolicyEnvironment creates a CEL environment configured for policy
// evaluation. It exposes the tool call's name, arguments, caller roles and
// identity, and request time, plus a glob helper for tool-name matching.
func NewPolicyEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("tool_name", cel.StringType),
		cel.Variable("tool_args", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("client_roles", cel.ListType(cel.StringType)),
		cel.Variable("client_id", cel.StringType),
		cel.Variable("request_time", cel.TimestampType),

		// glob: pattern match tool names (or any string) against a glob.
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, name ref.Val) ref.Val {
					p := pattern.Value().(string)
					n := name.Value().(string)
					matched, _ := filepath.Match(p, n)
					return types.Bool(matched)
				}),
			),
		),

		// tool_arg: extract a specific argument by key from tool_args.
		cel.Function("tool_arg",
			cel.Overload("tool_arg_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.DynType,
				cel.BinaryBinding(func(mapVal, keyVal ref.Val) ref.Val {
					key := keyVal.Value().(string)
					if goMap, ok := mapVal.Value().(map[string]any); ok {
						if v, found := goMap[key]; found {
							return types.DefaultTypeAdapter.NativeToValue(v)
						}
					}
					return types.NullValue
				}),
			),
		),
	)
}

// BuildActivation creates a CEL activation map from an EvaluationContext.
func BuildActivation(evalCtx policy.EvaluationContext) map[string]any {
	toolArgs := evalCtx.ToolArguments
	if toolArgs == nil {
		toolArgs = map[string]interface{}{}
	}
	roles := evalCtx.ClientRoles
	if roles == nil {
		roles = []string{}
	}

	return map[string]any{
		"tool_name":    evalCtx.ToolName,
		"tool_args":    toolArgs,
		"client_roles": roles,
		"client_id":    evalCtx.ClientID,
		"request_time": evalCtx.RequestTime,
	}
}
