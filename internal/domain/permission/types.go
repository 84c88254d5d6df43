// Package permission defines the closed set of permission tags a client can
// be granted, and the resource-matching rules (glob, whitelist, or exact
// equality) used to check a tool's required permissions against them.
package permission

import (
	"fmt"
	"path/filepath"
)

// Type is a permission tag. Only the values below are recognized; any other
// string is rejected by Valid so grants and tool descriptors can't reference
// a typo'd permission that silently never matches.
type Type string

const (
	FilesystemRead   Type = "filesystem:read"
	FilesystemWrite  Type = "filesystem:write"
	FileDelete       Type = "filesystem:delete"
	NetworkEgress    Type = "network:egress"
	NetworkListen    Type = "network:listen"
	ProcessExec      Type = "process:exec"
	ProcessSpawn     Type = "process:spawn"
	ProcessKill      Type = "process:kill"
	ShellExec        Type = "shell:exec"
	CodeExec         Type = "code:exec"
	CodeExecElevated Type = "code:exec-elevated"
	SystemCommand    Type = "system:command"
	VariableRead     Type = "variable:read"
	VariableWrite    Type = "variable:write"
	// CrossClientRead and CrossClientWrite let a client reach into another
	// client's jail; DirManager.ValidateAccess is the enforcement point.
	CrossClientRead  Type = "cross-client:read"
	CrossClientWrite Type = "cross-client:write"
	// QuotaOverride lets a client's requests bypass quota.Manager.Check.
	QuotaOverride Type = "quota:override"
)

var knownTypes = map[Type]bool{
	FilesystemRead:    true,
	FilesystemWrite:   true,
	FileDelete:        true,
	NetworkEgress:     true,
	NetworkListen:     true,
	ProcessExec:       true,
	ProcessSpawn:      true,
	ProcessKill:       true,
	ShellExec:         true,
	CodeExec:          true,
	CodeExecElevated:  true,
	SystemCommand:     true,
	VariableRead:      true,
	VariableWrite:     true,
	CrossClientRead:   true,
	CrossClientWrite:  true,
	QuotaOverride:     true,
}

// Valid reports whether t is a recognized permission tag.
func Valid(t Type) bool {
	return knownTypes[t]
}

// MatchKind selects how a grant's Patterns are interpreted against a
// requested resource.
type MatchKind string

const (
	// MatchGlob treats each pattern as a filepath.Match glob.
	MatchGlob MatchKind = "glob"
	// MatchWhitelist requires the resource to equal one of the patterns
	// exactly; no wildcard expansion.
	MatchWhitelist MatchKind = "whitelist"
	// MatchEquality requires the resource to equal one of the patterns
	// exactly; Allows treats it the same as MatchWhitelist. A grant that
	// ignores the resource is expressed with no patterns at all.
	MatchEquality MatchKind = "equality"
)

// Grant is one permission a client has been given, optionally scoped to a
// set of resource patterns (paths, domains, command names).
type Grant struct {
	Type     Type      `json:"type"`
	Kind     MatchKind `json:"kind"`
	Patterns []string  `json:"patterns,omitempty"`
}

// Allows reports whether this grant covers a request for Type t against
// resource. An empty resource matches any grant of the same type that has
// no patterns (a type-only grant, e.g. "process:exec" with no resource
// concept).
func (g Grant) Allows(t Type, resource string) bool {
	if g.Type != t {
		return false
	}
	if len(g.Patterns) == 0 {
		return resource == ""
	}

	switch g.Kind {
	case MatchWhitelist, MatchEquality:
		for _, p := range g.Patterns {
			if p == resource {
				return true
			}
		}
		return false
	case MatchGlob:
		for _, p := range g.Patterns {
			if ok, _ := filepath.Match(p, resource); ok {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Requirement is a permission a tool needs to run, as declared on its
// descriptor.
type Requirement struct {
	Type     Type   `json:"type"`
	Resource string `json:"resource,omitempty"`
}

// ValidateGrant returns an error if g references an unrecognized type or an
// unrecognized match kind.
func ValidateGrant(g Grant) error {
	if !Valid(g.Type) {
		return fmt.Errorf("permission: unknown type %q", g.Type)
	}
	switch g.Kind {
	case MatchGlob, MatchWhitelist, MatchEquality:
	default:
		return fmt.Errorf("permission: unknown match kind %q", g.Kind)
	}
	return nil
}
