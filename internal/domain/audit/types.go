// Package audit defines the append-only audit trail: one Entry per
// significant action (authentication, authorization, tool execution), plus
// a parallel ComplianceEntry stream classifying the same actions against
// SOC2-style control categories for compliance reporting.
package audit

import (
	"strings"
	"time"
)

// Status is the outcome recorded for an audited action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusDenied  Status = "denied"
	StatusError   Status = "error"
)

// EventType enumerates the kinds of actions the audit log records.
type EventType string

const (
	EventAuthenticate       EventType = "authenticate"
	EventTokenIssue         EventType = "token_issue"
	EventTokenRevoke        EventType = "token_revoke"
	EventToolCall           EventType = "tool_call"
	EventPermissionDenied   EventType = "permission_denied"
	EventQuotaExceeded      EventType = "quota_exceeded"
	EventCrossClientAccess  EventType = "cross_client_access"
	EventClientCreated      EventType = "client_created"
	EventClientDeleted      EventType = "client_deleted"
	EventClientRoleChanged  EventType = "client_role_changed"
	EventClientEnabledState EventType = "client_enabled_state_changed"
)

// ComplianceCategory groups EventType values for SOC2-style control
// reporting: access, configuration, and user-management activity.
type ComplianceCategory string

const (
	CategoryAccess ComplianceCategory = "access"
	CategoryConfig ComplianceCategory = "config"
	CategoryUser   ComplianceCategory = "user"
)

// categoryFor maps an EventType to its compliance category.
func categoryFor(e EventType) ComplianceCategory {
	switch e {
	case EventClientCreated, EventClientDeleted, EventClientRoleChanged, EventClientEnabledState:
		return CategoryUser
	case EventAuthenticate, EventTokenIssue, EventTokenRevoke, EventPermissionDenied, EventCrossClientAccess:
		return CategoryAccess
	default:
		return CategoryConfig
	}
}

// Entry is a single audit record, appended to audit.json.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	ClientID  string                 `json:"client_id,omitempty"`
	Username  string                 `json:"username,omitempty"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
}

// ComplianceEntry is a derived, category-tagged view of an Entry kept in a
// parallel stream for SOC2-style reporting. It never replaces Entry; it
// supplements it.
type ComplianceEntry struct {
	Timestamp time.Time          `json:"timestamp"`
	Category  ComplianceCategory `json:"category"`
	EventType EventType          `json:"event_type"`
	ClientID  string             `json:"client_id,omitempty"`
	Status    Status             `json:"status"`
}

// DeriveCompliance produces the ComplianceEntry for an Entry.
func DeriveCompliance(e Entry) ComplianceEntry {
	return ComplianceEntry{
		Timestamp: e.Timestamp,
		Category:  categoryFor(e.EventType),
		EventType: e.EventType,
		ClientID:  e.ClientID,
		Status:    e.Status,
	}
}

// sensitiveKeywords lists substrings that indicate a sensitive argument key.
// Comparison is case-insensitive.
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "auth", "private_key", "privatekey",
}

// RedactSensitiveArgs returns a copy of args with sensitive values masked.
// A key is considered sensitive if it contains any of the sensitiveKeywords
// (case-insensitive). Values are replaced with "***REDACTED***".
func RedactSensitiveArgs(args map[string]interface{}) map[string]interface{} {
	if len(args) == 0 {
		return args
	}
	redacted := make(map[string]interface{}, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			redacted[k] = "***REDACTED***"
		} else {
			redacted[k] = v
		}
	}
	return redacted
}

// isSensitiveKey checks if a key name indicates sensitive data.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
