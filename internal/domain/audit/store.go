package audit

import (
	"context"
	"time"
)

// Filter specifies query parameters for audit log queries.
type Filter struct {
	StartTime time.Time
	EndTime   time.Time
	ClientID  string
	EventType EventType
	Status    Status
}

// Match reports whether e satisfies every set field of f.
func (f Filter) Match(e Entry) bool {
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	if f.ClientID != "" && e.ClientID != f.ClientID {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return true
}

// Store persists and queries the audit trail.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Query(ctx context.Context, f Filter) ([]Entry, error)
}
