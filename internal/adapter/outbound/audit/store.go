// Package audit persists the audit trail to audit.json and
// compliance.json using the jsonstore append-only log.
package audit

import (
	"context"
	"log/slog"

	"github.com/toolgate/toolgate/internal/adapter/outbound/jsonstore"
	"github.com/toolgate/toolgate/internal/domain/audit"
)

// Store is a jsonstore-backed audit.Store. Every Append also derives and
// appends a audit.ComplianceEntry to a parallel log.
type Store struct {
	entries    *jsonstore.Log[audit.Entry]
	compliance *jsonstore.Log[audit.ComplianceEntry]
	logger     *slog.Logger
}

// New creates a Store persisting to entriesPath and compliancePath.
func New(entriesPath, compliancePath string, logger *slog.Logger) *Store {
	entries := jsonstore.NewLog[audit.Entry](entriesPath, logger)
	compliance := jsonstore.NewLog[audit.ComplianceEntry](compliancePath, logger)
	return &Store{entries: entries, compliance: compliance, logger: logger}
}

// Append records e and its derived compliance entry.
func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	if err := s.entries.Append(e); err != nil {
		return err
	}
	return s.compliance.Append(audit.DeriveCompliance(e))
}

// Query returns every recorded entry matching f.
func (s *Store) Query(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	return s.entries.Filter(f.Match)
}

// ComplianceEntries returns every derived compliance entry, for SOC2-style
// reporting tools that only care about the category/status/timestamp view.
func (s *Store) ComplianceEntries(ctx context.Context) ([]audit.ComplianceEntry, error) {
	return s.compliance.All()
}

var _ audit.Store = (*Store)(nil)
