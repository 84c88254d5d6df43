package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/toolgate/toolgate/internal/domain/audit"
)

func TestStore_AppendAndQuery(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "audit.json"), filepath.Join(dir, "compliance.json"), nil)
	ctx := context.Background()

	e1 := audit.Entry{Timestamp: time.Now(), EventType: audit.EventAuthenticate, ClientID: "c1", Status: audit.StatusSuccess, Message: "login"}
	e2 := audit.Entry{Timestamp: time.Now(), EventType: audit.EventToolCall, ClientID: "c2", Status: audit.StatusDenied, Message: "denied"}

	if err := s.Append(ctx, e1); err != nil {
		t.Fatalf("Append e1: %v", err)
	}
	if err := s.Append(ctx, e2); err != nil {
		t.Fatalf("Append e2: %v", err)
	}

	all, err := s.Query(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}

	denied, err := s.Query(ctx, audit.Filter{Status: audit.StatusDenied})
	if err != nil {
		t.Fatalf("Query denied: %v", err)
	}
	if len(denied) != 1 || denied[0].ClientID != "c2" {
		t.Fatalf("unexpected denied filter result: %+v", denied)
	}

	compliance, err := s.ComplianceEntries(ctx)
	if err != nil {
		t.Fatalf("ComplianceEntries: %v", err)
	}
	if len(compliance) != 2 {
		t.Fatalf("expected 2 compliance entries, got %d", len(compliance))
	}
	if compliance[0].Category != audit.CategoryAccess {
		t.Errorf("expected authenticate to map to CategoryAccess, got %s", compliance[0].Category)
	}
}
