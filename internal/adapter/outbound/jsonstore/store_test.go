package jsonstore

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStore_LoadMissingReturnsDefault(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "widget.json"), testLogger(), func() *widget {
		return &widget{Name: "default"}
	})

	v, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v.Name != "default" {
		t.Errorf("expected default widget, got %+v", v)
	}
}

func TestStore_SaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.json")
	s := New(path, testLogger(), func() *widget { return &widget{} })

	if err := s.Save(&widget{Name: "gizmo", Count: 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Name != "gizmo" || got.Count != 3 {
		t.Errorf("got %+v", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestStore_SaveWritesBackupOfPreviousContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.json")
	s := New(path, testLogger(), func() *widget { return &widget{} })

	if err := s.Save(&widget{Name: "first"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(&widget{Name: "second"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !contains(bak, "first") {
		t.Errorf("expected backup to contain prior contents, got %q", bak)
	}
}

func TestStore_LoadInvalidJSONReturnsFormatError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "widget.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := New(path, testLogger(), func() *widget { return &widget{} })
	_, err := s.Load()
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Errorf("expected *FormatError, got %T: %v", err, err)
	}
}

func TestLog_AppendAccumulatesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.json")
	l := NewLog[widget](path, testLogger())

	if err := l.Append(widget{Name: "a"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(widget{Name: "b"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	all, err := l.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 || all[0].Name != "a" || all[1].Name != "b" {
		t.Errorf("got %+v", all)
	}
}

func TestLog_FilterNarrowsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.json")
	l := NewLog[widget](path, testLogger())
	_ = l.Append(widget{Name: "keep", Count: 1})
	_ = l.Append(widget{Name: "drop", Count: 0})

	kept, err := l.Filter(func(w widget) bool { return w.Count > 0 })
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(kept) != 1 || kept[0].Name != "keep" {
		t.Errorf("got %+v", kept)
	}
}

func contains(data []byte, substr string) bool {
	return len(data) >= len(substr) && indexOf(string(data), substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
