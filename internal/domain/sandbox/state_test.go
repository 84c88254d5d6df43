package sandbox

import (
	"context"
	"testing"
)

func TestStateStore_SetGetDelete(t *testing.T) {
	dirs, err := NewDirManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirManager: %v", err)
	}
	s := NewStateStore(dirs, nil)
	ctx := context.Background()

	if err := s.Set(ctx, "client-1", "counter", float64(1)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "client-1", "counter")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || v != float64(1) {
		t.Errorf("expected counter=1, got %v (ok=%v)", v, ok)
	}

	if err := s.Delete(ctx, "client-1", "counter"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, err = s.Get(ctx, "client-1", "counter")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected counter to be deleted")
	}
}

func TestStateStore_IsolatedPerClient(t *testing.T) {
	dirs, err := NewDirManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirManager: %v", err)
	}
	s := NewStateStore(dirs, nil)
	ctx := context.Background()

	_ = s.Set(ctx, "client-1", "key", "a")
	_ = s.Set(ctx, "client-2", "key", "b")

	v1, _, _ := s.Get(ctx, "client-1", "key")
	v2, _, _ := s.Get(ctx, "client-2", "key")
	if v1 != "a" || v2 != "b" {
		t.Errorf("expected isolated values, got %v / %v", v1, v2)
	}
}
