package permission

import "testing"

func TestStore_DefaultGrantsOnFirstUse(t *testing.T) {
	s := NewStore()
	if !s.Has("c1", Requirement{Type: FilesystemRead, Resource: "anything"}) {
		t.Error("expected default grants to allow filesystem read")
	}
	if s.Has("c1", Requirement{Type: ShellExec}) {
		t.Error("expected default grants to deny shell exec")
	}
}

func TestStore_InitializeReplacesSet(t *testing.T) {
	s := NewStore()
	s.Initialize("c1", []Grant{{Type: NetworkEgress, Kind: MatchGlob, Patterns: []string{"*"}}})
	if s.Has("c1", Requirement{Type: FilesystemRead}) {
		t.Error("expected filesystem read to be denied after custom initialize")
	}
	if !s.Has("c1", Requirement{Type: NetworkEgress, Resource: "example.com"}) {
		t.Error("expected network egress to be allowed after custom initialize")
	}
}

func TestStore_GrantAndRevoke(t *testing.T) {
	s := NewStore()
	s.Grant("c1", Grant{Type: ShellExec, Kind: MatchGlob, Patterns: []string{"*"}})
	if !s.Has("c1", Requirement{Type: ShellExec}) {
		t.Error("expected shell exec to be allowed after grant")
	}
	s.Revoke("c1", ShellExec)
	if s.Has("c1", Requirement{Type: ShellExec}) {
		t.Error("expected shell exec to be denied after revoke")
	}
}

func TestStore_PerClientIsolation(t *testing.T) {
	s := NewStore()
	s.Grant("c1", Grant{Type: ShellExec, Kind: MatchGlob, Patterns: []string{"*"}})
	if s.Has("c2", Requirement{Type: ShellExec}) {
		t.Error("expected grant to c1 not to leak to c2")
	}
}
