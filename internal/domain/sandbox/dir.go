// Package sandbox manages each client's isolated working directory: a
// filesystem jail rooted at base/<client_id>/ that tool subprocesses are
// confined to, plus a per-client persistent variable bag backed by
// jsonstore.
package sandbox

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a requested path would resolve outside the
// client's jail, whether via ".." segments, an absolute path, or a symlink.
var ErrPathEscape = errors.New("sandbox: path escapes client jail")

// ErrCrossClientAccess is returned when a resolved path falls inside another
// client's jail rather than the caller's own.
var ErrCrossClientAccess = errors.New("sandbox: cross-client path access")

// DirManager resolves and creates per-client jail directories under a
// shared base directory.
type DirManager struct {
	baseDir string
	logger  *slog.Logger
}

// NewDirManager creates a DirManager rooted at baseDir. baseDir is created
// if missing.
func NewDirManager(baseDir string) (*DirManager, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("sandbox: create base dir: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve base dir: %w", err)
	}
	return &DirManager{baseDir: abs, logger: slog.Default()}, nil
}

// JailDir returns the absolute path of clientID's jail directory, creating
// it if it does not already exist.
func (m *DirManager) JailDir(clientID string) (string, error) {
	if clientID == "" || strings.ContainsAny(clientID, "/\\") {
		return "", fmt.Errorf("sandbox: invalid client id %q", clientID)
	}
	dir := filepath.Join(m.baseDir, clientID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("sandbox: create jail for %s: %w", clientID, err)
	}
	return dir, nil
}

// Resolve maps a tool-supplied relative path to an absolute path inside
// clientID's jail, rejecting anything that would escape it (via "..",
// an absolute path, or a symlink target outside the jail) or that
// resolves inside a different client's jail.
func (m *DirManager) Resolve(clientID, requestedPath string) (string, error) {
	jail, err := m.JailDir(clientID)
	if err != nil {
		return "", err
	}

	if filepath.IsAbs(requestedPath) {
		return "", ErrPathEscape
	}
	// Reject ".." by literal substring before any normalization: Join would
	// otherwise silently fold a traversal segment back inside the jail
	// (e.g. "notes/../notes/todo.txt"), which must still be refused.
	if strings.Contains(requestedPath, "..") {
		return "", ErrPathEscape
	}

	joined := filepath.Join(jail, requestedPath)
	cleanJail := filepath.Clean(jail) + string(os.PathSeparator)
	if !strings.HasPrefix(joined+string(os.PathSeparator), cleanJail) && joined != filepath.Clean(jail) {
		return "", ErrPathEscape
	}

	if resolved, err := filepath.EvalSymlinks(joined); err == nil {
		if !strings.HasPrefix(resolved+string(os.PathSeparator), cleanJail) && resolved != filepath.Clean(jail) {
			return "", ErrPathEscape
		}
	}

	if other := m.owningClient(joined); other != "" && other != clientID {
		return "", ErrCrossClientAccess
	}

	return joined, nil
}

// ValidateAccess reports whether clientID may touch absolutePath: always
// true for a path inside clientID's own jail, and true for a path in
// another client's jail only when crossClientPermissionPresent is set (a
// grant of permission.CrossClientRead or permission.CrossClientWrite).
// Granting cross-client access is logged, same-client access is not.
func (m *DirManager) ValidateAccess(clientID, absolutePath string, crossClientPermissionPresent bool) bool {
	jail, err := m.JailDir(clientID)
	if err != nil {
		return false
	}
	cleanJail := filepath.Clean(jail) + string(os.PathSeparator)
	clean := filepath.Clean(absolutePath)

	if strings.HasPrefix(clean+string(os.PathSeparator), cleanJail) || clean == filepath.Clean(jail) {
		return true
	}

	if !crossClientPermissionPresent {
		m.logger.Warn("sandbox: cross-client access denied", "client_id", clientID, "path", absolutePath)
		return false
	}

	m.logger.Warn("sandbox: cross-client access granted", "client_id", clientID, "path", absolutePath)
	return true
}

// owningClient returns the client id whose jail directory contains path, or
// "" if path is not under the base directory at all.
func (m *DirManager) owningClient(path string) string {
	rel, err := filepath.Rel(m.baseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	parts := strings.SplitN(rel, string(os.PathSeparator), 2)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}
