//go:build windows

package subprocess

import "os/exec"

// setNewProcessGroup is a no-op on Windows: the executor falls back to
// killing the single child process directly since Windows has no POSIX
// process-group signal semantics.
func setNewProcessGroup(cmd *exec.Cmd) {}

// terminate has no graceful equivalent on Windows; it terminates the
// process directly via TerminateProcess.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

// kill terminates the process directly via TerminateProcess.
func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
