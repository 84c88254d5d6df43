// Package quota tracks per-client resource usage against configured caps
// (CPU time, memory, disk, concurrent processes) with monotonic
// allocate/release accounting. Quota decisions are advisory to the
// orchestrator, not persisted: they reset when the process restarts.
package quota

import (
	"fmt"
	"sync"
)

// Limits are the per-client caps enforced by Manager.
type Limits struct {
	CPUMillis    int64 // CPU time budget, in milliseconds
	MemoryBytes  int64
	DiskBytes    int64
	MaxProcesses int
}

// usage tracks a single client's current allocation against Limits.
type usage struct {
	cpuMillis   int64
	memoryBytes int64
	diskBytes   int64
	processes   int
}

// ErrExceeded is returned when an allocation would exceed a client's limit.
type ErrExceeded struct {
	ClientID string
	Resource string
}

func (e *ErrExceeded) Error() string {
	return fmt.Sprintf("quota: %s exceeded for client %s", e.Resource, e.ClientID)
}

// Manager enforces Limits per client with monotonic allocate/release
// accounting guarded by a single mutex.
type Manager struct {
	mu         sync.Mutex
	limits     Limits
	usage      map[string]*usage
	violations map[string]int
}

// NewManager creates a Manager enforcing the same limits for every client.
func NewManager(limits Limits) *Manager {
	return &Manager{limits: limits, usage: map[string]*usage{}, violations: map[string]int{}}
}

// Requirement is the resource a caller is about to consume, checked against
// a client's remaining budget by Check.
type Requirement struct {
	CPUMillis   int64
	MemoryBytes int64
	DiskBytes   int64
}

// Check reports whether clientID may proceed given req, without mutating
// usage. overrideFlag, set when the client holds permission.QuotaOverride,
// bypasses every limit unconditionally. Otherwise a request is rejected
// when it would push memory usage over the client's quota, or when the
// client is already at its concurrent-process limit; a rejection
// increments clientID's violation counter. A non-empty reason is returned
// alongside a false allowed.
func (m *Manager) Check(clientID string, req Requirement, overrideFlag bool) (bool, string) {
	if overrideFlag {
		return true, ""
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.usageFor(clientID)
	if m.limits.MemoryBytes > 0 && u.memoryBytes+req.MemoryBytes > m.limits.MemoryBytes {
		m.violations[clientID]++
		return false, "memory quota exceeded"
	}
	if m.limits.MaxProcesses > 0 && u.processes >= m.limits.MaxProcesses {
		m.violations[clientID]++
		return false, "process quota exceeded"
	}
	return true, ""
}

// GetViolations returns the number of quota rejections recorded for
// clientID since the Manager was created.
func (m *Manager) GetViolations(clientID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.violations[clientID]
}

// GetAllViolations returns a snapshot of every client's violation count,
// for operator visibility.
func (m *Manager) GetAllViolations() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.violations))
	for k, v := range m.violations {
		out[k] = v
	}
	return out
}

func (m *Manager) usageFor(clientID string) *usage {
	u, ok := m.usage[clientID]
	if !ok {
		u = &usage{}
		m.usage[clientID] = u
	}
	return u
}

// AcquireProcess reserves one of clientID's concurrent-process slots. The
// caller must call Release when the process exits.
func (m *Manager) AcquireProcess(clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.usageFor(clientID)
	if m.limits.MaxProcesses > 0 && u.processes >= m.limits.MaxProcesses {
		return &ErrExceeded{ClientID: clientID, Resource: "processes"}
	}
	u.processes++
	return nil
}

// ReleaseProcess frees one of clientID's concurrent-process slots.
func (m *Manager) ReleaseProcess(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.usageFor(clientID)
	if u.processes > 0 {
		u.processes--
	}
}

// AllocateCPU charges millis of CPU time against clientID's budget,
// rejecting the call if it would exceed the configured limit.
func (m *Manager) AllocateCPU(clientID string, millis int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.usageFor(clientID)
	if m.limits.CPUMillis > 0 && u.cpuMillis+millis > m.limits.CPUMillis {
		return &ErrExceeded{ClientID: clientID, Resource: "cpu"}
	}
	u.cpuMillis += millis
	return nil
}

// AllocateMemory charges bytes of memory against clientID's budget.
func (m *Manager) AllocateMemory(clientID string, bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.usageFor(clientID)
	if m.limits.MemoryBytes > 0 && bytes > m.limits.MemoryBytes {
		return &ErrExceeded{ClientID: clientID, Resource: "memory"}
	}
	u.memoryBytes = bytes
	return nil
}

// AllocateDisk charges bytes of disk usage against clientID's budget.
func (m *Manager) AllocateDisk(clientID string, bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.usageFor(clientID)
	if m.limits.DiskBytes > 0 && bytes > m.limits.DiskBytes {
		return &ErrExceeded{ClientID: clientID, Resource: "disk"}
	}
	u.diskBytes = bytes
	return nil
}

// ReleaseClient zeroes all tracked usage for clientID, e.g. after its
// session ends.
func (m *Manager) ReleaseClient(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.usage, clientID)
}

// Usage returns a snapshot of clientID's current allocation.
func (m *Manager) Usage(clientID string) Limits {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.usageFor(clientID)
	return Limits{
		CPUMillis:    u.cpuMillis,
		MemoryBytes:  u.memoryBytes,
		DiskBytes:    u.diskBytes,
		MaxProcesses: u.processes,
	}
}
