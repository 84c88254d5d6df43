package rpc

import (
	"sync"
	"time"
)

// ClientContext is the per-connection security and activity context. It
// starts anonymous and is populated by the auth/token handler once the
// caller authenticates; every later request on the same connection is
// authorized as that client without re-presenting credentials.
type ClientContext struct {
	mu sync.RWMutex

	id            string
	clientInfo    map[string]interface{}
	createdAt     time.Time
	lastActivity  time.Time
	requestCount  int
	authenticated bool
	username      string
	roles         []string
	tokenJTI      string
}

// NewClientContext creates an anonymous context identified by id (typically
// a per-connection UUID, not yet tied to any credential).
func NewClientContext(id string) *ClientContext {
	now := time.Now()
	return &ClientContext{id: id, createdAt: now, lastActivity: now}
}

// ID returns the connection's client identifier. Before authentication this
// is the anonymous connection id; RecordAuth does not change it, since
// sandbox and quota state are keyed on it from first use.
func (c *ClientContext) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// RecordRequest marks that a request was received, for activity tracking.
func (c *ClientContext) RecordRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount++
	c.lastActivity = time.Now()
}

// RecordAuth marks the connection authenticated as username with roles and
// the jti of the access token that authenticated it.
func (c *ClientContext) RecordAuth(username string, roles []string, jti string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authenticated = true
	c.username = username
	c.roles = append([]string(nil), roles...)
	c.tokenJTI = jti
}

// IsAuthenticated reports whether RecordAuth has been called.
func (c *ClientContext) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// Username returns the authenticated username, or "" if anonymous.
func (c *ClientContext) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// Roles returns a copy of the authenticated role set.
func (c *ClientContext) Roles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.roles...)
}

// RequestCount returns the number of requests dispatched on this connection.
func (c *ClientContext) RequestCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requestCount
}
