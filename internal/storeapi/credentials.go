package storeapi

import "sync"

// Credentials holds the bearer token currently in effect. Every change bumps
// an epoch so callers can tell whether a response belongs to the session
// that issued the request.
type Credentials struct {
	mu    sync.RWMutex
	token string
	epoch uint64
}

// NewCredentials returns an empty holder
func NewCredentials() *Credentials {
	return &Credentials{}
}

// Token returns the current token, or "" when signed out
func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Snapshot returns the current token together with its epoch
func (c *Credentials) Snapshot() (string, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.epoch
}

// Epoch returns the current epoch
func (c *Credentials) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Set installs a token and starts a new epoch
func (c *Credentials) Set(token string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.epoch++
	return c.epoch
}

// Clear drops the token and starts a new epoch
func (c *Credentials) Clear() uint64 {
	return c.Set("")
}
