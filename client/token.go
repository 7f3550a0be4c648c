package client

import "sync"

// TokenHolder is the process-wide holder of the current access token.
// It is never persisted; a cold start always re-authenticates through
// the refresh endpoint.
type TokenHolder struct {
	mu    sync.RWMutex
	token string
}

// NewTokenHolder creates an empty token holder.
func NewTokenHolder() *TokenHolder {
	return &TokenHolder{}
}

// Get returns the held access token. The second return value is false
// when no token is held.
func (h *TokenHolder) Get() (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token, h.token != ""
}

// Set replaces the held access token.
func (h *TokenHolder) Set(token string) {
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

// Clear drops the held access token.
func (h *TokenHolder) Clear() {
	h.mu.Lock()
	h.token = ""
	h.mu.Unlock()
}
