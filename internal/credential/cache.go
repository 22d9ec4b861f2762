package credential

import (
	"sync"
	"time"

	"vortex.app/relay/internal/model"
)

// TokenCache is the process-local tier. One instance is built per worker and
// shared by every broker call in that process.
type TokenCache struct {
	mu      sync.Mutex
	entries map[int64]model.InstallationToken
}

func NewTokenCache() *TokenCache {
	return &TokenCache{entries: make(map[int64]model.InstallationToken)}
}

// Get returns the cached token when it is still fresh at now with margin to spare.
func (c *TokenCache) Get(installationID int64, now time.Time, margin time.Duration) (model.InstallationToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.entries[installationID]
	if !ok || !tok.FreshAt(now, margin) {
		return model.InstallationToken{}, false
	}
	return tok, true
}

// Put stores tok unless a token expiring later is already cached.
func (c *TokenCache) Put(tok model.InstallationToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[tok.InstallationID]; ok && cur.ExpiresAt.After(tok.ExpiresAt) {
		return
	}
	c.entries[tok.InstallationID] = tok
}

// Len is the number of cached installations, fresh or not.
func (c *TokenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
