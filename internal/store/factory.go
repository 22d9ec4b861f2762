package store

import (
	"time"

	"vortex.app/relay/core/db"
)

// Stores builds typed stores over one Querier: the pool, or a transaction.
type Stores struct {
	q   db.Querier
	now func() time.Time
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q, now: time.Now}
}

// WithClock overrides the clock used for TTL checks.
func (s *Stores) WithClock(now func() time.Time) *Stores {
	return &Stores{q: s.q, now: now}
}

func (s *Stores) KV() KVStore {
	return newKVStore(s.q, s.now)
}

func (s *Stores) InstallationTokens() InstallationTokenStore {
	return newInstallationTokenStore(s.KV())
}

func (s *Stores) Profiles() ProfileStore {
	return newProfileStore(s.KV())
}

func (s *Stores) Audit() AuditStore {
	return newAuditStore(s.KV())
}
