package store

import (
	"context"
	"encoding/json"
	"fmt"

	"vortex.app/relay/internal/model"
)

type auditStore struct {
	kv KVStore
}

func newAuditStore(kv KVStore) AuditStore {
	return &auditStore{kv: kv}
}

// Put stores the record under its id with the event timestamp as sort key:
// created_at for pull requests, the commit timestamp for commits.
func (s *auditStore) Put(ctx context.Context, record model.AuditRecord) error {
	if record.ID == "" {
		return fmt.Errorf("audit record: id is required")
	}
	sk := record.CreatedAt
	if record.Type == "commit" {
		sk = record.Timestamp
	}
	if sk == "" {
		return fmt.Errorf("audit record %s: timestamp is required", record.ID)
	}
	attrs, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding audit record: %w", err)
	}
	return s.kv.Put(ctx, Item{PK: record.ID, SK: sk, Attributes: attrs})
}
