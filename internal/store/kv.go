package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"vortex.app/relay/core/db"
)

// Item is one row of the key/value table.
type Item struct {
	PK         string
	SK         string
	Attributes json.RawMessage
	ExpiresAt  *time.Time
}

type kvStore struct {
	q   db.Querier
	now func() time.Time
}

func newKVStore(q db.Querier, now func() time.Time) KVStore {
	return &kvStore{q: q, now: now}
}

const upsertItemSQL = `
INSERT INTO kv_items (pk, sk, attributes, expires_at, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (pk, sk) DO UPDATE
SET attributes = EXCLUDED.attributes,
    expires_at = EXCLUDED.expires_at,
    updated_at = now()`

const getItemSQL = `
SELECT attributes, expires_at
FROM kv_items
WHERE pk = $1 AND sk = $2 AND (expires_at IS NULL OR expires_at > $3)`

const deleteExpiredSQL = `DELETE FROM kv_items WHERE expires_at IS NOT NULL AND expires_at <= $1`

// Put upserts the item. Last writer wins.
func (s *kvStore) Put(ctx context.Context, item Item) error {
	if item.PK == "" || item.SK == "" {
		return fmt.Errorf("put item: pk and sk are required")
	}
	attrs := item.Attributes
	if len(attrs) == 0 {
		attrs = json.RawMessage("{}")
	}
	if _, err := s.q.Exec(ctx, upsertItemSQL, item.PK, item.SK, []byte(attrs), item.ExpiresAt); err != nil {
		return fmt.Errorf("put item %s/%s: %w", item.PK, item.SK, err)
	}
	return nil
}

func (s *kvStore) Get(ctx context.Context, pk, sk string) (*Item, error) {
	var (
		attrs     []byte
		expiresAt *time.Time
	)
	err := s.q.QueryRow(ctx, getItemSQL, pk, sk, s.now()).Scan(&attrs, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get item %s/%s: %w", pk, sk, err)
	}
	return &Item{PK: pk, SK: sk, Attributes: attrs, ExpiresAt: expiresAt}, nil
}

// DeleteExpired removes every item whose TTL elapsed at or before before.
func (s *kvStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, deleteExpiredSQL, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired items: %w", err)
	}
	return tag.RowsAffected(), nil
}
