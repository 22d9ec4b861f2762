package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vortex.app/relay/internal/model"
)

type installationTokenStore struct {
	kv KVStore
}

func newInstallationTokenStore(kv KVStore) InstallationTokenStore {
	return &installationTokenStore{kv: kv}
}

type tokenAttributes struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *installationTokenStore) Get(ctx context.Context, installationID int64) (*model.InstallationToken, error) {
	item, err := s.kv.Get(ctx, InstallationKey(installationID), tokenSortKey)
	if err != nil {
		return nil, err
	}
	var attrs tokenAttributes
	if err := json.Unmarshal(item.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("decoding installation token %d: %w", installationID, err)
	}
	return &model.InstallationToken{
		InstallationID: installationID,
		Token:          attrs.Token,
		ExpiresAt:      attrs.ExpiresAt,
	}, nil
}

// Put writes the token with a TTL equal to its expiry so stale rows self-evict.
func (s *installationTokenStore) Put(ctx context.Context, token model.InstallationToken) error {
	attrs, err := json.Marshal(tokenAttributes{Token: token.Token, ExpiresAt: token.ExpiresAt})
	if err != nil {
		return fmt.Errorf("encoding installation token: %w", err)
	}
	expiresAt := token.ExpiresAt
	return s.kv.Put(ctx, Item{
		PK:         InstallationKey(token.InstallationID),
		SK:         tokenSortKey,
		Attributes: attrs,
		ExpiresAt:  &expiresAt,
	})
}
