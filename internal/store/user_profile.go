package store

import (
	"context"
	"encoding/json"
	"fmt"

	"vortex.app/relay/internal/model"
)

type profileStore struct {
	kv KVStore
}

func newProfileStore(kv KVStore) ProfileStore {
	return &profileStore{kv: kv}
}

func (s *profileStore) Get(ctx context.Context, githubUsername string) (*model.UserProfile, error) {
	item, err := s.kv.Get(ctx, ProfileKey(githubUsername), profileSortKey)
	if err != nil {
		return nil, err
	}
	var profile model.UserProfile
	if err := json.Unmarshal(item.Attributes, &profile); err != nil {
		return nil, fmt.Errorf("decoding profile %s: %w", githubUsername, err)
	}
	if profile.GithubUsername == "" {
		profile.GithubUsername = githubUsername
	}
	return &profile, nil
}

func (s *profileStore) Put(ctx context.Context, profile model.UserProfile) error {
	attrs, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	return s.kv.Put(ctx, Item{
		PK:         ProfileKey(profile.GithubUsername),
		SK:         profileSortKey,
		Attributes: attrs,
	})
}
