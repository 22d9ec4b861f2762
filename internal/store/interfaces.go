package store

import (
	"context"
	"errors"
	"time"

	"vortex.app/relay/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// KVStore is the generic partition/sort-key item store every typed store is
// built on. Expired items are invisible to Get.
type KVStore interface {
	Put(ctx context.Context, item Item) error
	Get(ctx context.Context, pk, sk string) (*Item, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// InstallationTokenStore is the persistent tier of the credential cache.
type InstallationTokenStore interface {
	Get(ctx context.Context, installationID int64) (*model.InstallationToken, error)
	Put(ctx context.Context, token model.InstallationToken) error
}

// ProfileStore maps source-control usernames to report recipients.
type ProfileStore interface {
	Get(ctx context.Context, githubUsername string) (*model.UserProfile, error)
	Put(ctx context.Context, profile model.UserProfile) error
}

// AuditStore persists one record per pull request or pushed commit.
type AuditStore interface {
	Put(ctx context.Context, record model.AuditRecord) error
}
