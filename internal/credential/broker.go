// Package credential issues and caches installation-scoped access tokens.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vortex.app/relay/common/logger"
	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/model"
	"vortex.app/relay/internal/store"
)

// FreshnessMargin is the validity a cached token must still have to be served.
const FreshnessMargin = 60 * time.Second

// Broker is a two-tier read-through cache in front of an Issuer: the
// process-local TokenCache first, then the persistent store.
type Broker struct {
	cache   *TokenCache
	store   store.InstallationTokenStore
	issuer  Issuer
	timeout time.Duration
	now     func() time.Time
}

type BrokerOption func(*Broker)

func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) { b.now = now }
}

// WithTimeout bounds each store and issuer call.
func WithTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) { b.timeout = d }
}

func NewBroker(cache *TokenCache, tokens store.InstallationTokenStore, issuer Issuer, opts ...BrokerOption) *Broker {
	b := &Broker{
		cache:   cache,
		store:   tokens,
		issuer:  issuer,
		timeout: 10 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetInstallationToken returns a token valid for at least FreshnessMargin.
// Concurrent misses for the same installation may each call the issuer.
func (b *Broker) GetInstallationToken(ctx context.Context, installationID int64) (model.InstallationToken, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		InstallationID: logger.Ptr(installationID),
		Component:      "relay.credential.broker",
	})

	if tok, ok := b.cache.Get(installationID, b.now(), FreshnessMargin); ok {
		slog.DebugContext(ctx, "installation token served from process cache")
		return tok, nil
	}

	if tok, ok := b.fromStore(ctx, installationID); ok {
		b.cache.Put(tok)
		slog.DebugContext(ctx, "installation token served from store")
		return tok, nil
	}

	issueCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	tok, err := b.issuer.Issue(issueCtx, installationID)
	if err != nil {
		slog.ErrorContext(ctx, "issuing installation token failed", "error", err)
		return model.InstallationToken{}, err
	}
	if !tok.FreshAt(b.now(), FreshnessMargin) {
		err := domain.NewUpstreamError("github app issuer", 0,
			fmt.Errorf("issued token for installation %d expires at %s, inside the freshness margin", installationID, tok.ExpiresAt.Format(time.RFC3339)))
		slog.ErrorContext(ctx, "issued installation token is already stale", "error", err)
		return model.InstallationToken{}, err
	}

	b.toStore(ctx, tok)
	b.cache.Put(tok)
	slog.InfoContext(ctx, "installation token issued", "expires_at", tok.ExpiresAt)
	return tok, nil
}

func (b *Broker) fromStore(ctx context.Context, installationID int64) (model.InstallationToken, bool) {
	if b.store == nil {
		return model.InstallationToken{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	tok, err := b.store.Get(ctx, installationID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "reading cached installation token failed", "error", err)
		}
		return model.InstallationToken{}, false
	}
	if !tok.FreshAt(b.now(), FreshnessMargin) {
		return model.InstallationToken{}, false
	}
	return *tok, true
}

func (b *Broker) toStore(ctx context.Context, tok model.InstallationToken) {
	if b.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.store.Put(ctx, tok); err != nil {
		slog.WarnContext(ctx, "persisting installation token failed", "error", err)
	}
}
