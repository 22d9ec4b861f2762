package webhook

import (
	"context"
	"sync"
)

// SecretSource yields the shared secret a delivery is authenticated with.
type SecretSource interface {
	Secret(ctx context.Context) ([]byte, error)
}

// MemoizedSecret fetches the secret once and keeps it for the life of the
// process. Failed fetches are not remembered.
type MemoizedSecret struct {
	fetch func(ctx context.Context) ([]byte, error)

	mu     sync.Mutex
	secret []byte
}

func NewMemoizedSecret(fetch func(ctx context.Context) ([]byte, error)) *MemoizedSecret {
	return &MemoizedSecret{fetch: fetch}
}

func (m *MemoizedSecret) Secret(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.secret != nil {
		return m.secret, nil
	}
	secret, err := m.fetch(ctx)
	if err != nil {
		return nil, err
	}
	m.secret = secret
	return secret, nil
}
