// Package secrets resolves named secrets at runtime.
package secrets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vortex.app/relay/internal/domain"
)

// ErrNotFound is returned when the named secret does not exist.
var ErrNotFound = errors.New("secret not found")

// Provider fetches a secret's raw value by name.
type Provider interface {
	Get(ctx context.Context, name string) ([]byte, error)
}

// NewProvider returns a directory-backed provider when dir is set, otherwise
// one that reads the environment.
func NewProvider(dir string) Provider {
	if dir != "" {
		return DirProvider{Dir: dir}
	}
	return EnvProvider{}
}

// DirProvider reads one file per secret. "vortex/github-app-credentials"
// resolves to <Dir>/vortex/github-app-credentials.
type DirProvider struct {
	Dir string
}

func (p DirProvider) Get(_ context.Context, name string) ([]byte, error) {
	clean := filepath.Clean("/" + name)
	data, err := os.ReadFile(filepath.Join(p.Dir, clean))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("reading secret %s: %w", name, err)
	}
	return []byte(strings.TrimSpace(string(data))), nil
}

// EnvProvider maps "vortex/github-app-credentials" to VORTEX_GITHUB_APP_CREDENTIALS.
type EnvProvider struct{}

func (EnvProvider) Get(_ context.Context, name string) ([]byte, error) {
	v, ok := os.LookupEnv(EnvName(name))
	if !ok || v == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return []byte(v), nil
}

// EnvName is the environment variable an EnvProvider reads for name.
func EnvName(name string) string {
	r := strings.NewReplacer("/", "_", "-", "_", ".", "_")
	return strings.ToUpper(r.Replace(name))
}

// AppCredentials identify the GitHub App and hold its PEM signing key.
type AppCredentials struct {
	AppID         int64
	PrivateKeyPEM []byte
}

type appCredentialsSecret struct {
	AppID      json.Number `json:"githubAppId"`
	PrivateKey string      `json:"githubAppPrivateKey"`
}

// LoadAppCredentials fetches and decodes the app identity. Any failure is a
// ConfigError.
func LoadAppCredentials(ctx context.Context, p Provider, name string) (AppCredentials, error) {
	raw, err := p.Get(ctx, name)
	if err != nil {
		return AppCredentials{}, domain.NewConfigError(name, err)
	}
	var s appCredentialsSecret
	if err := json.Unmarshal(raw, &s); err != nil {
		return AppCredentials{}, domain.NewConfigError(name, fmt.Errorf("decoding JSON: %w", err))
	}
	appID, err := s.AppID.Int64()
	if err != nil || appID <= 0 {
		return AppCredentials{}, domain.NewConfigError(name, fmt.Errorf("githubAppId must be a positive integer"))
	}
	if s.PrivateKey == "" {
		return AppCredentials{}, domain.NewConfigError(name, fmt.Errorf("githubAppPrivateKey is empty"))
	}
	pem, err := base64.StdEncoding.DecodeString(s.PrivateKey)
	if err != nil {
		return AppCredentials{}, domain.NewConfigError(name, fmt.Errorf("githubAppPrivateKey is not base64: %w", err))
	}
	return AppCredentials{AppID: appID, PrivateKeyPEM: pem}, nil
}

const webhookSecretKey = "vortex-github-app-webhook-secret"

// LoadWebhookSecret returns the shared HMAC secret. The stored value is either
// the raw secret or a JSON object holding it under a well-known key.
func LoadWebhookSecret(ctx context.Context, p Provider, name string) ([]byte, error) {
	raw, err := p.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 && raw[0] == '{' {
		var obj map[string]string
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("decoding webhook secret %s: %w", name, err)
		}
		v := obj[webhookSecretKey]
		if v == "" {
			return nil, fmt.Errorf("webhook secret %s: missing %q", name, webhookSecretKey)
		}
		return []byte(v), nil
	}
	return raw, nil
}
