package credential

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v66/github"

	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/model"
	"vortex.app/relay/internal/secrets"
)

// Issuer exchanges the app identity for an installation-scoped token.
type Issuer interface {
	Issue(ctx context.Context, installationID int64) (model.InstallationToken, error)
}

const (
	assertionBackdate = 60 * time.Second
	assertionLifetime = 600 * time.Second
)

// GitHubIssuer mints an RS256 app assertion and exchanges it at
// POST /app/installations/{id}/access_tokens.
type GitHubIssuer struct {
	appID      int64
	key        *rsa.PrivateKey
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
	now        func() time.Time
}

type IssuerOption func(*GitHubIssuer)

// WithBaseURL points the issuer at a GitHub Enterprise or test server.
func WithBaseURL(u *url.URL) IssuerOption {
	return func(i *GitHubIssuer) { i.baseURL = u }
}

func WithHTTPClient(c *http.Client) IssuerOption {
	return func(i *GitHubIssuer) { i.httpClient = c }
}

func WithUserAgent(ua string) IssuerOption {
	return func(i *GitHubIssuer) { i.userAgent = ua }
}

func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *GitHubIssuer) { i.now = now }
}

// NewGitHubIssuer parses the app's signing key. A malformed key is a ConfigError.
func NewGitHubIssuer(creds secrets.AppCredentials, opts ...IssuerOption) (*GitHubIssuer, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(creds.PrivateKeyPEM)
	if err != nil {
		return nil, domain.NewConfigError("githubAppPrivateKey", err)
	}
	i := &GitHubIssuer{
		appID:      creds.AppID,
		key:        key,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Assertion returns a signed app JWT valid for ten minutes, backdated a minute
// for clock skew.
func (i *GitHubIssuer) Assertion() (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(i.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-assertionBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("signing app assertion: %w", err)
	}
	return signed, nil
}

func (i *GitHubIssuer) Issue(ctx context.Context, installationID int64) (model.InstallationToken, error) {
	assertion, err := i.Assertion()
	if err != nil {
		return model.InstallationToken{}, err
	}

	client := github.NewClient(i.httpClient).WithAuthToken(assertion)
	if i.baseURL != nil {
		base := *i.baseURL
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		client.BaseURL = &base
	}
	if i.userAgent != "" {
		client.UserAgent = i.userAgent
	}

	tok, resp, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return model.InstallationToken{}, upstreamError("github issuer", resp, err)
	}
	if tok.GetToken() == "" || tok.ExpiresAt == nil {
		return model.InstallationToken{}, domain.NewUpstreamError("github issuer", 0, errors.New("response missing token or expires_at"))
	}
	return model.InstallationToken{
		InstallationID: installationID,
		Token:          tok.GetToken(),
		ExpiresAt:      tok.GetExpiresAt().Time,
	}, nil
}

func upstreamError(service string, resp *github.Response, err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return domain.NewUpstreamError(service, ghErr.Response.StatusCode, err)
	}
	if resp != nil && resp.Response != nil {
		return domain.NewUpstreamError(service, resp.StatusCode, err)
	}
	return domain.NewUpstreamError(service, 0, err)
}
