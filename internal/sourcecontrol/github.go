// Package sourcecontrol maps GitHub and GitLab diff APIs onto model.DiffFile.
package sourcecontrol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"

	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/model"
)

// TokenSource resolves an installation token. Satisfied by *credential.Broker.
type TokenSource interface {
	GetInstallationToken(ctx context.Context, installationID int64) (model.InstallationToken, error)
}

// GitHub fetches pull request and commit files as an app installation.
type GitHub struct {
	tokens     TokenSource
	baseURL    *url.URL
	httpClient *http.Client
	userAgent  string
}

func NewGitHub(tokens TokenSource, baseURL, userAgent string) (*GitHub, error) {
	gh := &GitHub{tokens: tokens, httpClient: http.DefaultClient, userAgent: userAgent}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, domain.NewConfigError("GITHUB_API_BASE_URL", err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		gh.baseURL = u
	}
	return gh, nil
}

func (g *GitHub) client(ctx context.Context, installationID int64) (*github.Client, error) {
	tok, err := g.tokens.GetInstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	c := github.NewClient(g.httpClient).WithAuthToken(tok.Token)
	if g.baseURL != nil {
		c.BaseURL = g.baseURL
	}
	if g.userAgent != "" {
		c.UserAgent = g.userAgent
	}
	return c, nil
}

// PullRequestFiles lists every file of a pull request, following pagination.
func (g *GitHub) PullRequestFiles(ctx context.Context, installationID int64, repo string, number int) ([]model.DiffFile, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	c, err := g.client(ctx, installationID)
	if err != nil {
		return nil, err
	}

	opts := &github.ListOptions{PerPage: 100}
	var files []model.DiffFile
	for {
		page, resp, err := c.PullRequests.ListFiles(ctx, owner, name, number, opts)
		if err != nil {
			return nil, githubError("github pull request files", resp, err)
		}
		for _, f := range page {
			files = append(files, fromGitHubFile(f))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files, nil
}

// CommitFiles returns the files touched by one commit.
func (g *GitHub) CommitFiles(ctx context.Context, installationID int64, repo, sha string) ([]model.DiffFile, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	c, err := g.client(ctx, installationID)
	if err != nil {
		return nil, err
	}

	commit, resp, err := c.Repositories.GetCommit(ctx, owner, name, sha, nil)
	if err != nil {
		return nil, githubError("github commit", resp, err)
	}
	files := make([]model.DiffFile, 0, len(commit.Files))
	for _, f := range commit.Files {
		files = append(files, fromGitHubFile(f))
	}
	return files, nil
}

func fromGitHubFile(f *github.CommitFile) model.DiffFile {
	return model.DiffFile{
		Filename:  f.GetFilename(),
		Status:    f.GetStatus(),
		Additions: f.GetAdditions(),
		Deletions: f.GetDeletions(),
		Changes:   f.GetChanges(),
		Patch:     f.Patch,
	}
}

func githubError(service string, resp *github.Response, err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return domain.NewUpstreamError(service, ghErr.Response.StatusCode, err)
	}
	if resp != nil && resp.Response != nil {
		return domain.NewUpstreamError(service, resp.StatusCode, err)
	}
	return domain.NewUpstreamError(service, 0, err)
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("repository %q is not owner/name", repo)
	}
	return owner, name, nil
}
