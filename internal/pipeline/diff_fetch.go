package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/model"
)

// GitHubDiffs reads diffs as a GitHub App installation.
type GitHubDiffs interface {
	PullRequestFiles(ctx context.Context, installationID int64, repo string, number int) ([]model.DiffFile, error)
	CommitFiles(ctx context.Context, installationID int64, repo, sha string) ([]model.DiffFile, error)
}

// GitLabDiffs reads diffs with a project or group token.
type GitLabDiffs interface {
	MergeRequestFiles(ctx context.Context, project string, iid int64) ([]model.DiffFile, error)
	CommitFiles(ctx context.Context, project, sha string) ([]model.DiffFile, error)
}

// DiffFetcher emits one diff.ready per pull request or per pushed commit.
type DiffFetcher struct {
	github  GitHubDiffs
	gitlab  GitLabDiffs
	timeout time.Duration
}

// NewDiffFetcher builds the stage. gitlab may be nil when GitLab is not configured.
func NewDiffFetcher(github GitHubDiffs, gitlab GitLabDiffs, timeout time.Duration) *DiffFetcher {
	return &DiffFetcher{github: github, gitlab: gitlab, timeout: callTimeout(timeout)}
}

func (f *DiffFetcher) Handle(ctx context.Context, evt domain.Event) ([]domain.Event, error) {
	ctx = eventContext(ctx, evt, "relay.pipeline.diff_fetch")

	switch d := evt.Detail.(type) {
	case domain.PullRequestDetail:
		out, err := f.pullRequest(ctx, evt, d)
		if err != nil {
			return nil, err
		}
		return []domain.Event{out}, nil
	case domain.CommitPushedDetail:
		return f.commits(ctx, evt, d)
	default:
		return nil, &domain.ValidationError{DetailType: evt.DetailType, Err: fmt.Errorf("diff-fetch does not handle %T", evt.Detail)}
	}
}

func (f *DiffFetcher) pullRequest(ctx context.Context, evt domain.Event, d domain.PullRequestDetail) (domain.Event, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var (
		files []model.DiffFile
		err   error
	)
	switch d.Provider {
	case domain.ProviderGitLab:
		if f.gitlab == nil {
			return domain.Event{}, domain.NewConfigError("GITLAB_TOKEN", errors.New("gitlab event received but gitlab is not configured"))
		}
		files, err = f.gitlab.MergeRequestFiles(callCtx, d.Repo, int64(d.Number))
	default:
		files, err = f.github.PullRequestFiles(callCtx, d.Installation, d.Repo, d.Number)
	}
	if err != nil {
		slog.ErrorContext(ctx, "fetching pull request files failed", "error", err, "pr_number", d.Number)
		return domain.Event{}, err
	}

	slog.InfoContext(withFileCount(ctx, len(files)), "pull request diff fetched", "pr_number", d.Number)
	return evt.Child(domain.EventDiffReady, domain.DiffReadyDetail{
		Change: domain.Change{
			Provider:       providerOr(d.Provider),
			Type:           domain.ChangeTypePullRequest,
			Repo:           d.Repo,
			PRID:           d.PRID,
			Number:         d.Number,
			GithubUsername: d.GithubUsername,
		},
		Files: files,
	})
}

// commits fails the whole push when any commit cannot be fetched; a retry
// re-emits every commit, which downstream stages tolerate.
func (f *DiffFetcher) commits(ctx context.Context, evt domain.Event, d domain.CommitPushedDetail) ([]domain.Event, error) {
	if d.Provider == domain.ProviderGitLab && f.gitlab == nil {
		return nil, domain.NewConfigError("GITLAB_TOKEN", errors.New("gitlab event received but gitlab is not configured"))
	}

	out := make([]domain.Event, 0, len(d.Commits))
	for _, c := range d.Commits {
		files, err := f.commitFiles(ctx, d, c.ID)
		if err != nil {
			slog.ErrorContext(ctx, "fetching commit files failed", "error", err, "commit", c.ID)
			return nil, err
		}
		slog.InfoContext(withFileCount(ctx, len(files)), "commit diff fetched", "commit", c.ID)

		child, err := evt.Child(domain.EventDiffReady, domain.DiffReadyDetail{
			Change: domain.Change{
				Provider:       providerOr(d.Provider),
				Type:           domain.ChangeTypeCommit,
				Repo:           d.Repo,
				CommitID:       c.ID,
				GithubUsername: d.GithubUsername,
			},
			Files: files,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

func (f *DiffFetcher) commitFiles(ctx context.Context, d domain.CommitPushedDetail, sha string) ([]model.DiffFile, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	if d.Provider == domain.ProviderGitLab {
		return f.gitlab.CommitFiles(callCtx, d.Repo, sha)
	}
	return f.github.CommitFiles(callCtx, d.Installation, d.Repo, sha)
}

func providerOr(p string) string {
	if p == "" {
		return domain.ProviderGitHub
	}
	return p
}
