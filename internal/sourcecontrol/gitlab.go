package sourcecontrol

import (
	"context"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/model"
)

// GitLab fetches merge request and commit diffs with a static access token.
type GitLab struct {
	client *gitlab.Client
}

func NewGitLab(baseURL, token string) (*GitLab, error) {
	var opts []gitlab.ClientOptionFunc
	if baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(baseURL))
	}
	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return nil, domain.NewConfigError("GITLAB_BASE_URL", err)
	}
	return &GitLab{client: client}, nil
}

// MergeRequestFiles lists every diff of a merge request, following pagination.
func (g *GitLab) MergeRequestFiles(ctx context.Context, project string, iid int64) ([]model.DiffFile, error) {
	opts := &gitlab.ListMergeRequestDiffsOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: 100},
	}

	var files []model.DiffFile
	for {
		diffs, resp, err := g.client.MergeRequests.ListMergeRequestDiffs(project, iid, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, gitlabError("gitlab merge request diffs", resp, err)
		}
		for _, d := range diffs {
			files = append(files, diffFile(d.NewPath, d.OldPath, d.Diff, d.NewFile, d.DeletedFile, d.RenamedFile))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files, nil
}

// CommitFiles returns the diff of one commit.
func (g *GitLab) CommitFiles(ctx context.Context, project, sha string) ([]model.DiffFile, error) {
	opts := &gitlab.GetCommitDiffOptions{
		ListOptions: gitlab.ListOptions{Page: 1, PerPage: 100},
	}

	var files []model.DiffFile
	for {
		diffs, resp, err := g.client.Commits.GetCommitDiff(project, sha, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, gitlabError("gitlab commit diff", resp, err)
		}
		for _, d := range diffs {
			files = append(files, diffFile(d.NewPath, d.OldPath, d.Diff, d.NewFile, d.DeletedFile, d.RenamedFile))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files, nil
}

func diffFile(newPath, oldPath, patch string, added, deleted, renamed bool) model.DiffFile {
	additions, deletions := countLines(patch)
	f := model.DiffFile{
		Filename:  newPath,
		Status:    "modified",
		Additions: additions,
		Deletions: deletions,
		Changes:   additions + deletions,
	}
	switch {
	case added:
		f.Status = "added"
	case deleted:
		f.Status = "removed"
		f.Filename = oldPath
	case renamed:
		f.Status = "renamed"
	}
	if patch != "" {
		f.Patch = &patch
	}
	return f
}

// countLines counts added and removed lines of a unified diff body. File
// headers can only appear before the first hunk; inside a hunk "---" is a
// removed line starting with "--".
func countLines(patch string) (int, int) {
	var additions, deletions int
	inHunk := false
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			inHunk = true
		case !inHunk && (strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---")):
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return additions, deletions
}

func gitlabError(service string, resp *gitlab.Response, err error) error {
	if resp != nil && resp.Response != nil {
		return domain.NewUpstreamError(service, resp.StatusCode, err)
	}
	return domain.NewUpstreamError(service, 0, err)
}
