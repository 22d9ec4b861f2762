// Package pipeline holds the review stages and the route graph that wires
// them to event types.
package pipeline

import (
	"context"
	"time"

	"vortex.app/relay/common/logger"
	"vortex.app/relay/internal/domain"
)

// DefaultCallTimeout bounds one external call made by a stage.
const DefaultCallTimeout = 10 * time.Second

func callTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultCallTimeout
	}
	return d
}

// eventContext tags ctx with the fields every stage log line carries.
func eventContext(ctx context.Context, evt domain.Event, component string) context.Context {
	fields := logger.LogFields{
		EventID:       logger.Ptr(evt.ID),
		CorrelationID: logger.Ptr(evt.CorrelationID),
		EventType:     logger.Ptr(string(evt.DetailType)),
		Component:     component,
	}
	if repo, user := subjectOf(evt.Detail); repo != "" {
		fields.Repo = logger.Ptr(repo)
		if user != "" {
			fields.Username = logger.Ptr(user)
		}
	}
	return logger.WithLogFields(ctx, fields)
}

func subjectOf(d domain.Detail) (repo, username string) {
	switch v := d.(type) {
	case domain.PullRequestDetail:
		return v.Repo, v.GithubUsername
	case domain.CommitPushedDetail:
		return v.Repo, v.GithubUsername
	case domain.DiffReadyDetail:
		return v.Repo, v.GithubUsername
	case domain.AnalysisCompleteDetail:
		return v.Repo, v.GithubUsername
	case domain.ReportReadyDetail:
		return v.Repo, v.GithubUsername
	}
	return "", ""
}

func withFileCount(ctx context.Context, n int) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{FileCount: logger.Ptr(n)})
}
