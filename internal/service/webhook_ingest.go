package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-github/v66/github"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"vortex.app/relay/common/logger"
	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/queue"
)

const (
	GitHubEventPullRequest = "pull_request"
	GitHubEventPush        = "push"
)

// WebhookRequest is one verified webhook delivery.
type WebhookRequest struct {
	EventName string // X-GitHub-Event or X-Gitlab-Event
	Body      []byte
	TraceID   string
}

// IngestResult reports what a delivery turned into. Event is nil when the
// delivery was acknowledged without publishing.
type IngestResult struct {
	Event   *domain.Event
	Ignored string
}

type WebhookIngestService interface {
	IngestGitHub(ctx context.Context, req WebhookRequest) (*IngestResult, error)
	IngestGitLab(ctx context.Context, req WebhookRequest) (*IngestResult, error)
}

type webhookIngestService struct {
	producer     queue.Producer
	githubSource string
	gitlabSource string
}

func NewWebhookIngestService(producer queue.Producer, githubSource, gitlabSource string) WebhookIngestService {
	return &webhookIngestService{
		producer:     producer,
		githubSource: githubSource,
		gitlabSource: gitlabSource,
	}
}

func (s *webhookIngestService) IngestGitHub(ctx context.Context, req WebhookRequest) (*IngestResult, error) {
	if req.EventName != GitHubEventPullRequest && req.EventName != GitHubEventPush {
		return ignored("event type " + req.EventName), nil
	}

	payload, err := github.ParseWebHook(req.EventName, req.Body)
	if err != nil {
		return nil, &domain.ValidationError{DetailType: domain.EventType(req.EventName), Err: err}
	}

	var (
		detailType domain.EventType
		detail     domain.Detail
	)
	switch e := payload.(type) {
	case *github.PullRequestEvent:
		switch e.GetAction() {
		case "opened":
			detailType = domain.EventPRCreated
		case "synchronize":
			detailType = domain.EventPRUpdated
		default:
			return ignored("pull_request action " + e.GetAction()), nil
		}
		detail = pullRequestFromGitHub(e)
	case *github.PushEvent:
		detailType = domain.EventCommitPushed
		detail = pushFromGitHub(e)
	default:
		return ignored(fmt.Sprintf("payload %T", payload)), nil
	}

	return s.publish(ctx, s.githubSource, detailType, detail, req.TraceID)
}

func (s *webhookIngestService) IngestGitLab(ctx context.Context, req WebhookRequest) (*IngestResult, error) {
	eventType := gitlab.EventType(req.EventName)
	if eventType != gitlab.EventTypeMergeRequest && eventType != gitlab.EventTypePush {
		return ignored("event type " + req.EventName), nil
	}

	payload, err := gitlab.ParseWebhook(eventType, req.Body)
	if err != nil {
		return nil, &domain.ValidationError{DetailType: domain.EventType(req.EventName), Err: err}
	}

	var (
		detailType domain.EventType
		detail     domain.Detail
	)
	switch e := payload.(type) {
	case *gitlab.MergeEvent:
		switch e.ObjectAttributes.Action {
		case "open":
			detailType = domain.EventPRCreated
		case "update":
			detailType = domain.EventPRUpdated
		default:
			return ignored("merge request action " + e.ObjectAttributes.Action), nil
		}
		detail = mergeRequestFromGitLab(e)
	case *gitlab.PushEvent:
		detailType = domain.EventCommitPushed
		detail = pushFromGitLab(e)
	default:
		return ignored(fmt.Sprintf("payload %T", payload)), nil
	}

	return s.publish(ctx, s.gitlabSource, detailType, detail, req.TraceID)
}

func (s *webhookIngestService) publish(ctx context.Context, source string, detailType domain.EventType, detail domain.Detail, traceID string) (*IngestResult, error) {
	evt, err := domain.NewEvent(source, detailType, detail)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventID:   logger.Ptr(evt.ID),
		EventType: logger.Ptr(string(detailType)),
		Component: "relay.service.ingest",
	})

	if err := s.producer.Publish(ctx, evt, queue.PublishOptions{TraceID: traceID}); err != nil {
		slog.ErrorContext(ctx, "publishing webhook event failed", "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "webhook event published", "source", source)
	return &IngestResult{Event: &evt}, nil
}

func ignored(reason string) *IngestResult {
	return &IngestResult{Ignored: reason}
}

// IsBadRequest reports whether err came from an unusable payload rather than
// a failing collaborator.
func IsBadRequest(err error) bool {
	var validation *domain.ValidationError
	return errors.As(err, &validation)
}

func pullRequestFromGitHub(e *github.PullRequestEvent) domain.PullRequestDetail {
	pr := e.GetPullRequest()
	return domain.PullRequestDetail{
		Provider:       domain.ProviderGitHub,
		PRID:           pr.GetID(),
		Number:         pr.GetNumber(),
		Title:          pr.GetTitle(),
		URL:            pr.GetHTMLURL(),
		Repo:           e.GetRepo().GetFullName(),
		Action:         e.GetAction(),
		HeadSHA:        pr.GetHead().GetSHA(),
		CreatedAt:      formatTime(pr.GetCreatedAt().Time),
		UpdatedAt:      formatTime(pr.GetUpdatedAt().Time),
		Installation:   e.GetInstallation().GetID(),
		GithubUsername: e.GetSender().GetLogin(),
	}
}

func pushFromGitHub(e *github.PushEvent) domain.CommitPushedDetail {
	commits := make([]domain.CommitRef, 0, len(e.Commits))
	for _, c := range e.Commits {
		commits = append(commits, domain.CommitRef{
			ID:        c.GetID(),
			Message:   c.GetMessage(),
			Timestamp: formatTime(c.GetTimestamp().Time),
			URL:       c.GetURL(),
			Author:    c.GetAuthor().GetName(),
		})
	}
	return domain.CommitPushedDetail{
		Provider:       domain.ProviderGitHub,
		Repo:           e.GetRepo().GetFullName(),
		Ref:            e.GetRef(),
		Head:           e.GetAfter(),
		Pusher:         e.GetPusher().GetName(),
		Installation:   e.GetInstallation().GetID(),
		GithubUsername: e.GetSender().GetLogin(),
		Commits:        commits,
	}
}

func mergeRequestFromGitLab(e *gitlab.MergeEvent) domain.PullRequestDetail {
	attrs := e.ObjectAttributes
	detail := domain.PullRequestDetail{
		Provider: domain.ProviderGitLab,
		PRID:     int64(attrs.ID),
		Number:   int(attrs.IID),
		Title:    attrs.Title,
		URL:      attrs.URL,
		Repo:     e.Project.PathWithNamespace,
		Action:   attrs.Action,
		HeadSHA:  attrs.LastCommit.ID,
	}
	if e.User != nil {
		detail.GithubUsername = e.User.Username
	}
	return detail
}

func pushFromGitLab(e *gitlab.PushEvent) domain.CommitPushedDetail {
	commits := make([]domain.CommitRef, 0, len(e.Commits))
	for _, c := range e.Commits {
		if c == nil {
			continue
		}
		ref := domain.CommitRef{
			ID:      c.ID,
			Message: c.Message,
			URL:     c.URL,
			Author:  c.Author.Name,
		}
		if c.Timestamp != nil {
			ref.Timestamp = formatTime(*c.Timestamp)
		}
		commits = append(commits, ref)
	}
	return domain.CommitPushedDetail{
		Provider:       domain.ProviderGitLab,
		Repo:           e.Project.PathWithNamespace,
		Ref:            e.Ref,
		Head:           e.After,
		Pusher:         e.UserName,
		GithubUsername: e.UserUsername,
		Commits:        commits,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
