package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"vortex.app/relay/common/logger"
	"vortex.app/relay/internal/blob"
	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/report"
	"vortex.app/relay/internal/store"
)

// Reporter renders the analysis for a registered user and stores the PDF.
type Reporter struct {
	profiles store.ProfileStore
	blobs    blob.Store
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
}

type ReporterOption func(*Reporter)

// WithReportClock overrides the clock used for the blob key and page footer.
func WithReportClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) { r.now = now }
}

func NewReporter(profiles store.ProfileStore, blobs blob.Store, timeout time.Duration, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		profiles: profiles,
		blobs:    blobs,
		timeout:  callTimeout(timeout),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reporter) Handle(ctx context.Context, evt domain.Event) ([]domain.Event, error) {
	ctx = eventContext(ctx, evt, "relay.pipeline.report")

	d, ok := evt.Detail.(domain.AnalysisCompleteDetail)
	if !ok {
		return nil, &domain.ValidationError{DetailType: evt.DetailType, Err: fmt.Errorf("report does not handle %T", evt.Detail)}
	}
	ctx = withFileCount(ctx, d.FileCount)

	email, err := r.recipient(ctx, d.GithubUsername)
	if err != nil {
		var notFound *domain.DataNotFoundError
		if errors.As(err, &notFound) {
			slog.WarnContext(ctx, "no recipient for report, stopping", "reason", notFound.Error())
			return nil, nil
		}
		return nil, err
	}

	now := r.now().UTC()
	pdf, err := report.Render(report.Document{
		Repo:        d.Repo,
		Subject:     d.Subject(),
		FileCount:   d.FileCount,
		Model:       d.Model,
		Analysis:    d.Analysis,
		GeneratedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}

	key := BlobKey(d.Repo, now, r.newID())
	putCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.blobs.Put(putCtx, key, pdf, report.ContentType); err != nil {
		slog.ErrorContext(ctx, "storing report failed", "error", err, "key", key)
		return nil, err
	}

	slog.InfoContext(ctx, "report stored", "key", key, "bytes", len(pdf))

	out, err := evt.Child(domain.EventReportReady, domain.ReportReadyDetail{
		Change:    d.Change,
		FileCount: d.FileCount,
		BlobKey:   key,
		Email:     email,
	})
	if err != nil {
		return nil, err
	}
	return []domain.Event{out}, nil
}

func (r *Reporter) recipient(ctx context.Context, username string) (string, error) {
	if username == "" {
		return "", &domain.DataNotFoundError{What: "username", Key: "(empty)"}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	profile, err := r.profiles.Get(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", &domain.DataNotFoundError{What: "profile", Key: store.ProfileKey(username)}
	}
	if err != nil {
		return "", domain.NewUpstreamError("store", 0, fmt.Errorf("reading profile: %w", err))
	}
	if strings.TrimSpace(profile.Email) == "" {
		return "", &domain.DataNotFoundError{What: "email", Key: store.ProfileKey(username)}
	}

	slog.DebugContext(logger.WithLogFields(ctx, logger.LogFields{Username: logger.Ptr(username)}), "recipient resolved")
	return profile.Email, nil
}

// BlobKey is reports/<repo>-<epoch-ms>-<uuid>.pdf.
func BlobKey(repo string, at time.Time, id string) string {
	return fmt.Sprintf("reports/%s-%d-%s.pdf", repo, at.UnixMilli(), id)
}
