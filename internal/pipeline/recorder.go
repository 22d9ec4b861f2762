package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/model"
	"vortex.app/relay/internal/store"
)

// Recorder persists every pull request and pushed commit for audit.
type Recorder struct {
	tx store.TxRunner
}

func NewRecorder(tx store.TxRunner) *Recorder {
	return &Recorder{tx: tx}
}

func (r *Recorder) Handle(ctx context.Context, evt domain.Event) ([]domain.Event, error) {
	ctx = eventContext(ctx, evt, "relay.pipeline.audit")

	records, err := auditRecords(evt)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		slog.InfoContext(ctx, "nothing to record")
		return nil, nil
	}

	err = r.tx.WithTx(ctx, func(stores store.Provider) error {
		for _, rec := range records {
			if err := stores.Audit().Put(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewUpstreamError("store", 0, fmt.Errorf("recording %s: %w", evt.DetailType, err))
	}

	slog.InfoContext(ctx, "event recorded", "records", len(records))
	return nil, nil
}

func auditRecords(evt domain.Event) ([]model.AuditRecord, error) {
	switch d := evt.Detail.(type) {
	case domain.PullRequestDetail:
		createdAt := d.CreatedAt
		if createdAt == "" {
			createdAt = evt.Time.UTC().Format("2006-01-02T15:04:05Z")
		}
		return []model.AuditRecord{{
			ID:        store.PullRequestKey(d.PRID),
			Type:      domain.ChangeTypePullRequest,
			Repo:      d.Repo,
			Title:     d.Title,
			URL:       d.URL,
			Action:    d.Action,
			CreatedAt: createdAt,
			UpdatedAt: d.UpdatedAt,
			EventID:   evt.ID,
		}}, nil
	case domain.CommitPushedDetail:
		records := make([]model.AuditRecord, 0, len(d.Commits))
		for _, c := range d.Commits {
			ts := c.Timestamp
			if ts == "" {
				ts = evt.Time.UTC().Format("2006-01-02T15:04:05Z")
			}
			records = append(records, model.AuditRecord{
				ID:        store.CommitKey(c.ID),
				Type:      domain.ChangeTypeCommit,
				Repo:      d.Repo,
				Message:   c.Message,
				URL:       c.URL,
				Ref:       d.Ref,
				Head:      d.Head,
				Pusher:    d.Pusher,
				Author:    c.Author,
				Timestamp: ts,
				EventID:   evt.ID,
			})
		}
		return records, nil
	default:
		return nil, &domain.ValidationError{DetailType: evt.DetailType, Err: fmt.Errorf("audit does not handle %T", evt.Detail)}
	}
}
