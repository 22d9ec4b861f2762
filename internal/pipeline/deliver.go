package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vortex.app/relay/internal/blob"
	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/mail"
	"vortex.app/relay/internal/report"
)

const (
	deliverySubject    = "Your PR Review Report"
	deliveryBody       = "Hi,\n\nYour PR report is attached as a PDF."
	deliveryAttachment = "report.pdf"
)

// Deliverer mails a stored report to its recipient. It is the last stage.
type Deliverer struct {
	blobs   blob.Store
	mail    mail.Sender
	timeout time.Duration
}

func NewDeliverer(blobs blob.Store, sender mail.Sender, timeout time.Duration) *Deliverer {
	return &Deliverer{blobs: blobs, mail: sender, timeout: callTimeout(timeout)}
}

func (d *Deliverer) Handle(ctx context.Context, evt domain.Event) ([]domain.Event, error) {
	ctx = eventContext(ctx, evt, "relay.pipeline.deliver")

	detail, ok := evt.Detail.(domain.ReportReadyDetail)
	if !ok {
		return nil, &domain.ValidationError{DetailType: evt.DetailType, Err: fmt.Errorf("deliver does not handle %T", evt.Detail)}
	}
	ctx = withFileCount(ctx, detail.FileCount)

	if detail.Email == "" {
		slog.WarnContext(ctx, "report has no recipient, stopping", "key", detail.BlobKey)
		return nil, nil
	}

	getCtx, cancelGet := context.WithTimeout(ctx, d.timeout)
	pdf, err := d.blobs.Get(getCtx, detail.BlobKey)
	cancelGet()
	if errors.Is(err, blob.ErrNotFound) {
		slog.WarnContext(ctx, "report object missing, stopping", "key", detail.BlobKey)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sendCtx, cancelSend := context.WithTimeout(ctx, d.timeout)
	defer cancelSend()
	err = d.mail.Send(sendCtx, mail.Message{
		To:      detail.Email,
		Subject: deliverySubject,
		Body:    deliveryBody,
		Attachments: []mail.Attachment{{
			Name:        deliveryAttachment,
			ContentType: report.ContentType,
			Data:        pdf,
		}},
	})
	if err != nil {
		slog.ErrorContext(ctx, "sending report failed", "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "report delivered", "key", detail.BlobKey)
	return nil, nil
}
