package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vortex.app/relay/common/logger"
	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/queue"
	"vortex.app/relay/internal/router"
)

type Config struct {
	MaxAttempts int
}

type Worker struct {
	consumer   Consumer
	dispatcher Dispatcher
	producer   queue.Producer
	cfg        Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, dispatcher Dispatcher, producer queue.Producer, cfg Config) *Worker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		consumer:   consumer,
		dispatcher: dispatcher,
		producer:   producer,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay.worker"})
	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			// Left pending; the reclaimer redelivers it.
			slog.ErrorContext(ctx, "message processing failed",
				"error", err,
				"message_id", msg.ID,
				"event_id", msg.Event.ID)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage dispatches one message and settles every route outcome:
// emitted events are published, failed routes are requeued or dead-lettered
// on their own. The message is acked only once every route is settled.
// Exported so it can be reused by the reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	evt := msg.Event
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID:     logger.Ptr(msg.ID),
		EventID:       logger.Ptr(evt.ID),
		CorrelationID: logger.Ptr(evt.CorrelationID),
		EventType:     logger.Ptr(string(evt.DetailType)),
	})

	sc := logger.StartConsumerSpan(ctx, logger.MessageSpan{
		TraceID:   msg.TraceID,
		MessageID: msg.ID,
		EventID:   evt.ID,
		EventType: string(evt.DetailType),
		Attempt:   msg.Attempt,
		Target:    msg.Target,
	})
	defer sc.End()
	ctx = sc.Context()

	traceID := msg.TraceID
	if traceID == "" {
		traceID = sc.TraceID()
	}

	slog.InfoContext(ctx, "processing message",
		"source", evt.Source,
		"attempt", msg.Attempt,
		"target", msg.Target)

	outcomes := w.dispatcher.Dispatch(ctx, evt, msg.Target)
	if len(outcomes) == 0 {
		slog.InfoContext(ctx, "no route matched")
	}

	var settleErrs []error
	for _, out := range outcomes {
		routeCtx := logger.WithLogFields(ctx, logger.LogFields{Route: logger.Ptr(out.Route)})
		err := out.Err
		if err == nil {
			err = w.publishAll(routeCtx, out.Emitted, traceID)
		}
		if err == nil {
			continue
		}
		sc.RecordRouteError(out.Route, err)
		if settleErr := w.settleFailure(routeCtx, msg, out.Route, err); settleErr != nil {
			settleErrs = append(settleErrs, settleErr)
		}
	}
	if len(settleErrs) > 0 {
		return fmt.Errorf("settling routes: %w", errors.Join(settleErrs...))
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// Log but don't fail - message will be reclaimed but that's safe
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}
	return nil
}

func (w *Worker) publishAll(ctx context.Context, events []domain.Event, traceID string) error {
	for _, child := range events {
		if err := w.producer.Publish(ctx, child, queue.PublishOptions{TraceID: traceID}); err != nil {
			return fmt.Errorf("publishing %s: %w", child.DetailType, err)
		}
		slog.DebugContext(ctx, "event published", "child_event_id", child.ID, "child_event_type", child.DetailType)
	}
	return nil
}

// settleFailure decides the fate of one failed route.
func (w *Worker) settleFailure(ctx context.Context, msg queue.Message, route string, err error) error {
	switch {
	case domain.IsDataNotFound(err):
		slog.InfoContext(ctx, "route stopped, data not found", "reason", err.Error())
		return nil
	case IsTerminal(err):
		slog.ErrorContext(ctx, "terminal route failure, sending to DLQ", "error", err)
		return w.consumer.SendDLQ(ctx, msg, route, err.Error())
	case msg.Attempt >= w.cfg.MaxAttempts:
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"error", err,
			"attempts", msg.Attempt)
		return w.consumer.SendDLQ(ctx, msg, route, err.Error())
	default:
		slog.WarnContext(ctx, "requeuing failed route",
			"error", err,
			"attempt", msg.Attempt)
		return w.consumer.Requeue(ctx, msg, route, err.Error())
	}
}

// IsTerminal reports errors a retry cannot fix.
func IsTerminal(err error) bool {
	return domain.IsConfig(err) || domain.IsAuth(err) || domain.IsValidation(err) || domain.IsPermanentUpstream(err)
}

var _ Dispatcher = (*router.Router)(nil)
