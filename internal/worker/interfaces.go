package worker

import (
	"context"

	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/queue"
	"vortex.app/relay/internal/router"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, target, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, route, errMsg string) error
}

// Dispatcher runs every route subscribed to an event.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt domain.Event, target string) []router.Outcome
}

// MessageProcessor handles one message end to end, acking it when settled.
type MessageProcessor func(ctx context.Context, msg queue.Message) error
