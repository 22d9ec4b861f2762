package logger

import (
	"context"
	"encoding/binary"
	"hash/fnv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "vortex-relay"

// MessageSpan describes the bus message a consumer span covers.
type MessageSpan struct {
	// TraceID is the hex trace id the publisher stamped on the message.
	// Empty or malformed ids start a new trace.
	TraceID   string
	MessageID string
	EventID   string
	EventType string
	Attempt   int
	// Target is the single route a retried message is restricted to.
	Target string
}

// SpanContext wraps the consumer span of one bus message.
type SpanContext struct {
	ctx  context.Context
	span trace.Span
}

// StartConsumerSpan starts the span for one bus message. The stream carries
// only a trace id, so the remote parent's span id is derived from the message
// id. That keeps the parent valid and every stage of one webhook in the same
// trace.
//
//	sc := logger.StartConsumerSpan(ctx, logger.MessageSpan{TraceID: msg.TraceID, MessageID: msg.ID})
//	defer sc.End()
//	ctx = sc.Context()
func StartConsumerSpan(ctx context.Context, m MessageSpan) *SpanContext {
	tracer := otel.Tracer(tracerName)

	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "redis"),
			attribute.String("messaging.message.id", m.MessageID),
			attribute.String("relay.event_id", m.EventID),
			attribute.String("relay.event_type", m.EventType),
			attribute.Int("relay.attempt", m.Attempt),
		),
	}
	if m.Target != "" {
		opts = append(opts, trace.WithAttributes(attribute.String("relay.target", m.Target)))
	}

	if parent, ok := remoteParent(m.TraceID, m.MessageID); ok {
		ctx = trace.ContextWithRemoteSpanContext(ctx, parent)
	}
	ctx, span := tracer.Start(ctx, "relay.dispatch "+m.EventType, opts...)
	return &SpanContext{ctx: ctx, span: span}
}

func remoteParent(traceIDHex, messageID string) (trace.SpanContext, bool) {
	if traceIDHex == "" {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceIDHex)
	if err != nil {
		return trace.SpanContext{}, false
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(messageID))
	var spanID trace.SpanID
	binary.BigEndian.PutUint64(spanID[:], h.Sum64()|1) // never the zero id

	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}), true
}

// Context returns the context with the span attached.
func (sc *SpanContext) Context() context.Context {
	return sc.ctx
}

// TraceID is the hex trace id children of this message should be published
// with. Empty when tracing is disabled and the message carried none.
func (sc *SpanContext) TraceID() string {
	if sc.span == nil || !sc.span.SpanContext().HasTraceID() {
		return ""
	}
	return sc.span.SpanContext().TraceID().String()
}

// End completes the span. Safe to call more than once.
func (sc *SpanContext) End() {
	if sc.span != nil {
		sc.span.End()
	}
}

// RecordRouteError marks the span failed and notes which route failed.
// One message can fail on several routes.
func (sc *SpanContext) RecordRouteError(route string, err error) {
	if sc.span == nil || err == nil {
		return
	}
	sc.span.RecordError(err, trace.WithAttributes(attribute.String("relay.route", route)))
	sc.span.SetStatus(codes.Error, "route failed")
}
