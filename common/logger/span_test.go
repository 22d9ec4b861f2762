package logger_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"vortex.app/relay/common/logger"
)

var _ = Describe("StartConsumerSpan", func() {
	var recorder *tracetest.SpanRecorder

	BeforeEach(func() {
		recorder = tracetest.NewSpanRecorder()
		provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		previous := otel.GetTracerProvider()
		otel.SetTracerProvider(provider)
		DeferCleanup(func() {
			otel.SetTracerProvider(previous)
			_ = provider.Shutdown(context.Background())
		})
	})

	attrs := func(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
		out := map[attribute.Key]attribute.Value{}
		for _, kv := range s.Attributes() {
			out[kv.Key] = kv.Value
		}
		return out
	}

	It("joins the trace stamped on the message", func() {
		const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
		sc := logger.StartConsumerSpan(context.Background(), logger.MessageSpan{
			TraceID:   traceID,
			MessageID: "1714557600000-0",
			EventID:   "evt-1",
			EventType: "diff.ready",
			Attempt:   2,
			Target:    "analyze",
		})
		Expect(sc.TraceID()).To(Equal(traceID))
		Expect(trace.SpanContextFromContext(sc.Context()).TraceID().String()).To(Equal(traceID))
		sc.End()

		spans := recorder.Ended()
		Expect(spans).To(HaveLen(1))
		span := spans[0]
		Expect(span.Name()).To(Equal("relay.dispatch diff.ready"))
		Expect(span.SpanKind()).To(Equal(trace.SpanKindConsumer))
		Expect(span.Parent().IsRemote()).To(BeTrue())
		Expect(span.Parent().SpanID().IsValid()).To(BeTrue())

		a := attrs(span)
		Expect(a["messaging.message.id"].AsString()).To(Equal("1714557600000-0"))
		Expect(a["relay.event_id"].AsString()).To(Equal("evt-1"))
		Expect(a["relay.attempt"].AsInt64()).To(Equal(int64(2)))
		Expect(a["relay.target"].AsString()).To(Equal("analyze"))
	})

	DescribeTable("starts a new trace without a usable trace id",
		func(traceID string) {
			sc := logger.StartConsumerSpan(context.Background(), logger.MessageSpan{TraceID: traceID, MessageID: "1-0", EventType: "pr.created"})
			sc.End()

			Expect(sc.TraceID()).NotTo(BeEmpty())
			Expect(sc.TraceID()).NotTo(Equal(traceID))
			span := recorder.Ended()[0]
			Expect(span.Parent().IsValid()).To(BeFalse())
			Expect(attrs(span)).NotTo(HaveKey(attribute.Key("relay.target")))
		},
		Entry("empty", ""),
		Entry("not hex", "not-a-trace-id"),
	)

	It("marks the span failed with the failing route", func() {
		sc := logger.StartConsumerSpan(context.Background(), logger.MessageSpan{MessageID: "1-0", EventType: "report.ready"})
		sc.RecordRouteError("deliver", errors.New("smtp down"))
		sc.RecordRouteError("audit", nil)
		sc.End()

		span := recorder.Ended()[0]
		Expect(span.Status().Code).To(Equal(codes.Error))
		Expect(span.Events()).To(HaveLen(1))
		var route string
		for _, kv := range span.Events()[0].Attributes {
			if kv.Key == "relay.route" {
				route = kv.Value.AsString()
			}
		}
		Expect(route).To(Equal("deliver"))
	})
})
