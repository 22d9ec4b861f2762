package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"vortex.app/relay/internal/http/dto"
	"vortex.app/relay/internal/service"
	"vortex.app/relay/internal/signature"
)

const gitHubEventHeader = "X-GitHub-Event"

// MaxPayloadBytes caps a webhook body. GitHub caps deliveries at 25 MB and
// anything larger is rejected before the signature is computed.
const MaxPayloadBytes = 25 << 20

type GitHubWebhookHandler struct {
	secret      SecretSource
	ingest      service.WebhookIngestService
	traceHeader string
}

func NewGitHubWebhookHandler(secret SecretSource, ingest service.WebhookIngestService, traceHeader string) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{
		secret:      secret,
		ingest:      ingest,
		traceHeader: traceHeader,
	}
}

func (h *GitHubWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	body, ok := readBody(c)
	if !ok {
		return
	}

	sigHeader := c.GetHeader(signature.HeaderName)
	eventName := c.GetHeader(gitHubEventHeader)
	if len(body) == 0 || sigHeader == "" || eventName == "" {
		slog.WarnContext(ctx, "missing required headers or body")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "bad request"})
		return
	}

	secret, err := h.secret.Secret(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "webhook secret unavailable", "error", err)
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
		return
	}
	if !signature.Verify(body, sigHeader, secret) {
		slog.WarnContext(ctx, "invalid webhook signature", "event", eventName)
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
		return
	}

	result, err := h.ingest.IngestGitHub(ctx, service.WebhookRequest{
		EventName: eventName,
		Body:      body,
		TraceID:   traceID(c, h.traceHeader),
	})
	respond(c, eventName, result, err)
}

// readBody reads at most MaxPayloadBytes. On failure it has already answered.
func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.WarnContext(c.Request.Context(), "webhook payload too large", "limit", tooLarge.Limit)
			c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "payload too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "failed to read request body"})
		return nil, false
	}
	return body, true
}

func respond(c *gin.Context, eventName string, result *service.IngestResult, err error) {
	ctx := c.Request.Context()
	if err != nil {
		if service.IsBadRequest(err) {
			slog.WarnContext(ctx, "unusable webhook payload", "error", err, "event", eventName)
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid payload"})
			return
		}
		slog.ErrorContext(ctx, "failed to ingest webhook", "error", err, "event", eventName)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to process event"})
		return
	}

	if result.Event == nil {
		slog.InfoContext(ctx, "webhook ignored", "event", eventName, "reason", result.Ignored)
		c.JSON(http.StatusOK, dto.WebhookResponse{Status: "ignored", Reason: result.Ignored})
		return
	}

	c.JSON(http.StatusOK, dto.WebhookResponse{
		Status:     "ok",
		EventID:    result.Event.ID,
		DetailType: string(result.Event.DetailType),
	})
}

func traceID(c *gin.Context, header string) string {
	if header != "" {
		if id := c.GetHeader(header); id != "" {
			return id
		}
	}
	if spanCtx := trace.SpanContextFromContext(c.Request.Context()); spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}
