package webhook

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"vortex.app/relay/internal/http/dto"
	"vortex.app/relay/internal/service"
	"vortex.app/relay/internal/signature"
)

const (
	gitLabTokenHeader = "X-Gitlab-Token"
	gitLabEventHeader = "X-Gitlab-Event"
)

type GitLabWebhookHandler struct {
	token       SecretSource
	ingest      service.WebhookIngestService
	traceHeader string
}

func NewGitLabWebhookHandler(token SecretSource, ingest service.WebhookIngestService, traceHeader string) *GitLabWebhookHandler {
	return &GitLabWebhookHandler{
		token:       token,
		ingest:      ingest,
		traceHeader: traceHeader,
	}
}

func (h *GitLabWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	tokenHeader := c.GetHeader(gitLabTokenHeader)
	if tokenHeader == "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "missing webhook token"})
		return
	}

	body, ok := readBody(c)
	if !ok {
		return
	}
	eventName := c.GetHeader(gitLabEventHeader)
	if len(body) == 0 || eventName == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "bad request"})
		return
	}

	token, err := h.token.Secret(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "gitlab webhook token unavailable", "error", err)
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid webhook token"})
		return
	}
	if !signature.VerifyToken(tokenHeader, token) {
		slog.WarnContext(ctx, "invalid gitlab webhook token", "event", eventName)
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid webhook token"})
		return
	}

	result, err := h.ingest.IngestGitLab(ctx, service.WebhookRequest{
		EventName: eventName,
		Body:      body,
		TraceID:   traceID(c, h.traceHeader),
	})
	respond(c, eventName, result, err)
}
