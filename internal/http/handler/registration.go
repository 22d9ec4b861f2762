package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"vortex.app/relay/internal/http/dto"
	"vortex.app/relay/internal/service"
)

type RegistrationHandler struct {
	service service.RegistrationService
}

func NewRegistrationHandler(service service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{service: service}
}

func (h *RegistrationHandler) Register(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid registration request", "error", err)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: service.ErrInvalidRegistration.Error()})
		return
	}

	profile, err := h.service.Register(ctx, service.RegisterParams{
		Email:          req.Email,
		GithubUsername: req.GithubUsername,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidRegistration) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to register email", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "error registering email"})
		return
	}

	c.JSON(http.StatusOK, dto.RegisterResponse{Message: "Email registered", GithubUsername: profile.GithubUsername})
}
