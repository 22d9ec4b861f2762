package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vortex.app/relay/internal/http/handler"
	"vortex.app/relay/internal/http/middleware"
)

func RegistrationRouter(router *gin.RouterGroup, h *handler.RegistrationHandler) {
	router.Use(middleware.CORS("POST, OPTIONS"))
	router.POST("", h.Register)
	// Preflight is answered by the CORS middleware.
	router.OPTIONS("", func(c *gin.Context) { c.Status(http.StatusNoContent) })
}
