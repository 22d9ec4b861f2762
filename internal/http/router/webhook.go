package router

import (
	"github.com/gin-gonic/gin"

	"vortex.app/relay/internal/http/handler/webhook"
)

func WebhookRouter(router *gin.RouterGroup, github *webhook.GitHubWebhookHandler, gitlab *webhook.GitLabWebhookHandler) {
	router.POST("/github", github.HandleEvent)
	if gitlab != nil {
		router.POST("/gitlab", gitlab.HandleEvent)
	}
}
