package router

import (
	"github.com/gin-gonic/gin"

	"vortex.app/relay/internal/http/handler"
	"vortex.app/relay/internal/http/handler/webhook"
	"vortex.app/relay/internal/service"
)

type RouterConfig struct {
	TraceHeaderName string
	GitHubSecret    webhook.SecretSource
	// GitLabToken is nil when GitLab webhooks are not accepted.
	GitLabToken webhook.SecretSource
}

func SetupRoutes(router *gin.Engine, services *service.Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	ingest := services.WebhookIngest()
	githubHandler := webhook.NewGitHubWebhookHandler(cfg.GitHubSecret, ingest, cfg.TraceHeaderName)
	var gitlabHandler *webhook.GitLabWebhookHandler
	if cfg.GitLabToken != nil {
		gitlabHandler = webhook.NewGitLabWebhookHandler(cfg.GitLabToken, ingest, cfg.TraceHeaderName)
	}
	WebhookRouter(router.Group("/webhooks"), githubHandler, gitlabHandler)

	v1 := router.Group("/api/v1")
	{
		registrationHandler := handler.NewRegistrationHandler(services.Registration())
		RegistrationRouter(v1.Group("/register"), registrationHandler)
	}
}
