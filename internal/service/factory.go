package service

import (
	"vortex.app/relay/core/config"
	"vortex.app/relay/internal/queue"
	"vortex.app/relay/internal/store"
)

type Services struct {
	stores   *store.Stores
	producer queue.Producer
	pipeline config.PipelineConfig
}

func NewServices(stores *store.Stores, producer queue.Producer, pipeline config.PipelineConfig) *Services {
	return &Services{
		stores:   stores,
		producer: producer,
		pipeline: pipeline,
	}
}

func (s *Services) WebhookIngest() WebhookIngestService {
	return NewWebhookIngestService(s.producer, s.pipeline.GitHubSource(), s.pipeline.GitLabSource())
}

func (s *Services) Registration() RegistrationService {
	return NewRegistrationService(s.stores.Profiles())
}
