package pipeline

import (
	"vortex.app/relay/core/config"
	"vortex.app/relay/internal/domain"
	"vortex.app/relay/internal/router"
)

// Route names double as the retry target carried on requeued messages.
const (
	RouteAudit     = "audit"
	RouteDiffFetch = "diff-fetch"
	RouteAnalyze   = "analyze"
	RouteReport    = "report"
	RouteDeliver   = "deliver"
)

// Sources are the bus source patterns the routes subscribe to.
type Sources struct {
	Ingest []string
	Any    []string
}

func SourcesFrom(cfg config.PipelineConfig) Sources {
	return Sources{
		Ingest: []string{cfg.GitHubSource(), cfg.GitLabSource()},
		Any:    []string{cfg.EventSource + ".*"},
	}
}

// Stages are the handlers the graph connects.
type Stages struct {
	Audit     router.Handler
	DiffFetch router.Handler
	Analyze   router.Handler
	Report    router.Handler
	Deliver   router.Handler
}

var ingestTypes = []domain.EventType{domain.EventPRCreated, domain.EventPRUpdated, domain.EventCommitPushed}

// Routes is the whole review chain. Each stage's output is the next
// stage's subscription.
func Routes(src Sources, s Stages) []router.Route {
	return []router.Route{
		{
			Name:        RouteAudit,
			Sources:     src.Ingest,
			DetailTypes: ingestTypes,
			Handler:     s.Audit,
		},
		{
			Name:        RouteDiffFetch,
			Sources:     src.Ingest,
			DetailTypes: ingestTypes,
			Emits:       []domain.EventType{domain.EventDiffReady},
			Handler:     s.DiffFetch,
		},
		{
			Name:        RouteAnalyze,
			Sources:     src.Any,
			DetailTypes: []domain.EventType{domain.EventDiffReady},
			Emits:       []domain.EventType{domain.EventAnalysisComplete},
			Handler:     s.Analyze,
		},
		{
			Name:        RouteReport,
			Sources:     src.Any,
			DetailTypes: []domain.EventType{domain.EventAnalysisComplete},
			Emits:       []domain.EventType{domain.EventReportReady},
			Handler:     s.Report,
		},
		{
			Name:        RouteDeliver,
			Sources:     src.Any,
			DetailTypes: []domain.EventType{domain.EventReportReady},
			Handler:     s.Deliver,
		},
	}
}

// NewRouter builds the router for the review chain.
func NewRouter(src Sources, s Stages) (*router.Router, error) {
	return router.New(Routes(src, s))
}
