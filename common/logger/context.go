package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment so a single webhook can be traced through
// every pipeline stage by event_id / correlation_id without threading them by hand.
type LogFields struct {
	EventID        *string // Domain event ID being handled
	CorrelationID  *string // ID of the root event (the webhook) this event descends from
	MessageID      *string // Redis stream message ID
	EventType      *string // Detail type (e.g., "pr.created", "diff.ready")
	Repo           *string // Repository full name
	FileCount      *int    // Number of files in the diff
	Username       *string // Source-control username
	InstallationID *int64  // GitHub App installation ID
	Route          *string // Router route name (e.g., "diff-fetch")
	Component      string  // Component name (OTel semantic convention style, e.g., "relay.pipeline.analyze")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

// mergeFields merges two LogFields, preferring non-nil/non-empty values from 'new'.
func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.EventID != nil {
		result.EventID = new.EventID
	}
	if new.CorrelationID != nil {
		result.CorrelationID = new.CorrelationID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.EventType != nil {
		result.EventType = new.EventType
	}
	if new.Repo != nil {
		result.Repo = new.Repo
	}
	if new.FileCount != nil {
		result.FileCount = new.FileCount
	}
	if new.Username != nil {
		result.Username = new.Username
	}
	if new.InstallationID != nil {
		result.InstallationID = new.InstallationID
	}
	if new.Route != nil {
		result.Route = new.Route
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{Repo: logger.Ptr(repo)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging potentially long strings like upstream error bodies.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
