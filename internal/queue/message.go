package queue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"vortex.app/relay/internal/domain"
)

// Stream field names of a bus message.
const (
	fieldID            = "id"
	fieldCorrelationID = "correlation_id"
	fieldSource        = "source"
	fieldDetailType    = "detail_type"
	fieldDetail        = "detail"
	fieldTime          = "time"
	fieldAttempt       = "attempt"
	fieldTarget        = "target"
	fieldTraceID       = "trace_id"
	fieldLastError     = "last_error"
	fieldError         = "error"
	fieldRoute         = "route"
)

// PublishOptions carry transport metadata alongside an event.
type PublishOptions struct {
	Attempt   int
	Target    string // when set, only this route handles the message
	TraceID   string
	LastError string
}

// Message is one decoded bus message.
type Message struct {
	ID        string
	Event     domain.Event
	Attempt   int
	Target    string
	TraceID   string
	LastError string
	Raw       redis.XMessage
}

// EncodeEvent returns the stream fields for evt.
func EncodeEvent(evt domain.Event, opts PublishOptions) (map[string]any, error) {
	detail, err := evt.MarshalDetail()
	if err != nil {
		return nil, err
	}
	attempt := opts.Attempt
	if attempt <= 0 {
		attempt = 1
	}
	values := map[string]any{
		fieldID:            evt.ID,
		fieldCorrelationID: evt.CorrelationID,
		fieldSource:        evt.Source,
		fieldDetailType:    string(evt.DetailType),
		fieldDetail:        string(detail),
		fieldTime:          evt.Time.UTC().Format(time.RFC3339Nano),
		fieldAttempt:       attempt,
	}
	if opts.Target != "" {
		values[fieldTarget] = opts.Target
	}
	if opts.TraceID != "" {
		values[fieldTraceID] = opts.TraceID
	}
	if opts.LastError != "" {
		values[fieldLastError] = opts.LastError
	}
	return values, nil
}

// ParseMessage decodes a stream entry into a typed event. A detail that does
// not match its detail type yields a domain.ValidationError.
func ParseMessage(msg redis.XMessage) (Message, error) {
	eventID, err := parseString(msg.Values, fieldID)
	if err != nil {
		return Message{}, err
	}
	source, err := parseString(msg.Values, fieldSource)
	if err != nil {
		return Message{}, err
	}
	detailType, err := parseString(msg.Values, fieldDetailType)
	if err != nil {
		return Message{}, err
	}
	detail, err := parseString(msg.Values, fieldDetail)
	if err != nil {
		return Message{}, err
	}

	at := time.Now().UTC()
	if raw := parseOptionalString(msg.Values, fieldTime); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Message{}, fmt.Errorf("parsing %s: %w", fieldTime, err)
		}
		at = parsed
	}

	attempt, err := parseOptionalInt(msg.Values, fieldAttempt)
	if err != nil {
		return Message{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	evt, err := domain.DecodeEvent(
		eventID,
		parseOptionalString(msg.Values, fieldCorrelationID),
		source,
		domain.EventType(detailType),
		at,
		[]byte(detail),
	)
	if err != nil {
		return Message{}, err
	}

	return Message{
		ID:        msg.ID,
		Event:     evt,
		Attempt:   attempt,
		Target:    parseOptionalString(msg.Values, fieldTarget),
		TraceID:   parseOptionalString(msg.Values, fieldTraceID),
		LastError: parseOptionalString(msg.Values, fieldLastError),
		Raw:       msg,
	}, nil
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	s := fmt.Sprint(raw)
	if s == "" {
		return "", fmt.Errorf("empty %s", key)
	}
	return s, nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

// copyValues clones the raw stream fields so a redelivery carries the
// original detail bytes untouched.
func copyValues(msg Message) map[string]any {
	values := make(map[string]any, len(msg.Raw.Values)+2)
	for k, v := range msg.Raw.Values {
		values[k] = v
	}
	return values
}
