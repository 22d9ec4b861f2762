package domain

import (
	"errors"
	"fmt"
)

// AuthError is a bad or missing webhook credential. Terminal, never retried.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "unauthorized: " + e.Reason
}

// ConfigError is a missing or malformed secret or setting. Fatal at startup,
// never retried at runtime.
type ConfigError struct {
	Key string
	Err error
}

func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{Key: key, Err: err}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// UpstreamError wraps a failure of an external collaborator (issuer, source
// control API, model, blob store, mail transport, bus). Retryable by the
// transport.
type UpstreamError struct {
	Service    string
	StatusCode int // 0 when no response was received
	Permanent  bool
	Err        error
}

func NewUpstreamError(service string, statusCode int, err error) *UpstreamError {
	return &UpstreamError{Service: service, StatusCode: statusCode, Err: err}
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsPermanentUpstream reports an upstream rejection a retry will not change,
// such as a 4xx from the model provider.
func IsPermanentUpstream(err error) bool {
	var target *UpstreamError
	return errors.As(err, &target) && target.Permanent
}

// DataNotFoundError ends the pipeline for one event without reporting failure.
type DataNotFoundError struct {
	What string
	Key  string
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.Key)
}

// ValidationError is an event whose detail does not match its detail type.
type ValidationError struct {
	DetailType EventType
	Err        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s detail: %v", e.DetailType, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

func IsConfig(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

func IsUpstream(err error) bool {
	var target *UpstreamError
	return errors.As(err, &target)
}

func IsDataNotFound(err error) bool {
	var target *DataNotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsRetryable reports whether the transport should redeliver after err.
// Unclassified errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case IsAuth(err), IsConfig(err), IsValidation(err), IsDataNotFound(err), IsPermanentUpstream(err):
		return false
	default:
		return true
	}
}
