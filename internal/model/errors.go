package model

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError is a fatal, non-retryable problem with caller input or configuration
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// NewConfigurationError builds a ConfigurationError
func NewConfigurationError(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// SourceUnavailable reports that a single source could not be fetched
type SourceUnavailable struct {
	SourceID string
	Err      error
}

func (e *SourceUnavailable) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.SourceID, e.Err)
}

func (e *SourceUnavailable) Unwrap() error {
	return e.Err
}

// AggregationFailed means no source produced a usable result
type AggregationFailed struct {
	Sources []SourceStatus
}

func (e *AggregationFailed) Error() string {
	reasons := make([]string, 0, len(e.Sources))
	for _, s := range e.Sources {
		reasons = append(reasons, fmt.Sprintf("%s (%s)", s.SourceID, s.Reason))
	}
	return "aggregation failed: all sources unavailable: " + strings.Join(reasons, ", ")
}

// GenerationError is a failure reported by, or while waiting on, the generation backend
type GenerationError struct {
	Backend string
	Timeout bool
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("generation timeout (%s): %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("generation backend error (%s): %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
