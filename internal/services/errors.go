package services

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports parameters that can never succeed. Not retried.
type ConfigurationError struct {
	Param  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

// EmbeddingError wraps a failed or empty embedding response.
type EmbeddingError struct {
	Model string
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding with %s failed: %v", e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// GenerationError wraps a failed generation call. StatusCode is zero for transport errors.
type GenerationError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s generation failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s generation failed: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// MalformedOutputError means the model output could not be parsed as JSON.
type MalformedOutputError struct {
	Operation string
	Preview   string
}

func (e *MalformedOutputError) Error() string {
	if e.Preview == "" {
		return fmt.Sprintf("%s: model returned no JSON", e.Operation)
	}
	return fmt.Sprintf("%s: model did not return valid JSON: %q", e.Operation, e.Preview)
}

type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SchemaViolation means parsed output broke the rubric contract.
type SchemaViolation struct {
	Schema string
	Fields []FieldViolation
}

func (e *SchemaViolation) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("%s output violates schema: %s", e.Schema, strings.Join(parts, "; "))
}

// IsPipelineError reports whether err belongs to the evaluation error taxonomy.
func IsPipelineError(err error) bool {
	var (
		cfgErr    *ConfigurationError
		embErr    *EmbeddingError
		genErr    *GenerationError
		malformed *MalformedOutputError
		schemaErr *SchemaViolation
	)
	return errors.As(err, &cfgErr) ||
		errors.As(err, &embErr) ||
		errors.As(err, &genErr) ||
		errors.As(err, &malformed) ||
		errors.As(err, &schemaErr)
}
