package domain

import (
	"fmt"
	"net/http"
)

// UpstreamErrorKind distinguishes how an upstream call failed.
type UpstreamErrorKind string

const (
	UpstreamTransport  UpstreamErrorKind = "transport"
	UpstreamHTTPStatus UpstreamErrorKind = "http-status"
	UpstreamDecode     UpstreamErrorKind = "decode"
)

// UpstreamError reports a failed call to the movie metadata provider.
type UpstreamError struct {
	Op         string
	Kind       UpstreamErrorKind
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Kind == UpstreamHTTPStatus:
		return fmt.Sprintf("upstream %s: returned status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("upstream %s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("upstream %s: %s failure", e.Op, e.Kind)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether the upstream answered 404.
func (e *UpstreamError) IsNotFound() bool {
	return e.Kind == UpstreamHTTPStatus && e.StatusCode == http.StatusNotFound
}

// ValidationError reports malformed or missing client input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports that a referenced record does not exist.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

// ConflictError reports a duplicate insert on a unique key.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Resource, e.Key)
}
