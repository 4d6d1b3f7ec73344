package apperr

import (
	"fmt"
	"strings"
)

// ValidationError is returned for bad caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// CredentialsError means the local WMS credentials are not configured.
type CredentialsError struct {
	Missing []string
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("missing WMS credentials: %s", strings.Join(e.Missing, ", "))
}

// UpstreamAuthError is returned when the token endpoint rejects the request
// or answers with a body that cannot be used.
type UpstreamAuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token request failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token request failed (status %d): %s", e.StatusCode, e.Body)
}

func (e *UpstreamAuthError) Unwrap() error {
	return e.Err
}

// UpstreamFetchError is returned when the order lookup fails or returns
// malformed JSON.
type UpstreamFetchError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to fetch order (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to fetch order (status %d): %s", e.StatusCode, e.Body)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

// NotFoundError represents an order without line items.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}
