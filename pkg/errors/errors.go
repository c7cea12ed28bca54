package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSessionExpired is returned alongside the redirect to login when a
	// token refresh fails.
	ErrSessionExpired = stderrors.New("session expired")

	// ErrEmptyCart guards checkout entry and order submission.
	ErrEmptyCart = stderrors.New("cart is empty")
)

// ErrNotFound represents a missing resource
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnauthorized represents missing or rejected credentials
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return e.Message
}

// ErrInvalidStateTransition represents a rejected state machine move
type ErrInvalidStateTransition struct {
	From interface{}
	To   interface{}
}

func (e *ErrInvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition from %v to %v", e.From, e.To)
}

// ErrValidation represents a client-side validation failure on one field
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// APIError is the normalized error for a response that carried the standard
// envelope with success=false.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if len(e.Fields) == 0 {
		return fmt.Sprintf("api error (status %d): %s", e.Status, msg)
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("api error (status %d): %s (%s)", e.Status, msg, strings.Join(parts, ", "))
}

// ErrHTTPStatus is a failed response whose body was not a standard envelope
type ErrHTTPStatus struct {
	Status int
	Body   string
}

func (e *ErrHTTPStatus) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// StatusCode extracts the HTTP status from an APIError or ErrHTTPStatus
// anywhere in the chain, or 0 when there is none.
func StatusCode(err error) int {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Status
	}
	var statusErr *ErrHTTPStatus
	if stderrors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}

// Message returns the user-facing message for err: the server message when
// the server sent one, the error text otherwise.
func Message(err error) string {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
