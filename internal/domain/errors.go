package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures for retry and presentation decisions
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindAuth
	KindValidation
	KindConflict
	KindServer
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindServer:
		return "server"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per kind. APIError and ValidationError match them via errors.Is.
var (
	// ErrNetwork indicates the backend is unreachable or the request timed out
	ErrNetwork = errors.New("network request failed")

	// ErrAuthFailed indicates the session is no longer valid
	ErrAuthFailed = errors.New("authentication required")

	// ErrValidation indicates client-side input validation failed
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates the server rejected the request because of current state
	ErrConflict = errors.New("conflict")

	// ErrServer indicates the backend failed to process the request
	ErrServer = errors.New("server error")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = errors.New("not found")

	// ErrNotSignedIn indicates no session token is available
	ErrNotSignedIn = errors.New("not signed in")

	// ErrRoleMismatch indicates the account is not a customer account
	ErrRoleMismatch = errors.New("account is not a customer account")

	// ErrSuspended indicates the account has been suspended
	ErrSuspended = errors.New("account is suspended")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindAuth:
		return ErrAuthFailed
	case KindValidation:
		return ErrValidation
	case KindConflict:
		return ErrConflict
	case KindServer:
		return ErrServer
	case KindNotFound:
		return ErrNotFound
	}
	return nil
}

// APIError is a classified backend failure
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *APIError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind
func (e *APIError) Is(target error) bool {
	s := sentinelFor(e.Kind)
	return s != nil && target == s
}

// ValidationError is a client-side rejection, e.g. a blocked wizard step
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// KindOf returns the classification of err
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return KindValidation
	}
	switch {
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrAuthFailed), errors.Is(err, ErrNotSignedIn),
		errors.Is(err, ErrRoleMismatch), errors.Is(err, ErrSuspended):
		return KindAuth
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrServer):
		return KindServer
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return KindUnknown
}

// IsRetryable reports whether err may succeed if the request is repeated.
// Only network failures and timeouts qualify.
func IsRetryable(err error) bool {
	return KindOf(err) == KindNetwork
}

// UserMessage renders err for display
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Message
	}
	var apiErr *APIError
	hasAPI := errors.As(err, &apiErr)
	switch KindOf(err) {
	case KindNetwork:
		return "Can't reach the server. Check your connection and try again."
	case KindAuth:
		return "Your session has ended. Please sign in again."
	case KindConflict:
		if hasAPI && apiErr.Message != "" {
			return "Conflict: " + apiErr.Message
		}
		return "Conflict: this time slot is no longer available. Please choose another time."
	case KindNotFound:
		return "That item no longer exists."
	case KindServer:
		return "Something went wrong on our side. Please try again."
	}
	return err.Error()
}
