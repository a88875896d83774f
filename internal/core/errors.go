package core

import (
	"errors"
	"fmt"
)

// Error codes for domain errors.
const (
	ErrCodeValidation              = "validation_error"
	ErrCodeChatUnavailable         = "chat_unavailable"
	ErrCodeChatNotFound            = "chat_not_found"
	ErrCodeAgentNotFound           = "agent_not_found"
	ErrCodeCannedNotFound          = "canned_not_found"
	ErrCodeMessageNotFound         = "message_not_found"
	ErrCodeSessionNotFound         = "session_not_found"
	ErrCodeAlreadyJoined           = "already_joined"
	ErrCodeStoreUnavailable        = "store_unavailable"
	ErrCodeAssignmentInconsistency = "assignment_inconsistency"
	ErrCodeBadRequest              = "bad_request"
	ErrCodeUnauthorized            = "unauthorized"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrChatUnavailable         = errors.New("chat not available for assignment")
	ErrChatNotFound            = errors.New("chat not found")
	ErrAgentNotFound           = errors.New("agent not found")
	ErrCannedNotFound          = errors.New("canned message not found")
	ErrMessageNotFound         = errors.New("message not found")
	ErrSessionNotFound         = errors.New("session not found")
	ErrAlreadyJoined           = errors.New("already joined")
	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrAssignmentInconsistency = errors.New("assignment inconsistency")
)

// CoreError wraps a code and human-readable message.
// Kind is the sentinel the error matches with errors.Is; Err is the underlying cause, if any.
type CoreError struct {
	Code    string
	Message string
	Kind    error
	Err     error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func (e *CoreError) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// AsCoreError extracts a CoreError from err's chain.
func AsCoreError(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func coreError(code string, kind error, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg, Kind: kind}
}

func validationError(msg string) *CoreError {
	return coreError(ErrCodeValidation, ErrValidation, msg)
}

func storeUnavailable(op string, err error) *CoreError {
	return &CoreError{
		Code:    ErrCodeStoreUnavailable,
		Message: "store temporarily unavailable",
		Kind:    ErrStoreUnavailable,
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}
