// Package apperr provides the stable, tagged error codes (§7 of the spec)
// that router operations fail with. The signaling adaptor maps a Code
// directly onto the outbound error message's code field.
package apperr

import "fmt"

// Code is one of the stable error codes the signaling protocol surfaces.
type Code string

const (
	CodeNotRegistered        Code = "NOT_REGISTERED"
	CodeNotInRoom            Code = "NOT_IN_ROOM"
	CodeRoomNotFound         Code = "ROOM_NOT_FOUND"
	CodeAlreadyPublishing    Code = "ALREADY_PUBLISHING"
	CodeTrackNotFound        Code = "TRACK_NOT_FOUND"
	CodeInvalidSDP           Code = "INVALID_SDP"
	CodePeerConnectionFailed Code = "PEER_CONNECTION_FAILED"
	CodeSelfSubscription     Code = "SELF_SUBSCRIPTION"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// AppError carries a stable code plus a human-readable message and,
// optionally, the error that caused it.
type AppError struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a key/value pair for diagnostic logging.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates an AppError with no underlying cause.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an AppError carrying an underlying cause.
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: err}
}

// As extracts an *AppError from an error chain, unwrapping as needed.
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return As(u.Unwrap())
	}
	return nil
}
