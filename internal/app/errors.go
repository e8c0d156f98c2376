package app

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failed signaling request.
type ErrorCode string

const (
	ErrCodeRoomNotFound        ErrorCode = "ROOM_NOT_FOUND"
	ErrCodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeTransportNotFound   ErrorCode = "TRANSPORT_NOT_FOUND"
	ErrCodeTransportAllocation ErrorCode = "TRANSPORT_ALLOCATION_FAILED"
	ErrCodeProducerCreation    ErrorCode = "PRODUCER_CREATION_FAILED"
	ErrCodeStreamNotFound      ErrorCode = "STREAM_NOT_FOUND"
	ErrCodeConsumerNotFound    ErrorCode = "CONSUMER_NOT_FOUND"
	ErrCodeBadRequest          ErrorCode = "BAD_REQUEST"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// Error is a structured handshake failure. It is always recovered at the
// request boundary: the requester gets the code and message, room and
// session state stay as they were.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// BadRequest builds a malformed-request error for the transport layer.
func BadRequest(format string, args ...any) *Error {
	return newError(ErrCodeBadRequest, format, args...)
}

// CodeOf extracts the error code, mapping unclassified errors to
// ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
