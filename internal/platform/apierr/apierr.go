package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the stable error taxonomy exposed over the wire. Every kind maps to
// exactly one HTTP status.
type Kind string

const (
	KindInvalidRequest     Kind = "invalid_request"
	KindUnauthorized       Kind = "unauthorized"
	KindPayloadTooLarge    Kind = "payload_too_large"
	KindUnsupportedMedia   Kind = "unsupported_media"
	KindQueueFull          Kind = "queue_full"
	KindNotFound           Kind = "not_found"
	KindNotReady           Kind = "not_ready"
	KindRendererFailed     Kind = "renderer_failed"
	KindRendererIncomplete Kind = "renderer_incomplete"
	KindTimeout            Kind = "timeout"
	KindCancelled          Kind = "cancelled"
	KindUnavailable        Kind = "unavailable"
	KindInternal           Kind = "internal"
)

func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	case KindQueueFull:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindNotReady:
		return http.StatusConflict
	case KindRendererFailed, KindRendererIncomplete, KindTimeout, KindCancelled:
		return http.StatusGone
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	JobID   string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// KindOf extracts the taxonomy kind from any error, defaulting to internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// From coerces an arbitrary error into an *Error without double-wrapping.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: KindInternal, Message: err.Error(), Err: err}
}
