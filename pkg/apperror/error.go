package apperror

import (
	"context"
	"errors"
	"net/http"
)

// Kind classifies failures the way the rest of the application reacts to
// them: transient network trouble, timeouts, row-level-security denials,
// auth failures, and so on. The HTTP code is only used by the delivery layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindPermission
	KindNotFound
	KindValidation
	KindAuth
	KindRpc
	KindConflict
)

type AppError struct {
	Kind    Kind   `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code int, message string, err error) *AppError {
	return &AppError{Kind: KindUnknown, Code: code, Message: message, Err: err}
}

func WithKind(kind Kind, code int, message string, err error) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message, Err: err}
}

func BadRequest(message string) *AppError {
	return WithKind(KindValidation, http.StatusBadRequest, message, nil)
}

func Unauthorized(message string) *AppError {
	return WithKind(KindAuth, http.StatusUnauthorized, message, nil)
}

func Forbidden(message string) *AppError {
	return WithKind(KindPermission, http.StatusForbidden, message, nil)
}

func NotFound(message string) *AppError {
	return WithKind(KindNotFound, http.StatusNotFound, message, nil)
}

func Conflict(message string) *AppError {
	return WithKind(KindConflict, http.StatusConflict, message, nil)
}

func Internal(err error) *AppError {
	return WithKind(KindUnknown, http.StatusInternalServerError, "Internal Server Error", err)
}

func Network(message string, err error) *AppError {
	return WithKind(KindNetwork, http.StatusBadGateway, message, err)
}

func Timeout(message string, err error) *AppError {
	return WithKind(KindTimeout, http.StatusGatewayTimeout, message, err)
}

func Rpc(message string, err error) *AppError {
	return WithKind(KindRpc, http.StatusBadGateway, message, err)
}

// KindOf extracts the Kind from any error. Context deadline errors count as
// timeouts even when a driver returned them unwrapped.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

func IsPermission(err error) bool {
	return KindOf(err) == KindPermission
}

func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
