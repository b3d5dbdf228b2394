package session

import (
	"errors"

	"github.com/voxalys/voxalys/pkg/asr"
)

// AppErrorKind classifies application-boundary failures for transport
// mapping.
type AppErrorKind uint8

const (
	// KindValidation marks request-shape failures detected before the
	// pipeline runs, and invalid-input domain errors surfacing from it.
	KindValidation AppErrorKind = iota + 1

	// KindInternal marks unexpected failures.
	KindInternal

	// KindUpstream marks failures of a downstream service.
	KindUpstream
)

// AppError is the error type the use case exposes to transports.
type AppError struct {
	Kind    AppErrorKind
	Message string
	cause   error
}

func (e *AppError) Error() string {
	switch e.Kind {
	case KindValidation:
		return "validation failed: " + e.Message
	case KindUpstream:
		return "upstream failure: " + e.Message
	default:
		return "internal error: " + e.Message
	}
}

func (e *AppError) Unwrap() error { return e.cause }

// Validation returns a request-validation error.
func Validation(msg string) *AppError {
	return &AppError{Kind: KindValidation, Message: msg}
}

// Internal returns an internal application error.
func Internal(msg string) *AppError {
	return &AppError{Kind: KindInternal, Message: msg}
}

// fromDomain maps a pipeline error onto the application error space by
// kind, preserving the original as the cause.
func fromDomain(err error) *AppError {
	var de *asr.DomainError
	if !errors.As(err, &de) {
		return &AppError{Kind: KindInternal, Message: err.Error(), cause: err}
	}
	switch de.Kind {
	case asr.KindInvalidInput:
		return &AppError{Kind: KindValidation, Message: de.Message, cause: err}
	case asr.KindExternalService:
		return &AppError{Kind: KindUpstream, Message: de.Error(), cause: err}
	default:
		return &AppError{Kind: KindInternal, Message: de.Message, cause: err}
	}
}
