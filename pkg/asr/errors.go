package asr

import "fmt"

// ErrorKind classifies a DomainError.
type ErrorKind uint8

const (
	// KindInvalidInput marks errors caused by malformed or out-of-range
	// caller input.
	KindInvalidInput ErrorKind = iota + 1

	// KindInternal marks unexpected failures inside the pipeline.
	KindInternal

	// KindExternalService marks failures of a named downstream service.
	KindExternalService
)

// DomainError is the error type produced by pipeline stages and domain
// helpers. It carries a kind for transport-level mapping and, for external
// failures, the name of the offending service. Stages return these verbatim;
// the engine never rewraps them.
type DomainError struct {
	Kind    ErrorKind
	Service string // set only for KindExternalService
	Message string
}

func (e *DomainError) Error() string {
	switch e.Kind {
	case KindInvalidInput:
		return "invalid input: " + e.Message
	case KindExternalService:
		return fmt.Sprintf("external service `%s` failed: %s", e.Service, e.Message)
	default:
		return "internal error: " + e.Message
	}
}

// InvalidInput returns a DomainError of kind KindInvalidInput.
func InvalidInput(msg string) *DomainError {
	return &DomainError{Kind: KindInvalidInput, Message: msg}
}

// Internal returns a DomainError of kind KindInternal.
func Internal(msg string) *DomainError {
	return &DomainError{Kind: KindInternal, Message: msg}
}

// Internalf is Internal with fmt.Sprintf formatting.
func Internalf(format string, args ...any) *DomainError {
	return Internal(fmt.Sprintf(format, args...))
}

// ExternalService returns a DomainError of kind KindExternalService for the
// named downstream service.
func ExternalService(service, msg string) *DomainError {
	return &DomainError{Kind: KindExternalService, Service: service, Message: msg}
}
