package platform

import (
	"errors"
	"fmt"

	"github.com/crosspost/crosspost/internal/errs"
	"github.com/crosspost/crosspost/internal/models"
)

// Kind classifies a platform failure
type Kind int

const (
	KindRejected Kind = iota
	KindTransport
	KindUnauthorized
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindRejected:
		return "rejected"
	case KindTransport:
		return "transport"
	case KindUnauthorized:
		return "unauthorized"
	case KindUnsupported:
		return "unsupported"
	}
	return "unknown"
}

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return errs.ErrTransport
	case KindUnauthorized:
		return errs.ErrCredentialExpired
	case KindUnsupported:
		return errs.ErrUnsupported
	}
	return errs.ErrPlatformRejected
}

// Error is the typed failure returned by every client. Message holds the
// platform's own wording when it supplied one.
type Error struct {
	Platform   models.Platform
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s (status %d): %s", e.Platform, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Platform, e.Kind, e.Message)
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// Rejected builds a KindRejected error
func Rejected(p models.Platform, status int, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("%s request failed", p)
	}
	return &Error{Platform: p, Kind: KindRejected, StatusCode: status, Message: message}
}

// Transport builds a KindTransport error around err
func Transport(p models.Platform, err error) *Error {
	return &Error{Platform: p, Kind: KindTransport, Message: err.Error(), Err: err}
}

// Unsupported builds a KindUnsupported error for op
func Unsupported(p models.Platform, op string) *Error {
	return &Error{Platform: p, Kind: KindUnsupported, Message: fmt.Sprintf("%s is not supported for %s", op, p)}
}

// IsUnauthorized reports whether err is a platform 401
func IsUnauthorized(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindUnauthorized
}

// Message returns the text to show a user for err: the platform's own
// message when there is one, else the error string.
func Message(err error) string {
	var pe *Error
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}
