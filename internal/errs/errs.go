package errs

import "errors"

// Error taxonomy shared by the adapter, platform clients, credential
// manager and publisher. Wrap with fmt.Errorf("...: %w", ErrX) and test
// with errors.Is.
var (
	ErrValidation              = errors.New("validation failed")
	ErrAccountUnavailable      = errors.New("social account not connected")
	ErrCredentialExpired       = errors.New("credential expired")
	ErrCredentialRefreshFailed = errors.New("credential refresh failed")
	ErrPlatformRejected        = errors.New("platform rejected request")
	ErrTransport               = errors.New("platform transport error")
	ErrUnsupported             = errors.New("operation not supported for this platform")
	ErrNotFound                = errors.New("not found")
	ErrForbidden               = errors.New("forbidden")
)
