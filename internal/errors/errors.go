package errors

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the authorization bridge
var (
	// Client errors
	ErrInvalidClient        = errors.New("invalid client")
	ErrInvalidClientSecret  = errors.New("invalid client secret")
	ErrInvalidRedirectURI   = errors.New("invalid redirect URI")
	ErrRegistrationDisabled = errors.New("registration disabled")

	// Authorization flow errors
	ErrInvalidState           = errors.New("invalid or expired state")
	ErrUpstreamExchangeFailed = errors.New("upstream exchange failed")
	ErrInvalidGrant           = errors.New("invalid grant")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrUnsupportedGrantType   = errors.New("unsupported grant type")

	// Token errors
	ErrTokenInvalid = errors.New("token invalid")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Mark attaches a sentinel kind to err while keeping err in the chain
func Mark(err, kind error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
