package operator

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccessDisabled means no operator password hash is configured, so
	// operator login is switched off entirely.
	ErrAccessDisabled = errors.New("operator access not configured")
)
