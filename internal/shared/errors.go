package shared

import (
	"errors"

	"github.com/marketdesk/marketdesk/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = httpx.ErrNotFound
	// ErrConflict indicates a duplicate row.
	ErrConflict = httpx.ErrDuplicate
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrInactiveAccount indicates a disabled user; it resolves to no principal.
	ErrInactiveAccount = errors.New("account inactive")
)
