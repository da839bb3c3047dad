package authz

import "errors"

var (
	// ErrUnknownRole indicates a role string outside the catalog.
	ErrUnknownRole = errors.New("authz: unknown role")
	// ErrMalformedCapability indicates a capability declared without a valid name or minimum role.
	ErrMalformedCapability = errors.New("authz: malformed capability")
	// ErrDuplicateCapability indicates a capability name registered twice.
	ErrDuplicateCapability = errors.New("authz: duplicate capability")
)
