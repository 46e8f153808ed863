package domain

import "errors"

// Sentinel errors shared by the aggregate, the read model and the service layer.
// Callers match them with errors.Is; wrapped variants carry the offending id.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrNotPublic          = errors.New("session is not public")
	ErrUnknownAggregate   = errors.New("unknown session")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrDuplicateIdentity  = errors.New("duplicate session identity")
	ErrStaleUpdate        = errors.New("session was updated by someone else")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
