package jelstore

import "github.com/dekarrin/jelstore/serr"

// Error sentinels re-exported from serr so callers of the root package can
// check errors without an extra import.
var (
	ErrValidation          = serr.ErrValidation
	ErrNotFound            = serr.ErrNotFound
	ErrStorage             = serr.ErrStorage
	ErrAggregate           = serr.ErrAggregate
	ErrNotConnected        = serr.ErrNotConnected
	ErrConnection          = serr.ErrConnection
	ErrConstraintViolation = serr.ErrConstraintViolation
)

// Error is the error value returned by jelstore operations.
type Error = serr.Error
