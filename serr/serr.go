// Package serr holds the error value used throughout jelstore. Every failure
// raised by the storage layers, repositories, query builder and service is an
// Error tagged with a Kind; callers can check the kind either with KindOf or by
// calling errors.Is against the kind's sentinel error.
package serr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the broad category of an Error.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindStorage
	KindAggregate
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindStorage:
		return "storage"
	case KindAggregate:
		return "aggregate"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// sentinel returns the error that errors.Is matches against for Errors of kind
// k.
func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindStorage:
		return ErrStorage
	case KindAggregate:
		return ErrAggregate
	default:
		return nil
	}
}

var (
	ErrValidation          = errors.New("one or more of the arguments is invalid")
	ErrNotFound            = errors.New("the requested entity could not be found")
	ErrStorage             = errors.New("an error occurred with the storage backend")
	ErrAggregate           = errors.New("multiple errors occurred")
	ErrNotConnected        = errors.New("storage is not connected")
	ErrConnection          = errors.New("could not connect to storage")
	ErrConstraintViolation = errors.New("a uniqueness constraint was violated")
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrDecodingFailure     = errors.New("value could not be decoded from storage format")
)

// Keys used in the context map of an Error.
const (
	CtxField       = "field"
	CtxValue       = "value"
	CtxOperation   = "operation"
	CtxStorageType = "storageType"
	CtxPath        = "path"
	CtxStoreName   = "storeName"
	CtxID          = "id"
)

// Error is a failure tagged with a Kind. It carries a message, an optional
// cause, a map of structured context (see the Ctx* constants), and, for
// aggregate errors, the ordered list of member errors.
//
// Error is compatible with errors.Is and errors.As. errors.Is(err, target)
// returns true when target is the sentinel for the Error's Kind (e.g.
// ErrNotFound for KindNotFound), when target is the cause or one of the
// members, or when either of those in turn matches target.
//
// Error values are not modified after creation; With returns a copy.
type Error struct {
	kind  Kind
	msg   string
	cause error
	errs  []error
	ctx   map[string]any
	at    time.Time
}

// New creates a new Error of the given kind. cause may be nil.
func New(kind Kind, msg string, cause error) Error {
	return Error{
		kind:  kind,
		msg:   msg,
		cause: cause,
		at:    time.Now(),
	}
}

// NewValidation creates a Validation-kind Error for the given field and the
// value that failed.
func NewValidation(field string, value any, msg string) Error {
	return New(KindValidation, msg, nil).With(CtxField, field).With(CtxValue, value)
}

// NewNotFound creates a NotFound-kind Error.
func NewNotFound(msg string) Error {
	return New(KindNotFound, msg, nil)
}

// WrapStorage creates a Storage-kind Error wrapping cause. storageType names
// the backend and op names the operation that was attempted. The message is
// derived from both; use With to attach further detail such as a path.
func WrapStorage(cause error, storageType, op string) Error {
	msg := fmt.Sprintf("%s %s", storageType, op)
	return New(KindStorage, msg, cause).
		With(CtxStorageType, storageType).
		With(CtxOperation, op)
}

// NewAggregate creates an Aggregate-kind Error bundling errs. Nil members are
// dropped. If msg is empty, a generic message is used.
func NewAggregate(msg string, errs ...error) Error {
	if msg == "" {
		msg = ErrAggregate.Error()
	}
	e := New(KindAggregate, msg, nil)
	for _, m := range errs {
		if m != nil {
			e.errs = append(e.errs, m)
		}
	}
	return e
}

// KindOf returns the Kind of err. If err is not an Error and does not wrap
// one, KindUnknown is returned.
func KindOf(err error) Kind {
	var e Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// Error returns the message of e. If e has a cause, its message is appended;
// if e is an aggregate, the messages of its members are appended.
func (e Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.msg)

	if e.cause != nil {
		if sb.Len() > 0 {
			sb.WriteString(": ")
		}
		sb.WriteString(e.cause.Error())
	}

	if len(e.errs) > 0 {
		if sb.Len() > 0 {
			sb.WriteString(": ")
		}
		for i := range e.errs {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(e.errs[i].Error())
		}
	}

	return sb.String()
}

// Kind returns the kind of e.
func (e Error) Kind() Kind {
	return e.kind
}

// Message returns the message of e without the text of any cause.
func (e Error) Message() string {
	return e.msg
}

// Cause returns the error wrapped by e, or nil if there is none.
func (e Error) Cause() error {
	return e.cause
}

// Errors returns the member errors of an aggregate. It returns nil for
// non-aggregate errors.
func (e Error) Errors() []error {
	if len(e.errs) == 0 {
		return nil
	}
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

// Time returns when e was created.
func (e Error) Time() time.Time {
	return e.at
}

// Context returns a copy of the structured context of e.
func (e Error) Context() map[string]any {
	out := make(map[string]any, len(e.ctx))
	for k, v := range e.ctx {
		out[k] = v
	}
	return out
}

// Get returns the context value stored under key.
func (e Error) Get(key string) (any, bool) {
	v, ok := e.ctx[key]
	return v, ok
}

// With returns a copy of e with key set to value in its context.
func (e Error) With(key string, value any) Error {
	newCtx := make(map[string]any, len(e.ctx)+1)
	for k, v := range e.ctx {
		newCtx[k] = v
	}
	newCtx[key] = value
	e.ctx = newCtx
	return e
}

// Unwrap returns the cause of e followed by its aggregate members.
func (e Error) Unwrap() []error {
	var out []error
	if e.cause != nil {
		out = append(out, e.cause)
	}
	out = append(out, e.errs...)
	return out
}

// Is returns whether target is the sentinel for e's Kind, or is an Error with
// the same kind and message. Causes and members are checked by errors.Is
// itself via Unwrap.
func (e Error) Is(target error) bool {
	if s := e.kind.sentinel(); s != nil && s == target {
		return true
	}

	if errTarget, ok := target.(Error); ok {
		return e.kind == errTarget.kind && e.msg == errTarget.msg
	}

	return false
}
