package result

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind is the engine's error taxonomy. Several codes share a kind.
type Kind int

const (
	// KindNone is the kind of a successful result.
	KindNone Kind = iota
	// KindNotFound means an entry, parent or backend row does not exist.
	KindNotFound
	// KindConflict means the entry exists or has children.
	KindConflict
	// KindBackendFailure means a connector returned a non-success status.
	KindBackendFailure
	// KindResourceTimeout means a lock was not acquired in time.
	KindResourceTimeout
	// KindExpressionError means an expression failed to evaluate.
	KindExpressionError
	// KindInvalidRequest means the request does not fit the mappings.
	KindInvalidRequest
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNotFound:
		return "notFound"
	case KindConflict:
		return "conflict"
	case KindBackendFailure:
		return "backendFailure"
	case KindResourceTimeout:
		return "resourceTimeout"
	case KindExpressionError:
		return "expressionError"
	case KindInvalidRequest:
		return "invalidRequest"
	default:
		return "unknown"
	}
}

// Retryable reports whether an operation failing with this kind may
// succeed when retried unchanged.
func (k Kind) Retryable() bool {
	return k == KindResourceTimeout
}

// Error is the error type returned across the engine boundary.
type Error struct {
	Code Code
	Kind Kind
	Op   string
	DN   string
	Err  error
}

// New creates an Error whose kind is derived from code.
func New(code Code, op, dn string, err error) *Error {
	return &Error{Code: code, Kind: code.Kind(), Op: op, DN: dn, Err: err}
}

// Errorf creates an Error with a formatted cause.
func Errorf(code Code, op, dn, format string, args ...any) *Error {
	return New(code, op, dn, fmt.Errorf(format, args...))
}

// Expression creates an ExpressionError-kind error. Expression failures
// that abort an operation surface as OperationsError.
func Expression(op, dn string, err error) *Error {
	return &Error{Code: OperationsError, Kind: KindExpressionError, Op: op, DN: dn, Err: err}
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Code.String())
	if e.DN != "" {
		sb.WriteString(" [")
		sb.WriteString(e.DN)
		sb.WriteByte(']')
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, result.New(NoSuchObject, "", "", nil))
// holds for any NoSuchObject error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code carried by err. A nil error is Success, context
// errors map to TimeLimitExceeded and any other foreign error is Other.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return TimeLimitExceeded
	}
	return Other
}

// KindOf returns the kind carried by err.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return CodeOf(err).Kind()
}

// IsNotFound reports whether err is a NoSuchObject error.
func IsNotFound(err error) bool {
	return CodeOf(err) == NoSuchObject
}

// From converts err into an *Error attributed to op and dn. Existing
// *Error values keep their code and kind; missing op and dn are filled in.
func From(op, dn string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		out := *e
		if out.Op == "" {
			out.Op = op
		}
		if out.DN == "" {
			out.DN = dn
		}
		return &out
	}
	return New(CodeOf(err), op, dn, err)
}
