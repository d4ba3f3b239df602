// Package protoerr defines the error taxonomy shared by the asset, console,
// world and protocol packages.
package protoerr

import "fmt"

// Kind classifies an Error so callers can branch with errors.Is against the
// package-level sentinels below instead of matching on message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidFormat
	KindIOFailed
	KindProtocolViolation
	KindPlayerUnknown
	KindWorldUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidFormat:
		return "invalid_format"
	case KindIOFailed:
		return "io_failed"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindPlayerUnknown:
		return "player_unknown"
	case KindWorldUnknown:
		return "world_unknown"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the operation that failed and a Kind
// that downstream code can test for with errors.Is.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel for e's Kind, so errors.Is(err,
// protoerr.NotFound) works without comparing *Error pointers.
func (e *Error) Is(target error) bool {
	sentinel, ok := target.(*sentinel)
	if !ok {
		return false
	}
	return e.Kind == sentinel.kind
}

type sentinel struct{ kind Kind }

func (s *sentinel) Error() string { return s.kind.String() }

var (
	NotFound           error = &sentinel{KindNotFound}
	InvalidFormat      error = &sentinel{KindInvalidFormat}
	IOFailed           error = &sentinel{KindIOFailed}
	ProtocolViolation  error = &sentinel{KindProtocolViolation}
	PlayerUnknown      error = &sentinel{KindPlayerUnknown}
	WorldUnknown       error = &sentinel{KindWorldUnknown}
)

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func NotFoundf(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Err: fmt.Errorf(format, args...)}
}

func InvalidFormatf(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidFormat, Op: op, Err: fmt.Errorf(format, args...)}
}
