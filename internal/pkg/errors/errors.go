package errors

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound marks a referenced collection or document that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransientIO marks a network or store failure. Nothing in the client retries it.
	ErrTransientIO = errors.New("transient io")
	// ErrMalformedData marks a document that does not match the expected shape.
	ErrMalformedData = errors.New("malformed data")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
)

// tagged carries a kind sentinel, the failing op and a message. Transient
// also keeps the cause reachable through errors.Is/As.
type tagged struct {
	kind  error
	op    string
	msg   string
	cause error
}

func (e *tagged) Error() string { return label(e.op, e.msg) }

func (e *tagged) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

func NotFound(op, msg string) error {
	return &tagged{kind: ErrNotFound, op: op, msg: msg}
}

// Transient tags err as a transient IO failure unless it already carries a kind.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != "" {
		return err
	}
	return &tagged{kind: ErrTransientIO, op: op, msg: err.Error(), cause: err}
}

func Malformed(op, msg string) error {
	return &tagged{kind: ErrMalformedData, op: op, msg: msg}
}

func InvalidArgument(op, msg string) error {
	return &tagged{kind: ErrInvalidArgument, op: op, msg: msg}
}

func Unauthorized(op, msg string) error {
	return &tagged{kind: ErrUnauthorized, op: op, msg: msg}
}

// Message returns the message of the outermost tagged error without its op,
// or err.Error() for untagged errors.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var t *tagged
	if errors.As(err, &t) {
		return strings.TrimSpace(t.msg)
	}
	return err.Error()
}

// Kind maps an error to a stable code, or "" when it carries none.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransientIO):
		return "transient_io"
	case errors.Is(err, ErrMalformedData):
		return "malformed_data"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return ""
	}
}

func label(op, msg string) string {
	op = strings.TrimSpace(op)
	msg = strings.TrimSpace(msg)
	if op == "" {
		return msg
	}
	return op + ": " + msg
}
