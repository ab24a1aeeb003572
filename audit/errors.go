package audit

import "errors"

// Caller input errors. These are rejected requests and never retried.
var (
	ErrInvalidPayloadType = errors.New("invalid eventData type")
	ErrTypeMismatch       = errors.New("eventData type mismatch")
	ErrInvalidRange       = errors.New("invalid time range")
	ErrInvalidSort        = errors.New("invalid sort")
	ErrInvalidPage        = errors.New("invalid page request")
	ErrInvalidProfileType = errors.New("invalid profile type")
)

var (
	ErrForbidden       = errors.New("forbidden")
	ErrTopicNotFound   = errors.New("topic not found")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrUnmatchedEntity = errors.New("entity shape has no event mapping")
	ErrNoEntity        = errors.New("event produced no entity")
)

// IsCallerInput reports whether err should be surfaced as a bad request.
func IsCallerInput(err error) bool {
	for _, target := range []error{
		ErrInvalidPayloadType,
		ErrTypeMismatch,
		ErrInvalidRange,
		ErrInvalidSort,
		ErrInvalidPage,
		ErrInvalidProfileType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Message returns the human readable part of a wrapped caller error. Errors
// built as "<sentinel>: <message>" yield <message>.
func Message(err error) string {
	var m *messageError
	if errors.As(err, &m) {
		return m.msg
	}
	return err.Error()
}

type messageError struct {
	kind error
	msg  string
}

func (e *messageError) Error() string { return e.msg }
func (e *messageError) Unwrap() error { return e.kind }

// NewError attaches a caller facing message to one of the sentinels above.
func NewError(kind error, msg string) error {
	return &messageError{kind: kind, msg: msg}
}
