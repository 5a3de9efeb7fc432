package sending

import (
	"errors"
	"fmt"
)

// ErrPermanent marks a failure that will not succeed on retry, such as a
// rejected sender identity or a malformed recipient.
var ErrPermanent = errors.New("permanent send failure")

// Error is a classified provider failure.
type Error struct {
	Code      string
	Message   string
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s send failure %s: %s: %v", kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s send failure %s: %s", kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrPermanent) match permanent failures.
func (e *Error) Is(target error) bool {
	return target == ErrPermanent && e.Permanent
}

// Permanent builds a non-retryable failure.
func Permanent(code, message string, err error) error {
	return &Error{Code: code, Message: message, Permanent: true, Err: err}
}

// Transient builds a retryable failure.
func Transient(code, message string, err error) error {
	return &Error{Code: code, Message: message, Err: err}
}

// Classify extracts the error code and message to record on the message,
// and whether the failure is permanent. Unclassified errors are transient.
func Classify(err error) (code, message string, permanent bool) {
	var se *Error
	if errors.As(err, &se) {
		msg := se.Message
		if msg == "" && se.Err != nil {
			msg = se.Err.Error()
		}
		return se.Code, msg, se.Permanent
	}
	return "send_error", err.Error(), errors.Is(err, ErrPermanent)
}
