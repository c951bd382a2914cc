package live

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is; every error returned by this package wraps exactly one of them.
var (
	ErrValidation       = errors.New("validation failed")
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrDevice           = errors.New("capture device unavailable")
	ErrTransient        = errors.New("store temporarily unavailable")
	ErrNotFound         = errors.New("stream not found or ended")
	ErrForbidden        = errors.New("not allowed")
	ErrTimedOut         = errors.New("user is timed out")
	ErrInvalidState     = errors.New("invalid stream state")
)

// kindError attaches a kind to a message and an optional cause.
type kindError struct {
	kind error
	msg  string
	err  error
}

func (e *kindError) Error() string {
	switch {
	case e.msg != "" && e.err != nil:
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	case e.msg != "":
		return fmt.Sprintf("%s: %s", e.kind, e.msg)
	case e.err != nil:
		return fmt.Sprintf("%s: %v", e.kind, e.err)
	}
	return e.kind.Error()
}

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.err }

// Validation returns an ErrValidation with a user-facing message.
func Validation(msg string) error { return &kindError{kind: ErrValidation, msg: msg} }

// Transient wraps a store or network failure. Already-classified errors pass through unchanged.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return &kindError{kind: ErrTransient, msg: op, err: err}
}

// NotFound returns an ErrNotFound describing what was missing.
func NotFound(what string) error { return &kindError{kind: ErrNotFound, msg: what} }

// Forbidden returns an ErrForbidden with a reason.
func Forbidden(msg string) error { return &kindError{kind: ErrForbidden, msg: msg} }

// PermissionDenied wraps a capture refusal.
func PermissionDenied(err error) error { return &kindError{kind: ErrPermissionDenied, err: err} }

// DeviceError wraps a capture failure that is not a refusal.
func DeviceError(err error) error { return &kindError{kind: ErrDevice, err: err} }

// Classified reports whether err already carries one of the package kinds.
func Classified(err error) bool {
	for _, k := range []error{ErrValidation, ErrPermissionDenied, ErrDevice, ErrTransient, ErrNotFound, ErrForbidden, ErrTimedOut, ErrInvalidState} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
