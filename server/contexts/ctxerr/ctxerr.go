// Package ctxerr provides functions to wrap errors with annotations while
// carrying the request context. Call New or Wrap[f] as close as possible to
// where the error is encountered, and add further annotations as the error
// bubbles up the call stack.
package ctxerr

import (
	"context"

	"github.com/pkg/errors"
)

// New creates a new error with the provided error message.
func New(ctx context.Context, errMsg string) error {
	return errors.New(errMsg)
}

// Errorf creates a new error with the provided formatted message.
func Errorf(ctx context.Context, format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Wrap annotates err with the provided message. Returns nil if err is nil.
func Wrap(ctx context.Context, err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf annotates err with the provided formatted message. Returns nil if
// err is nil.
func Wrapf(ctx context.Context, err error, fmsg string, args ...interface{}) error {
	return errors.Wrapf(err, fmsg, args...)
}

// Cause returns the root cause of err.
func Cause(err error) error {
	return errors.Cause(err)
}
