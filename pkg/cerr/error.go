package cerr

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/kazz187/urgentsync/pkg/clog"
)

type Error struct {
	Code Code
	Msg  string // returned to the caller together with Code
	Err  error  // logged, never returned verbatim unless Expose is set
	// Stack is captured for error-level codes.
	Stack string
	// Expose adds the underlying error and stack to the HTTP response body.
	Expose bool
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if code.captureStack() {
		stackTrace := make([]byte, 4096)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[:n])
	}
	return err
}

// WithExposedDetail marks the error so that the response carries the
// underlying error text and stack trace. Used on operator-only endpoints.
func (e *Error) WithExposedDetail() *Error {
	e.Expose = true
	return e
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, Unknown for foreign errors and OK for nil.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	if errors.Is(err, context.Canceled) {
		return Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return DeadlineExceeded
	}
	return Unknown
}

// normalize converts any error into *Error and records it in the log bag.
func normalize(ctx context.Context, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return NewError(Canceled, "connection closed", err)
	}
	clog.AddError(ctx, err)
	var cErr *Error
	if errors.As(err, &cErr) {
		if cErr.Stack != "" {
			clog.AddStack(ctx, cErr.Stack)
		}
		return cErr
	}
	return NewError(Unknown, "unknown error", err)
}
