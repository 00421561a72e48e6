package xerr

import (
	"errors"
	"fmt"
	"runtime"
)

// Error kinds from the error handling design. Compare with errors.Is.
var (
	ErrMiddlewareCreateFailure = errors.New("rclgo: middleware create failure")
	ErrMiddlewareWaitFailure   = errors.New("rclgo: middleware wait failure")
	ErrTakeFailure             = errors.New("rclgo: take failure")
	ErrGroupNotInNode          = errors.New("rclgo: callback group not registered with node")
	ErrTypeMismatch            = errors.New("rclgo: intra-process dynamic type mismatch")
	ErrUseAfterDestroy         = errors.New("rclgo: use after destroy")
)

// stacked wraps an error with the frame it was raised from: a single
// capture point, not a full pkg/errors clone.
type stacked struct {
	kind  error
	msg   string
	frame runtime.Frame
}

func (e *stacked) Error() string {
	if e.msg == "" {
		return e.kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *stacked) Unwrap() error { return e.kind }

// Format implements fmt.Formatter so %+v prints the capture site.
func (e *stacked) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s\n\t%s:%d", e.Error(), e.frame.File, e.frame.Line)
			return
		}
		fallthrough
	default:
		fmt.Fprint(s, e.Error())
	}
}

func capture(skip int) runtime.Frame {
	pc := make([]uintptr, 1)
	n := runtime.Callers(skip, pc)
	if n == 0 {
		return runtime.Frame{File: "unknown", Line: 0}
	}
	frames := runtime.CallersFrames(pc[:n])
	fr, _ := frames.Next()
	return fr
}

// New creates a new error of the given kind carrying msg, with the call
// site captured for %+v formatting.
func New(kind error, msg string) error {
	return &stacked{kind: kind, msg: msg, frame: capture(3)}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind error, format string, args ...any) error {
	return &stacked{kind: kind, msg: fmt.Sprintf(format, args...), frame: capture(3)}
}

// WithStack wraps an arbitrary error with its capture site without changing
// its errors.Is/As identity (Unwrap returns the original error).
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{kind: err, frame: capture(3)}
}
