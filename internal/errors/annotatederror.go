package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// AnnotatedError includes more context than a plain error that is useful for troubleshooting.
type AnnotatedError struct {
	// msg is the error message.
	msg string
	// pc is the program counter for the location of the error provided by runtime.Callers.
	pc uintptr
	// attrs are slog attributes that are added to the log event to provide more context for the error.
	attrs []slog.Attr
}

// New creates a new AnnotatedError with the given message and attributes.
func New(msg string, attrs ...slog.Attr) AnnotatedError {
	return newAnnotated(msg, attrs)
}

func newAnnotated(msg string, attrs []slog.Attr) AnnotatedError {
	var pcs [1]uintptr
	// Skip runtime.Callers, this function and the exported constructor.
	runtime.Callers(3, pcs[:]) //nolint:mnd // see above
	return AnnotatedError{
		msg:   msg,
		pc:    pcs[0],
		attrs: attrs,
	}
}

// NewSentinel creates a plain error without other context that can be used as sentinel error that can be detected
// with errors.Is.
func NewSentinel(msg string) error {
	return errors.New(msg)
}

// Wrap is a convenience function for wrapping errors, e.g., adding context to a sentinel error.
func (err AnnotatedError) Wrap(cause error) error {
	return fmt.Errorf("%w: %w", err, cause)
}

// Error implements error interface.
func (err AnnotatedError) Error() string {
	return err.msg
}

// LogValue formats the error for useful logging.
func (err AnnotatedError) LogValue() slog.Value {
	return slog.GroupValue(append([]slog.Attr{err.sourceAttr()}, err.attrs...)...)
}

// sourceAttr retrieves the source location of the error so that developers can locate it faster.
func (err AnnotatedError) sourceAttr() slog.Attr {
	frames := runtime.CallersFrames([]uintptr{err.pc})
	source, _ := frames.Next()
	return slog.String("source", fmt.Sprintf("%s:%d", source.File, source.Line))
}

// wrappedError is an AnnotatedError with a cause.
type wrappedError struct {
	AnnotatedError
	cause error
}

// Wrap annotates cause with msg, the caller's source location and attrs.
//
// The returned error matches cause with [Is] and [As].
func Wrap(cause error, msg string, attrs ...slog.Attr) error {
	return wrappedError{
		AnnotatedError: newAnnotated(msg, attrs),
		cause:          cause,
	}
}

func (err wrappedError) Error() string {
	if err.cause == nil {
		return err.msg
	}
	return err.msg + ": " + err.cause.Error()
}

func (err wrappedError) Unwrap() error {
	return err.cause
}

// LogValue includes the outermost source location and the attributes of every annotated error in the chain.
func (err wrappedError) LogValue() slog.Value {
	attrs := append([]slog.Attr{err.sourceAttr()}, err.attrs...)
	return slog.GroupValue(append(attrs, chainAttrs(err.cause)...)...)
}

// chainAttrs collects the attributes of the annotated errors in err's chain, skipping source locations.
func chainAttrs(err error) []slog.Attr {
	var attrs []slog.Attr
	for err != nil {
		switch e := err.(type) { //nolint:errorlint // we walk the chain manually
		case wrappedError:
			attrs = append(attrs, e.attrs...)
		case AnnotatedError:
			attrs = append(attrs, e.attrs...)
		}
		err = errors.Unwrap(err)
	}
	return attrs
}

// SlogError returns an attribute describing err suitable for [slog.Logger.LogAttrs].
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	attrs := []slog.Attr{slog.String("message", err.Error())}
	var valuer slog.LogValuer
	if errors.As(err, &valuer) {
		if v := valuer.LogValue(); v.Kind() == slog.KindGroup {
			attrs = append(attrs, v.Group()...)
		}
	}
	return slog.Attr{Key: "error", Value: slog.GroupValue(attrs...)}
}

// As exposes stdlib errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is exposes stdlib errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap exposes stdlib errors.Unwrap.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Join exposes stdlib errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
