package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseResolve  Phase = "resolve"  // handle lookup
	PhaseCreate   Phase = "create"   // model allocation
	PhaseValidate Phase = "validate" // descriptor and shape validation
	PhaseFit      Phase = "fit"      // training
	PhasePredict  Phase = "predict"  // inference
	PhaseEncode   Phase = "encode"   // model state to params text
	PhaseDecode   Phase = "decode"   // params text to model state
	PhaseStore    Phase = "store"    // snapshot persistence
	PhaseConfig   Phase = "config"   // configuration loading
	PhaseLoad     Phase = "load"     // learner module loading
	PhaseABI      Phase = "abi"      // C boundary
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidHandle   Kind = "invalid_handle"
	KindShapeMismatch   Kind = "shape_mismatch"
	KindNotFitted       Kind = "not_fitted"
	KindParseError      Kind = "parse_error"
	KindBufferTooSmall  Kind = "buffer_too_small"
	KindInvalidArgument Kind = "invalid_argument"
	KindFitFailed       Kind = "fit_failed"
	KindClosed          Kind = "closed"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

// Code is the integer form of a Kind reported across the C ABI.
type Code int32

const (
	CodeOK              Code = 0
	CodeInvalidHandle   Code = 1
	CodeShapeMismatch   Code = 2
	CodeNotFitted       Code = 3
	CodeParseError      Code = 4
	CodeBufferTooSmall  Code = 5
	CodeInvalidArgument Code = 6
	CodeFitFailed       Code = 7
	CodeClosed          Code = 8
	CodeNotFound        Code = 9
	CodeInternal        Code = 10
)

var kindCodes = map[Kind]Code{
	KindInvalidHandle:   CodeInvalidHandle,
	KindShapeMismatch:   CodeShapeMismatch,
	KindNotFitted:       CodeNotFitted,
	KindParseError:      CodeParseError,
	KindBufferTooSmall:  CodeBufferTooSmall,
	KindInvalidArgument: CodeInvalidArgument,
	KindFitFailed:       CodeFitFailed,
	KindClosed:          CodeClosed,
	KindNotFound:        CodeNotFound,
	KindInternal:        CodeInternal,
}

// Code returns the ABI code for k. Unknown kinds map to CodeInternal.
func (k Kind) Code() Code {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return CodeInternal
}

// Sentinels for errors.Is checks that only care about the Kind.
var (
	ErrInvalidHandle   = &Error{Kind: KindInvalidHandle}
	ErrShapeMismatch   = &Error{Kind: KindShapeMismatch}
	ErrNotFitted       = &Error{Kind: KindNotFitted}
	ErrParse           = &Error{Kind: KindParseError}
	ErrBufferTooSmall  = &Error{Kind: KindBufferTooSmall}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrFitFailed       = &Error{Kind: KindFitFailed}
	ErrClosed          = &Error{Kind: KindClosed}
	ErrNotFound        = &Error{Kind: KindNotFound}
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a Phase matches any error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Code returns the ABI code for this error's Kind.
func (e *Error) Code() Code {
	return e.Kind.Code()
}

// KindOf extracts the Kind of err. Errors that are not *Error report KindInternal,
// nil reports the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the ABI code of err; nil is CodeOK.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	return KindOf(err).Code()
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidHandle creates an unknown-or-deleted handle error
func InvalidHandle(phase Phase, handle uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Detail: fmt.Sprintf("handle %#x is not live", handle),
		Value:  handle,
	}
}

// ShapeMismatch creates a dimension contract violation error
func ShapeMismatch(phase Phase, path []string, format string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindShapeMismatch,
		Path:   path,
		Detail: fmt.Sprintf(format, args...),
	}
}

// DimMismatch creates a shape error for a dimension that must equal another
func DimMismatch(phase Phase, path []string, got, want int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindShapeMismatch,
		Path:   path,
		Detail: fmt.Sprintf("got %d, want %d", got, want),
		Value:  got,
	}
}

// NotFitted creates an error for operations that need trained state
func NotFitted(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFitted,
		Detail: "model has no trained parameters",
	}
}

// ParseFailed creates a parameter text parsing error
func ParseFailed(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindParseError,
		Detail: detail,
		Cause:  cause,
	}
}

// BufferTooSmall creates an error for an output buffer that cannot hold the result
func BufferTooSmall(phase Phase, need, have int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindBufferTooSmall,
		Detail: fmt.Sprintf("need %d bytes, buffer holds %d", need, have),
		Value:  need,
	}
}

// InvalidArgument creates an invalid argument error
func InvalidArgument(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Path:   path,
		Detail: detail,
	}
}

// FitFailed wraps a learner failure
func FitFailed(learner string, cause error) *Error {
	return &Error{
		Phase:  PhaseFit,
		Kind:   KindFitFailed,
		Detail: fmt.Sprintf("learner %q", learner),
		Cause:  cause,
	}
}

// Closed creates an error for operations on a closed runtime or table
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", what),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Internal wraps an unexpected failure, such as a recovered panic
func Internal(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Is forwards to the standard library so callers need a single errors import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As forwards to the standard library.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
