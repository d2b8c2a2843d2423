package errors

import (
	"fmt"
	"strings"
)

// Stage indicates which part of the pipeline produced the error
type Stage string

const (
	StageConfig    Stage = "config"    // configuration loading
	StageLoad      Stage = "load"      // rustdoc JSON parsing
	StageMerge     Stage = "merge"     // crate merging
	StageTrace     Stage = "trace"     // schema tracing
	StageEnumerate Stage = "enumerate" // function enumeration
	StageEmit      Stage = "emit"      // source emission
	StageWire      Stage = "wire"      // encode/decode
	StageRuntime   Stage = "runtime"   // dispatch
)

// Kind categorizes the error
type Kind string

const (
	KindParse                Kind = "parse_error"
	KindDanglingID           Kind = "dangling_id"
	KindDuplicateTypeName    Kind = "duplicate_type_name"
	KindTraceFailed          Kind = "trace_failed"
	KindUnsupportedSignature Kind = "unsupported_signature"
	KindUnsupportedField     Kind = "unsupported_field"
	KindIO                   Kind = "io_error"
	KindOrdinalNotFound      Kind = "ordinal_not_found"
	KindBindingMissing       Kind = "binding_missing"
	KindMergeConflict        Kind = "merge_conflict"
	KindDecode               Kind = "decode_error"
	KindEncode               Kind = "encode_error"
	KindInvalidSchema        Kind = "invalid_schema"
	KindInvalidConfig        Kind = "invalid_config"
)

// Error is the structured error type used across the generator
type Error struct {
	Cause   error
	Stage   Stage
	Kind    Kind
	Subject string
	Detail  string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Stage))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Subject != "" {
		b.WriteByte(' ')
		b.WriteString(e.Subject)
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
// A target with an empty Stage matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Stage == "" {
		return e.Kind == t.Kind
	}
	return e.Stage == t.Stage && e.Kind == t.Kind
}

// Fatal reports whether the kind halts the pipeline.
func (k Kind) Fatal() bool {
	switch k {
	case KindUnsupportedSignature, KindUnsupportedField, KindOrdinalNotFound:
		return false
	}
	return true
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(stage Stage, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Stage: stage,
			Kind:  kind,
		},
	}
}

// Subject sets the offending identifier (type name, function key, path)
func (b *Builder) Subject(s string) *Builder {
	b.err.Subject = s
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

// Kind-only sentinels for use with errors.Is.
var (
	ErrParse                = &Error{Kind: KindParse}
	ErrDanglingID           = &Error{Kind: KindDanglingID}
	ErrDuplicateTypeName    = &Error{Kind: KindDuplicateTypeName}
	ErrTraceFailed          = &Error{Kind: KindTraceFailed}
	ErrUnsupportedSignature = &Error{Kind: KindUnsupportedSignature}
	ErrUnsupportedField     = &Error{Kind: KindUnsupportedField}
	ErrIO                   = &Error{Kind: KindIO}
	ErrOrdinalNotFound      = &Error{Kind: KindOrdinalNotFound}
	ErrBindingMissing       = &Error{Kind: KindBindingMissing}
	ErrMergeConflict        = &Error{Kind: KindMergeConflict}
	ErrDecode               = &Error{Kind: KindDecode}
	ErrEncode               = &Error{Kind: KindEncode}
	ErrInvalidSchema        = &Error{Kind: KindInvalidSchema}
	ErrInvalidConfig        = &Error{Kind: KindInvalidConfig}
)

// Convenience constructors for common error patterns

// Parse creates a malformed-input error
func Parse(subject string, cause error) *Error {
	return &Error{Stage: StageLoad, Kind: KindParse, Subject: subject, Cause: cause}
}

// DanglingID creates an error for an identifier that is referenced but not defined
func DanglingID(id uint32, context string) *Error {
	return &Error{
		Stage:   StageMerge,
		Kind:    KindDanglingID,
		Subject: fmt.Sprintf("id %d", id),
		Detail:  "referenced from " + context,
	}
}

// TraceFailed creates a trace failure for the named type
func TraceFailed(name, detail string) *Error {
	return &Error{Stage: StageTrace, Kind: KindTraceFailed, Subject: name, Detail: detail}
}

// IO wraps a filesystem failure
func IO(stage Stage, path string, cause error) *Error {
	return &Error{Stage: stage, Kind: KindIO, Subject: path, Cause: cause}
}

// Decode creates a wire decoding error
func Decode(detail string, args ...any) *Error {
	return New(StageWire, KindDecode).Detail(detail, args...).Build()
}

// BindingMissing creates the error surfaced when an ordinal has no invoker
func BindingMissing(ordinal uint32, key string) *Error {
	b := New(StageRuntime, KindBindingMissing).Subject(fmt.Sprintf("ordinal %d", ordinal))
	if key != "" {
		b.Detail("no invoker registered for %s", key)
	}
	return b.Build()
}
