// Package failure defines the closed set of typed failures returned by
// repositories and the mapping from arbitrary errors into that set.
package failure

import (
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Kind identifies one of the closed set of failure categories.
type Kind int

const (
	KindUnexpected Kind = iota
	KindNetwork
	KindServer
	KindValidation
	KindAuth
	KindNotFound
	KindForbidden
	KindConflict
	KindRateLimit
	KindCache
)

var kindNames = map[Kind]string{
	KindUnexpected: "unexpected",
	KindNetwork:    "network",
	KindServer:     "server",
	KindValidation: "validation",
	KindAuth:       "auth",
	KindNotFound:   "not_found",
	KindForbidden:  "forbidden",
	KindConflict:   "conflict",
	KindRateLimit:  "rate_limit",
	KindCache:      "cache",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Retryable reports whether failures of this kind may succeed when attempted again.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindServer, KindCache, KindRateLimit:
		return true
	case KindValidation, KindAuth, KindNotFound, KindForbidden, KindConflict, KindUnexpected:
		return false
	default:
		return false
	}
}

// Category returns the go-errors category closest to the kind.
func (k Kind) Category() goerrors.Category {
	switch k {
	case KindNetwork:
		return goerrors.CategoryExternal
	case KindServer:
		return goerrors.CategoryExternal.Extend("server")
	case KindValidation:
		return goerrors.CategoryValidation
	case KindAuth:
		return goerrors.CategoryAuth
	case KindNotFound:
		return goerrors.CategoryNotFound
	case KindForbidden:
		return goerrors.CategoryAuthz
	case KindConflict:
		return goerrors.CategoryConflict
	case KindRateLimit:
		return goerrors.CategoryRateLimit
	case KindCache:
		return goerrors.CategoryOperation.Extend("cache")
	default:
		return goerrors.CategoryInternal
	}
}

// Failure is a typed description of an expected error condition.
// Values are treated as immutable once constructed.
type Failure struct {
	Kind        Kind
	Message     string
	Code        string
	Context     map[string]any
	FieldErrors map[string][]string
	Cause       error
}

// Option customizes a Failure at construction time.
type Option func(*Failure)

// WithCode sets the failure code.
func WithCode(code string) Option {
	return func(f *Failure) {
		f.Code = code
	}
}

// WithContext merges the provided values into the failure context.
func WithContext(ctx map[string]any) Option {
	return func(f *Failure) {
		if len(ctx) == 0 {
			return
		}
		if f.Context == nil {
			f.Context = make(map[string]any, len(ctx))
		}
		maps.Copy(f.Context, ctx)
	}
}

// WithCause records the error the failure was derived from.
func WithCause(err error) Option {
	return func(f *Failure) {
		f.Cause = err
	}
}

// WithFieldErrors attaches per-field validation messages.
func WithFieldErrors(fields map[string][]string) Option {
	return func(f *Failure) {
		if len(fields) == 0 {
			return
		}
		f.FieldErrors = make(map[string][]string, len(fields))
		for field, msgs := range fields {
			f.FieldErrors[field] = append([]string(nil), msgs...)
		}
	}
}

// New builds a failure of the given kind.
func New(kind Kind, message string, opts ...Option) *Failure {
	f := &Failure{Kind: kind, Message: message}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func Network(message string, opts ...Option) *Failure {
	return New(KindNetwork, message, opts...)
}

func Server(message string, opts ...Option) *Failure {
	return New(KindServer, message, opts...)
}

// Validation builds a validation failure carrying field level messages.
func Validation(message string, fields map[string][]string, opts ...Option) *Failure {
	return New(KindValidation, message, append([]Option{WithFieldErrors(fields)}, opts...)...)
}

func Auth(message string, opts ...Option) *Failure {
	return New(KindAuth, message, opts...)
}

func NotFound(message string, opts ...Option) *Failure {
	return New(KindNotFound, message, opts...)
}

func Forbidden(message string, opts ...Option) *Failure {
	return New(KindForbidden, message, opts...)
}

func Conflict(message string, opts ...Option) *Failure {
	return New(KindConflict, message, opts...)
}

func RateLimit(message string, opts ...Option) *Failure {
	return New(KindRateLimit, message, opts...)
}

func Cache(message string, opts ...Option) *Failure {
	return New(KindCache, message, opts...)
}

func Unexpected(message string, opts ...Option) *Failure {
	return New(KindUnexpected, message, opts...)
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(f.Kind.String())
	if f.Code != "" {
		b.WriteString(":")
		b.WriteString(f.Code)
	}
	b.WriteString("] ")
	b.WriteString(f.Message)

	if len(f.FieldErrors) > 0 {
		fields := make([]string, 0, len(f.FieldErrors))
		for field := range f.FieldErrors {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		parts := make([]string, 0, len(fields))
		for _, field := range fields {
			parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(f.FieldErrors[field], ", ")))
		}
		b.WriteString("; validation: ")
		b.WriteString(strings.Join(parts, "; "))
	}
	return b.String()
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Is matches another *Failure with the same kind and, when set, the same code.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok || t == nil {
		return false
	}
	if t.Kind != f.Kind {
		return false
	}
	return t.Code == "" || t.Code == f.Code
}

// Retryable reports whether the caller may offer a retry action.
func (f *Failure) Retryable() bool {
	return f.Kind.Retryable()
}

// WithContext returns a copy of the failure with ctx merged into its context.
func (f *Failure) WithContext(ctx map[string]any) *Failure {
	clone := *f
	if f.Context != nil {
		clone.Context = maps.Clone(f.Context)
	}
	WithContext(ctx)(&clone)
	return &clone
}

// ToError renders the failure as a go-errors rich error.
func (f *Failure) ToError() *goerrors.Error {
	err := goerrors.New(f.Message, f.Kind.Category())
	err.Source = f.Cause

	if f.Code != "" {
		if status, convErr := strconv.Atoi(f.Code); convErr == nil {
			err.WithCode(status)
		} else {
			err.WithTextCode(f.Code)
		}
	}
	if len(f.Context) > 0 {
		err.WithMetadata(f.Context)
	}
	for field, msgs := range f.FieldErrors {
		for _, msg := range msgs {
			err.ValidationErrors = append(err.ValidationErrors, goerrors.FieldError{Field: field, Message: msg})
		}
	}
	if !f.Retryable() {
		err.WithSeverity(goerrors.SeverityWarning)
	}
	return err
}

// LogAttrs returns structured logging attributes describing the failure.
func (f *Failure) LogAttrs() []any {
	attrs := []any{
		slog.String("failure_kind", f.Kind.String()),
		slog.Bool("retryable", f.Retryable()),
	}
	for _, attr := range goerrors.ToSlogAttributes(f.ToError()) {
		attrs = append(attrs, attr)
	}
	return attrs
}

// IsKind reports whether err carries a Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Failure
	if goerrors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}
