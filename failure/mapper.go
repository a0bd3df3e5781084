package failure

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// Codes assigned by MapError when the source error carries none.
const (
	CodeTimeout         = "TIMEOUT"
	CodeCanceled        = "CANCELED"
	CodeConnectionError = "CONNECTION_ERROR"
	CodeParseError      = "PARSE_ERROR"
)

// StatusCoder is implemented by transport errors exposing an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// MapError classifies err into exactly one Failure kind. It never panics;
// a nil error maps to nil. The original message is kept and err is
// recorded as the failure cause.
func MapError(err error, ctx map[string]any) *Failure {
	if err == nil {
		return nil
	}

	var existing *Failure
	if errors.As(err, &existing) && existing != nil {
		if len(ctx) == 0 {
			return existing
		}
		return existing.WithContext(ctx)
	}

	f := classify(err)
	f.Cause = err
	WithContext(ctx)(f)
	return f
}

func classify(err error) *Failure {
	msg := err.Error()

	var retryable *goerrors.RetryableError
	if errors.As(err, &retryable) && retryable.BaseError != nil {
		return fromRichError(retryable.BaseError)
	}

	var rich *goerrors.Error
	if errors.As(err, &rich) && rich != nil {
		return fromRichError(rich)
	}

	var ozzoErrs validation.Errors
	if errors.As(err, &ozzoErrs) {
		return Validation(msg, fieldErrorsFromOzzo(ozzoErrs))
	}

	if isTimeout(err) {
		return Network(msg, WithCode(CodeTimeout))
	}

	if errors.Is(err, context.Canceled) {
		return Unexpected(msg, WithCode(CodeCanceled))
	}

	if isConnectionError(err) {
		return Network(msg, WithCode(CodeConnectionError))
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return fromStatus(msg, sc.StatusCode())
	}

	if errors.Is(err, sql.ErrNoRows) {
		return NotFound(msg)
	}

	if isParseError(err) {
		return Server(msg, WithCode(CodeParseError))
	}

	if mapped := goerrors.MapAuthErrors(err); mapped != nil {
		f := fromRichError(mapped)
		f.Message = msg
		return f
	}

	return Unexpected(msg)
}

func fromRichError(e *goerrors.Error) *Failure {
	kind := kindFromCategory(e.Category, e.Code)

	var opts []Option
	switch {
	case e.TextCode != "":
		opts = append(opts, WithCode(e.TextCode))
	case e.Code != 0:
		opts = append(opts, WithCode(strconv.Itoa(e.Code)))
	}
	if len(e.Metadata) > 0 {
		opts = append(opts, WithContext(e.Metadata))
	}

	if fieldErrs := e.AllValidationErrors(); len(fieldErrs) > 0 {
		fields := make(map[string][]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field] = append(fields[fe.Field], fe.Message)
		}
		opts = append(opts, WithFieldErrors(fields))
	}

	return New(kind, e.Message, opts...)
}

func kindFromCategory(category goerrors.Category, code int) Kind {
	for kind := range kindNames {
		if kind != KindUnexpected && kind.Category() == category {
			return kind
		}
	}

	if category == goerrors.CategoryBadInput || category == goerrors.CategoryMethodNotAllowed {
		return KindValidation
	}
	if code >= http.StatusInternalServerError {
		return KindServer
	}
	return KindUnexpected
}

func fromStatus(msg string, status int) *Failure {
	opts := []Option{
		WithCode(strconv.Itoa(status)),
		WithContext(map[string]any{
			"status_code": status,
			"text_code":   goerrors.HTTPStatusToTextCode(status),
		}),
	}

	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return New(KindValidation, msg, opts...)
	case status == http.StatusUnauthorized:
		return New(KindAuth, msg, opts...)
	case status == http.StatusForbidden:
		return New(KindForbidden, msg, opts...)
	case status == http.StatusNotFound:
		return New(KindNotFound, msg, opts...)
	case status == http.StatusConflict:
		return New(KindConflict, msg, opts...)
	case status == http.StatusTooManyRequests:
		return New(KindRateLimit, msg, opts...)
	case status >= 400 && status < 500:
		return New(KindValidation, msg, opts...)
	case status >= 500:
		return New(KindServer, msg, opts...)
	default:
		return New(KindUnexpected, msg, opts...)
	}
}

func fieldErrorsFromOzzo(errs validation.Errors) map[string][]string {
	fields := make(map[string][]string, len(errs))
	for field, fieldErr := range errs {
		if fieldErr == nil {
			continue
		}
		if nested, ok := fieldErr.(validation.Errors); ok {
			for name, msgs := range fieldErrorsFromOzzo(nested) {
				fields[field+"."+name] = msgs
			}
			continue
		}
		fields[field] = append(fields[field], strings.TrimSpace(fieldErr.Error()))
	}
	return fields
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnectionError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func isParseError(err error) bool {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return true
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return true
	}
	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return true
	}
	return strings.HasPrefix(err.Error(), "msgpack: ")
}
