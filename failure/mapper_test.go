package failure

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"syscall"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusError struct {
	status int
}

func (e statusError) Error() string   { return fmt.Sprintf("http status %d", e.status) }
func (e statusError) StatusCode() int { return e.status }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil, nil))
}

func TestMapError_Classification(t *testing.T) {
	_, numErr := strconv.Atoi("abc")
	var syntaxErr error = &json.SyntaxError{Offset: 3}

	tests := []struct {
		name     string
		err      error
		wantKind Kind
		wantCode string
	}{
		{"deadline", context.DeadlineExceeded, KindNetwork, CodeTimeout},
		{"wrapped deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), KindNetwork, CodeTimeout},
		{"net timeout", timeoutError{}, KindNetwork, CodeTimeout},
		{"canceled", context.Canceled, KindUnexpected, CodeCanceled},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, KindNetwork, CodeConnectionError},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.local"}, KindNetwork, CodeConnectionError},
		{"url", &url.Error{Op: "Get", URL: "http://api", Err: errors.New("refused")}, KindNetwork, CodeConnectionError},
		{"unexpected eof", io.ErrUnexpectedEOF, KindNetwork, CodeConnectionError},
		{"400", statusError{400}, KindValidation, "400"},
		{"401", statusError{401}, KindAuth, "401"},
		{"403", statusError{403}, KindForbidden, "403"},
		{"404", statusError{404}, KindNotFound, "404"},
		{"409", statusError{409}, KindConflict, "409"},
		{"418", statusError{418}, KindValidation, "418"},
		{"422", statusError{422}, KindValidation, "422"},
		{"429", statusError{429}, KindRateLimit, "429"},
		{"500", statusError{500}, KindServer, "500"},
		{"503", statusError{503}, KindServer, "503"},
		{"no rows", sql.ErrNoRows, KindNotFound, ""},
		{"json syntax", syntaxErr, KindServer, CodeParseError},
		{"number", numErr, KindServer, CodeParseError},
		{"msgpack", errors.New("msgpack: invalid code=c1 decoding string"), KindServer, CodeParseError},
		{"auth message", errors.New("token expired"), KindAuth, goerrors.TextCodeTokenExpired},
		{"forbidden message", errors.New("access forbidden"), KindForbidden, "FORBIDDEN"},
		{"unknown", errors.New("something odd"), KindUnexpected, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := MapError(tt.err, nil)
			require.NotNil(t, f)
			assert.Equal(t, tt.wantKind, f.Kind, "kind for %v", tt.err)
			assert.Equal(t, tt.wantCode, f.Code)
			assert.Equal(t, tt.err.Error(), f.Message)
			assert.Equal(t, tt.err, f.Cause)
		})
	}
}

func TestMapError_StatusContext(t *testing.T) {
	f := MapError(statusError{404}, map[string]any{"operation": "GetByID"})
	require.NotNil(t, f)

	assert.Equal(t, 404, f.Context["status_code"])
	assert.Equal(t, "NOT_FOUND", f.Context["text_code"])
	assert.Equal(t, "GetByID", f.Context["operation"])
}

func TestMapError_ExistingFailure(t *testing.T) {
	original := Conflict("duplicate key")

	assert.Same(t, original, MapError(original, nil))
	assert.Same(t, original, MapError(fmt.Errorf("create: %w", original), nil))

	enriched := MapError(original, map[string]any{"tier": "local"})
	assert.NotSame(t, original, enriched)
	assert.Equal(t, KindConflict, enriched.Kind)
	assert.Equal(t, "local", enriched.Context["tier"])
	assert.Nil(t, original.Context)
}

func TestMapError_RichErrors(t *testing.T) {
	notFound := goerrors.New("record not found", goerrors.CategoryNotFound).WithCode(404)
	f := MapError(notFound, nil)
	assert.Equal(t, KindNotFound, f.Kind)
	assert.Equal(t, "404", f.Code)
	assert.Equal(t, "record not found", f.Message)

	withText := goerrors.New("limit", goerrors.CategoryRateLimit).WithTextCode("TOO_MANY")
	assert.Equal(t, "TOO_MANY", MapError(withText, nil).Code)

	internal := goerrors.New("db exploded", goerrors.CategoryInternal).WithCode(503)
	assert.Equal(t, KindServer, MapError(internal, nil).Kind)

	plainInternal := goerrors.New("bug", goerrors.CategoryInternal)
	assert.Equal(t, KindUnexpected, MapError(plainInternal, nil).Kind)

	retryable := goerrors.NewRetryableExternal("payments down")
	assert.Equal(t, KindNetwork, MapError(retryable, nil).Kind)

	invalid := goerrors.NewValidation("invalid",
		goerrors.FieldError{Field: "name", Message: "cannot be blank"},
		goerrors.FieldError{Field: "name", Message: "too short"},
	)
	vf := MapError(invalid, nil)
	assert.Equal(t, KindValidation, vf.Kind)
	assert.Equal(t, []string{"cannot be blank", "too short"}, vf.FieldErrors["name"])
}

func TestMapError_RoundTripsThroughToError(t *testing.T) {
	for kind := range kindNames {
		original := New(kind, "message")
		mapped := MapError(original.ToError(), nil)
		assert.Equal(t, kind, mapped.Kind, "kind %s", kind)
	}
}

func TestMapError_OzzoValidation(t *testing.T) {
	type query struct {
		Page     int `json:"page"`
		PageSize int `json:"page_size"`
	}
	q := query{Page: -1, PageSize: 0}
	err := validation.ValidateStruct(&q,
		validation.Field(&q.Page, validation.Min(1)),
		validation.Field(&q.PageSize, validation.Required),
	)
	require.Error(t, err)

	f := MapError(err, nil)
	assert.Equal(t, KindValidation, f.Kind)
	assert.Equal(t, []string{"must be no less than 1"}, f.FieldErrors["page"])
	assert.Equal(t, []string{"cannot be blank"}, f.FieldErrors["page_size"])
}
