package failure

import (
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_Retryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindNetwork, true},
		{KindServer, true},
		{KindCache, true},
		{KindRateLimit, true},
		{KindValidation, false},
		{KindAuth, false},
		{KindNotFound, false},
		{KindForbidden, false},
		{KindConflict, false},
		{KindUnexpected, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Retryable())
			assert.Equal(t, tt.want, New(tt.kind, "boom").Retryable())
		})
	}
}

func TestFailure_Error(t *testing.T) {
	f := Validation("invalid user", map[string][]string{
		"name":  {"cannot be blank"},
		"email": {"must be a valid email", "is taken"},
	}, WithCode("USER_INVALID"))

	assert.Equal(t,
		"[validation:USER_INVALID] invalid user; validation: email: must be a valid email, is taken; name: cannot be blank",
		f.Error(),
	)
	assert.Equal(t, "[not_found] missing", NotFound("missing").Error())
}

func TestWithFieldErrors_CopiesInput(t *testing.T) {
	fields := map[string][]string{"name": {"required"}}
	f := Validation("bad", fields)

	fields["name"][0] = "mutated"
	fields["age"] = []string{"added"}

	assert.Equal(t, []string{"required"}, f.FieldErrors["name"])
	assert.NotContains(t, f.FieldErrors, "age")
}

func TestFailure_Is(t *testing.T) {
	err := NotFound("user 7", WithCode("USER_MISSING"))

	assert.True(t, errors.Is(err, &Failure{Kind: KindNotFound}))
	assert.True(t, errors.Is(err, &Failure{Kind: KindNotFound, Code: "USER_MISSING"}))
	assert.False(t, errors.Is(err, &Failure{Kind: KindNotFound, Code: "OTHER"}))
	assert.False(t, errors.Is(err, &Failure{Kind: KindConflict}))
	assert.True(t, IsKind(err, KindNotFound))
	assert.False(t, IsKind(errors.New("plain"), KindNotFound))
}

func TestFailure_WithContextDoesNotMutateOriginal(t *testing.T) {
	original := Server("upstream", WithContext(map[string]any{"attempt": 1}))
	enriched := original.WithContext(map[string]any{"operation": "GetByID"})

	assert.Equal(t, map[string]any{"attempt": 1}, original.Context)
	assert.Equal(t, map[string]any{"attempt": 1, "operation": "GetByID"}, enriched.Context)
	assert.NotSame(t, original, enriched)
}

func TestFailure_ToError(t *testing.T) {
	cause := errors.New("socket closed")
	f := Validation("bad input", map[string][]string{"page": {"must be no less than 1"}},
		WithCode("422"),
		WithCause(cause),
		WithContext(map[string]any{"operation": "GetAll"}),
	)

	rich := f.ToError()
	require.NotNil(t, rich)
	assert.Equal(t, goerrors.CategoryValidation, rich.Category)
	assert.Equal(t, 422, rich.Code)
	assert.Equal(t, "bad input", rich.Message)
	assert.Same(t, cause, rich.Source)
	assert.Equal(t, "GetAll", rich.Metadata["operation"])
	require.Len(t, rich.ValidationErrors, 1)
	assert.Equal(t, "page", rich.ValidationErrors[0].Field)
	assert.Equal(t, goerrors.SeverityWarning, rich.Severity)

	textCoded := Network("timeout", WithCode(CodeTimeout)).ToError()
	assert.Equal(t, CodeTimeout, textCoded.TextCode)
	assert.Equal(t, goerrors.SeverityError, textCoded.Severity)
}

func TestFailure_LogAttrs(t *testing.T) {
	attrs := RateLimit("slow down", WithCode("429")).LogAttrs()
	require.NotEmpty(t, attrs)

	var keys []string
	for _, attr := range attrs {
		if a, ok := attr.(interface{ String() string }); ok {
			keys = append(keys, a.String())
		}
	}
	assert.Contains(t, keys, "failure_kind=rate_limit")
	assert.Contains(t, keys, "retryable=true")
	assert.Contains(t, keys, "error_code=429")
}
