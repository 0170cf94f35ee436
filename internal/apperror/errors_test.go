package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	err := Conflict("already actively boosted")
	wrapped := fmt.Errorf("create order: %w", err)

	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindConflict, From(wrapped).Kind)
}

func TestNew_StatusAndCode(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
		code   string
	}{
		{Validation("x"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{Forbidden("x"), http.StatusForbidden, "FORBIDDEN"},
		{NotFound("x"), http.StatusNotFound, "NOT_FOUND"},
		{InvalidState("x"), http.StatusConflict, "INVALID_STATE"},
		{PaymentFailed("x", nil), http.StatusBadGateway, "PAYMENT_FAILED"},
		{PaymentTimeout("x", nil), http.StatusGatewayTimeout, "PAYMENT_TIMEOUT"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.err.StatusCode)
		assert.Equal(t, tc.code, tc.err.Code)
	}
}

func TestFrom_UnknownErrorBecomesInternal(t *testing.T) {
	cause := errors.New("connection reset")
	got := From(fmt.Errorf("list orders: %w", cause))

	assert.Equal(t, KindInternal, got.Kind)
	assert.Equal(t, "internal server error", got.PublicError)
	assert.Contains(t, got.InternalError, "connection reset")
	assert.True(t, errors.Is(got, cause))
}
