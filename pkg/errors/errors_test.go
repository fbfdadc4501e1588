package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusUnprocessableEntity, "term %q is empty", "")

	assert.Equal(t, `invalid input: term "" is empty`, err.Error())
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.False(t, errors.Is(err, ErrTermNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatusCode(err))
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrTermNotFound, http.StatusNotFound},
		{fmt.Errorf("lookup: %w", ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("redis: %w", ErrStoreUnavailable), http.StatusServiceUnavailable},
		{ErrTimeout, http.StatusGatewayTimeout},
		{fmt.Errorf("redis get: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{ErrBlobCorruption, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestCorruption(t *testing.T) {
	assert.True(t, Corruption(fmt.Errorf("term cat: %w", ErrBlobCorruption)))
	assert.True(t, Corruption(ErrStoreCorruption))
	assert.True(t, Corruption(ErrInvariantViolation))
	assert.False(t, Corruption(ErrStoreUnavailable))
	assert.False(t, Corruption(nil))
}

func TestAppError_EmptyMessage(t *testing.T) {
	assert.Equal(t, "term not found", New(ErrTermNotFound, http.StatusNotFound, "").Error())
}
