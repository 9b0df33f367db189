package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, Unauthorized},
		{http.StatusForbidden, Unauthorized},
		{http.StatusBadRequest, ValidationFailure},
		{http.StatusUnprocessableEntity, ValidationFailure},
		{http.StatusNotFound, NotFound},
		{http.StatusTooManyRequests, NetworkFailure},
		{http.StatusServiceUnavailable, NetworkFailure},
		{http.StatusInternalServerError, ServerFailure},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromStatus("toggle like", tt.status, "")
			assert.Equal(t, tt.want, KindOf(err))
		})
	}
}

func TestWrappedErrorKeepsKind(t *testing.T) {
	base := Network("fetch posts", context.DeadlineExceeded)
	wrapped := fmt.Errorf("load page 2: %w", base)

	assert.True(t, Is(wrapped, NetworkFailure))
	assert.True(t, Retryable(wrapped))
	assert.True(t, errors.Is(wrapped, context.DeadlineExceeded))
	assert.Contains(t, wrapped.Error(), "fetch posts: network failure")
}

func TestValidationIsNotRetryable(t *testing.T) {
	err := Validation("create comment", "content is empty")
	assert.True(t, Is(err, ValidationFailure))
	assert.False(t, Retryable(err))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
}
