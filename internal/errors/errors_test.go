package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/kol-dashboard/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{
			name:       "categorized passes through",
			err:        NewNotFoundError("wallet", "abc"),
			wantCode:   "NOT_FOUND",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "wrapped categorized is unwrapped",
			err:        fmt.Errorf("refresh: %w", NewProviderError("helius", stderrors.New("boom"))),
			wantCode:   "PROVIDER_ERROR",
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "service error conflict",
			err:        &types.ServiceError{Code: "CYCLE_IN_PROGRESS", Message: "busy"},
			wantCode:   "CYCLE_IN_PROGRESS",
			wantStatus: http.StatusConflict,
		},
		{
			name:       "plain error is internal",
			err:        stderrors.New("unexpected"),
			wantCode:   "INTERNAL_ERROR",
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, got.StatusCode)
		})
	}

	assert.Nil(t, Categorize(nil))
}

func TestWrapProviderTransport(t *testing.T) {
	timeout := WrapProviderTransport("dexscreener", fmt.Errorf("get: %w", context.DeadlineExceeded))
	assert.Equal(t, "PROVIDER_TIMEOUT", timeout.Code)
	assert.True(t, stderrors.Is(timeout, context.DeadlineExceeded))

	generic := WrapProviderTransport("helius", stderrors.New("connection refused"))
	assert.Equal(t, "PROVIDER_ERROR", generic.Code)
	assert.True(t, IsProviderError(generic))

	assert.Nil(t, WrapProviderTransport("helius", nil))
}

func TestNewProviderStatusError(t *testing.T) {
	assert.Equal(t, "PROVIDER_RATE_LIMIT", NewProviderStatusError("birdeye", http.StatusTooManyRequests, "").Code)

	err := NewProviderStatusError("helius", http.StatusInternalServerError, "oops")
	assert.Equal(t, "PROVIDER_ERROR", err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Details["status"])
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewProviderError("helius", stderrors.New("reset"))))
	assert.True(t, IsRetryable(NewProviderRateLimitError("dexscreener")))
	assert.True(t, IsRetryable(NewProviderStatusError("helius", http.StatusBadGateway, "")))
	assert.False(t, IsRetryable(NewProviderStatusError("helius", http.StatusUnauthorized, "")))
	assert.False(t, IsRetryable(NewProviderBadResponseError("helius", stderrors.New("eof"))))
	assert.False(t, IsRetryable(NewNotFoundError("wallet", "x")))
	assert.False(t, IsRetryable(nil))
}

func TestIsUserError(t *testing.T) {
	assert.True(t, IsUserError(NewInvalidParameterError("range", "unknown")))
	assert.False(t, IsUserError(NewDatabaseError("list wallets", stderrors.New("down"))))
}
