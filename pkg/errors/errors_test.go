package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesClonesAndWraps(t *testing.T) {
	cloned := Clone(ErrTokenExpired, "access token expired")
	assert.True(t, stdErrors.Is(cloned, ErrTokenExpired))
	assert.False(t, stdErrors.Is(cloned, ErrUnauthenticated))

	wrapped := fmt.Errorf("redeem: %w", Clone(ErrTokenReused, ""))
	assert.True(t, stdErrors.Is(wrapped, ErrTokenReused))
}

func TestConfigurationErrorRendersAsForbidden(t *testing.T) {
	assert.Equal(t, ErrForbidden.Code, ErrConfiguration.Code)
	assert.Equal(t, ErrForbidden.Status, ErrConfiguration.Status)
	assert.Equal(t, ErrForbidden.Message, ErrConfiguration.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(stdErrors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Equal(t, ErrInternal.Code, appErr.Code)

	rate := FromError(ErrRateLimited)
	assert.Equal(t, http.StatusTooManyRequests, rate.Status)
	assert.Nil(t, FromError(nil))
}
