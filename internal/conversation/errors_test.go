// ABOUTME: Tests for the classified error type
// ABOUTME: Verifies kind preservation through wrapping and errors.As compatibility

package conversation

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternalError, KindOf(errors.New("plain")))
	assert.Equal(t, KindQuotaExceeded, KindOf(NewError(KindQuotaExceeded, "out of tokens")))

	// Kind survives fmt.Errorf wrapping.
	wrapped := fmt.Errorf("request failed: %w", NewError(KindRateLimitExceeded, "slow down"))
	assert.Equal(t, KindRateLimitExceeded, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindRateLimitExceeded))
}

func TestWrapError_PreservesExistingClassification(t *testing.T) {
	classified := NewError(KindAuthenticationFailed, "bad signature")

	err := WrapError(KindInternalError, classified, "backend chat failed")
	assert.Equal(t, KindAuthenticationFailed, err.Kind,
		"a more specific transport classification is never coerced to internal")

	plain := WrapError(KindInternalError, errors.New("boom"), "backend chat failed")
	assert.Equal(t, KindInternalError, plain.Kind)
	assert.ErrorContains(t, plain, "boom")
}
