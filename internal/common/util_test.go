package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRandByteArray_LengthAndEntropy(t *testing.T) {
	a := GenerateRandByteArray(16)
	b := GenerateRandByteArray(16)
	require.Len(t, a, 16)
	require.Len(t, b, 16)
	assert.NotEqual(t, a, b, "two 16-byte draws should not collide")
}

func TestWipeByteArray(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	assert.Equal(t, make([]byte, 5), buf)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}

func TestSentinels_MatchThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("upload: %w", fmt.Errorf("ledger: %w", ErrQuotaExceeded))
	assert.True(t, errors.Is(wrapped, ErrQuotaExceeded))
	assert.False(t, errors.Is(wrapped, ErrForbidden))
}
