package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSlotToken(t *testing.T) {
	a, err := GenerateSlotToken(10)
	require.NoError(t, err)
	b, err := GenerateSlotToken(10)
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.Regexp(t, regexp.MustCompile(`^[a-z2-7]+$`), a)
	assert.NotEqual(t, a, b)
}

func TestErrorResponse(t *testing.T) {
	r := ErrorResponse("Invalid input", "scans must be a non-empty array")
	assert.False(t, r.Success)
	assert.Equal(t, "Invalid input", r.Message)
	assert.False(t, r.Timestamp.IsZero())
}
