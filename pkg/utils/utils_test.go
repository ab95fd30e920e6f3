package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestNormalizeRecipient(t *testing.T) {
	assert.Equal(t, "admin@example.com", NormalizeRecipient("  Admin@Example.COM "))
	assert.Equal(t, "", NormalizeRecipient("   "))
}

func TestDedupeRecipients(t *testing.T) {
	t.Run("Preserves Order", func(t *testing.T) {
		out := DedupeRecipients([]string{"b@example.com", "a@example.com", "b@example.com"})
		assert.Equal(t, []string{"b@example.com", "a@example.com"}, out)
	})

	t.Run("Case Insensitive", func(t *testing.T) {
		out := DedupeRecipients([]string{"A@example.com", "a@Example.com"})
		assert.Len(t, out, 1)
	})

	t.Run("Drops Blanks", func(t *testing.T) {
		out := DedupeRecipients([]string{"", "  ", "a@example.com"})
		assert.Equal(t, []string{"a@example.com"}, out)
	})
}

func TestAppError(t *testing.T) {
	err := NewAppError(ErrCodeValidation, "Invalid rule", "name is required")
	require.Error(t, err)

	assert.Equal(t, ErrCodeValidation, err.Code)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
	assert.Contains(t, err.Error(), "name is required")
	assert.NotEmpty(t, err.File)
	assert.NotZero(t, err.Line)

	bare := NewAppError(ErrCodeNotFound, "Rule not found")
	assert.Equal(t, "NOT_FOUND: Rule not found", bare.Error())
}
