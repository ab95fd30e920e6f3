package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateID generates a random unique identifier
func GenerateID() string {
	return uuid.NewString()
}

// NormalizeRecipient normalizes a recipient identity for comparison
func NormalizeRecipient(recipient string) string {
	return strings.ToLower(strings.TrimSpace(recipient))
}

// DedupeRecipients removes duplicate recipients while preserving order
func DedupeRecipients(recipients []string) []string {
	seen := make(map[string]struct{}, len(recipients))
	result := make([]string, 0, len(recipients))

	for _, r := range recipients {
		key := NormalizeRecipient(r)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, r)
	}

	return result
}
