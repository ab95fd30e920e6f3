package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/medialib/activity-notifier/internal/models"
)

func throttleSettings(maxPerHour int, entries ...models.HistoryEntry) *models.NotificationSettings {
	return &models.NotificationSettings{
		Enabled: true,
		Throttling: models.ThrottleConfig{
			Enabled:          true,
			MaxEmailsPerHour: maxPerHour,
		},
		History: entries,
	}
}

func TestThrottleAllow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	entry := func(sentAt time.Time, recipients ...string) models.HistoryEntry {
		return models.HistoryEntry{SentAt: sentAt, RecipientIDs: recipients}
	}

	t.Run("Disabled Throttling Always Allows", func(t *testing.T) {
		settings := throttleSettings(1,
			entry(now, "admin@example.com"),
			entry(now, "admin@example.com"),
		)
		settings.Throttling.Enabled = false
		assert.True(t, Allow("admin@example.com", settings, now))
	})

	t.Run("Under Limit", func(t *testing.T) {
		settings := throttleSettings(3,
			entry(now.Add(-10*time.Minute), "admin@example.com"),
			entry(now.Add(-20*time.Minute), "admin@example.com"),
		)
		assert.True(t, Allow("admin@example.com", settings, now))
	})

	t.Run("At Limit", func(t *testing.T) {
		settings := throttleSettings(2,
			entry(now.Add(-10*time.Minute), "admin@example.com"),
			entry(now.Add(-20*time.Minute), "admin@example.com"),
		)
		assert.False(t, Allow("admin@example.com", settings, now))
	})

	t.Run("Old Entries Roll Off", func(t *testing.T) {
		settings := throttleSettings(2,
			entry(now.Add(-61*time.Minute), "admin@example.com"),
			entry(now.Add(-2*time.Hour), "admin@example.com"),
			entry(now.Add(-30*time.Minute), "admin@example.com"),
		)
		assert.True(t, Allow("admin@example.com", settings, now))
	})

	t.Run("Per Recipient Counting", func(t *testing.T) {
		settings := throttleSettings(2,
			entry(now.Add(-5*time.Minute), "a@example.com", "b@example.com"),
			entry(now.Add(-15*time.Minute), "a@example.com"),
		)
		assert.False(t, Allow("a@example.com", settings, now))
		assert.True(t, Allow("b@example.com", settings, now))
	})

	t.Run("Recipient Matching Is Case Insensitive", func(t *testing.T) {
		settings := throttleSettings(1,
			entry(now.Add(-5*time.Minute), "Admin@Example.com"),
		)
		assert.False(t, Allow("admin@example.com", settings, now))
	})
}
