package engine

import (
	"time"

	"github.com/medialib/activity-notifier/internal/models"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// Allow reports whether a notification may be sent to the recipient under
// the settings' throttle policy. It counts history entries within the last
// rolling hour whose recorded recipient set includes the recipient; once
// that count reaches MaxEmailsPerHour the recipient is throttled.
func Allow(recipient string, settings *models.NotificationSettings, now time.Time) bool {
	if !settings.Throttling.Enabled {
		return true
	}

	cutoff := now.Add(-time.Hour)
	key := utils.NormalizeRecipient(recipient)

	count := 0
	for i := range settings.History {
		entry := &settings.History[i]
		if entry.SentAt.Before(cutoff) || entry.SentAt.After(now) {
			continue
		}
		for _, id := range entry.RecipientIDs {
			if utils.NormalizeRecipient(id) == key {
				count++
				break
			}
		}
		if count >= settings.Throttling.MaxEmailsPerHour {
			return false
		}
	}

	return true
}
