package engine

import (
	"context"
	"errors"
	"time"

	"github.com/medialib/activity-notifier/internal/models"
	"github.com/medialib/activity-notifier/internal/storage"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// settingsSaveRetries bounds reload-and-retry attempts when a settings
// save loses an optimistic-concurrency race
const settingsSaveRetries = 3

// mutateSettings applies mutate to the aggregate and saves it, reloading
// and re-applying on version conflict. The returned settings reflect the
// persisted state.
func (e *Engine) mutateSettings(ctx context.Context, settings *models.NotificationSettings, mutate func(*models.NotificationSettings)) (*models.NotificationSettings, error) {
	for attempt := 0; attempt < settingsSaveRetries; attempt++ {
		mutate(settings)

		err := e.store.SaveSettings(ctx, settings)
		if err == nil {
			return settings, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return nil, err
		}

		fresh, loadErr := e.store.GetSettings(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		settings = fresh
	}

	return nil, utils.NewAppError(utils.ErrCodeConflict,
		"Settings save kept conflicting; giving up", "")
}

// recordHistory appends one history entry, applies the retention policy,
// and advances lastSentAt. Called exactly once per dispatch or digest run.
func (e *Engine) recordHistory(ctx context.Context, settings *models.NotificationSettings, recipientIDs []string, activityCount int, sentAt time.Time) error {
	entry := models.HistoryEntry{
		ID:             utils.GenerateID(),
		SentAt:         sentAt,
		RecipientCount: len(recipientIDs),
		ActivityCount:  activityCount,
		RecipientIDs:   recipientIDs,
	}

	_, err := e.mutateSettings(ctx, settings, func(s *models.NotificationSettings) {
		s.History = append(s.History, entry)
		if retention := e.config.HistoryRetention; retention > 0 && len(s.History) > retention {
			s.History = s.History[len(s.History)-retention:]
		}
		ts := sentAt
		s.LastSentAt = &ts
	})
	return err
}

// advanceLastSent moves lastSentAt forward without appending a history
// entry. Used when a digest window contained events but none matched any
// rule, so the window is consumed without a send.
func (e *Engine) advanceLastSent(ctx context.Context, settings *models.NotificationSettings, to time.Time) error {
	_, err := e.mutateSettings(ctx, settings, func(s *models.NotificationSettings) {
		ts := to
		s.LastSentAt = &ts
	})
	return err
}
