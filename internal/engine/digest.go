package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medialib/activity-notifier/internal/models"
	"github.com/medialib/activity-notifier/internal/notification"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// RunDigest executes one digest run for a periodic frequency bucket. The
// window starts at lastSentAt (or a frequency default when no send has
// happened yet) and ends now; an empty window leaves lastSentAt untouched
// so the next run picks up exactly the events missed since the previous
// send. Per-frequency locking keeps overlapping triggers from
// double-counting the same window.
func (e *Engine) RunDigest(ctx context.Context, frequency models.Frequency) error {
	lock, ok := e.digestLocks[frequency]
	if !ok {
		return utils.NewAppError(utils.ErrCodeValidation, "Not a digest frequency", string(frequency))
	}

	if !lock.TryLock() {
		e.logger.WithField("frequency", frequency).Warn("Digest run already in flight, skipping")
		return nil
	}
	defer lock.Unlock()

	start := time.Now()

	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		e.recordDigestRun(frequency, "error", start, 0)
		return err
	}

	if !e.config.Enabled || !settings.Enabled || settings.Frequency != frequency {
		return nil
	}

	end := time.Now().UTC()
	windowStart := e.windowStart(settings, frequency, end)
	window := end.Sub(windowStart)

	filter := models.EventFilter{
		FromTime: &windowStart,
		ToTime:   &end,
		Limit:    e.config.DigestEventCap,
	}

	events, err := e.store.GetEvents(ctx, filter)
	if err != nil {
		e.recordDigestRun(frequency, "error", start, window)
		return err
	}

	if total, countErr := e.store.GetEventCount(ctx, models.EventFilter{FromTime: &windowStart, ToTime: &end}); countErr == nil {
		if dropped := total - int64(len(events)); dropped > 0 {
			e.logger.WithFields(logrus.Fields{
				"frequency": frequency,
				"dropped":   dropped,
				"cap":       e.config.DigestEventCap,
			}).Warn("Digest window exceeded event cap, excess events dropped from this run")
		}
	}

	if len(events) == 0 {
		e.recordDigestRun(frequency, "empty", start, window)
		return nil
	}

	groups := GroupByRule(events, settings)
	recipients := utils.DedupeRecipients(settings.Recipients)

	if len(groups) == 0 || len(recipients) == 0 {
		// Events existed but nothing is deliverable; consume the window
		// so the next run does not refetch the same events
		e.recordDigestRun(frequency, "empty", start, window)
		return e.advanceLastSent(ctx, settings, end)
	}

	now := time.Now().UTC()
	attemptedSet := make(map[string]struct{})
	var attempted []string

	for _, group := range groups {
		subject := ComposeDigestSubject(group.Rule, frequency, len(group.Events))
		textBody, htmlBody := ComposeDigestBody(group.Rule, group.Events, window, e.config.AdminURL)

		delivered := e.deliver(ctx, recipients, settings, &notification.Message{
			Subject:  subject,
			TextBody: textBody,
			HTMLBody: htmlBody,
			Priority: string(group.Rule.Priority),
			Mode:     "digest",
		}, now)

		for _, r := range delivered {
			key := utils.NormalizeRecipient(r)
			if _, seen := attemptedSet[key]; !seen {
				attemptedSet[key] = struct{}{}
				attempted = append(attempted, r)
			}
		}
	}

	matched := countMatchedEvents(groups)

	e.logger.WithFields(logrus.Fields{
		"frequency":  frequency,
		"events":     len(events),
		"matched":    matched,
		"groups":     len(groups),
		"recipients": len(attempted),
	}).Info("Digest run completed")

	if err := e.recordHistory(ctx, settings, attempted, matched, end); err != nil {
		e.recordDigestRun(frequency, "error", start, window)
		return err
	}

	e.recordDigestRun(frequency, "sent", start, window)
	return nil
}

// windowStart computes the beginning of the digest window: lastSentAt if
// set, else a frequency default, with overall width capped so a long
// quiet period cannot produce an unbounded window
func (e *Engine) windowStart(settings *models.NotificationSettings, frequency models.Frequency, end time.Time) time.Time {
	var start time.Time
	if settings.LastSentAt != nil {
		start = *settings.LastSentAt
	} else {
		start = end.Add(-frequency.DefaultWindow())
	}

	if e.config.MaxWindow > 0 && end.Sub(start) > e.config.MaxWindow {
		start = end.Add(-e.config.MaxWindow)
	}

	return start
}

// countMatchedEvents returns the number of distinct events appearing in
// at least one rule group
func countMatchedEvents(groups []RuleGroup) int {
	seen := make(map[string]struct{})
	for _, group := range groups {
		for _, event := range group.Events {
			seen[event.ID] = struct{}{}
		}
	}
	return len(seen)
}

func (e *Engine) recordDigestRun(frequency models.Frequency, outcome string, start time.Time, window time.Duration) {
	if e.metricsManager == nil {
		return
	}
	e.metricsManager.GetPrometheusMetrics().RecordDigestRun(
		string(frequency), outcome, time.Since(start), window)
}
