package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medialib/activity-notifier/internal/models"
	"github.com/medialib/activity-notifier/internal/notification"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// OnActivity runs the immediate dispatch path for a single event. It is a
// no-op unless settings are enabled with immediate frequency and an
// enabled rule matches. Per-recipient delivery failures are logged and do
// not abort delivery to remaining recipients.
func (e *Engine) OnActivity(ctx context.Context, event *models.ActivityEvent) error {
	if !e.config.Enabled {
		return nil
	}

	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		return err
	}

	if !settings.Enabled {
		e.recordEvaluation("disabled")
		return nil
	}
	if settings.Frequency != models.FrequencyImmediate {
		return nil
	}

	rule := Evaluate(event, settings)
	if rule == nil {
		e.recordEvaluation("no_match")
		return nil
	}
	e.recordEvaluation("match")

	recipients := utils.DedupeRecipients(settings.Recipients)
	if len(recipients) == 0 {
		e.logger.WithField("rule", rule.Name).Debug("No resolvable recipients, skipping notification")
		return nil
	}

	now := time.Now().UTC()
	subject := ComposeSubject(rule, event)
	textBody, htmlBody := ComposeBody(rule, event, e.config.AdminURL)

	attempted := e.deliver(ctx, recipients, settings, &notification.Message{
		Subject:  subject,
		TextBody: textBody,
		HTMLBody: htmlBody,
		Priority: string(rule.Priority),
		Mode:     "immediate",
	}, now)

	// One history entry per dispatch, throttled recipients excluded from
	// the recorded set
	return e.recordHistory(ctx, settings, attempted, 1, now)
}

// SendTestNotification runs the immediate path against a synthetic event
// without requiring a real activity. Frequency gating is bypassed;
// throttling still applies.
func (e *Engine) SendTestNotification(ctx context.Context) error {
	settings, err := e.store.GetSettings(ctx)
	if err != nil {
		return err
	}

	if !settings.Enabled {
		return utils.NewAppError(utils.ErrCodeValidation, "Notifications are disabled", "")
	}

	recipients := utils.DedupeRecipients(settings.Recipients)
	if len(recipients) == 0 {
		return utils.NewAppError(utils.ErrCodeValidation, "No recipients configured", "")
	}

	now := time.Now().UTC()
	event := &models.ActivityEvent{
		ID:            utils.GenerateID(),
		ActionType:    models.ActionCreate,
		ResourceType:  models.ResourceSystem,
		ActorID:       "system",
		ActorUsername: "system",
		ActorRole:     "admin",
		Details:       "This is a test notification. If you received it, notification delivery is working.",
		Timestamp:     now,
	}

	rule := &models.NotificationRule{
		Name:            "Test Notification",
		Enabled:         true,
		IncludeDetails:  true,
		Priority:        models.PriorityNormal,
		SubjectTemplate: "[Media Library] Test notification",
	}

	subject := ComposeSubject(rule, event)
	textBody, htmlBody := ComposeBody(rule, event, e.config.AdminURL)

	attempted := e.deliver(ctx, recipients, settings, &notification.Message{
		Subject:  subject,
		TextBody: textBody,
		HTMLBody: htmlBody,
		Priority: string(rule.Priority),
		Mode:     "test",
	}, now)

	return e.recordHistory(ctx, settings, attempted, 1, now)
}

// deliver sends the message to each recipient in stored order, applying
// throttling per recipient. It returns the recipients that were actually
// attempted (delivery failures included, throttled recipients excluded).
func (e *Engine) deliver(ctx context.Context, recipients []string, settings *models.NotificationSettings, msg *notification.Message, now time.Time) []string {
	attempted := make([]string, 0, len(recipients))

	for _, recipient := range recipients {
		if !Allow(recipient, settings, now) {
			e.recordThrottled()
			e.logger.WithFields(logrus.Fields{
				"recipient":    recipient,
				"max_per_hour": settings.Throttling.MaxEmailsPerHour,
			}).Warn("Recipient throttled, skipping")
			continue
		}

		perMsg := *msg
		perMsg.To = recipient

		if err := e.sender.Send(ctx, &perMsg); err != nil {
			e.logger.WithFields(logrus.Fields{
				"recipient": recipient,
				"error":     err.Error(),
			}).Error("Notification delivery failed")
		}
		attempted = append(attempted, recipient)
	}

	return attempted
}
