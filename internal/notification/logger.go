package notification

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medialib/activity-notifier/pkg/utils"
)

// NotificationLogger handles logging for delivery operations
type NotificationLogger struct {
	logger  *logrus.Logger
	context map[string]interface{}
}

// NewNotificationLogger creates a new notification logger
func NewNotificationLogger(logLevel string) *NotificationLogger {
	logger := utils.GetLogger()

	if level, err := logrus.ParseLevel(logLevel); err == nil {
		logger.SetLevel(level)
	}

	return &NotificationLogger{
		logger:  logger,
		context: make(map[string]interface{}),
	}
}

// WithField returns a logger with an additional context field
func (nl *NotificationLogger) WithField(key string, value interface{}) *NotificationLogger {
	newLogger := &NotificationLogger{
		logger:  nl.logger,
		context: make(map[string]interface{}, len(nl.context)+1),
	}

	for k, v := range nl.context {
		newLogger.context[k] = v
	}
	newLogger.context[key] = value

	return newLogger
}

func (nl *NotificationLogger) entry(extra map[string]interface{}) *logrus.Entry {
	fields := logrus.Fields{"component": "notification"}
	for k, v := range nl.context {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return nl.logger.WithFields(fields)
}

// Debug logs a debug message
func (nl *NotificationLogger) Debug(message string, context ...map[string]interface{}) {
	nl.entry(merge(context)).Debug(message)
}

// Info logs an info message
func (nl *NotificationLogger) Info(message string, context ...map[string]interface{}) {
	nl.entry(merge(context)).Info(message)
}

// Warn logs a warning message
func (nl *NotificationLogger) Warn(message string, context ...map[string]interface{}) {
	nl.entry(merge(context)).Warn(message)
}

// Error logs an error message
func (nl *NotificationLogger) Error(message string, context ...map[string]interface{}) {
	nl.entry(merge(context)).Error(message)
}

func merge(contexts []map[string]interface{}) map[string]interface{} {
	if len(contexts) == 0 {
		return nil
	}
	merged := make(map[string]interface{})
	for _, ctx := range contexts {
		for k, v := range ctx {
			merged[k] = v
		}
	}
	return merged
}

// LogDeliveryAttempt logs a delivery attempt
func (nl *NotificationLogger) LogDeliveryAttempt(channel, target, subject string) {
	nl.Debug("Delivery attempt started", map[string]interface{}{
		"channel": channel,
		"target":  target,
		"subject": subject,
	})
}

// LogDeliveryResult logs the outcome of a delivery attempt
func (nl *NotificationLogger) LogDeliveryResult(channel, target string, success bool, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"channel":     channel,
		"target":      target,
		"success":     success,
		"duration_ms": duration.Milliseconds(),
	}

	if err != nil {
		fields["error"] = err.Error()
		nl.Error("Delivery failed", fields)
		return
	}

	nl.Debug("Delivery completed", fields)
}

// LogThrottled logs a recipient skipped by the throttle controller
func (nl *NotificationLogger) LogThrottled(recipient string, maxPerHour int) {
	nl.Warn("Recipient throttled", map[string]interface{}{
		"recipient":    recipient,
		"max_per_hour": maxPerHour,
	})
}
