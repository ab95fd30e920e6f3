package notification

import (
	"context"
	"sync"
	"time"

	"github.com/medialib/activity-notifier/internal/config"
	"github.com/medialib/activity-notifier/internal/metrics"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// Message is one notification addressed to a single recipient
type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	TextBody string `json:"text_body"`
	HTMLBody string `json:"html_body,omitempty"`
	Priority string `json:"priority,omitempty"`
	// Mode labels the dispatch path for metrics: immediate, digest or test
	Mode string `json:"-"`
}

// Sender delivers a message to a single recipient
type Sender interface {
	Send(ctx context.Context, msg *Message) error
	Name() string
}

// Stats provides delivery statistics
type Stats struct {
	TotalSent     uint64     `json:"total_sent"`
	TotalFailed   uint64     `json:"total_failed"`
	LastError     *string    `json:"last_error,omitempty"`
	LastErrorTime *time.Time `json:"last_error_time,omitempty"`
	LastSentTime  *time.Time `json:"last_sent_time,omitempty"`
}

// Manager fans a message out to all enabled delivery channels
type Manager struct {
	logger         *NotificationLogger
	metricsManager *metrics.Manager

	mu      sync.RWMutex
	senders []Sender
	stats   Stats
}

// NewManager creates a delivery manager with channels built from config
func NewManager(cfg *config.Config, metricsManager *metrics.Manager) *Manager {
	logger := NewNotificationLogger(cfg.Logging.Level)

	m := &Manager{
		logger:         logger,
		metricsManager: metricsManager,
	}

	if cfg.Email.Enabled {
		m.senders = append(m.senders, NewEmailSender(&cfg.Email, logger))
	}
	if cfg.Webhook.Enabled {
		m.senders = append(m.senders, NewWebhookSender(&cfg.Webhook, logger))
	}

	return m
}

// NewManagerWithSenders creates a delivery manager over explicit channels
func NewManagerWithSenders(logLevel string, metricsManager *metrics.Manager, senders ...Sender) *Manager {
	return &Manager{
		logger:         NewNotificationLogger(logLevel),
		metricsManager: metricsManager,
		senders:        senders,
	}
}

// Send delivers the message through every enabled channel. A channel
// failure does not prevent delivery through the remaining channels; the
// first error is returned so callers can record the failure.
func (m *Manager) Send(ctx context.Context, msg *Message) error {
	m.mu.RLock()
	senders := make([]Sender, len(m.senders))
	copy(senders, m.senders)
	m.mu.RUnlock()

	if len(senders) == 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "No delivery channels enabled", "")
	}

	var firstErr error
	for _, sender := range senders {
		start := time.Now()
		err := sender.Send(ctx, msg)
		duration := time.Since(start)

		m.recordResult(sender.Name(), msg.Mode, duration, err)

		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Name identifies the manager as a composite channel
func (m *Manager) Name() string {
	return "manager"
}

// HasChannels reports whether any delivery channel is enabled
func (m *Manager) HasChannels() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.senders) > 0
}

// GetStats returns delivery statistics
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

func (m *Manager) recordResult(channel, mode string, duration time.Duration, err error) {
	m.mu.Lock()
	now := time.Now()
	if err != nil {
		m.stats.TotalFailed++
		errStr := err.Error()
		m.stats.LastError = &errStr
		m.stats.LastErrorTime = &now
	} else {
		m.stats.TotalSent++
		m.stats.LastSentTime = &now
	}
	m.mu.Unlock()

	if m.metricsManager == nil {
		return
	}
	pm := m.metricsManager.GetPrometheusMetrics()
	if err != nil {
		pm.RecordNotificationFailure(channel, mode)
	} else {
		pm.RecordNotificationSent(channel, mode, duration)
	}
}
