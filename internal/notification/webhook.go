package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medialib/activity-notifier/internal/config"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// WebhookSender delivers notifications as JSON POSTs to a configured URL
type WebhookSender struct {
	config     *config.WebhookConfig
	logger     *NotificationLogger
	httpClient *http.Client
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Priority  string    `json:"priority,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(cfg *config.WebhookConfig, logger *NotificationLogger) *WebhookSender {
	return &WebhookSender{
		config: cfg,
		logger: logger.WithField("channel", "webhook"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Name identifies the channel
func (ws *WebhookSender) Name() string {
	return "webhook"
}

// Send posts the notification payload to the configured endpoint
func (ws *WebhookSender) Send(ctx context.Context, msg *Message) error {
	startTime := time.Now()

	ws.logger.LogDeliveryAttempt("webhook", ws.config.URL, msg.Subject)

	payload := &WebhookPayload{
		Recipient: msg.To,
		Subject:   msg.Subject,
		Body:      msg.TextBody,
		Priority:  msg.Priority,
		Timestamp: time.Now().UTC(),
		Source:    "activity-notifier",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())
	}

	method := ws.config.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, ws.config.URL, bytes.NewReader(body))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to build webhook request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ws.httpClient.Do(req)
	if err != nil {
		ws.logger.LogDeliveryResult("webhook", ws.config.URL, false, time.Since(startTime), err)
		return utils.NewAppError(utils.ErrCodeDelivery, "Webhook request failed", err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("webhook returned status %d", resp.StatusCode)
		ws.logger.LogDeliveryResult("webhook", ws.config.URL, false, time.Since(startTime), err)
		return utils.NewAppError(utils.ErrCodeDelivery, "Webhook rejected notification", err.Error())
	}

	ws.logger.LogDeliveryResult("webhook", ws.config.URL, true, time.Since(startTime), nil)
	return nil
}
