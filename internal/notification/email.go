package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/medialib/activity-notifier/internal/config"
	"github.com/medialib/activity-notifier/pkg/utils"
)

// EmailSender delivers notifications over SMTP
type EmailSender struct {
	config *config.EmailConfig
	logger *NotificationLogger
	auth   smtp.Auth
}

// NewEmailSender creates a new email sender
func NewEmailSender(cfg *config.EmailConfig, logger *NotificationLogger) *EmailSender {
	es := &EmailSender{
		config: cfg,
		logger: logger.WithField("channel", "email"),
	}

	if cfg.Username != "" && cfg.Password != "" {
		es.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
	}

	return es
}

// Name identifies the channel
func (es *EmailSender) Name() string {
	return "email"
}

// Send sends a single email
func (es *EmailSender) Send(ctx context.Context, msg *Message) error {
	startTime := time.Now()

	es.logger.LogDeliveryAttempt("email", msg.To, msg.Subject)

	if err := es.validateMessage(msg); err != nil {
		es.logger.LogDeliveryResult("email", msg.To, false, time.Since(startTime), err)
		return err
	}

	message := es.buildEmailMessage(msg)

	var err error
	if es.config.UseTLS {
		err = es.sendTLS(msg.To, message)
	} else {
		err = es.sendPlain(msg.To, message)
	}

	success := err == nil
	es.logger.LogDeliveryResult("email", msg.To, success, time.Since(startTime), err)

	if err != nil {
		return utils.NewAppError(utils.ErrCodeDelivery, "Failed to send email", err.Error())
	}

	return nil
}

// sendTLS sends email over an implicit-TLS connection
func (es *EmailSender) sendTLS(to string, message string) error {
	addr := fmt.Sprintf("%s:%d", es.config.SMTPHost, es.config.SMTPPort)

	tlsConfig := &tls.Config{
		ServerName: es.config.SMTPHost,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect with TLS: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, es.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if es.auth != nil {
		if err := client.Auth(es.auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(es.config.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient %s: %w", to, err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	defer writer.Close()

	if _, err := writer.Write([]byte(message)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// sendPlain sends email with optional STARTTLS upgrade
func (es *EmailSender) sendPlain(to string, message string) error {
	addr := fmt.Sprintf("%s:%d", es.config.SMTPHost, es.config.SMTPPort)
	return smtp.SendMail(addr, es.auth, es.config.FromEmail, []string{to}, []byte(message))
}

// buildEmailMessage builds a multipart/alternative message with plain-text
// and HTML bodies
func (es *EmailSender) buildEmailMessage(msg *Message) string {
	const boundary = "activity-notifier-alt"

	var message strings.Builder

	message.WriteString(fmt.Sprintf("From: %s <%s>\r\n", es.config.FromName, es.config.FromEmail))
	message.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	message.WriteString("MIME-Version: 1.0\r\n")

	if msg.Priority == "high" {
		message.WriteString("X-Priority: 1\r\n")
		message.WriteString("Importance: high\r\n")
	} else if msg.Priority == "low" {
		message.WriteString("X-Priority: 5\r\n")
		message.WriteString("Importance: low\r\n")
	}

	message.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))

	if msg.HTMLBody == "" {
		message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		message.WriteString("\r\n")
		message.WriteString(msg.TextBody)
		return message.String()
	}

	message.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n", boundary))
	message.WriteString("\r\n")

	message.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	message.WriteString(msg.TextBody)
	message.WriteString("\r\n")

	message.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	message.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	message.WriteString(msg.HTMLBody)
	message.WriteString("\r\n")

	message.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return message.String()
}

// validateMessage validates the outgoing message
func (es *EmailSender) validateMessage(msg *Message) error {
	if msg.To == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Email recipient is required", "")
	}

	if msg.Subject == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Email subject is required", "")
	}

	if !IsValidEmail(msg.To) {
		return utils.NewAppError(utils.ErrCodeValidation, "Invalid email address", msg.To)
	}

	return nil
}

// IsValidEmail performs basic email validation
func IsValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}

	local, domain := parts[0], parts[1]
	if len(local) == 0 || len(domain) == 0 {
		return false
	}

	if len(local) > 64 || len(domain) > 253 {
		return false
	}

	return true
}
