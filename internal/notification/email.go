package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/ambworks/spc-server/internal/protocol"
	"github.com/ambworks/spc-server/pkg/config"
)

// EmailNotifier sends email notifications for alert lifecycle events
type EmailNotifier struct {
	config *config.SMTPConfig
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig) *EmailNotifier {
	return &EmailNotifier{config: cfg}
}

// SendAlertNotification sends an email for an alert event
func (e *EmailNotifier) SendAlertNotification(notification *protocol.AlertNotification) error {
	var subject string
	var body string
	var err error

	switch notification.EventType {
	case protocol.AlertEventTriggered:
		subject = fmt.Sprintf("🚨 SPC Alert TRIGGERED [%s] - %s / %s", notification.Severity, notification.StationID, notification.ParameterID)
		body, err = e.renderTriggeredTemplate(notification)
	case protocol.AlertEventEscalated:
		subject = fmt.Sprintf("⚠️ SPC Alert ESCALATED - %s / %s", notification.StationID, notification.ParameterID)
		body, err = e.renderEscalatedTemplate(notification)
	case protocol.AlertEventResolved:
		subject = fmt.Sprintf("✅ SPC Alert RESOLVED - %s / %s", notification.StationID, notification.ParameterID)
		body, err = e.renderResolvedTemplate(notification)
	case protocol.AlertEventUpdated:
		// Repeat breaches on an open alert do not generate mail.
		return nil
	default:
		return fmt.Errorf("unknown notification type: %s", notification.EventType)
	}

	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	return e.sendEmail(subject, body)
}

func (e *EmailNotifier) renderTriggeredTemplate(notification *protocol.AlertNotification) (string, error) {
	tmpl := `
Process Control Alert Triggered
===============================

Station: {{.StationID}}
Sensor: {{.SensorID}}
Parameter: {{.ParameterID}}
Alert Type: {{.AlertType}}
Severity: {{.Severity}}
Measured Value: {{.Value}}
Opened At: {{.OpenedAt}}
Alert ID: {{.AlertID}}

Description:
{{.Message}}

Please review the process at station {{.StationID}} and acknowledge
the alert once the condition has been investigated.

---
SPC Server Notification System
`

	t, err := template.New("triggered").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, notification); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (e *EmailNotifier) renderEscalatedTemplate(notification *protocol.AlertNotification) (string, error) {
	tmpl := `
Process Control Alert Escalated
===============================

Station: {{.StationID}}
Sensor: {{.SensorID}}
Parameter: {{.ParameterID}}
Alert Type: {{.AlertType}}
Severity: {{.Severity}}
Opened At: {{.OpenedAt}}
Alert ID: {{.AlertID}}

Description:
This alert has remained open without acknowledgment past the
escalation window. Immediate attention is required.

{{.Message}}

---
SPC Server Notification System
`

	t, err := template.New("escalated").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, notification); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (e *EmailNotifier) renderResolvedTemplate(notification *protocol.AlertNotification) (string, error) {
	tmpl := `
Process Control Alert Resolved
==============================

Station: {{.StationID}}
Sensor: {{.SensorID}}
Parameter: {{.ParameterID}}
Alert ID: {{.AlertID}}
{{if .Actor}}Resolved By: {{.Actor}}{{end}}

Description:
The alert for {{.ParameterID}} at station {{.StationID}} has been
resolved. The process has returned to normal operation.

---
SPC Server Notification System
`

	t, err := template.New("resolved").Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, notification); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	// Skip sending if SMTP is not configured
	if e.config.Username == "" || e.config.Password == "" {
		fmt.Printf("SMTP not configured, skipping email:\nSubject: %s\n%s\n", subject, body)
		return nil
	}

	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", e.config.To)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	err := smtp.SendMail(addr, auth, e.config.From, []string{e.config.To}, []byte(message))
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	fmt.Printf("Email sent successfully: %s\n", subject)
	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	fmt.Println("SMTP connection test successful")
	return nil
}
