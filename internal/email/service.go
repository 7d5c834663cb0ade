// Package email sends position photos by mail through the automation
// webhook. The webhook owns SMTP; this service only builds and posts
// the message payload.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"
)

// Config holds the webhook endpoint. An empty URL leaves the service in
// simulate mode: sends succeed without leaving the process, so the rest
// of the flow stays testable on installations without the automation.
type Config struct {
	WebhookURL string
	Timeout    time.Duration
}

type Service struct {
	webhookURL string
	client     *http.Client
	logger     *log.Logger
}

func NewService(config Config, logger *log.Logger) *Service {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		webhookURL: config.WebhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// NewServiceWithClient is used by the tests to inject a test server
// client.
func NewServiceWithClient(webhookURL string, client *http.Client, logger *log.Logger) *Service {
	return &Service{webhookURL: webhookURL, client: client, logger: logger}
}

// IsConfigured reports whether a real webhook is wired up.
func (s *Service) IsConfigured() bool {
	return s.webhookURL != ""
}

// Attachment is one photo carried in the message, base64 encoded.
type Attachment struct {
	FileName    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

// Message is the payload posted to the webhook.
type Message struct {
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	Body        string       `json:"message"`
	Attachments []Attachment `json:"attachments"`
}

// ValidRecipient applies the minimal address check; full validation is
// the mail system's job.
func ValidRecipient(to string) bool {
	return strings.Contains(to, "@")
}

// Send posts the message to the webhook. Without a configured webhook
// the message is logged and dropped, and simulated reports that.
func (s *Service) Send(ctx context.Context, message Message) (simulated bool, err error) {
	if !ValidRecipient(message.To) {
		return false, fmt.Errorf("ungültige E-Mail-Adresse: %q", message.To)
	}
	if len(message.Attachments) == 0 {
		return false, fmt.Errorf("mindestens ein Foto erforderlich")
	}

	if !s.IsConfigured() {
		if s.logger != nil {
			s.logger.Printf("email: no webhook configured, simulating send of %d photo(s) to %s", len(message.Attachments), message.To)
		}
		return true, nil
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return false, fmt.Errorf("marshal email payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build email request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.client.Do(request)
	if err != nil {
		return false, fmt.Errorf("post email webhook: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return false, fmt.Errorf("email webhook returned status %d", response.StatusCode)
	}
	return false, nil
}

// PhotoMailData feeds the HTML body template.
type PhotoMailData struct {
	PositionCode string
	PhotoCount   int
	Note         string
}

// RenderPhotoMail builds the German HTML body for a photo mail.
func RenderPhotoMail(data PhotoMailData) (string, error) {
	var buf bytes.Buffer
	if err := photoMailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render photo mail: %w", err)
	}
	return buf.String(), nil
}

var photoMailTemplate = template.Must(template.New("photo-mail").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: sans-serif; color: #333;">
  <h2>Wareneingang {{.PositionCode}}</h2>
  <p>Im Anhang {{if eq .PhotoCount 1}}befindet sich 1 Foto{{else}}befinden sich {{.PhotoCount}} Fotos{{end}} zur Position {{.PositionCode}}.</p>
  {{if .Note}}<p>{{.Note}}</p>{{end}}
  <p style="color: #666; font-size: 12px;">Diese Nachricht wurde automatisch aus der Wareneingangs-Fotodokumentation versendet.</p>
</body>
</html>`))
