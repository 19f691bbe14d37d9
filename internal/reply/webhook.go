package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookDeliverer posts rendered replies to an outbound webhook. The
// receiving side (mail relay, chat bridge) owns actual delivery; this
// process never speaks SMTP.
type WebhookDeliverer struct {
	url    string
	secret string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookDeliverer builds a deliverer for the given endpoint. secret
// may be empty; when set it is sent as X-Vigil-Secret for the receiver
// to verify.
func NewWebhookDeliverer(url, secret string, logger *zap.Logger) *WebhookDeliverer {
	return &WebhookDeliverer{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type webhookPayload struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// Send implements Deliverer.
func (d *WebhookDeliverer) Send(ctx context.Context, recipient, subject, body string) error {
	payload, err := json.Marshal(webhookPayload{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	})
	if err != nil {
		return fmt.Errorf("Send: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("Send: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set("X-Vigil-Secret", d.secret)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Send: webhook returned status %d", resp.StatusCode)
	}

	d.logger.Debug("reply delivered",
		zap.String("recipient", recipient),
		zap.Int("status", resp.StatusCode))
	return nil
}
