package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"licensify-backend/internal/config"
	"licensify-backend/internal/shared/utils"
)

// BrevoClient sends transactional email through the Brevo SMTP API.
type BrevoClient struct {
	cfg        config.EmailConfig
	httpClient *http.Client
}

func NewBrevoClient(cfg config.EmailConfig) *BrevoClient {
	return &BrevoClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type brevoContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	ReplyTo     *brevoContact  `json:"replyTo,omitempty"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	Tags        []string       `json:"tags,omitempty"`
}

type brevoResponse struct {
	MessageID string `json:"messageId"`
}

// Message is one outbound email.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Tags    []string
}

// Send delivers one message and returns the provider message id.
func (c *BrevoClient) Send(ctx context.Context, msg *Message) (string, error) {
	payload := brevoRequest{
		Sender:      brevoContact{Name: c.cfg.SenderName, Email: c.cfg.SenderEmail},
		To:          []brevoContact{{Name: msg.ToName, Email: msg.To}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
		Tags:        msg.Tags,
	}
	if c.cfg.ReplyTo != "" {
		payload.ReplyTo = &brevoContact{Email: c.cfg.ReplyTo}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/v3/smtp/email", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("email send failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("email API returned %d: %s", resp.StatusCode, utils.TruncateString(string(data), 200))
	}

	var parsed brevoResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("bad email API response: %w", err)
	}

	return parsed.MessageID, nil
}
