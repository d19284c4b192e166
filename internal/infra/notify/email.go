package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"
)

// EmailRequest is the payload the hosted email endpoint accepts.
type EmailRequest struct {
	RecipientEmail    string `json:"recipient_email"`
	RecipientName     string `json:"recipient_name"`
	SenderName        string `json:"sender_name"`
	SenderAffiliation string `json:"sender_affiliation,omitempty"`
	ListingTitle      string `json:"listing_title"`
	MessagePreview    string `json:"message_preview"`
	ConversationURL   string `json:"conversation_url"`
}

// EmailSender delivers one notification email. Best-effort: callers log and
// swallow failures.
type EmailSender interface {
	Send(ctx context.Context, req EmailRequest) error
}

// EmailClient posts notification requests to the hosted email endpoint. Any
// non-2xx response is an error.
type EmailClient struct {
	Endpoint   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c *EmailClient) Send(ctx context.Context, req EmailRequest) error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("notify: email endpoint not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("notify: encode email request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build email request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("notify: email endpoint call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: email endpoint returned %d", resp.StatusCode)
	}
	if c.Logger != nil {
		c.Logger.Debug("notification email accepted", "recipient", req.RecipientEmail)
	}
	return nil
}

// ValidEmail reports whether addr is a syntactically valid bare address.
func ValidEmail(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	return err == nil && parsed.Address == addr
}

var _ EmailSender = (*EmailClient)(nil)
