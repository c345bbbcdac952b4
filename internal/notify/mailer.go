package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Mailer is the email collaborator. Templating beyond variant selection and
// actual delivery live behind this interface.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// apiMailer delivers through an HTTP email API (server-side, bearer key).
type apiMailer struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	from       string
}

// NewAPIMailer creates a Mailer backed by an HTTP email API.
func NewAPIMailer(apiURL, apiKey, from string) Mailer {
	return &apiMailer{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     strings.TrimRight(apiURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		from:       from,
	}
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

func (m *apiMailer) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	if m.apiKey == "" || m.apiURL == "" {
		return fmt.Errorf("mailer is not configured")
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("recipient address is empty")
	}

	payload, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      to,
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("email api status %d", resp.StatusCode)
	}
	return nil
}

// logMailer writes sends to the log instead of delivering them. Used when no
// email API is configured (local development, tests).
type logMailer struct {
	logger *slog.Logger
}

// NewLogMailer returns a Mailer that only logs.
func NewLogMailer(logger *slog.Logger) Mailer {
	return &logMailer{logger: logger}
}

func (m *logMailer) Send(_ context.Context, to, subject, _, textBody string) error {
	m.logger.Info("email send (log only)", "to", to, "subject", subject, "body", textBody)
	return nil
}
