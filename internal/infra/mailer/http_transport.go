// internal/infra/mailer/http_transport.go
package mailer

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"oncall_reminder_engine/internal/domain/mail"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

type emailTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type emailRequest struct {
	From    string     `json:"from"`
	To      []string   `json:"to"`
	Subject string     `json:"subject"`
	HTML    string     `json:"html,omitempty"`
	Text    string     `json:"text,omitempty"`
	Tags    []emailTag `json:"tags,omitempty"`
}

type emailResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// HTTPTransport posts emails to a JSON email API. Retries are left to the
// dispatcher: the client itself never retries.
type HTTPTransport struct {
	client *resty.Client
	from   string
	logger *logrus.Entry
}

func NewHTTPTransport(baseURL, apiKey, from string, timeout time.Duration, logger *logrus.Entry) *HTTPTransport {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPTransport{client: client, from: from, logger: logger}
}

// Send returns mail.ErrThrottled (wrapped) on HTTP 429 and a plain error on
// any other non-2xx status or network failure.
func (t *HTTPTransport) Send(ctx context.Context, msg mail.Message) error {
	req := emailRequest{
		From:    t.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		Tags:    sortedTags(msg.Tags),
	}

	var out emailResponse
	var apiErr errorResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("email API request failed: %w", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", mail.ErrThrottled, apiErr.Message)
	case code < 200 || code >= 300:
		return fmt.Errorf("email API returned %d: %s %s", code, apiErr.Name, apiErr.Message)
	}

	t.logger.WithFields(logrus.Fields{"to": msg.To, "message_id": out.ID}).Debug("Email accepted")
	return nil
}

func sortedTags(tags map[string]string) []emailTag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]emailTag, 0, len(tags))
	for k, v := range tags {
		out = append(out, emailTag{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
