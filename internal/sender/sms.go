package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/harune/notify/internal/domain"
)

// SMSSender delivers over an HTTP SMS provider API. The provider only
// acknowledges acceptance, so successful sends resolve to sent.
type SMSSender struct {
	url    string
	apiKey string
	client *http.Client
}

// NewSMSSender creates an SMSSender posting to the given provider URL.
func NewSMSSender(url, apiKey string) *SMSSender {
	return &SMSSender{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type smsMessage struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Send posts one SMS; address is the recipient phone number. SMS has no
// subject line; only the body is sent.
func (s *SMSSender) Send(ctx context.Context, address, _ string, body string) (domain.DeliveryStatus, error) {
	payload, err := json.Marshal(smsMessage{Phone: address, Message: body})
	if err != nil {
		return domain.DeliveryFailed, fmt.Errorf("marshal sms message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return domain.DeliveryFailed, fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.DeliveryFailed, fmt.Errorf("post sms message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.DeliveryFailed, fmt.Errorf("sms provider returned status %d", resp.StatusCode)
	}
	return domain.DeliverySent, nil
}
