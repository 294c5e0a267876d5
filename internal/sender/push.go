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

// PushSender delivers via an Expo-compatible push gateway. The gateway
// acknowledges receipt per message, so an "ok" ticket resolves the attempt
// to delivered.
type PushSender struct {
	url    string
	client *http.Client
}

// NewPushSender creates a PushSender posting to the given gateway URL.
func NewPushSender(url string) *PushSender {
	return &PushSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type pushMessage struct {
	To    string `json:"to"`
	Sound string `json:"sound"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type pushTicket struct {
	Data struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"data"`
}

// Send posts one push message; address is the device push token.
func (s *PushSender) Send(ctx context.Context, address, subject, body string) (domain.DeliveryStatus, error) {
	payload, err := json.Marshal(pushMessage{
		To:    address,
		Sound: "default",
		Title: subject,
		Body:  body,
	})
	if err != nil {
		return domain.DeliveryFailed, fmt.Errorf("marshal push message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return domain.DeliveryFailed, fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.DeliveryFailed, fmt.Errorf("post push message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.DeliveryFailed, fmt.Errorf("push gateway returned status %d", resp.StatusCode)
	}

	var ticket pushTicket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		// Accepted but unreadable ticket: the message went out.
		return domain.DeliverySent, nil
	}
	if ticket.Data.Status == "error" {
		return domain.DeliveryFailed, fmt.Errorf("push gateway rejected message: %s", ticket.Data.Message)
	}
	if ticket.Data.Status == "ok" {
		return domain.DeliveryDelivered, nil
	}
	return domain.DeliverySent, nil
}
