// Package notify provides the email notification client used by the
// reconciliation pipelines. Notification delivery is a gate: settlement
// operations run only after the notification service confirms delivery.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Template kinds accepted by the notification service.
const (
	TemplateConfirmation  = "confirmation"
	TemplatePaymentResult = "payment-result"
	TemplateMilestone     = "milestone"
)

// Result values rendered into the payment-result email.
const (
	ResultSuccess = "Successfully"
	ResultFailed  = "Failed"
)

// ErrNotDelivered is returned when the notification service does not
// confirm delivery with a 200.
var ErrNotDelivered = errors.New("notification not delivered")

// PaymentResultEmail is the template payload for a payment-result message.
// It is a pure projection of the payment intent and outcome; see Build*.
type PaymentResultEmail struct {
	ReceiverID      string `json:"receiverId"`
	ReceiverEmail   string `json:"receiverEmail"`
	ReceiverName    string `json:"receiverName"`
	Amount          string `json:"amount"`
	CounterpartName string `json:"counterpartName"`
	CounterpartType string `json:"counterpartType"`
	ItemID          string `json:"itemId"`
	OccurredAt      string `json:"occurredAt"`
	Result          string `json:"result"`
}

// Mailer sends payment-result notifications. A nil error means the service
// confirmed delivery; anything else halts the calling pipeline.
type Mailer interface {
	SendPaymentResult(ctx context.Context, email PaymentResultEmail) error
}

// HTTPMailer implements Mailer against the notification service.
type HTTPMailer struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPMailer creates a mailer for the given notification service URL.
func NewHTTPMailer(baseURL string, httpClient *http.Client) *HTTPMailer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPMailer{baseURL: baseURL, httpClient: httpClient}
}

type sendRequest struct {
	Template string             `json:"template"`
	Params   PaymentResultEmail `json:"params"`
}

// SendPaymentResult delivers a payment-result email. Returns ErrNotDelivered
// unless the service answers 200.
func (m *HTTPMailer) SendPaymentResult(ctx context.Context, email PaymentResultEmail) error {
	payload, err := json.Marshal(sendRequest{Template: TemplatePaymentResult, Params: email})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/notifications/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send-notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("send-notification: %w: status %d", ErrNotDelivered, resp.StatusCode)
	}
	return nil
}
