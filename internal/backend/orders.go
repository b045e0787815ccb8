package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/unisew/reconciler/internal/quotation"
)

// Deadline returns the fulfillment deadline for a garment order. A zero
// time with nil error means the order carries no deadline.
func (c *HTTPClient) Deadline(ctx context.Context, orderID int64) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/orders/"+strconv.FormatInt(orderID, 10), nil)
	if err != nil {
		return time.Time{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("get-order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, statusError("get-order", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		Deadline string `json:"deadline"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return time.Time{}, fmt.Errorf("get-order: decode response: %w", err)
	}
	if body.Deadline == "" {
		return time.Time{}, nil
	}

	deadline, err := time.Parse("2006-01-02", body.Deadline)
	if err != nil {
		return time.Time{}, fmt.Errorf("get-order: malformed deadline %q: %w", body.Deadline, err)
	}
	return deadline, nil
}

// SubmitQuotation forwards a validated garment quotation. Confirms with 201.
func (c *HTTPClient) SubmitQuotation(ctx context.Context, sub quotation.Submission) error {
	return c.post(ctx, "submit-quotation", "/orders/quotations", sub, http.StatusCreated)
}
