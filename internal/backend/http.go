package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient implements Client against the REST backend.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a backend client for the given base URL. A nil
// httpClient falls back to a client with a 30s timeout; the controller
// imposes no timeout of its own beyond this.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// post sends a JSON body and verifies the contractual status code.
func (c *HTTPClient) post(ctx context.Context, op, path string, body any, wantStatus int) error {
	resp, err := c.do(ctx, path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != wantStatus {
		return statusError(op, resp.StatusCode, wantStatus)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}

// PickQuotation accepts a design quotation.
func (c *HTTPClient) PickQuotation(ctx context.Context, req PickQuotationRequest) error {
	return c.post(ctx, "pick-quotation", "/design/quotations/pick", req, http.StatusOK)
}

// ApproveQuotation records an order deposit.
func (c *HTTPClient) ApproveQuotation(ctx context.Context, req ApproveQuotationRequest) error {
	return c.post(ctx, "approve-quotation", "/orders/quotations/approve", req, http.StatusCreated)
}

// shipmentResponse is the provider envelope for shipment creation:
// {"data": {"code": 200, "data": {"order_code": "..."}}}.
type shipmentResponse struct {
	Data struct {
		Code int `json:"code"`
		Data struct {
			OrderCode string `json:"order_code"`
		} `json:"data"`
	} `json:"data"`
}

// CreateShipment creates a shipment with the shipping provider. Success of
// the shipment itself is signaled by the nested code field, not the
// transport status; the caller decides whether to proceed.
func (c *HTTPClient) CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentResult, error) {
	resp, err := c.do(ctx, "/shipping/shipments", req)
	if err != nil {
		return nil, fmt.Errorf("create-shipment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("create-shipment", resp.StatusCode, http.StatusOK)
	}

	var body shipmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("create-shipment: decode response: %w", err)
	}

	return &ShipmentResult{
		Code:      body.Data.Code,
		OrderCode: body.Data.Data.OrderCode,
	}, nil
}

// ConfirmDelivery confirms delivery for a shipped order.
func (c *HTTPClient) ConfirmDelivery(ctx context.Context, req DeliveryConfirmation) error {
	return c.post(ctx, "confirm-delivery", "/orders/delivery/confirm", req, http.StatusCreated)
}

// PurchaseExtraRevisions buys extra design revisions.
func (c *HTTPClient) PurchaseExtraRevisions(ctx context.Context, req RevisionPurchaseRequest) error {
	return c.post(ctx, "purchase-extra-revisions", "/design/revisions/purchase", req, http.StatusOK)
}

// CreateWalletDeposit records a wallet top-up.
func (c *HTTPClient) CreateWalletDeposit(ctx context.Context, req WalletDepositRequest) error {
	return c.post(ctx, "create-wallet-deposit", "/wallet/transactions/deposit", req, http.StatusCreated)
}

// RecordFailedTransaction records a failed payment attempt.
func (c *HTTPClient) RecordFailedTransaction(ctx context.Context, req FailedTransactionRequest) error {
	return c.post(ctx, "record-failed-transaction", "/transactions/failed", req, http.StatusCreated)
}
