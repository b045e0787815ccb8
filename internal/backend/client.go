// Package backend provides the client for the marketplace backend's
// settlement operations. The backend is an opaque collaborator: each call is
// a single mutation with a fixed success contract, and the reconciliation
// pipelines never retry.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnexpectedStatus is returned when a settlement call does not confirm
// with its contractual status code.
var ErrUnexpectedStatus = errors.New("unexpected backend status")

// ShipmentCodeOK is the nested status code that marks shipment creation as
// accepted by the shipping provider. Transport-level 200 alone is not
// sufficient.
const ShipmentCodeOK = 200

// Failed-transaction kinds accepted by the backend.
const (
	FailedKindDesign  = "design"
	FailedKindOrder   = "order"
	FailedKindDeposit = "deposit"
	FailedKindWallet  = "wallet"
)

// TransactionInfo is the common transaction envelope attached to settlement
// mutations.
type TransactionInfo struct {
	Type          string `json:"type"`
	ReceiverID    string `json:"receiverId"`
	ItemID        string `json:"itemId"`
	TotalPrice    int64  `json:"totalPrice"`
	GatewayCode   string `json:"gatewayCode"`
	ServiceFee    int64  `json:"serviceFee"`
	PayFromWallet bool   `json:"payFromWallet"`
}

// PickQuotationRequest accepts a design quotation, attaching the purchased
// extra-revision count and the platform service fee.
type PickQuotationRequest struct {
	DesignQuotationID int64           `json:"designQuotationId"`
	DesignRequestID   int64           `json:"designRequestId"`
	ExtraRevision     int             `json:"extraRevision"`
	ServiceFee        int64           `json:"serviceFee"`
	Transaction       TransactionInfo `json:"transaction"`
}

// ApproveQuotationRequest records a deposit transaction on an order's
// quotation.
type ApproveQuotationRequest struct {
	QuotationID int64           `json:"quotationId"`
	Transaction TransactionInfo `json:"transaction"`
}

// ShipmentRequest creates a shipment with the shipping provider using the
// garment factory's provider account. OrderValue is the insured/declared
// value of the order.
type ShipmentRequest struct {
	ShippingAccountID string `json:"shippingAccountId"`
	ReceiverName      string `json:"receiverName"`
	ReceiverPhone     string `json:"receiverPhone"`
	ReceiverAddress   string `json:"receiverAddress"`
	OrderID           int64  `json:"orderId"`
	OrderValue        int64  `json:"orderValue"`
}

// ShipmentResult is the provider's answer to shipment creation. Success is
// defined as Code == ShipmentCodeOK; OrderCode is the carrier-assigned
// tracking code consumed by delivery confirmation.
type ShipmentResult struct {
	Code      int
	OrderCode string
}

// DeliveryConfirmation advances an order to delivery using the tracking
// code returned by shipment creation.
type DeliveryConfirmation struct {
	OrderID       int64  `json:"orderId"`
	ReceiverID    string `json:"receiverId"`
	TotalPrice    int64  `json:"totalPrice"`
	GatewayCode   string `json:"gatewayCode"`
	ShippingCode  string `json:"shippingCode"`
	ShippingFee   int64  `json:"shippingFee"`
	PayFromWallet bool   `json:"payFromWallet"`
}

// RevisionPurchaseRequest buys extra design revisions from a designer.
type RevisionPurchaseRequest struct {
	RequestID   int64  `json:"requestId"`
	Quantity    int    `json:"quantity"`
	DesignerID  string `json:"designerId"`
	TotalPrice  int64  `json:"totalPrice"`
	GatewayCode string `json:"gatewayCode"`
}

// WalletDepositRequest records a wallet top-up; the receiver is the paying
// user themself.
type WalletDepositRequest struct {
	ReceiverID    string `json:"receiverId"`
	TotalPrice    int64  `json:"totalPrice"`
	GatewayCode   string `json:"gatewayCode"`
	PayFromWallet bool   `json:"payFromWallet"`
}

// FailedTransactionRequest records a failed payment attempt for the ledger.
type FailedTransactionRequest struct {
	Kind        string          `json:"kind"`
	Transaction TransactionInfo `json:"transaction"`
}

// Client is the settlement surface of the marketplace backend. Implemented
// over HTTP in production and by fakes in tests.
type Client interface {
	// PickQuotation accepts a design quotation. Confirms with 200.
	PickQuotation(ctx context.Context, req PickQuotationRequest) error

	// ApproveQuotation records an order deposit. Confirms with 201.
	ApproveQuotation(ctx context.Context, req ApproveQuotationRequest) error

	// CreateShipment creates a shipment and returns the provider result.
	// Callers must check ShipmentResult.Code before depending on OrderCode.
	CreateShipment(ctx context.Context, req ShipmentRequest) (*ShipmentResult, error)

	// ConfirmDelivery confirms delivery for a shipped order. Confirms with 201.
	ConfirmDelivery(ctx context.Context, req DeliveryConfirmation) error

	// PurchaseExtraRevisions buys extra revisions. Confirms with 200.
	PurchaseExtraRevisions(ctx context.Context, req RevisionPurchaseRequest) error

	// CreateWalletDeposit records a wallet top-up. Confirms with 201.
	CreateWalletDeposit(ctx context.Context, req WalletDepositRequest) error

	// RecordFailedTransaction records a failed payment attempt. Confirms with 201.
	RecordFailedTransaction(ctx context.Context, req FailedTransactionRequest) error
}

// statusError builds the error for a non-confirming settlement call.
func statusError(op string, got, want int) error {
	return fmt.Errorf("%s: %w: got %d, want %d", op, ErrUnexpectedStatus, got, want)
}
