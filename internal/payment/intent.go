package payment

import "encoding/json"

// A payment intent is written to the session store before the client is
// redirected to the gateway and read back exactly once by the reconciliation
// controller. Each payment purpose stashes a differently shaped record.

// DesignQuotation identifies the design quotation being accepted.
type DesignQuotation struct {
	ID           int64  `json:"id"`
	DesignerID   string `json:"designerId"`
	DesignerName string `json:"designerName"`
}

// DesignRequest identifies the design request a quotation answers.
type DesignRequest struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DesignIntent is stashed before paying for a design quotation.
type DesignIntent struct {
	Quotation   DesignQuotation `json:"quotation"`
	Request     DesignRequest   `json:"request"`
	ServiceFee  int64           `json:"serviceFee"`
	Subtotal    int64           `json:"subtotal"`
	TotalAmount int64           `json:"totalAmount"`
}

// Receiver is the shipping destination for a garment order, taken from the
// ordering school's profile.
type Receiver struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// GarmentInfo identifies the factory fulfilling an order, including the
// shipping-provider account used to create shipments on its behalf.
type GarmentInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ShippingAccountID string `json:"shippingAccountId"`
}

// OrderInfo identifies the garment order being paid for.
type OrderInfo struct {
	ID       int64       `json:"id"`
	School   Receiver    `json:"school"`
	Garment  GarmentInfo `json:"garment"`
	Deadline string      `json:"deadline,omitempty"`
}

// GarmentQuotation carries the accepted quotation's base price for an order.
type GarmentQuotation struct {
	ID    int64 `json:"id"`
	Price int64 `json:"price"`
}

// OrderIntent is stashed before paying an order deposit or balance. The
// deposit and full-payment purposes share this shape.
type OrderIntent struct {
	Order       OrderInfo        `json:"order"`
	Quotation   GarmentQuotation `json:"quotation"`
	ServiceFee  int64            `json:"serviceFee"`
	ShippingFee int64            `json:"shippingFee"`
	Description string           `json:"description"`
}

// TotalAmount is the declared order value passed to shipment creation:
// base price plus service fee plus shipping fee.
func (in OrderIntent) TotalAmount() int64 {
	return in.Quotation.Price + in.ServiceFee + in.ShippingFee
}

// RevisionIntent is stashed before purchasing extra design revisions.
type RevisionIntent struct {
	RequestID          int64  `json:"requestId"`
	RevisionQuantity   int    `json:"revisionQuantity"`
	DesignerID         string `json:"designerId"`
	DesignerName       string `json:"designerName"`
	ExtraRevisionPrice int64  `json:"extraRevisionPrice"`
}

// WalletIntent is stashed before a wallet top-up.
type WalletIntent struct {
	TotalPrice  int64  `json:"totalPrice"`
	Description string `json:"description"`
}

// Actor is the current user profile persisted alongside the intent. The
// reconciliation pipelines use it as the transaction receiver and email
// recipient.
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// decodeIntent unmarshals a stashed record, mapping any parse failure to
// ErrMalformedIntent so callers can treat the intent as absent.
func decodeIntent(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return ErrMalformedIntent
	}
	return nil
}

// DecodeDesignIntent parses a stashed design intent.
func DecodeDesignIntent(raw string) (*DesignIntent, error) {
	var in DesignIntent
	if err := decodeIntent(raw, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// DecodeOrderIntent parses a stashed order or deposit intent.
func DecodeOrderIntent(raw string) (*OrderIntent, error) {
	var in OrderIntent
	if err := decodeIntent(raw, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// DecodeRevisionIntent parses a stashed revision-purchase intent.
func DecodeRevisionIntent(raw string) (*RevisionIntent, error) {
	var in RevisionIntent
	if err := decodeIntent(raw, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// DecodeWalletIntent parses a stashed wallet top-up intent.
func DecodeWalletIntent(raw string) (*WalletIntent, error) {
	var in WalletIntent
	if err := decodeIntent(raw, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// DecodeActor parses the persisted user profile.
func DecodeActor(raw string) (*Actor, error) {
	var a Actor
	if err := decodeIntent(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
