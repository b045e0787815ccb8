// Package payment provides the core domain types for post-payment
// reconciliation: payment purposes, outcome signals, and stashed intents.
package payment

import "errors"

// Type identifies the purpose of a payment. Every payment round-trip is
// tagged with exactly one of these before the client is redirected to the
// gateway.
type Type string

// Payment purposes.
const (
	TypeDesign   Type = "design"   // accepting a design quotation
	TypeDeposit  Type = "deposit"  // deposit on a garment order
	TypeOrder    Type = "order"    // remaining balance on a garment order
	TypeRevision Type = "revision" // purchasing extra design revisions
	TypeWallet   Type = "wallet"   // topping up the platform wallet
)

// GatewayCodeSuccess is the gateway response code that indicates a
// successful card payment.
const GatewayCodeSuccess = "00"

// WalletRef is the idempotence key used when no gateway transaction
// reference exists (wallet-funded payments never leave the platform).
const WalletRef = "wallet"

var (
	// ErrUnknownType is returned when a payment type tag is not one of the
	// five enumerated values.
	ErrUnknownType = errors.New("unknown payment type")

	// ErrMalformedIntent is returned when a stashed payment intent cannot
	// be decoded. Callers treat the intent as absent rather than failing.
	ErrMalformedIntent = errors.New("malformed payment intent")
)

// ParseType validates a payment type tag.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeDesign, TypeDeposit, TypeOrder, TypeRevision, TypeWallet:
		return Type(s), nil
	}
	return "", ErrUnknownType
}

// OutcomeSignal carries the raw inputs scraped from the environment after a
// payment round-trip: the gateway redirect parameters and the session state
// written before the redirect.
type OutcomeSignal struct {
	// GatewayResponseCode is the gateway's result code ("00" == success).
	// Empty when the payment never touched the gateway.
	GatewayResponseCode string

	// GatewayTxnRef is the gateway transaction reference, used as the
	// idempotence key. Empty for wallet-funded payments.
	GatewayTxnRef string

	// GatewayAmount is the paid amount in gateway minor units (the display
	// amount multiplied by 100). Zero when absent.
	GatewayAmount int64

	// PaidFromWallet is true when the payment was debited from the
	// platform wallet instead of going through the gateway.
	PaidFromWallet bool

	// Type is the payment purpose read from session state. Empty when the
	// session never recorded one.
	Type Type

	// HasIntent reports whether a stashed payment intent was found for the
	// claimed payment type.
	HasIntent bool
}

// Verdict is the classifier's decision for one outcome signal.
type Verdict struct {
	Success      bool
	Type         Type
	RedirectAway bool
}

// Classify determines payment success or failure from heterogeneous signals.
//
// Wallet-funded payments are always treated as successful, overriding any
// gateway code. Gateway payments succeed only on response code "00". When
// there is no gateway code, no wallet flag, and no stashed intent, the
// reconciliation screen was reached without a valid payment context and the
// caller should redirect away.
//
// A missing payment type tag falls back to TypeDesign. This mirrors the
// storefront's historical behavior; it is a named edge case, not a
// guarantee (see DESIGN.md).
func Classify(sig OutcomeSignal) Verdict {
	t := sig.Type
	if t == "" {
		t = TypeDesign
	}

	if sig.GatewayResponseCode == "" && !sig.PaidFromWallet && !sig.HasIntent {
		return Verdict{Type: t, RedirectAway: true}
	}

	if sig.PaidFromWallet {
		return Verdict{Success: true, Type: t}
	}

	return Verdict{
		Success: sig.GatewayResponseCode == GatewayCodeSuccess,
		Type:    t,
	}
}

// IdempotenceKey returns the key under which the processed marker for this
// signal is persisted.
func (s OutcomeSignal) IdempotenceKey() string {
	if s.GatewayTxnRef != "" {
		return s.GatewayTxnRef
	}
	return WalletRef
}
