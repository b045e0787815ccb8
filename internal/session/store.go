// Package session provides the payment session store: the client-scoped
// key-value state written before a gateway redirect and consumed by the
// reconciliation controller on return. It replaces the storefront's ambient
// browser storage with an explicit, injectable interface.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/unisew/reconciler/internal/payment"
)

var (
	// ErrKeyNotFound is returned when a session key is not set.
	ErrKeyNotFound = errors.New("session key not found")

	// ErrEmptyKey is returned when the key is empty.
	ErrEmptyKey = errors.New("session key cannot be empty")
)

// Well-known session keys. The processed markers are durable (they survive
// the session); everything else is cleared when the result screen is
// dismissed.
const (
	KeyQuotationDetails = "paymentQuotationDetails"
	KeyRevisionDetails  = "revisionPurchaseDetails"
	KeyWalletDetails    = "walletDetails"
	KeyPaymentType      = "currentPaymentType"
	KeyExtraRevision    = "extraRevision"
	KeyPayFromWallet    = "payFromWallet"
	KeyPaymentMethod    = "paymentMethod"
	KeyUser             = "user"
	KeyRedirectIssued   = "paymentRedirectIssued"

	processedPrefix = "payment_processed_"
)

// PaymentMethodWallet is the paymentMethod value marking a wallet debit.
const PaymentMethodWallet = "wallet"

// Store is a single client session's key-value state.
type Store interface {
	// ID returns the session's identity. Stable for the session's
	// lifetime and distinct across clients.
	ID() string

	// Get returns the value for key. Returns ErrKeyNotFound if unset.
	Get(ctx context.Context, key string) (string, error)

	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Manager hands out per-client session stores.
type Manager interface {
	// Session returns the store scoped to the given session ID.
	Session(id string) Store
}

// ProcessedKey returns the durable marker key for a transaction reference.
func ProcessedKey(ref string) string {
	return processedPrefix + ref
}

// IsProcessedKey reports whether key is a durable processed marker.
func IsProcessedKey(key string) bool {
	return strings.HasPrefix(key, processedPrefix)
}

// HasProcessed reports whether the pipeline for ref already ran in this
// session. Absence of the marker means not processed.
func HasProcessed(ctx context.Context, s Store, ref string) (bool, error) {
	v, err := s.Get(ctx, ProcessedKey(ref))
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// MarkProcessed persists the durable processed marker for ref.
func MarkProcessed(ctx context.Context, s Store, ref string) error {
	return s.Set(ctx, ProcessedKey(ref), "true")
}

// ClearPaymentState removes the intent and the transient payment keys.
// Called when the user dismisses the result screen. Gateway markers are
// keyed by a unique txnRef and stay until the retention window expires,
// but the wallet marker is shared by every wallet debit in the session
// and must go with the dismissal, or the next wallet payment would be
// suppressed as a duplicate.
func ClearPaymentState(ctx context.Context, s Store) error {
	keys := []string{
		KeyQuotationDetails,
		KeyRevisionDetails,
		KeyWalletDetails,
		KeyPaymentType,
		KeyExtraRevision,
		KeyPayFromWallet,
		KeyPaymentMethod,
		KeyRedirectIssued,
		ProcessedKey(payment.WalletRef),
	}
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
