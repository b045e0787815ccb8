package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unisew/reconciler/internal/payment"
)

func TestInMemoryStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryManager().Session("client-1")

	if _, err := s.Get(ctx, KeyPaymentType); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() error = %v, want %v", err, ErrKeyNotFound)
	}

	if err := s.Set(ctx, KeyPaymentType, "order"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	v, err := s.Get(ctx, KeyPaymentType)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v != "order" {
		t.Errorf("Get() = %q, want %q", v, "order")
	}

	if err := s.Delete(ctx, KeyPaymentType); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, KeyPaymentType); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get() after Delete() error = %v, want %v", err, ErrKeyNotFound)
	}

	// Deleting an absent key is not an error.
	if err := s.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete(absent) error = %v, want nil", err)
	}
}

func TestInMemoryStore_EmptyKey(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryManager().Session("client-1")

	if _, err := s.Get(ctx, ""); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("Get(empty) error = %v, want %v", err, ErrEmptyKey)
	}
	if err := s.Set(ctx, "", "x"); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("Set(empty) error = %v, want %v", err, ErrEmptyKey)
	}
}

func TestInMemoryManager_SessionIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryManager()
	a := m.Session("client-a")
	b := m.Session("client-b")

	if err := a.Set(ctx, KeyWalletDetails, `{"totalPrice":100000}`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := b.Get(ctx, KeyWalletDetails); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("cross-session Get() error = %v, want %v", err, ErrKeyNotFound)
	}
}

func TestProcessedMarker(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryManager().Session("client-1")

	done, err := HasProcessed(ctx, s, "12345")
	if err != nil {
		t.Fatalf("HasProcessed() error = %v", err)
	}
	if done {
		t.Error("HasProcessed() = true before MarkProcessed")
	}

	if err := MarkProcessed(ctx, s, "12345"); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}

	done, err = HasProcessed(ctx, s, "12345")
	if err != nil {
		t.Fatalf("HasProcessed() error = %v", err)
	}
	if !done {
		t.Error("HasProcessed() = false after MarkProcessed")
	}

	// The wallet fallback ref uses the same marker scheme.
	if got := ProcessedKey("wallet"); got != "payment_processed_wallet" {
		t.Errorf("ProcessedKey(wallet) = %q, want %q", got, "payment_processed_wallet")
	}
}

func TestClearPaymentState_KeepsGatewayMarkers(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryManager().Session("client-1")

	if err := s.Set(ctx, KeyQuotationDetails, "{}"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, KeyPaymentType, "design"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := MarkProcessed(ctx, s, "12345"); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}

	if err := ClearPaymentState(ctx, s); err != nil {
		t.Fatalf("ClearPaymentState() error = %v", err)
	}

	if _, err := s.Get(ctx, KeyQuotationDetails); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("intent survived ClearPaymentState: error = %v", err)
	}
	done, err := HasProcessed(ctx, s, "12345")
	if err != nil {
		t.Fatalf("HasProcessed() error = %v", err)
	}
	if !done {
		t.Error("gateway marker was cleared by ClearPaymentState")
	}
}

func TestClearPaymentState_ReleasesWalletMarker(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryManager().Session("client-1")

	if err := MarkProcessed(ctx, s, payment.WalletRef); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}

	if err := ClearPaymentState(ctx, s); err != nil {
		t.Fatalf("ClearPaymentState() error = %v", err)
	}

	done, err := HasProcessed(ctx, s, payment.WalletRef)
	if err != nil {
		t.Fatalf("HasProcessed() error = %v", err)
	}
	if done {
		t.Error("wallet marker survived ClearPaymentState; next wallet debit would be suppressed")
	}
}

func TestDeleteProcessedOlderThan(t *testing.T) {
	ctx := context.Background()
	m := NewInMemoryManager()

	current := time.Now()
	m.now = func() time.Time { return current }

	s := m.Session("client-1")
	if err := MarkProcessed(ctx, s, "old-ref"); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}
	if err := s.Set(ctx, KeyPaymentType, "order"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	current = current.Add(48 * time.Hour)
	if err := MarkProcessed(ctx, s, "new-ref"); err != nil {
		t.Fatalf("MarkProcessed() error = %v", err)
	}

	deleted, err := m.DeleteProcessedOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteProcessedOlderThan() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteProcessedOlderThan() = %d, want 1", deleted)
	}

	if done, _ := HasProcessed(ctx, s, "old-ref"); done {
		t.Error("old marker survived cleanup")
	}
	if done, _ := HasProcessed(ctx, s, "new-ref"); !done {
		t.Error("fresh marker removed by cleanup")
	}
	// Non-marker keys are untouched even when old.
	if _, err := s.Get(ctx, KeyPaymentType); err != nil {
		t.Errorf("non-marker key removed by cleanup: %v", err)
	}
}
