package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/unisew/reconciler/internal/payment"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{100000, "100,000"},
		{550000, "550,000"},
		{1234567, "1,234,567"},
		{-20000, "-20,000"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.amount); got != tt.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestBuildOrderEmail(t *testing.T) {
	actor := payment.Actor{ID: "u-1", Email: "head@hilltop.edu", Name: "Hilltop Primary"}
	in := payment.OrderIntent{
		Order: payment.OrderInfo{
			ID:      42,
			Garment: payment.GarmentInfo{Name: "Stitchline Garments"},
		},
		Quotation:   payment.GarmentQuotation{Price: 500000},
		ServiceFee:  20000,
		ShippingFee: 30000,
	}
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	e := BuildOrderEmail(actor, in, true, now)
	if e.Amount != "550,000" {
		t.Errorf("Amount = %q, want %q", e.Amount, "550,000")
	}
	if e.Result != ResultSuccess {
		t.Errorf("Result = %q, want %q", e.Result, ResultSuccess)
	}
	if e.CounterpartName != "Stitchline Garments" || e.CounterpartType != CounterpartGarment {
		t.Errorf("counterpart = %q/%q", e.CounterpartName, e.CounterpartType)
	}
	if e.ItemID != "42" {
		t.Errorf("ItemID = %q, want %q", e.ItemID, "42")
	}
	if e.OccurredAt != "14/03/2026 09:30" {
		t.Errorf("OccurredAt = %q, want %q", e.OccurredAt, "14/03/2026 09:30")
	}

	e = BuildOrderEmail(actor, in, false, now)
	if e.Result != ResultFailed {
		t.Errorf("Result = %q, want %q", e.Result, ResultFailed)
	}
}

func TestHTTPMailer_SendPaymentResult(t *testing.T) {
	var got sendRequest
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/notifications/send" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(status)
	}))
	defer srv.Close()

	m := NewHTTPMailer(srv.URL, nil)
	email := PaymentResultEmail{ReceiverEmail: "head@hilltop.edu", Result: ResultSuccess}

	if err := m.SendPaymentResult(context.Background(), email); err != nil {
		t.Fatalf("SendPaymentResult() error = %v", err)
	}
	if got.Template != TemplatePaymentResult {
		t.Errorf("template = %q, want %q", got.Template, TemplatePaymentResult)
	}

	// Anything but 200 is a failed delivery: the gate must not open.
	for _, s := range []int{http.StatusAccepted, http.StatusBadRequest, http.StatusInternalServerError} {
		status = s
		err := m.SendPaymentResult(context.Background(), email)
		if !errors.Is(err, ErrNotDelivered) {
			t.Errorf("SendPaymentResult() on %d error = %v, want ErrNotDelivered", s, err)
		}
	}
}
