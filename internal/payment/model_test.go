package payment

import (
	"errors"
	"testing"
)

func TestClassify_WalletAlwaysSucceeds(t *testing.T) {
	// The wallet flag overrides any gateway code, including failure codes.
	codes := []string{"", "00", "07", "24", "99"}
	for _, code := range codes {
		sig := OutcomeSignal{
			GatewayResponseCode: code,
			PaidFromWallet:      true,
			Type:                TypeWallet,
			HasIntent:           true,
		}
		v := Classify(sig)
		if !v.Success {
			t.Errorf("Classify(code=%q, wallet=true) Success = false, want true", code)
		}
		if v.RedirectAway {
			t.Errorf("Classify(code=%q, wallet=true) RedirectAway = true, want false", code)
		}
	}
}

func TestClassify_GatewayCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		success bool
	}{
		{name: "success code", code: "00", success: true},
		{name: "user abandoned", code: "24", success: false},
		{name: "insufficient funds", code: "07", success: false},
		{name: "unknown failure", code: "99", success: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := OutcomeSignal{
				GatewayResponseCode: tt.code,
				GatewayTxnRef:       "12345",
				Type:                TypeOrder,
				HasIntent:           true,
			}
			v := Classify(sig)
			if v.Success != tt.success {
				t.Errorf("Classify(code=%q) Success = %v, want %v", tt.code, v.Success, tt.success)
			}
		})
	}
}

func TestClassify_RedirectAway(t *testing.T) {
	// No gateway code, no wallet flag, no intent: invalid payment context.
	v := Classify(OutcomeSignal{})
	if !v.RedirectAway {
		t.Error("Classify(empty signal) RedirectAway = false, want true")
	}

	// An intent alone keeps the screen alive even without a gateway code.
	v = Classify(OutcomeSignal{Type: TypeDesign, HasIntent: true})
	if v.RedirectAway {
		t.Error("Classify(intent only) RedirectAway = true, want false")
	}
	if v.Success {
		t.Error("Classify(intent only) Success = true, want false")
	}
}

func TestClassify_MissingTypeDefaultsToDesign(t *testing.T) {
	// Named edge case: the storefront historically fell back to the design
	// purpose when no payment type was recorded. Preserved verbatim.
	sig := OutcomeSignal{GatewayResponseCode: "00", GatewayTxnRef: "777", HasIntent: true}
	v := Classify(sig)
	if v.Type != TypeDesign {
		t.Errorf("Classify(unset type) Type = %v, want %v", v.Type, TypeDesign)
	}
}

func TestParseType(t *testing.T) {
	for _, s := range []string{"design", "deposit", "order", "revision", "wallet"} {
		if _, err := ParseType(s); err != nil {
			t.Errorf("ParseType(%q) error = %v, want nil", s, err)
		}
	}
	if _, err := ParseType("refund"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("ParseType(refund) error = %v, want %v", err, ErrUnknownType)
	}
}

func TestIdempotenceKey(t *testing.T) {
	sig := OutcomeSignal{GatewayTxnRef: "12345"}
	if got := sig.IdempotenceKey(); got != "12345" {
		t.Errorf("IdempotenceKey() = %q, want %q", got, "12345")
	}

	sig = OutcomeSignal{PaidFromWallet: true}
	if got := sig.IdempotenceKey(); got != WalletRef {
		t.Errorf("IdempotenceKey() = %q, want %q", got, WalletRef)
	}
}
