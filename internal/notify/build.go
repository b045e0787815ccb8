package notify

import (
	"strconv"
	"time"

	"github.com/unisew/reconciler/internal/payment"
)

// Counterpart types rendered into the email.
const (
	CounterpartDesigner = "designer"
	CounterpartGarment  = "garment factory"
	CounterpartPlatform = "platform"
)

// timestampLayout matches the storefront's rendered date/time.
const timestampLayout = "02/01/2006 15:04"

// FormatAmount renders a currency-unit amount with thousands separators,
// e.g. 550000 -> "550,000".
func FormatAmount(amount int64) string {
	s := strconv.FormatInt(amount, 10)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}

	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

func result(success bool) string {
	if success {
		return ResultSuccess
	}
	return ResultFailed
}

func base(actor payment.Actor, success bool, now time.Time) PaymentResultEmail {
	return PaymentResultEmail{
		ReceiverID:    actor.ID,
		ReceiverEmail: actor.Email,
		ReceiverName:  actor.Name,
		OccurredAt:    now.Format(timestampLayout),
		Result:        result(success),
	}
}

// BuildDesignEmail projects a design-quotation payment into an email.
func BuildDesignEmail(actor payment.Actor, in payment.DesignIntent, success bool, now time.Time) PaymentResultEmail {
	e := base(actor, success, now)
	e.Amount = FormatAmount(in.TotalAmount)
	e.CounterpartName = in.Quotation.DesignerName
	e.CounterpartType = CounterpartDesigner
	e.ItemID = strconv.FormatInt(in.Request.ID, 10)
	return e
}

// BuildOrderEmail projects an order deposit or balance payment into an
// email. The amount is the full declared value: base price plus fees.
func BuildOrderEmail(actor payment.Actor, in payment.OrderIntent, success bool, now time.Time) PaymentResultEmail {
	e := base(actor, success, now)
	e.Amount = FormatAmount(in.TotalAmount())
	e.CounterpartName = in.Order.Garment.Name
	e.CounterpartType = CounterpartGarment
	e.ItemID = strconv.FormatInt(in.Order.ID, 10)
	return e
}

// BuildRevisionEmail projects an extra-revision purchase into an email.
func BuildRevisionEmail(actor payment.Actor, in payment.RevisionIntent, success bool, now time.Time) PaymentResultEmail {
	e := base(actor, success, now)
	e.Amount = FormatAmount(in.ExtraRevisionPrice)
	e.CounterpartName = in.DesignerName
	e.CounterpartType = CounterpartDesigner
	e.ItemID = strconv.FormatInt(in.RequestID, 10)
	return e
}

// BuildWalletEmail projects a wallet top-up into an email; the counterpart
// is the platform itself.
func BuildWalletEmail(actor payment.Actor, in payment.WalletIntent, success bool, now time.Time) PaymentResultEmail {
	e := base(actor, success, now)
	e.Amount = FormatAmount(in.TotalPrice)
	e.CounterpartName = CounterpartPlatform
	e.CounterpartType = CounterpartPlatform
	e.ItemID = actor.ID
	return e
}
