// Package quotation validates garment-quotation submissions against the
// order they answer. A factory quotes a price, a delivery time in days and
// a validity date; all three temporal constraints must hold before the
// submission is accepted.
package quotation

import (
	"context"
	"errors"
	"time"
)

// dateLayout is how deadlines are rendered in validation messages.
const dateLayout = "02/01/2006"

// ErrSubmissionInFlight is returned when a second submission for the same
// order arrives while the first is still being processed.
var ErrSubmissionInFlight = errors.New("quotation submission already in flight for this order")

// Submission is one factory quotation for a garment order.
type Submission struct {
	OrderID      int64     `json:"orderId"`
	Price        int64     `json:"price"`
	DeliveryDays int       `json:"deliveryDays"`
	ValidUntil   time.Time `json:"validUntil"`
	Note         string    `json:"note,omitempty"`
}

// FieldErrors holds per-field validation messages. An empty message means
// the field passed.
type FieldErrors struct {
	DeliveryDays string `json:"deliveryDays,omitempty"`
	ValidUntil   string `json:"validUntil,omitempty"`
	Deadline     string `json:"deadline,omitempty"`
}

// Valid reports whether every field passed.
func (fe FieldErrors) Valid() bool {
	return fe.DeliveryDays == "" && fe.ValidUntil == "" && fe.Deadline == ""
}

// endOfDay returns the last representable instant of t's calendar day.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999_000_000, t.Location())
}

// startOfDay truncates t to midnight in its location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Validate checks the three temporal constraints against the order
// deadline. It is pure: callers re-run it on every field change and once
// more at submission time.
func Validate(sub Submission, deadline time.Time, now time.Time) FieldErrors {
	var fe FieldErrors

	if sub.DeliveryDays < 1 {
		fe.DeliveryDays = "delivery time must be at least 1 day"
	}

	if !sub.ValidUntil.IsZero() && !startOfDay(sub.ValidUntil).After(startOfDay(now)) {
		fe.ValidUntil = "valid-until date must be after today"
	}
	if sub.ValidUntil.IsZero() {
		fe.ValidUntil = "valid-until date is required"
	}

	if sub.DeliveryDays >= 1 && !deadline.IsZero() {
		earliest := now.AddDate(0, 0, sub.DeliveryDays)
		if earliest.After(endOfDay(deadline)) {
			fe.Deadline = "earliest delivery date exceeds the order deadline " + deadline.Format(dateLayout)
		}
	}

	return fe
}

// OrderDeadlines resolves an order's deadline; the storefront backend owns
// order records.
type OrderDeadlines interface {
	Deadline(ctx context.Context, orderID int64) (time.Time, error)
}

// Submitter forwards an accepted submission to the storefront backend.
type Submitter interface {
	SubmitQuotation(ctx context.Context, sub Submission) error
}
