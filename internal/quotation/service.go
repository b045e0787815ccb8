package quotation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Service validates and submits quotations. Submission for an order is
// single-flight: a second attempt while one is pending is rejected rather
// than queued, mirroring the disabled submit button it replaces.
type Service struct {
	orders    OrderDeadlines
	submitter Submitter
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending map[int64]struct{}
}

// NewService creates a quotation service.
func NewService(orders OrderDeadlines, submitter Submitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orders:    orders,
		submitter: submitter,
		logger:    logger,
		now:       time.Now,
		pending:   make(map[int64]struct{}),
	}
}

// Check validates a submission without submitting it. Used while the form
// is being filled in.
func (s *Service) Check(ctx context.Context, sub Submission) (FieldErrors, error) {
	deadline, err := s.orders.Deadline(ctx, sub.OrderID)
	if err != nil {
		return FieldErrors{}, err
	}
	return Validate(sub, deadline, s.now()), nil
}

// Submit re-validates and forwards the quotation. Validation runs again
// here even when the caller just ran Check: form state can go stale between
// the last keystroke and the submit.
func (s *Service) Submit(ctx context.Context, sub Submission) (FieldErrors, error) {
	s.mu.Lock()
	if _, busy := s.pending[sub.OrderID]; busy {
		s.mu.Unlock()
		return FieldErrors{}, ErrSubmissionInFlight
	}
	s.pending[sub.OrderID] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, sub.OrderID)
		s.mu.Unlock()
	}()

	deadline, err := s.orders.Deadline(ctx, sub.OrderID)
	if err != nil {
		return FieldErrors{}, err
	}

	fe := Validate(sub, deadline, s.now())
	if !fe.Valid() {
		return fe, nil
	}

	if err := s.submitter.SubmitQuotation(ctx, sub); err != nil {
		return FieldErrors{}, err
	}

	s.logger.InfoContext(ctx, "quotation submitted",
		"order_id", sub.OrderID,
		"price", sub.Price,
		"delivery_days", sub.DeliveryDays,
	)
	return FieldErrors{}, nil
}
