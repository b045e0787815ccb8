package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/unisew/reconciler/internal/middleware"
	"github.com/unisew/reconciler/internal/quotation"
)

// QuotationHandlers serves the quotation submission endpoints.
type QuotationHandlers struct {
	service *quotation.Service
	logger  *slog.Logger
}

// NewQuotationHandlers creates the quotation handler set.
func NewQuotationHandlers(service *quotation.Service, logger *slog.Logger) *QuotationHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotationHandlers{service: service, logger: logger}
}

// quotationRequest is the wire shape of a submission. ValidUntil is a
// calendar date.
type quotationRequest struct {
	OrderID      int64  `json:"orderId"`
	Price        int64  `json:"price"`
	DeliveryDays int    `json:"deliveryDays"`
	ValidUntil   string `json:"validUntil"`
	Note         string `json:"note,omitempty"`
}

func (q quotationRequest) toSubmission() (quotation.Submission, error) {
	sub := quotation.Submission{
		OrderID:      q.OrderID,
		Price:        q.Price,
		DeliveryDays: q.DeliveryDays,
		Note:         q.Note,
	}
	if q.ValidUntil != "" {
		t, err := time.Parse("2006-01-02", q.ValidUntil)
		if err != nil {
			return quotation.Submission{}, err
		}
		sub.ValidUntil = t
	}
	return sub, nil
}

// validationResponse reports per-field errors; valid == true means the
// submission passed every constraint.
type validationResponse struct {
	Valid  bool                  `json:"valid"`
	Errors quotation.FieldErrors `json:"errors"`
}

// Validate handles POST /quotations/validate — the per-keystroke check.
func (h *QuotationHandlers) Validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req quotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	sub, err := req.toSubmission()
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "validUntil must be a YYYY-MM-DD date")
		return
	}

	fe, err := h.service.Check(r.Context(), sub)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to check quotation", "order_id", req.OrderID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to validate quotation")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, validationResponse{Valid: fe.Valid(), Errors: fe})
}

// Submit handles POST /quotations.
func (h *QuotationHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	var req quotationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	sub, err := req.toSubmission()
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "validUntil must be a YYYY-MM-DD date")
		return
	}

	fe, err := h.service.Submit(r.Context(), sub)
	if errors.Is(err, quotation.ErrSubmissionInFlight) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeSubmissionInFlight)
		WriteError(w, ctx, http.StatusConflict, ErrCodeSubmissionInFlight, "A submission for this order is already in progress")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to submit quotation", "order_id", req.OrderID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to submit quotation")
		return
	}
	if !fe.Valid() {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		middleware.UpdateResponseContext(w, ctx)
		writeJSON(w, ctx, http.StatusUnprocessableEntity, validationResponse{Valid: false, Errors: fe})
		return
	}

	writeJSON(w, r.Context(), http.StatusCreated, validationResponse{Valid: true})
}
