package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/unisew/reconciler/internal/gateway"
	"github.com/unisew/reconciler/internal/middleware"
	"github.com/unisew/reconciler/internal/payment"
	"github.com/unisew/reconciler/internal/reconcile"
	"github.com/unisew/reconciler/internal/session"
)

// PaymentHandlers serves the checkout and reconciliation endpoints.
type PaymentHandlers struct {
	sessions   session.Manager
	controller *reconcile.Controller
	vnpay      gateway.Config
	stripe     gateway.StripeClient
	stripeURLs struct {
		success string
		cancel  string
	}
	logger *slog.Logger
	now    func() time.Time
}

// PaymentHandlersConfig configures the payment handlers.
type PaymentHandlersConfig struct {
	Sessions         session.Manager
	Controller       *reconcile.Controller
	VNPay            gateway.Config
	Stripe           gateway.StripeClient
	StripeSuccessURL string
	StripeCancelURL  string
	Logger           *slog.Logger
}

// NewPaymentHandlers creates the payment handler set.
func NewPaymentHandlers(cfg PaymentHandlersConfig) *PaymentHandlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &PaymentHandlers{
		sessions:   cfg.Sessions,
		controller: cfg.Controller,
		vnpay:      cfg.VNPay,
		stripe:     cfg.Stripe,
		logger:     logger,
		now:        time.Now,
	}
	h.stripeURLs.success = cfg.StripeSuccessURL
	h.stripeURLs.cancel = cfg.StripeCancelURL
	return h
}

// sessionFor returns the per-user payment session. Sessions are keyed by
// the authenticated user: one in-flight payment per user at a time.
func (h *PaymentHandlers) sessionFor(r *http.Request) (session.Store, bool) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil || claims.Subject == "" {
		return nil, false
	}
	return h.sessions.Session(claims.Subject), true
}

// CheckoutRequest stashes a payment intent and requests a gateway redirect.
type CheckoutRequest struct {
	PaymentType   string          `json:"paymentType"`
	Intent        json.RawMessage `json:"intent"`
	Amount        int64           `json:"amount"`
	Description   string          `json:"description,omitempty"`
	ExtraRevision int             `json:"extraRevision,omitempty"`
	PayFromWallet bool            `json:"payFromWallet,omitempty"`
}

// CheckoutResponse carries the gateway redirect (or the wallet-debit
// confirmation that no redirect is needed).
type CheckoutResponse struct {
	PayURL string `json:"payUrl,omitempty"`
	TxnRef string `json:"txnRef,omitempty"`
}

// Checkout handles POST /payments/checkout.
// It persists the payment intent into the caller's session exactly the way
// the reconciliation controller expects to find it after the gateway
// redirect, then returns a signed pay URL. Wallet debits skip the redirect:
// the caller proceeds straight to /payments/wallet/complete.
func (h *PaymentHandlers) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	sess, ok := h.sessionFor(r)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	pt, err := payment.ParseType(req.PaymentType)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Unknown payment type")
		return
	}
	if req.Amount <= 0 && !req.PayFromWallet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Amount must be positive")
		return
	}

	ctx := r.Context()
	if err := h.stashIntent(r, sess, pt, req); err != nil {
		h.logger.ErrorContext(ctx, "failed to stash payment intent", "error", err)
		errCtx := middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, errCtx, http.StatusInternalServerError, ErrCodeInternal, "Failed to persist payment intent")
		return
	}

	if req.PayFromWallet {
		writeJSON(w, ctx, http.StatusOK, CheckoutResponse{TxnRef: payment.WalletRef})
		return
	}

	txnRef := uuid.New().String()
	payURL := gateway.BuildPayURL(h.vnpay, gateway.PayURLRequest{
		TxnRef:    txnRef,
		Amount:    req.Amount,
		OrderInfo: req.Description,
		ClientIP:  clientIP(r),
		Now:       h.now(),
	})

	h.logger.InfoContext(ctx, "checkout initiated",
		"payment_type", pt,
		"txn_ref", txnRef,
		"amount", req.Amount,
	)
	writeJSON(w, ctx, http.StatusOK, CheckoutResponse{PayURL: payURL, TxnRef: txnRef})
}

// stashIntent writes the session keys the controller will read on return.
func (h *PaymentHandlers) stashIntent(r *http.Request, sess session.Store, pt payment.Type, req CheckoutRequest) error {
	ctx := r.Context()

	if err := sess.Set(ctx, session.KeyPaymentType, string(pt)); err != nil {
		return err
	}

	intentKey := session.KeyQuotationDetails
	switch pt {
	case payment.TypeRevision:
		intentKey = session.KeyRevisionDetails
	case payment.TypeWallet:
		intentKey = session.KeyWalletDetails
	}
	if len(req.Intent) > 0 {
		if err := sess.Set(ctx, intentKey, string(req.Intent)); err != nil {
			return err
		}
	}

	if req.ExtraRevision > 0 {
		if err := sess.Set(ctx, session.KeyExtraRevision, strconv.Itoa(req.ExtraRevision)); err != nil {
			return err
		}
	}

	wallet := "false"
	method := "gateway"
	if req.PayFromWallet {
		wallet = "true"
		method = "wallet"
	}
	if err := sess.Set(ctx, session.KeyPayFromWallet, wallet); err != nil {
		return err
	}
	if err := sess.Set(ctx, session.KeyPaymentMethod, method); err != nil {
		return err
	}

	// Persist the actor profile for notification building.
	claims := middleware.GetClaims(ctx)
	actor, err := json.Marshal(payment.Actor{ID: claims.Subject, Email: claims.Email, Name: claims.Name})
	if err != nil {
		return err
	}
	return sess.Set(ctx, session.KeyUser, string(actor))
}

// ReconcileResponse is the user-facing payment outcome.
type ReconcileResponse struct {
	Success          bool   `json:"success"`
	PaymentType      string `json:"paymentType"`
	TxnRef           string `json:"txnRef,omitempty"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
	RedirectAway     bool   `json:"redirectAway"`
}

// Return handles GET /payments/return — the gateway redirect target.
// The signature is verified before anything else; a forged return must not
// reach the controller.
func (h *PaymentHandlers) Return(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	sess, ok := h.sessionFor(r)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	query := r.URL.Query()
	if query.Get(gateway.ParamSecureHash) != "" || query.Get(gateway.ParamResponseCode) != "" {
		if err := gateway.VerifyReturn(h.vnpay.HashSecret, query); err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidSignature)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidSignature, "Gateway signature verification failed")
			return
		}
	}

	h.resolve(w, r, sess, gateway.ParseReturn(query))
}

// WalletComplete handles POST /payments/wallet/complete — the wallet-debit
// equivalent of the gateway return. No gateway parameters exist; the
// controller classifies from session state alone.
func (h *PaymentHandlers) WalletComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	sess, ok := h.sessionFor(r)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	h.resolve(w, r, sess, gateway.Return{})
}

func (h *PaymentHandlers) resolve(w http.ResponseWriter, r *http.Request, sess session.Store, ret gateway.Return) {
	ctx := r.Context()
	result, err := h.controller.Resolve(ctx, sess, ret)
	if err != nil {
		h.logger.ErrorContext(ctx, "reconciliation failed", "error", err)
		errCtx := middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, errCtx, http.StatusInternalServerError, ErrCodeInternal, "Failed to resolve payment outcome")
		return
	}

	writeJSON(w, ctx, http.StatusOK, ReconcileResponse{
		Success:          result.Verdict.Success,
		PaymentType:      string(result.Verdict.Type),
		TxnRef:           result.TxnRef,
		AlreadyProcessed: result.AlreadyProcessed,
		RedirectAway:     result.Verdict.RedirectAway,
	})
}

// TopUpRequest initiates an international-card wallet top-up.
type TopUpRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

// TopUp handles POST /payments/wallet/topup via Stripe Checkout.
func (h *PaymentHandlers) TopUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	claims := middleware.GetClaims(r.Context())
	if claims == nil || claims.Subject == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}
	if h.stripe == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeGatewayUnavailable)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeGatewayUnavailable, "Card top-ups are not configured")
		return
	}

	var req TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Amount must be positive")
		return
	}

	checkoutSession, err := h.stripe.CreateTopUpSession(&gateway.TopUpSessionParams{
		UserID:      claims.Subject,
		Amount:      req.Amount,
		Description: req.Description,
		SuccessURL:  h.stripeURLs.success,
		CancelURL:   h.stripeURLs.cancel,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create top-up session", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeGatewayUnavailable)
		WriteError(w, ctx, http.StatusBadGateway, ErrCodeGatewayUnavailable, "Failed to create checkout session")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, map[string]string{
		"sessionId":   checkoutSession.ID,
		"checkoutUrl": checkoutSession.URL,
	})
}

// DismissSession handles DELETE /payments/session.
// Called when the user leaves the result screen: the intent and transient
// payment keys are cleared while processed markers stay durable.
func (h *PaymentHandlers) DismissSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	sess, ok := h.sessionFor(r)
	if !ok {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	if err := session.ClearPaymentState(r.Context(), sess); err != nil && !errors.Is(err, session.ErrKeyNotFound) {
		h.logger.ErrorContext(r.Context(), "failed to clear payment state", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to clear payment session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// clientIP extracts the caller address for the gateway's vnp_IpAddr field.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
