package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/unisew/reconciler/internal/backend"
	"github.com/unisew/reconciler/internal/gateway"
	"github.com/unisew/reconciler/internal/journal"
	"github.com/unisew/reconciler/internal/notify"
	"github.com/unisew/reconciler/internal/payment"
	"github.com/unisew/reconciler/internal/session"
)

// State is the lifecycle of one pipeline invocation.
type State string

// Pipeline states.
const (
	StateNotStarted State = "not_started"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// DefaultSettleDelay is the pause after a successful revision purchase,
// giving the backend time to propagate state before the storefront
// re-reads it.
const DefaultSettleDelay = 2 * time.Second

// Result is what the controller reports back to the rendering layer. The
// user-visible payment status comes from Verdict alone; State describes the
// bookkeeping outcome and is an operational concern.
type Result struct {
	Verdict          payment.Verdict
	State            State
	AlreadyProcessed bool
	TxnRef           string
}

// Deps are the controller's collaborators.
type Deps struct {
	Backend backend.Client
	Mailer  notify.Mailer
	Journal journal.Repository
	Metrics *Metrics
	Logger  *slog.Logger

	// SettleDelay overrides DefaultSettleDelay when positive.
	SettleDelay time.Duration
}

// Controller resolves payment outcomes after the client returns from the
// gateway (or completes a wallet debit). One controller serves all
// sessions; per-key in-flight tracking prevents a second invocation from
// starting a pipeline while one is running.
type Controller struct {
	backend     backend.Client
	mailer      notify.Mailer
	journal     journal.Repository
	metrics     *Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	settleDelay time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a reconciliation controller.
func New(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := deps.SettleDelay
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	return &Controller{
		backend:     deps.Backend,
		mailer:      deps.Mailer,
		journal:     deps.Journal,
		metrics:     deps.Metrics,
		logger:      logger,
		tracer:      otel.Tracer("reconcile"),
		settleDelay: delay,
		now:         time.Now,
		sleep:       sleepContext,
		inflight:    make(map[string]struct{}),
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Resolve classifies the payment outcome for one session and, unless the
// idempotence guard suppresses it, runs the matching settlement pipeline to
// completion. The returned Result is safe to render regardless of pipeline
// outcome; settlement gaps are journaled, not surfaced.
func (c *Controller) Resolve(ctx context.Context, sess session.Store, ret gateway.Return) (*Result, error) {
	sig := c.buildSignal(ctx, sess, ret)
	verdict := payment.Classify(sig)

	ctx, span := c.tracer.Start(ctx, "reconcile.resolve",
		trace.WithAttributes(
			attribute.String("payment.type", string(verdict.Type)),
			attribute.Bool("payment.success", verdict.Success),
			attribute.String("payment.txn_ref", sig.IdempotenceKey()),
		))
	defer span.End()

	if verdict.RedirectAway {
		return c.handleRedirect(ctx, sess, verdict)
	}

	key := sig.IdempotenceKey()
	result := &Result{Verdict: verdict, State: StateNotStarted, TxnRef: key}

	// Test-and-set before any network call: a concurrent invocation for
	// the same key must observe the in-flight mark, not a half-finished
	// pipeline. The map is process-global while the idempotence key is
	// session-scoped (every wallet debit shares "wallet"), so the guard
	// key carries the session identity.
	guardKey := sess.ID() + "/" + key
	c.mu.Lock()
	if _, busy := c.inflight[guardKey]; busy {
		c.mu.Unlock()
		c.metrics.ObserveDuplicate()
		result.State = StateProcessing
		result.AlreadyProcessed = true
		return result, nil
	}
	c.inflight[guardKey] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, guardKey)
		c.mu.Unlock()
	}()

	done, err := session.HasProcessed(ctx, sess, key)
	if err != nil {
		// A broken marker read must not risk double settlement.
		c.logger.ErrorContext(ctx, "failed to read processed marker", "txn_ref", key, "error", err)
		return nil, err
	}
	if done {
		c.metrics.ObserveDuplicate()
		result.State = StateCompleted
		result.AlreadyProcessed = true
		return result, nil
	}

	// The marker is persisted on every exit path, including settlement
	// failures: fail once, never retry automatically.
	defer func() {
		if err := session.MarkProcessed(ctx, sess, key); err != nil {
			c.logger.ErrorContext(ctx, "failed to persist processed marker", "txn_ref", key, "error", err)
		}
	}()

	start := c.now()
	result.State = c.dispatch(ctx, sess, verdict, sig)
	c.metrics.ObservePipeline(string(verdict.Type), result.State, c.now().Sub(start).Seconds())

	c.logger.InfoContext(ctx, "pipeline finished",
		"payment_type", verdict.Type,
		"success", verdict.Success,
		"txn_ref", key,
		"state", result.State,
	)

	return result, nil
}

// handleRedirect fires the redirect-away verdict at most once per session
// to avoid redirect loops when the result screen re-renders.
func (c *Controller) handleRedirect(ctx context.Context, sess session.Store, verdict payment.Verdict) (*Result, error) {
	_, err := sess.Get(ctx, session.KeyRedirectIssued)
	if err == nil {
		// Already redirected once; go inert.
		verdict.RedirectAway = false
		return &Result{Verdict: verdict, State: StateNotStarted}, nil
	}
	if !errors.Is(err, session.ErrKeyNotFound) {
		return nil, err
	}

	if err := sess.Set(ctx, session.KeyRedirectIssued, "true"); err != nil {
		return nil, err
	}
	return &Result{Verdict: verdict, State: StateNotStarted}, nil
}

// buildSignal assembles the outcome signal from the gateway return and the
// session state stashed before the redirect.
func (c *Controller) buildSignal(ctx context.Context, sess session.Store, ret gateway.Return) payment.OutcomeSignal {
	sig := payment.OutcomeSignal{
		GatewayResponseCode: ret.ResponseCode,
		GatewayTxnRef:       ret.TxnRef,
		GatewayAmount:       ret.AmountMinor,
	}

	if v, err := sess.Get(ctx, session.KeyPayFromWallet); err == nil && v == "true" {
		sig.PaidFromWallet = true
	}
	if v, err := sess.Get(ctx, session.KeyPaymentType); err == nil {
		if t, perr := payment.ParseType(v); perr == nil {
			sig.Type = t
		}
	}

	t := sig.Type
	if t == "" {
		t = payment.TypeDesign
	}
	if _, err := sess.Get(ctx, intentKey(t)); err == nil {
		sig.HasIntent = true
	}

	return sig
}

// intentKey maps a payment purpose to the session key its intent is
// stashed under. Design, order and deposit share the quotation record.
func intentKey(t payment.Type) string {
	switch t {
	case payment.TypeRevision:
		return session.KeyRevisionDetails
	case payment.TypeWallet:
		return session.KeyWalletDetails
	default:
		return session.KeyQuotationDetails
	}
}

// actor reads the persisted user profile. A missing or malformed profile
// yields a zero actor; pipelines treat its fields as absent.
func (c *Controller) actor(ctx context.Context, sess session.Store) payment.Actor {
	raw, err := sess.Get(ctx, session.KeyUser)
	if err != nil {
		return payment.Actor{}
	}
	a, err := payment.DecodeActor(raw)
	if err != nil {
		c.logger.WarnContext(ctx, "malformed user profile in session", "error", err)
		return payment.Actor{}
	}
	return *a
}

// extraRevision reads the purchased extra-revision count stashed with a
// design payment. Absent or malformed values count as zero.
func (c *Controller) extraRevision(ctx context.Context, sess session.Store) int {
	raw, err := sess.Get(ctx, session.KeyExtraRevision)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// recordGap journals a settlement gap and mirrors it to the structured log
// and metrics. Gaps are operational signals only; they never block the
// user-visible result.
func (c *Controller) recordGap(ctx context.Context, t payment.Type, txnRef, stage, detail string) {
	c.metrics.ObserveGap(string(t), stage)
	c.logger.WarnContext(ctx, "settlement gap",
		"payment_type", t,
		"txn_ref", txnRef,
		"stage", stage,
		"detail", detail,
	)
	if c.journal == nil {
		return
	}
	entry := &journal.Entry{
		TxnRef:      txnRef,
		PaymentType: string(t),
		Stage:       stage,
		Detail:      detail,
	}
	if err := c.journal.Insert(ctx, entry); err != nil {
		c.logger.ErrorContext(ctx, "failed to journal settlement gap", "error", err)
	}
}
