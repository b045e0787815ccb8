package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unisew/reconciler/internal/backend"
	"github.com/unisew/reconciler/internal/gateway"
	"github.com/unisew/reconciler/internal/journal"
	"github.com/unisew/reconciler/internal/notify"
	"github.com/unisew/reconciler/internal/payment"
	"github.com/unisew/reconciler/internal/session"
)

type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	pickErr    error
	approveErr error
	shipErr    error
	shipResult backend.ShipmentResult
	deliverErr error
	reviseErr  error
	depositErr error
	failedErr  error

	lastPick     backend.PickQuotationRequest
	lastApprove  backend.ApproveQuotationRequest
	lastShipment backend.ShipmentRequest
	lastDelivery backend.DeliveryConfirmation
	lastRevision backend.RevisionPurchaseRequest
	lastDeposit  backend.WalletDepositRequest
	lastFailed   backend.FailedTransactionRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{shipResult: backend.ShipmentResult{Code: backend.ShipmentCodeOK, OrderCode: "GHN789"}}
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeBackend) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeBackend) PickQuotation(ctx context.Context, req backend.PickQuotationRequest) error {
	f.record("pick")
	f.lastPick = req
	return f.pickErr
}

func (f *fakeBackend) ApproveQuotation(ctx context.Context, req backend.ApproveQuotationRequest) error {
	f.record("approve")
	f.lastApprove = req
	return f.approveErr
}

func (f *fakeBackend) CreateShipment(ctx context.Context, req backend.ShipmentRequest) (*backend.ShipmentResult, error) {
	f.record("ship")
	f.lastShipment = req
	if f.shipErr != nil {
		return nil, f.shipErr
	}
	res := f.shipResult
	return &res, nil
}

func (f *fakeBackend) ConfirmDelivery(ctx context.Context, req backend.DeliveryConfirmation) error {
	f.record("deliver")
	f.lastDelivery = req
	return f.deliverErr
}

func (f *fakeBackend) PurchaseExtraRevisions(ctx context.Context, req backend.RevisionPurchaseRequest) error {
	f.record("revise")
	f.lastRevision = req
	return f.reviseErr
}

func (f *fakeBackend) CreateWalletDeposit(ctx context.Context, req backend.WalletDepositRequest) error {
	f.record("deposit")
	f.lastDeposit = req
	return f.depositErr
}

func (f *fakeBackend) RecordFailedTransaction(ctx context.Context, req backend.FailedTransactionRequest) error {
	f.record("failed")
	f.lastFailed = req
	return f.failedErr
}

type fakeMailer struct {
	mu     sync.Mutex
	sent   []notify.PaymentResultEmail
	err    error
	gate   chan struct{} // when non-nil, Send blocks until closed
	onSend chan struct{} // when non-nil, signalled once per Send
}

func (f *fakeMailer) SendPaymentResult(ctx context.Context, email notify.PaymentResultEmail) error {
	if f.onSend != nil {
		f.onSend <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.sent = append(f.sent, email)
	f.mu.Unlock()
	return f.err
}

func (f *fakeMailer) sentEmails() []notify.PaymentResultEmail {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.PaymentResultEmail, len(f.sent))
	copy(out, f.sent)
	return out
}

type harness struct {
	controller *Controller
	backend    *fakeBackend
	mailer     *fakeMailer
	journal    *journal.InMemoryRepository
	sess       session.Store
	slept      []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		backend: newFakeBackend(),
		mailer:  &fakeMailer{},
		journal: journal.NewInMemoryRepository(),
		sess:    session.NewInMemoryManager().Session("test-session"),
	}
	h.controller = New(Deps{
		Backend: h.backend,
		Mailer:  h.mailer,
		Journal: h.journal,
	})
	h.controller.now = func() time.Time {
		return time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	}
	h.controller.sleep = func(ctx context.Context, d time.Duration) {
		h.slept = append(h.slept, d)
	}
	return h
}

func (h *harness) set(t *testing.T, key, value string) {
	t.Helper()
	if err := h.sess.Set(context.Background(), key, value); err != nil {
		t.Fatalf("Set(%q) = %v", key, err)
	}
}

func (h *harness) stashActor(t *testing.T) {
	h.set(t, session.KeyUser, `{"id":"user-7","email":"owner@sunrise.edu.vn","name":"Tran Thi Mai"}`)
}

const orderIntentJSON = `{
	"order": {
		"id": 42,
		"school": {"name": "Sunrise Primary", "phone": "0901234567", "address": "12 Nguyen Trai, HCMC"},
		"garment": {"id": "garment-9", "name": "Stitchline", "shippingAccountId": "ship-acct-3"}
	},
	"quotation": {"id": 17, "price": 500000},
	"serviceFee": 25000,
	"shippingFee": 25000
}`

func gatewayReturn(code, ref string) gateway.Return {
	return gateway.Return{ResponseCode: code, TxnRef: ref, Amount: 550000, AmountMinor: 55000000}
}

func TestResolveDesignSuccess(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "design")
	h.set(t, session.KeyQuotationDetails, `{
		"quotation": {"id": 11, "designerId": "designer-3", "designerName": "Linh Vu"},
		"request": {"id": 8, "name": "Summer uniform set"},
		"serviceFee": 20000,
		"subtotal": 400000,
		"totalAmount": 420000
	}`)
	h.set(t, session.KeyExtraRevision, "2")

	res, err := h.controller.Resolve(context.Background(), h.sess, gatewayReturn("00", "TXN100"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.Verdict.Success {
		t.Error("Resolve() verdict success = false, want true")
	}
	if res.State != StateCompleted {
		t.Errorf("Resolve() state = %q, want %q", res.State, StateCompleted)
	}
	if got := h.backend.callNames(); len(got) != 1 || got[0] != "pick" {
		t.Errorf("backend calls = %v, want [pick]", got)
	}
	if h.backend.lastPick.DesignQuotationID != 11 {
		t.Errorf("PickQuotation quotation id = %d, want 11", h.backend.lastPick.DesignQuotationID)
	}
	if h.backend.lastPick.ExtraRevision != 2 {
		t.Errorf("PickQuotation extra revision = %d, want 2", h.backend.lastPick.ExtraRevision)
	}
	if h.backend.lastPick.Transaction.GatewayCode != "00" {
		t.Errorf("transaction gateway code = %q, want 00", h.backend.lastPick.Transaction.GatewayCode)
	}

	sent := h.mailer.sentEmails()
	if len(sent) != 1 {
		t.Fatalf("sent emails = %d, want 1", len(sent))
	}
	if sent[0].Result != notify.ResultSuccess {
		t.Errorf("email result = %q, want %q", sent[0].Result, notify.ResultSuccess)
	}

	processed, err := session.HasProcessed(context.Background(), h.sess, "TXN100")
	if err != nil || !processed {
		t.Errorf("HasProcessed() = %v, %v, want true, nil", processed, err)
	}
}

func TestResolveDesignFailureRecordsTransaction(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "design")
	h.set(t, session.KeyQuotationDetails, `{"quotation":{"id":11},"request":{"id":8},"serviceFee":20000,"totalAmount":420000}`)

	res, err := h.controller.Resolve(context.Background(), h.sess, gatewayReturn("24", "TXN101"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Verdict.Success {
		t.Error("Resolve() verdict success = true, want false")
	}
	if res.State != StateCompleted {
		t.Errorf("Resolve() state = %q, want %q", res.State, StateCompleted)
	}
	if got := h.backend.callNames(); len(got) != 1 || got[0] != "failed" {
		t.Errorf("backend calls = %v, want [failed]", got)
	}
	if h.backend.lastFailed.Kind != backend.FailedKindDesign {
		t.Errorf("failed kind = %q, want %q", h.backend.lastFailed.Kind, backend.FailedKindDesign)
	}
	sent := h.mailer.sentEmails()
	if len(sent) != 1 || sent[0].Result != notify.ResultFailed {
		t.Errorf("sent emails = %+v, want one with result %q", sent, notify.ResultFailed)
	}
}

func TestResolveOrderSuccess(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "order")
	h.set(t, session.KeyQuotationDetails, orderIntentJSON)

	res, err := h.controller.Resolve(context.Background(), h.sess, gatewayReturn("00", "TXN102"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.State != StateCompleted {
		t.Errorf("Resolve() state = %q, want %q", res.State, StateCompleted)
	}
	if got := h.backend.callNames(); len(got) != 2 || got[0] != "ship" || got[1] != "deliver" {
		t.Fatalf("backend calls = %v, want [ship deliver]", got)
	}
	if h.backend.lastShipment.OrderValue != 550000 {
		t.Errorf("shipment order value = %d, want 550000", h.backend.lastShipment.OrderValue)
	}
	if h.backend.lastShipment.ShippingAccountID != "ship-acct-3" {
		t.Errorf("shipment account = %q, want ship-acct-3", h.backend.lastShipment.ShippingAccountID)
	}
	if h.backend.lastDelivery.ShippingCode != "GHN789" {
		t.Errorf("delivery shipping code = %q, want GHN789", h.backend.lastDelivery.ShippingCode)
	}
	if h.backend.lastDelivery.ShippingFee != 25000 {
		t.Errorf("delivery shipping fee = %d, want 25000", h.backend.lastDelivery.ShippingFee)
	}
}

func TestResolveOrderShipmentRejected(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "order")
	h.set(t, session.KeyQuotationDetails, orderIntentJSON)
	h.backend.shipResult = backend.ShipmentResult{Code: 4004}

	res, err := h.controller.Resolve(context.Background(), h.sess, gatewayReturn("00", "TXN103"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.State != StateFailed {
		t.Errorf("Resolve() state = %q, want %q", res.State, StateFailed)
	}
	if got := h.backend.callNames(); len(got) != 1 || got[0] != "ship" {
		t.Errorf("backend calls = %v, want [ship]: delivery must not run without a tracking code", got)
	}

	entries, err := h.journal.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Stage != journal.StageSettlement {
		t.Errorf("journal entries = %+v, want one settlement gap", entries)
	}
}

func TestResolveDepositSuccess(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "deposit")
	h.set(t, session.KeyQuotationDetails, orderIntentJSON)

	res, err := h.controller.Resolve(context.Background(), h.sess, gatewayReturn("00", "TXN104"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.State != StateCompleted {
		t.Errorf("Resolve() state = %q, want %q", res.State, StateCompleted)
	}
	if got := h.backend.callNames(); len(got) != 1 || got[0] != "approve" {
		t.Fatalf("backend calls = %v, want [approve]", got)
	}
	if h.backend.lastApprove.QuotationID != 17 {
		t.Errorf("approve quotation id = %d, want 17", h.backend.lastApprove.QuotationID)
	}
	if h.backend.lastApprove.Transaction.TotalPrice != 550000 {
		t.Errorf("approve total = %d, want 550000", h.backend.lastApprove.Transaction.TotalPrice)
	}
}

func TestResolveWalletDebitOverridesGatewayCode(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "wallet")
	h.set(t, session.KeyPayFromWallet, "true")
	h.set(t, session.KeyWalletDetails, `{"totalPrice":300000,"description":"Top up"}`)

	// The gateway never saw this payment; its code must not matter.
	res, err := h.controller.Resolve(context.Background(), h.sess, gateway.Return{ResponseCode: "99"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.Verdict.Success {
		t.Error("Resolve() verdict success = false, want true for wallet debit")
	}
	if res.TxnRef != payment.WalletRef {
		t.Errorf("Resolve() txn ref = %q, want %q", res.TxnRef, payment.WalletRef)
	}
	if got := h.backend.callNames(); len(got) != 1 || got[0] != "deposit" {
		t.Fatalf("backend calls = %v, want [deposit]", got)
	}
	if h.backend.lastDeposit.GatewayCode != payment.GatewayCodeSuccess {
		t.Errorf("deposit gateway code = %q, want %q", h.backend.lastDeposit.GatewayCode, payment.GatewayCodeSuccess)
	}
	if !h.backend.lastDeposit.PayFromWallet {
		t.Error("deposit pay-from-wallet = false, want true")
	}
}

func TestResolveRevisionSuccessWaitsForSettling(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "revision")
	h.set(t, session.KeyRevisionDetails, `{"requestId":8,"revisionQuantity":3,"designerId":"designer-3","designerName":"Linh Vu","extraRevisionPrice":90000}`)

	res, err := h.controller.Resolve(context.Background(), h.sess, gatewayReturn("00", "TXN105"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.State != StateCompleted {
		t.Errorf("Resolve() state = %q, want %q", res.State, StateCompleted)
	}
	if got := h.backend.callNames(); len(got) != 1 || got[0] != "revise" {
		t.Fatalf("backend calls = %v, want [revise]", got)
	}
	if h.backend.lastRevision.Quantity != 3 {
		t.Errorf("revision quantity = %d, want 3", h.backend.lastRevision.Quantity)
	}
	if len(h.slept) != 1 || h.slept[0] != DefaultSettleDelay {
		t.Errorf("settle delays = %v, want [%v]", h.slept, DefaultSettleDelay)
	}
}

func TestResolveRevisionFailureIsJournaledNoOp(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "revision")
	h.set(t, session.KeyRevisionDetails, `{"requestId":8,"revisionQuantity":3,"extraRevisionPrice":90000}`)

	res, err := h.controller.Resolve(context.Background(), h.sess, gatewayReturn("07", "TXN106"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.State != StateCompleted {
		t.Errorf("Resolve() state = %q, want %q", res.State, StateCompleted)
	}
	if got := h.backend.callNames(); len(got) != 0 {
		t.Errorf("backend calls = %v, want none", got)
	}
	if sent := h.mailer.sentEmails(); len(sent) != 1 || sent[0].Result != notify.ResultFailed {
		t.Errorf("sent emails = %+v, want one failure notice", sent)
	}
	entries, err := h.journal.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Stage != journal.StagePipeline {
		t.Errorf("journal entries = %+v, want one pipeline entry", entries)
	}
}

func TestResolveSecondInvocationSuppressed(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "design")
	h.set(t, session.KeyQuotationDetails, `{"quotation":{"id":11},"request":{"id":8},"serviceFee":20000,"totalAmount":420000}`)

	ret := gatewayReturn("00", "TXN107")
	if _, err := h.controller.Resolve(context.Background(), h.sess, ret); err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}

	res, err := h.controller.Resolve(context.Background(), h.sess, ret)
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if !res.AlreadyProcessed {
		t.Error("second Resolve() already processed = false, want true")
	}
	if !res.Verdict.Success {
		t.Error("second Resolve() verdict success = false, want true")
	}
	if got := h.backend.callNames(); len(got) != 1 {
		t.Errorf("backend calls after replay = %v, want exactly one", got)
	}
	if sent := h.mailer.sentEmails(); len(sent) != 1 {
		t.Errorf("sent emails after replay = %d, want 1", len(sent))
	}
}

func TestResolveMarkerSetEvenWhenPipelineFails(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "design")
	h.set(t, session.KeyQuotationDetails, `{"quotation":{"id":11},"request":{"id":8},"serviceFee":20000,"totalAmount":420000}`)
	h.backend.pickErr = errors.New("design service unavailable")

	res, err := h.controller.Resolve(context.Background(), h.sess, gatewayReturn("00", "TXN108"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.State != StateFailed {
		t.Errorf("Resolve() state = %q, want %q", res.State, StateFailed)
	}
	processed, err := session.HasProcessed(context.Background(), h.sess, "TXN108")
	if err != nil || !processed {
		t.Errorf("HasProcessed() = %v, %v, want true, nil", processed, err)
	}
}

func TestResolveNotificationGatesSettlement(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "order")
	h.set(t, session.KeyQuotationDetails, orderIntentJSON)
	h.mailer.err = notify.ErrNotDelivered

	res, err := h.controller.Resolve(context.Background(), h.sess, gatewayReturn("00", "TXN109"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.State != StateFailed {
		t.Errorf("Resolve() state = %q, want %q", res.State, StateFailed)
	}
	if got := h.backend.callNames(); len(got) != 0 {
		t.Errorf("backend calls = %v, want none when notification fails", got)
	}
	entries, err := h.journal.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Stage != journal.StageNotification {
		t.Errorf("journal entries = %+v, want one notification gap", entries)
	}
}

func TestResolveRedirectAwayAtMostOnce(t *testing.T) {
	h := newHarness(t)
	// No gateway code, no wallet flag, no stashed intent.
	res, err := h.controller.Resolve(context.Background(), h.sess, gateway.Return{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.Verdict.RedirectAway {
		t.Error("first Resolve() redirect = false, want true")
	}
	if got := h.backend.callNames(); len(got) != 0 {
		t.Errorf("backend calls = %v, want none", got)
	}

	res, err = h.controller.Resolve(context.Background(), h.sess, gateway.Return{})
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if res.Verdict.RedirectAway {
		t.Error("second Resolve() redirect = true, want false")
	}
}

func TestResolveConcurrentDuplicateSuppressed(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "design")
	h.set(t, session.KeyQuotationDetails, `{"quotation":{"id":11},"request":{"id":8},"serviceFee":20000,"totalAmount":420000}`)

	h.mailer.onSend = make(chan struct{}, 1)
	h.mailer.gate = make(chan struct{})

	ret := gatewayReturn("00", "TXN110")
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := h.controller.Resolve(context.Background(), h.sess, ret); err != nil {
			t.Errorf("first Resolve() error = %v", err)
		}
	}()

	// Wait until the first invocation is inside its pipeline.
	<-h.mailer.onSend

	res, err := h.controller.Resolve(context.Background(), h.sess, ret)
	if err != nil {
		t.Fatalf("overlapping Resolve() error = %v", err)
	}
	if !res.AlreadyProcessed {
		t.Error("overlapping Resolve() already processed = false, want true")
	}

	close(h.mailer.gate)
	<-done

	if got := h.backend.callNames(); len(got) != 1 {
		t.Errorf("backend calls = %v, want exactly one", got)
	}
}

func TestResolveWalletDebitAfterDismissalSettlesAgain(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)

	stashWallet := func(details string) {
		h.set(t, session.KeyPaymentType, "wallet")
		h.set(t, session.KeyPayFromWallet, "true")
		h.set(t, session.KeyWalletDetails, details)
	}

	stashWallet(`{"totalPrice":300000,"description":"Top up"}`)
	res, err := h.controller.Resolve(context.Background(), h.sess, gateway.Return{})
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	if res.AlreadyProcessed {
		t.Error("first Resolve() already processed = true, want false")
	}

	if err := session.ClearPaymentState(context.Background(), h.sess); err != nil {
		t.Fatalf("ClearPaymentState() error = %v", err)
	}

	// A new wallet debit in the same session shares the "wallet" ref;
	// dismissal must have released it.
	stashWallet(`{"totalPrice":150000,"description":"Top up again"}`)
	res, err = h.controller.Resolve(context.Background(), h.sess, gateway.Return{})
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if res.AlreadyProcessed {
		t.Error("second Resolve() already processed = true, want false after dismissal")
	}
	if got := h.backend.callNames(); len(got) != 2 || got[0] != "deposit" || got[1] != "deposit" {
		t.Fatalf("backend calls = %v, want [deposit deposit]", got)
	}
	if h.backend.lastDeposit.TotalPrice != 150000 {
		t.Errorf("second deposit total = %d, want 150000", h.backend.lastDeposit.TotalPrice)
	}
}

func TestResolveWalletDebitsAcrossSessionsRunIndependently(t *testing.T) {
	h := newHarness(t)
	manager := session.NewInMemoryManager()
	sessA := manager.Session("user-a")
	sessB := manager.Session("user-b")

	ctx := context.Background()
	for _, sess := range []session.Store{sessA, sessB} {
		for key, value := range map[string]string{
			session.KeyUser:          `{"id":"` + sess.ID() + `","email":"owner@sunrise.edu.vn","name":"Tran Thi Mai"}`,
			session.KeyPaymentType:   "wallet",
			session.KeyPayFromWallet: "true",
			session.KeyWalletDetails: `{"totalPrice":300000,"description":"Top up"}`,
		} {
			if err := sess.Set(ctx, key, value); err != nil {
				t.Fatalf("Set(%q) = %v", key, err)
			}
		}
	}

	// Hold both pipelines inside the mailer so they overlap: the second
	// session must enter its own pipeline, not observe the first one's
	// in-flight "wallet" key.
	h.mailer.onSend = make(chan struct{}, 2)
	h.mailer.gate = make(chan struct{})

	results := make(chan *Result, 2)
	var wg sync.WaitGroup
	for _, sess := range []session.Store{sessA, sessB} {
		wg.Add(1)
		go func(sess session.Store) {
			defer wg.Done()
			res, err := h.controller.Resolve(ctx, sess, gateway.Return{})
			if err != nil {
				t.Errorf("Resolve(%s) error = %v", sess.ID(), err)
				return
			}
			results <- res
		}(sess)
	}

	<-h.mailer.onSend
	<-h.mailer.onSend
	close(h.mailer.gate)
	wg.Wait()
	close(results)

	for res := range results {
		if res.AlreadyProcessed {
			t.Error("Resolve() already processed = true, want false for distinct sessions")
		}
	}
	if got := h.backend.callNames(); len(got) != 2 || got[0] != "deposit" || got[1] != "deposit" {
		t.Errorf("backend calls = %v, want [deposit deposit]", got)
	}
}

func TestResolveGatewaySuccessWithoutIntent(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "design")
	// No quotation details stashed.

	res, err := h.controller.Resolve(context.Background(), h.sess, gatewayReturn("00", "TXN404"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.State != StateFailed {
		t.Errorf("Resolve() state = %q, want %q", res.State, StateFailed)
	}
	if sent := h.mailer.sentEmails(); len(sent) != 1 {
		t.Errorf("sent emails = %d, want 1: notification does not depend on the intent", len(sent))
	}
	if got := h.backend.callNames(); len(got) != 0 {
		t.Errorf("backend calls = %v, want none without an intent", got)
	}
	entries, err := h.journal.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Stage != journal.StageIntent {
		t.Errorf("journal entries = %+v, want one intent gap", entries)
	}
	if len(entries) == 1 && entries[0].TxnRef != "TXN404" {
		t.Errorf("journal txn ref = %q, want %q", entries[0].TxnRef, "TXN404")
	}
}

func TestResolveMalformedIntentJournalsGap(t *testing.T) {
	h := newHarness(t)
	h.stashActor(t)
	h.set(t, session.KeyPaymentType, "order")
	h.set(t, session.KeyQuotationDetails, `{not json`)

	res, err := h.controller.Resolve(context.Background(), h.sess, gatewayReturn("00", "TXN405"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.State != StateFailed {
		t.Errorf("Resolve() state = %q, want %q", res.State, StateFailed)
	}
	if got := h.backend.callNames(); len(got) != 0 {
		t.Errorf("backend calls = %v, want none for malformed intent", got)
	}
	entries, err := h.journal.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Stage != journal.StageIntent {
		t.Errorf("journal entries = %+v, want one intent gap", entries)
	}
}
