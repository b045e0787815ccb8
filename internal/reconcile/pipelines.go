package reconcile

import (
	"context"
	"strconv"

	"github.com/unisew/reconciler/internal/backend"
	"github.com/unisew/reconciler/internal/journal"
	"github.com/unisew/reconciler/internal/notify"
	"github.com/unisew/reconciler/internal/payment"
	"github.com/unisew/reconciler/internal/session"
)

// pipelineInput is the resolved context one pipeline runs with.
type pipelineInput struct {
	verdict payment.Verdict
	sig     payment.OutcomeSignal
	actor   payment.Actor
	txnRef  string

	// gatewayCode is what settlement operations record as the gateway
	// result. Wallet debits never produce one, so they record the success
	// code.
	gatewayCode string
}

// dispatch selects the settlement pipeline for a classified outcome. The
// switch is total over the payment purposes; an impossible tag is journaled
// instead of silently falling through.
func (c *Controller) dispatch(ctx context.Context, sess session.Store, verdict payment.Verdict, sig payment.OutcomeSignal) State {
	gatewayCode := sig.GatewayResponseCode
	if sig.PaidFromWallet {
		gatewayCode = payment.GatewayCodeSuccess
	}

	in := pipelineInput{
		verdict:     verdict,
		sig:         sig,
		actor:       c.actor(ctx, sess),
		txnRef:      sig.IdempotenceKey(),
		gatewayCode: gatewayCode,
	}

	switch verdict.Type {
	case payment.TypeDesign:
		return c.runDesign(ctx, sess, in)
	case payment.TypeDeposit:
		return c.runDeposit(ctx, sess, in)
	case payment.TypeOrder:
		return c.runOrder(ctx, sess, in)
	case payment.TypeRevision:
		return c.runRevision(ctx, sess, in)
	case payment.TypeWallet:
		return c.runWallet(ctx, sess, in)
	default:
		c.recordGap(ctx, verdict.Type, in.txnRef, journal.StagePipeline, "no pipeline for payment type")
		return StateFailed
	}
}

// notifyGate sends the payment-result email. Settlement operations run only
// when this returns true; a failed or unconfirmed delivery halts the
// pipeline without moving money.
func (c *Controller) notifyGate(ctx context.Context, in pipelineInput, email notify.PaymentResultEmail) bool {
	if err := c.mailer.SendPaymentResult(ctx, email); err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageNotification, err.Error())
		return false
	}
	return true
}

// designIntent loads and decodes the stashed design intent, journaling a
// gap when it is absent or malformed.
func (c *Controller) designIntent(ctx context.Context, sess session.Store, in pipelineInput) *payment.DesignIntent {
	raw, err := sess.Get(ctx, session.KeyQuotationDetails)
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageIntent, "design intent missing")
		return nil
	}
	intent, err := payment.DecodeDesignIntent(raw)
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageIntent, "design intent malformed")
		return nil
	}
	return intent
}

func (c *Controller) orderIntent(ctx context.Context, sess session.Store, in pipelineInput) *payment.OrderIntent {
	raw, err := sess.Get(ctx, session.KeyQuotationDetails)
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageIntent, "order intent missing")
		return nil
	}
	intent, err := payment.DecodeOrderIntent(raw)
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageIntent, "order intent malformed")
		return nil
	}
	return intent
}

func (c *Controller) revisionIntent(ctx context.Context, sess session.Store, in pipelineInput) *payment.RevisionIntent {
	raw, err := sess.Get(ctx, session.KeyRevisionDetails)
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageIntent, "revision intent missing")
		return nil
	}
	intent, err := payment.DecodeRevisionIntent(raw)
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageIntent, "revision intent malformed")
		return nil
	}
	return intent
}

func (c *Controller) walletIntent(ctx context.Context, sess session.Store, in pipelineInput) *payment.WalletIntent {
	raw, err := sess.Get(ctx, session.KeyWalletDetails)
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageIntent, "wallet intent missing")
		return nil
	}
	intent, err := payment.DecodeWalletIntent(raw)
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageIntent, "wallet intent malformed")
		return nil
	}
	return intent
}

// runDesign settles a design-quotation payment: notify, then either accept
// the quotation or record the failed transaction.
func (c *Controller) runDesign(ctx context.Context, sess session.Store, in pipelineInput) State {
	intent := c.designIntent(ctx, sess, in)

	var email notify.PaymentResultEmail
	if intent != nil {
		email = notify.BuildDesignEmail(in.actor, *intent, in.verdict.Success, c.now())
	} else {
		email = notify.BuildDesignEmail(in.actor, payment.DesignIntent{}, in.verdict.Success, c.now())
	}
	if !c.notifyGate(ctx, in, email) {
		return StateFailed
	}

	if intent == nil {
		// Required fields are absent; skip the dependent operation.
		return StateFailed
	}

	tx := backend.TransactionInfo{
		Type:          string(payment.TypeDesign),
		ReceiverID:    in.actor.ID,
		ItemID:        strconv.FormatInt(intent.Request.ID, 10),
		TotalPrice:    intent.TotalAmount,
		GatewayCode:   in.gatewayCode,
		ServiceFee:    intent.ServiceFee,
		PayFromWallet: in.sig.PaidFromWallet,
	}

	if !in.verdict.Success {
		return c.recordFailed(ctx, in, backend.FailedKindDesign, tx)
	}

	err := c.backend.PickQuotation(ctx, backend.PickQuotationRequest{
		DesignQuotationID: intent.Quotation.ID,
		DesignRequestID:   intent.Request.ID,
		ExtraRevision:     c.extraRevision(ctx, sess),
		ServiceFee:        intent.ServiceFee,
		Transaction:       tx,
	})
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageSettlement, "pick-quotation: "+err.Error())
		return StateFailed
	}
	return StateCompleted
}

// runDeposit settles an order-deposit payment.
func (c *Controller) runDeposit(ctx context.Context, sess session.Store, in pipelineInput) State {
	intent := c.orderIntent(ctx, sess, in)

	var email notify.PaymentResultEmail
	if intent != nil {
		email = notify.BuildOrderEmail(in.actor, *intent, in.verdict.Success, c.now())
	} else {
		email = notify.BuildOrderEmail(in.actor, payment.OrderIntent{}, in.verdict.Success, c.now())
	}
	if !c.notifyGate(ctx, in, email) {
		return StateFailed
	}
	if intent == nil {
		return StateFailed
	}

	tx := backend.TransactionInfo{
		Type:          string(payment.TypeDeposit),
		ReceiverID:    in.actor.ID,
		ItemID:        strconv.FormatInt(intent.Order.ID, 10),
		TotalPrice:    intent.TotalAmount(),
		GatewayCode:   in.gatewayCode,
		ServiceFee:    intent.ServiceFee,
		PayFromWallet: in.sig.PaidFromWallet,
	}

	if !in.verdict.Success {
		return c.recordFailed(ctx, in, backend.FailedKindDeposit, tx)
	}

	err := c.backend.ApproveQuotation(ctx, backend.ApproveQuotationRequest{
		QuotationID: intent.Quotation.ID,
		Transaction: tx,
	})
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageSettlement, "approve-quotation: "+err.Error())
		return StateFailed
	}
	return StateCompleted
}

// runOrder settles an order balance payment. On success this is the only
// two-step pipeline: shipment creation must yield a provider-accepted
// tracking code before delivery confirmation runs with that exact code.
func (c *Controller) runOrder(ctx context.Context, sess session.Store, in pipelineInput) State {
	intent := c.orderIntent(ctx, sess, in)

	var email notify.PaymentResultEmail
	if intent != nil {
		email = notify.BuildOrderEmail(in.actor, *intent, in.verdict.Success, c.now())
	} else {
		email = notify.BuildOrderEmail(in.actor, payment.OrderIntent{}, in.verdict.Success, c.now())
	}
	if !c.notifyGate(ctx, in, email) {
		return StateFailed
	}
	if intent == nil {
		return StateFailed
	}

	total := intent.TotalAmount()

	if !in.verdict.Success {
		tx := backend.TransactionInfo{
			Type:          string(payment.TypeOrder),
			ReceiverID:    in.actor.ID,
			ItemID:        strconv.FormatInt(intent.Order.ID, 10),
			TotalPrice:    total,
			GatewayCode:   in.gatewayCode,
			ServiceFee:    intent.ServiceFee,
			PayFromWallet: in.sig.PaidFromWallet,
		}
		return c.recordFailed(ctx, in, backend.FailedKindOrder, tx)
	}

	shipment, err := c.backend.CreateShipment(ctx, backend.ShipmentRequest{
		ShippingAccountID: intent.Order.Garment.ShippingAccountID,
		ReceiverName:      intent.Order.School.Name,
		ReceiverPhone:     intent.Order.School.Phone,
		ReceiverAddress:   intent.Order.School.Address,
		OrderID:           intent.Order.ID,
		OrderValue:        total,
	})
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageSettlement, "create-shipment: "+err.Error())
		return StateFailed
	}
	if shipment.Code != backend.ShipmentCodeOK {
		// Never confirm delivery without a provider-accepted tracking code.
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageSettlement,
			"create-shipment: provider code "+strconv.Itoa(shipment.Code))
		return StateFailed
	}

	err = c.backend.ConfirmDelivery(ctx, backend.DeliveryConfirmation{
		OrderID:       intent.Order.ID,
		ReceiverID:    in.actor.ID,
		TotalPrice:    total,
		GatewayCode:   in.gatewayCode,
		ShippingCode:  shipment.OrderCode,
		ShippingFee:   intent.ShippingFee,
		PayFromWallet: in.sig.PaidFromWallet,
	})
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageSettlement, "confirm-delivery: "+err.Error())
		return StateFailed
	}
	return StateCompleted
}

// runRevision settles an extra-revision purchase. A fixed settling delay
// follows the purchase so downstream reads observe the new revision count.
// Failed revision payments have no settlement operation: the no-op is a
// recorded policy decision, not an omission (see DESIGN.md).
func (c *Controller) runRevision(ctx context.Context, sess session.Store, in pipelineInput) State {
	intent := c.revisionIntent(ctx, sess, in)

	var email notify.PaymentResultEmail
	if intent != nil {
		email = notify.BuildRevisionEmail(in.actor, *intent, in.verdict.Success, c.now())
	} else {
		email = notify.BuildRevisionEmail(in.actor, payment.RevisionIntent{}, in.verdict.Success, c.now())
	}
	if !c.notifyGate(ctx, in, email) {
		return StateFailed
	}

	if !in.verdict.Success {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StagePipeline,
			"failed revision purchase has no settlement operation")
		return StateCompleted
	}

	if intent == nil {
		return StateFailed
	}

	err := c.backend.PurchaseExtraRevisions(ctx, backend.RevisionPurchaseRequest{
		RequestID:   intent.RequestID,
		Quantity:    intent.RevisionQuantity,
		DesignerID:  intent.DesignerID,
		TotalPrice:  intent.ExtraRevisionPrice,
		GatewayCode: in.gatewayCode,
	})
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageSettlement, "purchase-extra-revisions: "+err.Error())
		return StateFailed
	}

	c.sleep(ctx, c.settleDelay)
	return StateCompleted
}

// runWallet settles a wallet top-up; the paying user is also the receiver.
func (c *Controller) runWallet(ctx context.Context, sess session.Store, in pipelineInput) State {
	intent := c.walletIntent(ctx, sess, in)

	var email notify.PaymentResultEmail
	if intent != nil {
		email = notify.BuildWalletEmail(in.actor, *intent, in.verdict.Success, c.now())
	} else {
		email = notify.BuildWalletEmail(in.actor, payment.WalletIntent{}, in.verdict.Success, c.now())
	}
	if !c.notifyGate(ctx, in, email) {
		return StateFailed
	}
	if intent == nil {
		return StateFailed
	}

	if !in.verdict.Success {
		tx := backend.TransactionInfo{
			Type:          string(payment.TypeWallet),
			ReceiverID:    in.actor.ID,
			ItemID:        in.actor.ID,
			TotalPrice:    intent.TotalPrice,
			GatewayCode:   in.gatewayCode,
			PayFromWallet: in.sig.PaidFromWallet,
		}
		return c.recordFailed(ctx, in, backend.FailedKindWallet, tx)
	}

	err := c.backend.CreateWalletDeposit(ctx, backend.WalletDepositRequest{
		ReceiverID:    in.actor.ID,
		TotalPrice:    intent.TotalPrice,
		GatewayCode:   in.gatewayCode,
		PayFromWallet: in.sig.PaidFromWallet,
	})
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageSettlement, "create-wallet-deposit: "+err.Error())
		return StateFailed
	}
	return StateCompleted
}

// recordFailed writes the failed-transaction record for a failure branch.
func (c *Controller) recordFailed(ctx context.Context, in pipelineInput, kind string, tx backend.TransactionInfo) State {
	err := c.backend.RecordFailedTransaction(ctx, backend.FailedTransactionRequest{
		Kind:        kind,
		Transaction: tx,
	})
	if err != nil {
		c.recordGap(ctx, in.verdict.Type, in.txnRef, journal.StageSettlement, "record-failed-transaction: "+err.Error())
		return StateFailed
	}
	return StateCompleted
}
