package billing

import (
	"context"
	"time"

	"github.com/dmitrymomot/billing/pkg/statemachine"
)

type (
	AccountState      string
	AdjustmentState   string
	AdjustmentType    string
	InvoiceState      string
	SubscriptionState string
	CouponState       string
	RedemptionState   string
	TransactionStatus string
	TransactionAction string
)

const (
	AccountActive AccountState = "active"
	AccountClosed AccountState = "closed"
)

const (
	AdjustmentPending  AdjustmentState = "pending"
	AdjustmentInvoiced AdjustmentState = "invoiced"
)

const (
	AdjustmentCharge AdjustmentType = "charge"
	AdjustmentCredit AdjustmentType = "credit"
)

const (
	InvoiceOpen       InvoiceState = "open"
	InvoiceCollected  InvoiceState = "collected"
	InvoiceFailed     InvoiceState = "failed"
	InvoicePastDue    InvoiceState = "past_due"
	InvoiceProcessing InvoiceState = "processing"
)

const (
	SubscriptionFuture   SubscriptionState = "future"
	SubscriptionInTrial  SubscriptionState = "in_trial"
	SubscriptionActive   SubscriptionState = "active"
	SubscriptionCanceled SubscriptionState = "canceled"
	SubscriptionExpired  SubscriptionState = "expired"
	SubscriptionPastDue  SubscriptionState = "past_due"
)

const (
	CouponRedeemable CouponState = "redeemable"
	CouponExpired    CouponState = "expired"
	CouponMaxedOut   CouponState = "maxed_out"
	CouponInactive   CouponState = "inactive"
)

const (
	RedemptionActive   RedemptionState = "active"
	RedemptionInactive RedemptionState = "inactive"
)

const (
	TransactionSuccessful TransactionStatus = "success"
	TransactionFailed     TransactionStatus = "failed"
	TransactionVoided     TransactionStatus = "void"
)

const (
	ActionPurchase      TransactionAction = "purchase"
	ActionAuthorization TransactionAction = "authorization"
	ActionRefund        TransactionAction = "refund"
)

// Event types. Events marked as service-driven are never fired by this
// package; they document how the service moves entities and are used by
// fakes that emulate it.
type (
	AccountEvent      string
	AdjustmentEvent   string
	InvoiceEvent      string
	SubscriptionEvent string
	CouponEvent       string
	RedemptionEvent   string
	TransactionEvent  string
)

const (
	AccountClose  AccountEvent = "close"
	AccountReopen AccountEvent = "reopen"
)

const (
	// AdjustmentInvoice is service-driven: it happens only as a side effect of invoicing.
	AdjustmentInvoice AdjustmentEvent = "invoice"
)

const (
	InvoiceMarkSuccessful InvoiceEvent = "mark_successful"
	InvoiceMarkFailed     InvoiceEvent = "mark_failed"
	InvoiceRefund         InvoiceEvent = "refund"

	// service-driven
	InvoiceBeginProcessing InvoiceEvent = "begin_processing"
	InvoiceSettle          InvoiceEvent = "settle"
	InvoiceDecline         InvoiceEvent = "decline"
	InvoiceBecomePastDue   InvoiceEvent = "become_past_due"
)

const (
	SubscriptionCancel     SubscriptionEvent = "cancel"
	SubscriptionReactivate SubscriptionEvent = "reactivate"
	SubscriptionTerminate  SubscriptionEvent = "terminate"
	SubscriptionPostpone   SubscriptionEvent = "postpone"
	SubscriptionChangePlan SubscriptionEvent = "change"

	// service-driven
	SubscriptionStartTrial       SubscriptionEvent = "start_trial"
	SubscriptionActivate         SubscriptionEvent = "activate"
	SubscriptionPaymentFailed    SubscriptionEvent = "payment_failed"
	SubscriptionPaymentRecovered SubscriptionEvent = "payment_recovered"
	SubscriptionExpire           SubscriptionEvent = "expire"
	SubscriptionRenew            SubscriptionEvent = "renew"
)

const (
	CouponDeactivate CouponEvent = "deactivate"

	// service-driven
	CouponRedeem CouponEvent = "redeem"
	CouponExpire CouponEvent = "expire"
	CouponMaxOut CouponEvent = "max_out"
)

const (
	RedemptionRemove RedemptionEvent = "remove"
)

const (
	TransactionVoid   TransactionEvent = "void"
	TransactionRefund TransactionEvent = "refund"
)

// AccountLifecycle: Active and Closed, reversible in both directions.
var AccountLifecycle = statemachine.MustNew(AccountActive,
	statemachine.WithTransition(AccountActive, AccountClosed, AccountClose),
	statemachine.WithTransition(AccountClosed, AccountActive, AccountReopen),
)

var AdjustmentLifecycle = statemachine.MustNew(AdjustmentPending,
	statemachine.WithTransition(AdjustmentPending, AdjustmentInvoiced, AdjustmentInvoice),
)

// InvoiceLifecycle. Processing can only be left by the service. Refunds keep
// the state of the original invoice and are legal from every state but
// Processing.
var InvoiceLifecycle = statemachine.MustNew(InvoiceOpen,
	statemachine.WithTransitionsFrom([]InvoiceState{InvoiceOpen, InvoicePastDue}, InvoiceCollected, InvoiceMarkSuccessful),
	statemachine.WithTransitionsFrom([]InvoiceState{InvoiceOpen, InvoicePastDue}, InvoiceFailed, InvoiceMarkFailed),
	statemachine.WithTransition(InvoiceOpen, InvoiceOpen, InvoiceRefund),
	statemachine.WithTransition(InvoiceCollected, InvoiceCollected, InvoiceRefund),
	statemachine.WithTransition(InvoiceFailed, InvoiceFailed, InvoiceRefund),
	statemachine.WithTransition(InvoicePastDue, InvoicePastDue, InvoiceRefund),

	statemachine.WithTransition(InvoiceOpen, InvoiceProcessing, InvoiceBeginProcessing),
	statemachine.WithTransition(InvoiceProcessing, InvoiceCollected, InvoiceSettle),
	statemachine.WithTransition(InvoiceProcessing, InvoiceFailed, InvoiceDecline),
	statemachine.WithTransition(InvoiceOpen, InvoicePastDue, InvoiceBecomePastDue),
)

// PaidPeriod is the guard data for subscription transitions that depend on time.
type PaidPeriod struct {
	Now    time.Time
	EndsAt *time.Time
}

// withinPaidPeriod lets a canceled subscription come back only before its paid period ends.
func withinPaidPeriod(_ context.Context, _ SubscriptionState, _ SubscriptionEvent, data any) bool {
	p, ok := data.(PaidPeriod)
	return ok && p.EndsAt != nil && p.Now.Before(*p.EndsAt)
}

var (
	liveSubscription = []SubscriptionState{
		SubscriptionFuture, SubscriptionInTrial, SubscriptionActive, SubscriptionPastDue,
	}
	terminableSubscription = append(liveSubscription[:len(liveSubscription):len(liveSubscription)], SubscriptionCanceled)
)

// SubscriptionLifecycle. Expired is terminal.
var SubscriptionLifecycle = statemachine.MustNew(SubscriptionFuture,
	statemachine.WithTransitionsFrom(liveSubscription, SubscriptionCanceled, SubscriptionCancel),
	statemachine.WithTransition(SubscriptionCanceled, SubscriptionActive, SubscriptionReactivate,
		statemachine.WithGuard[SubscriptionState, SubscriptionEvent](withinPaidPeriod)),
	statemachine.WithTransitionsFrom(terminableSubscription, SubscriptionExpired, SubscriptionTerminate),
	statemachine.WithTransition(SubscriptionFuture, SubscriptionFuture, SubscriptionPostpone),
	statemachine.WithTransition(SubscriptionInTrial, SubscriptionInTrial, SubscriptionPostpone),
	statemachine.WithTransition(SubscriptionActive, SubscriptionActive, SubscriptionPostpone),
	statemachine.WithTransition(SubscriptionFuture, SubscriptionFuture, SubscriptionChangePlan),
	statemachine.WithTransition(SubscriptionInTrial, SubscriptionInTrial, SubscriptionChangePlan),
	statemachine.WithTransition(SubscriptionActive, SubscriptionActive, SubscriptionChangePlan),
	statemachine.WithTransition(SubscriptionPastDue, SubscriptionPastDue, SubscriptionChangePlan),

	statemachine.WithTransition(SubscriptionFuture, SubscriptionInTrial, SubscriptionStartTrial),
	statemachine.WithTransitionsFrom([]SubscriptionState{SubscriptionFuture, SubscriptionInTrial}, SubscriptionActive, SubscriptionActivate),
	statemachine.WithTransition(SubscriptionActive, SubscriptionPastDue, SubscriptionPaymentFailed),
	statemachine.WithTransition(SubscriptionPastDue, SubscriptionActive, SubscriptionPaymentRecovered),
	statemachine.WithTransition(SubscriptionCanceled, SubscriptionExpired, SubscriptionExpire),
	statemachine.WithTransition(SubscriptionActive, SubscriptionActive, SubscriptionRenew),
)

var CouponLifecycle = statemachine.MustNew(CouponRedeemable,
	statemachine.WithTransitionsFrom([]CouponState{CouponRedeemable, CouponExpired, CouponMaxedOut}, CouponInactive, CouponDeactivate),
	statemachine.WithTransition(CouponRedeemable, CouponRedeemable, CouponRedeem),
	statemachine.WithTransition(CouponRedeemable, CouponExpired, CouponExpire),
	statemachine.WithTransition(CouponRedeemable, CouponMaxedOut, CouponMaxOut),
)

var RedemptionLifecycle = statemachine.MustNew(RedemptionActive,
	statemachine.WithTransition(RedemptionActive, RedemptionInactive, RedemptionRemove),
)

func voidable(_ context.Context, _ TransactionStatus, _ TransactionEvent, data any) bool {
	t, ok := data.(*Transaction)
	return ok && t.Voidable
}

func refundable(_ context.Context, _ TransactionStatus, _ TransactionEvent, data any) bool {
	t, ok := data.(*Transaction)
	return ok && t.Refundable
}

var TransactionLifecycle = statemachine.MustNew(TransactionSuccessful,
	statemachine.WithTransition(TransactionSuccessful, TransactionVoided, TransactionVoid,
		statemachine.WithGuard[TransactionStatus, TransactionEvent](voidable)),
	statemachine.WithTransition(TransactionSuccessful, TransactionSuccessful, TransactionRefund,
		statemachine.WithGuard[TransactionStatus, TransactionEvent](refundable)),
)
