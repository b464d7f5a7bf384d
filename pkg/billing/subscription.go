package billing

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/pager"
	"github.com/dmitrymomot/billing/pkg/validator"
)

var subscriptionStates = []SubscriptionState{
	SubscriptionFuture, SubscriptionInTrial, SubscriptionActive,
	SubscriptionCanceled, SubscriptionExpired, SubscriptionPastDue,
}

// ChangeTimeframe selects when a subscription change takes effect.
type ChangeTimeframe string

const (
	TimeframeNow     ChangeTimeframe = "now"
	TimeframeRenewal ChangeTimeframe = "renewal"
)

// RefundType selects how much of the current period is refunded on termination.
type RefundType string

const (
	RefundNone    RefundType = "none"
	RefundPartial RefundType = "partial"
	RefundFull    RefundType = "full"
)

// Subscription binds an account to a plan.
type Subscription struct {
	bound
	XMLName xml.Name `xml:"subscription"`

	UUID                   string               `xml:"uuid,omitempty"`
	AccountCode            string               `xml:"account_code"`
	PlanCode               string               `xml:"plan_code"`
	State                  SubscriptionState    `xml:"state,omitempty"`
	Currency               string               `xml:"currency"`
	Quantity               int                  `xml:"quantity,omitempty"`
	UnitAmountInCents      *int64               `xml:"unit_amount_in_cents,omitempty"`
	AddOns                 SubscriptionAddOns   `xml:"subscription_add_ons>subscription_add_on,omitempty"`
	CouponCode             string               `xml:"coupon_code,omitempty"`
	TotalBillingCycles     int                  `xml:"total_billing_cycles,omitempty"`
	Bulk                   bool                 `xml:"bulk,omitempty"`
	StartsAt               *time.Time           `xml:"starts_at,omitempty"`
	TrialEndsAt            *time.Time           `xml:"trial_ends_at,omitempty"`
	ActivatedAt            *time.Time           `xml:"activated_at,omitempty"`
	CanceledAt             *time.Time           `xml:"canceled_at,omitempty"`
	ExpiresAt              *time.Time           `xml:"expires_at,omitempty"`
	CurrentPeriodStartedAt *time.Time           `xml:"current_period_started_at,omitempty"`
	CurrentPeriodEndsAt    *time.Time           `xml:"current_period_ends_at,omitempty"`
	TaxInCents             int64                `xml:"tax_in_cents,omitempty"`
	TaxType                string               `xml:"tax_type,omitempty"`
	TaxRate                float64              `xml:"tax_rate,omitempty"`
	PendingSubscription    *PendingSubscription `xml:"pending_subscription,omitempty"`
	CustomerNotes          string               `xml:"customer_notes,omitempty"`
	TermsAndConditions     string               `xml:"terms_and_conditions,omitempty"`
	VatReverseChargeNotes  string               `xml:"vat_reverse_charge_notes,omitempty"`
}

// PendingSubscription is a change scheduled for the next renewal.
type PendingSubscription struct {
	PlanCode          string             `xml:"plan_code"`
	Quantity          int                `xml:"quantity,omitempty"`
	UnitAmountInCents int64              `xml:"unit_amount_in_cents"`
	AddOns            SubscriptionAddOns `xml:"subscription_add_ons>subscription_add_on,omitempty"`
}

// NewSubscription returns a draft subscription with quantity 1.
func (c *Client) NewSubscription(accountCode, planCode, currency string) *Subscription {
	return &Subscription{
		bound:       bound{client: c},
		AccountCode: accountCode,
		PlanCode:    planCode,
		Currency:    currency,
		Quantity:    1,
	}
}

func (s *Subscription) path(parts ...string) string {
	p := "/subscriptions/" + url.PathEscape(s.UUID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (s *Subscription) attrs() []any {
	return []any{logger.SubscriptionUUID(s.UUID), logger.AccountCode(s.AccountCode)}
}

func (s *Subscription) validate() error {
	if err := invalid(validator.Apply(
		validator.Required("account_code", s.AccountCode),
		validator.Required("plan_code", s.PlanCode),
		validator.ValidCurrencyCode("currency", s.Currency),
		validator.PositiveAmount("quantity", s.Quantity),
		validator.When(s.UnitAmountInCents != nil, validator.NonNegativeAmount("unit_amount_in_cents", deref(s.UnitAmountInCents))),
	)); err != nil {
		return err
	}
	return s.AddOns.validate()
}

// Create persists the subscription. The service computes activation, trial
// and tax fields, which replace the local ones.
func (s *Subscription) Create(ctx context.Context) error {
	if err := s.draft(); err != nil {
		return err
	}
	if err := s.validate(); err != nil {
		return err
	}
	if err := s.roundTrip(ctx, Call{Method: http.MethodPost, Path: "/subscriptions", Body: s}); err != nil {
		return err
	}
	s.client.logger.InfoContext(ctx, "subscription created", s.attrs()...)
	return nil
}

// Preview fills in the fields Create would compute, without persisting.
// It fails with ErrIllegalTransition once the subscription exists.
func (s *Subscription) Preview(ctx context.Context) error {
	if s.client == nil {
		return ErrUnboundEntity
	}
	if s.persisted {
		return illegal(ErrAlreadyPersisted)
	}
	if err := s.validate(); err != nil {
		return err
	}

	var fresh Subscription
	if _, err := s.client.invoke(ctx, Call{Method: http.MethodPost, Path: "/subscriptions/preview", Body: s}, &fresh); err != nil {
		return err
	}
	fresh.client = s.client
	*s = fresh
	return nil
}

// Cancel stops renewal. The subscription stays usable until the end of the paid period.
func (s *Subscription) Cancel(ctx context.Context) error {
	return s.transition(ctx, SubscriptionCancel, nil, Call{Method: http.MethodPut, Path: s.path("cancel")})
}

// Reactivate undoes Cancel while the paid period has not ended.
func (s *Subscription) Reactivate(ctx context.Context) error {
	period := PaidPeriod{Now: s.now(), EndsAt: s.CurrentPeriodEndsAt}
	return s.transition(ctx, SubscriptionReactivate, period, Call{Method: http.MethodPut, Path: s.path("reactivate")})
}

// Terminate expires the subscription immediately.
func (s *Subscription) Terminate(ctx context.Context, refund RefundType) error {
	if err := invalid(validator.Apply(validator.OneOf("refund", refund, RefundNone, RefundPartial, RefundFull))); err != nil {
		return err
	}
	call := Call{Method: http.MethodPut, Path: s.path("terminate"), Query: url.Values{"refund": {string(refund)}}}
	return s.transition(ctx, SubscriptionTerminate, nil, call)
}

// Postpone moves the next renewal to date without changing the state.
func (s *Subscription) Postpone(ctx context.Context, date time.Time) error {
	rules := []validator.Rule{validator.DateAfter("next_renewal_date", date, s.now())}
	if s.CurrentPeriodStartedAt != nil {
		rules = append(rules, validator.DateAfter("next_renewal_date", date, *s.CurrentPeriodStartedAt))
	}
	if err := invalid(validator.Apply(rules...), ErrInvalidPostponeDate); err != nil {
		return err
	}
	call := Call{
		Method: http.MethodPut,
		Path:   s.path("postpone"),
		Query:  url.Values{"next_renewal_date": {PostponeQuery(date)}},
	}
	return s.transition(ctx, SubscriptionPostpone, nil, call)
}

// Change sends the current plan, price, quantity, coupon and add-ons of the
// subscription. With TimeframeNow they replace the live subscription, add-ons
// included. With TimeframeRenewal the live fields are restored from the
// service and the edit is kept in PendingSubscription.
func (s *Subscription) Change(ctx context.Context, timeframe ChangeTimeframe) error {
	if err := invalid(validator.Apply(validator.OneOf("timeframe", timeframe, TimeframeNow, TimeframeRenewal))); err != nil {
		return err
	}
	if err := s.validate(); err != nil {
		return err
	}
	body := SubscriptionChange{
		Timeframe:         timeframe,
		PlanCode:          s.PlanCode,
		Quantity:          s.Quantity,
		UnitAmountInCents: s.UnitAmountInCents,
		CouponCode:        s.CouponCode,
		AddOns:            s.AddOns,
	}
	return s.transition(ctx, SubscriptionChangePlan, nil, Call{Method: http.MethodPut, Path: s.path(), Body: body})
}

// UpdateNotes saves the customer notes, terms and VAT notes of the subscription.
func (s *Subscription) UpdateNotes(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	body := SubscriptionNotes{
		CustomerNotes:         s.CustomerNotes,
		TermsAndConditions:    s.TermsAndConditions,
		VatReverseChargeNotes: s.VatReverseChargeNotes,
	}
	return s.roundTrip(ctx, Call{Method: http.MethodPut, Path: s.path("notes"), Body: body})
}

func (s *Subscription) now() time.Time {
	if s.client == nil {
		return time.Now()
	}
	return s.client.now()
}

func (s *Subscription) transition(ctx context.Context, event SubscriptionEvent, data any, call Call) error {
	if err := s.ready(); err != nil {
		return err
	}
	next, err := SubscriptionLifecycle.Next(ctx, s.State, event, data)
	if err != nil {
		return illegal(err)
	}
	from := s.State
	if err := s.roundTrip(ctx, call); err != nil {
		return err
	}
	s.client.logTransition(ctx, "subscription "+string(event), string(from), string(next),
		logger.SubscriptionUUID(s.UUID), logger.AccountCode(s.AccountCode))
	return nil
}

func (s *Subscription) roundTrip(ctx context.Context, call Call) error {
	var fresh Subscription
	if _, err := s.client.invoke(ctx, call, &fresh); err != nil {
		return err
	}
	fresh.attach(s.client)
	*s = fresh
	return nil
}

// SubscriptionGateway reads subscriptions.
type SubscriptionGateway struct {
	client *Client
}

// Get fetches a subscription by UUID.
func (g *SubscriptionGateway) Get(ctx context.Context, uuid string) (*Subscription, error) {
	if err := invalid(validator.Apply(validator.Required("uuid", uuid))); err != nil {
		return nil, err
	}
	var s Subscription
	if _, err := g.client.invoke(ctx, Call{Method: http.MethodGet, Path: "/subscriptions/" + url.PathEscape(uuid)}, &s); err != nil {
		return nil, err
	}
	s.attach(g.client)
	return &s, nil
}

// List returns subscriptions of every account matching opts.
func (g *SubscriptionGateway) List(opts SubscriptionListOptions) *pager.Collection[*Subscription] {
	return list[Subscription](g.client, "/subscriptions", opts.ListOptions,
		filterValues(QueryState, string(opts.State)),
		oneOfOrEmpty("state", opts.State, subscriptionStates...),
	)
}
