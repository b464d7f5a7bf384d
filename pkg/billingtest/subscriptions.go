package billingtest

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/validator"
)

// Renew ends the current period of a subscription and invoices the next one.
// A trial becomes active; a change scheduled for renewal replaces the live plan.
func (s *Server) Renew(uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions.get(uuid)
	if !ok {
		return fmt.Errorf("subscription %s: %w", uuid, billing.ErrNotFound)
	}
	event := billing.SubscriptionRenew
	if sub.State == billing.SubscriptionInTrial || sub.State == billing.SubscriptionFuture {
		event = billing.SubscriptionActivate
	}
	next, err := billing.SubscriptionLifecycle.Next(context.Background(), sub.State, event, nil)
	if err != nil {
		return err
	}

	if p := sub.PendingSubscription; p != nil {
		sub.PlanCode = p.PlanCode
		sub.Quantity = max(p.Quantity, 1)
		sub.UnitAmountInCents = &p.UnitAmountInCents
		sub.AddOns = p.AddOns
		sub.PendingSubscription = nil
	}

	start := s.now().UTC()
	if sub.CurrentPeriodEndsAt != nil {
		start = *sub.CurrentPeriodEndsAt
	}
	end := start.AddDate(0, 1, 0)
	if plan, ok := s.plans.get(sub.PlanCode); ok {
		end = addInterval(start, plan.IntervalLength, plan.IntervalUnit)
	}
	if sub.ActivatedAt == nil {
		sub.ActivatedAt = &start
	}
	sub.State = next
	sub.CurrentPeriodStartedAt = &start
	sub.CurrentPeriodEndsAt = &end
	s.retax(sub)
	return s.billPeriod(context.Background(), sub)
}

// billPeriod invoices the plan and add-ons of the current period.
func (s *Server) billPeriod(ctx context.Context, sub *billing.Subscription) error {
	account, ok := s.accounts.get(sub.AccountCode)
	if !ok {
		return fmt.Errorf("account %s: %w", sub.AccountCode, billing.ErrNotFound)
	}

	var lines []*billing.Adjustment
	line := func(description string, unit *int64, quantity int) {
		if unit == nil || *unit == 0 {
			return
		}
		adj := s.newAdjustment(sub.AccountCode, sub.Currency, *unit, description)
		adj.Quantity = max(quantity, 1)
		adj.TotalInCents = *unit * int64(adj.Quantity)
		adj.StartDate = sub.CurrentPeriodStartedAt
		adj.EndDate = sub.CurrentPeriodEndsAt
		s.adjustments.put(adj.UUID, adj)
		lines = append(lines, adj)
	}
	line("Plan "+sub.PlanCode, sub.UnitAmountInCents, sub.Quantity)
	for _, a := range sub.AddOns {
		line("Add-on "+a.Code, a.UnitAmountInCents, a.Quantity)
	}
	if len(lines) == 0 {
		delete(s.subscriptionInvoices, sub.UUID)
		return nil
	}

	inv, err := s.issueInvoice(ctx, account, sub.Currency, lines, false)
	if err != nil {
		return err
	}
	s.subscriptionInvoices[sub.UUID] = inv.Number
	return nil
}

// terminationRefund builds the refund of the invoice that paid the current
// period: the unrefunded total for RefundFull, or its share of the unused
// part of the period for RefundPartial. It reports false when nothing is owed.
func (s *Server) terminationRefund(sub *billing.Subscription, refund billing.RefundType) (*billing.Invoice, billing.RefundRequest, bool) {
	number, ok := s.subscriptionInvoices[sub.UUID]
	if !ok || refund == billing.RefundNone {
		return nil, billing.RefundRequest{}, false
	}
	inv, ok := s.invoices.get(number)
	if !ok || !billing.InvoiceLifecycle.Can(context.Background(), inv.State, billing.InvoiceRefund, nil) {
		return nil, billing.RefundRequest{}, false
	}

	amount := inv.TotalInCents - s.refundedTotal(inv.Number)
	if refund == billing.RefundPartial {
		amount = prorate(amount, s.now(), sub.CurrentPeriodStartedAt, sub.CurrentPeriodEndsAt)
	}
	if amount <= 0 {
		return nil, billing.RefundRequest{}, false
	}
	return inv, billing.RefundRequest{AmountInCents: &amount}, true
}

// prorate returns the share of amount covering the time left in the period.
func prorate(amount int64, now time.Time, start, end *time.Time) int64 {
	if start == nil || end == nil || !end.After(*start) {
		return 0
	}
	period := end.Sub(*start)
	unused := min(max(end.Sub(now), 0), period)
	return int64(math.Round(float64(amount) * float64(unused) / float64(period)))
}

// ApplySubscriptionEvent moves a subscription the way the service does on
// its own, for example SubscriptionPaymentFailed or SubscriptionExpire.
func (s *Server) ApplySubscriptionEvent(uuid string, event billing.SubscriptionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions.get(uuid)
	if !ok {
		return fmt.Errorf("subscription %s: %w", uuid, billing.ErrNotFound)
	}
	period := billing.PaidPeriod{Now: s.now(), EndsAt: sub.CurrentPeriodEndsAt}
	next, err := billing.SubscriptionLifecycle.Next(context.Background(), sub.State, event, period)
	if err != nil {
		return err
	}
	sub.State = next
	if next == billing.SubscriptionExpired {
		sub.ExpiresAt = s.timestamp()
	}
	return nil
}

func addInterval(t time.Time, length int, unit billing.IntervalUnit) time.Time {
	length = max(length, 1)
	if unit == billing.IntervalDays {
		return t.AddDate(0, 0, length)
	}
	return t.AddDate(0, length, 0)
}

// buildSubscription resolves a subscription request against the catalog:
// prices default to the plan and add-on prices, and the start, trial and
// tax fields are computed. Nothing is stored.
func (s *Server) buildSubscription(ctx context.Context, in billing.Subscription) (*billing.Subscription, error) {
	account, accountFound := s.accounts.get(in.AccountCode)
	plan, planFound := s.plans.get(in.PlanCode)
	var price int64
	var priced bool
	if planFound {
		price, priced = plan.UnitAmountInCents.Get(in.Currency)
	}
	var coupon *billing.Coupon
	if in.CouponCode != "" {
		coupon, _ = s.coupons.get(in.CouponCode)
	}

	if err := validator.Apply(
		unknown("account_code", accountFound),
		unknown("plan_code", planFound),
		validator.When(planFound, unknown("currency", priced)),
		validator.When(in.CouponCode != "", unknown("coupon_code", coupon != nil && s.redeemable(coupon))),
	); err != nil {
		return nil, err
	}
	addOns, err := s.resolveAddOns(plan, in.Currency, in.AddOns)
	if err != nil {
		return nil, err
	}

	sub := in
	sub.UUID = ""
	sub.Quantity = max(in.Quantity, 1)
	sub.AddOns = addOns
	sub.PendingSubscription = nil
	sub.CanceledAt = nil
	sub.ExpiresAt = nil
	if sub.UnitAmountInCents == nil {
		sub.UnitAmountInCents = &price
	}

	now := s.now().UTC()
	state := billing.SubscriptionLifecycle.Initial()
	switch {
	case in.StartsAt != nil && in.StartsAt.After(now):
		sub.ActivatedAt = nil
		sub.CurrentPeriodStartedAt = nil
		sub.CurrentPeriodEndsAt = nil
	case plan.TrialIntervalLength > 0 || (in.TrialEndsAt != nil && in.TrialEndsAt.After(now)):
		if state, err = billing.SubscriptionLifecycle.Next(ctx, state, billing.SubscriptionStartTrial, nil); err != nil {
			return nil, err
		}
		trialEnds := addInterval(now, plan.TrialIntervalLength, plan.TrialIntervalUnit)
		if in.TrialEndsAt != nil {
			trialEnds = *in.TrialEndsAt
		}
		sub.StartsAt = &now
		sub.ActivatedAt = &now
		sub.TrialEndsAt = &trialEnds
		sub.CurrentPeriodStartedAt = &now
		sub.CurrentPeriodEndsAt = &trialEnds
	default:
		if state, err = billing.SubscriptionLifecycle.Next(ctx, state, billing.SubscriptionActivate, nil); err != nil {
			return nil, err
		}
		ends := addInterval(now, plan.IntervalLength, plan.IntervalUnit)
		sub.StartsAt = &now
		sub.ActivatedAt = &now
		sub.TrialEndsAt = nil
		sub.CurrentPeriodStartedAt = &now
		sub.CurrentPeriodEndsAt = &ends
	}
	sub.State = state
	s.taxFor(&sub, account)
	return &sub, nil
}

// resolveAddOns checks add-on lines against the plan and fills in catalog prices.
func (s *Server) resolveAddOns(plan *billing.Plan, currency string, lines billing.SubscriptionAddOns) (billing.SubscriptionAddOns, error) {
	if err := validator.Apply(validator.UniqueBy("subscription_add_ons", []billing.SubscriptionAddOn(lines),
		func(a billing.SubscriptionAddOn) string { return a.Code })); err != nil {
		return nil, validator.ValidationErrors{{Field: "subscription_add_ons.add_on_code", Symbol: "taken", Message: "has already been taken"}}
	}

	out := make(billing.SubscriptionAddOns, 0, len(lines))
	for _, line := range lines {
		addOn, ok := s.addOns.get(addOnKey(plan.Code, line.Code))
		if !ok {
			return nil, validator.ValidationErrors{{Field: "subscription_add_ons.add_on_code", Symbol: "invalid", Message: line.Code + " is not an add-on of " + plan.Code}}
		}
		if line.UnitAmountInCents == nil {
			price, ok := addOn.UnitAmountInCents.Get(currency)
			if !ok {
				return nil, validator.ValidationErrors{{Field: "subscription_add_ons.unit_amount_in_cents", Symbol: "invalid", Message: "no price in " + currency}}
			}
			line.UnitAmountInCents = &price
		}
		line.Quantity = max(line.Quantity, 1)
		out = append(out, line)
	}
	return out, nil
}

// taxFor computes the recurring tax of a subscription for the account location.
func (s *Server) taxFor(sub *billing.Subscription, account *billing.Account) {
	rate, kind := taxRate(account)
	sub.TaxRate = rate
	sub.TaxType = kind
	sub.TaxInCents = billing.Tax(recurring(sub), rate)
}

func (s *Server) retax(sub *billing.Subscription) {
	account, _ := s.accounts.get(sub.AccountCode)
	s.taxFor(sub, account)
}

// recurring is the amount billed each period, before tax.
func recurring(sub *billing.Subscription) int64 {
	var total int64
	if sub.UnitAmountInCents != nil {
		total = *sub.UnitAmountInCents * int64(sub.Quantity)
	}
	for _, a := range sub.AddOns {
		if a.UnitAmountInCents != nil {
			total += *a.UnitAmountInCents * int64(a.Quantity)
		}
	}
	return total
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	var in billing.Subscription
	if !decodeBody(w, r, &in) {
		return
	}
	sub, err := s.buildSubscription(r.Context(), in)
	if err != nil {
		writeValidation(w, err)
		return
	}
	sub.UUID = newUUID()
	s.subscriptions.put(sub.UUID, sub)

	if sub.CouponCode != "" && s.activeRedemption(sub.AccountCode) == nil {
		coupon, _ := s.coupons.get(sub.CouponCode)
		s.redeem(r.Context(), coupon, sub.AccountCode, sub.Currency)
	}
	writeXML(w, http.StatusCreated, sub)
}

func (s *Server) previewSubscription(w http.ResponseWriter, r *http.Request) {
	var in billing.Subscription
	if !decodeBody(w, r, &in) {
		return
	}
	sub, err := s.buildSubscription(r.Context(), in)
	if err != nil {
		writeValidation(w, err)
		return
	}
	writeXML(w, http.StatusOK, sub)
}

func (s *Server) lookupSubscription(w http.ResponseWriter, r *http.Request) (*billing.Subscription, bool) {
	id := param(r, "uuid")
	sub, ok := s.subscriptions.get(id)
	if !ok {
		writeNotFound(w, "Subscription", id)
	}
	return sub, ok
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	state := billing.SubscriptionState(r.URL.Query().Get(billing.QueryState))
	paginate(w, r, "subscriptions", s.subscriptions.filter(func(sub *billing.Subscription) bool {
		return state == "" || sub.State == state
	}))
}

func (s *Server) listAccountSubscriptions(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	state := billing.SubscriptionState(r.URL.Query().Get(billing.QueryState))
	paginate(w, r, "subscriptions", s.subscriptions.filter(func(sub *billing.Subscription) bool {
		return sub.AccountCode == a.Code && (state == "" || sub.State == state)
	}))
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	if sub, ok := s.lookupSubscription(w, r); ok {
		writeXML(w, http.StatusOK, sub)
	}
}

// changeSubscription applies a change now, replacing add-ons wholesale, or
// schedules it for the next renewal.
func (s *Server) changeSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.lookupSubscription(w, r)
	if !ok {
		return
	}
	var req billing.SubscriptionChange
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := billing.SubscriptionLifecycle.Next(r.Context(), sub.State, billing.SubscriptionChangePlan, nil); err != nil {
		writeIllegal(w, err)
		return
	}

	planCode := req.PlanCode
	if planCode == "" {
		planCode = sub.PlanCode
	}
	plan, planFound := s.plans.get(planCode)
	var price int64
	var priced bool
	if planFound {
		price, priced = plan.UnitAmountInCents.Get(sub.Currency)
	}
	if err := validator.Apply(
		validator.OneOf("timeframe", req.Timeframe, billing.TimeframeNow, billing.TimeframeRenewal),
		unknown("plan_code", planFound),
		validator.When(planFound, unknown("currency", priced)),
	); err != nil {
		writeValidation(w, err)
		return
	}
	addOns, err := s.resolveAddOns(plan, sub.Currency, req.AddOns)
	if err != nil {
		writeValidation(w, err)
		return
	}
	if req.UnitAmountInCents != nil {
		price = *req.UnitAmountInCents
	}
	quantity := sub.Quantity
	if req.Quantity > 0 {
		quantity = req.Quantity
	}

	if req.Timeframe == billing.TimeframeRenewal {
		sub.PendingSubscription = &billing.PendingSubscription{
			PlanCode:          planCode,
			Quantity:          quantity,
			UnitAmountInCents: price,
			AddOns:            addOns,
		}
	} else {
		sub.PlanCode = planCode
		sub.Quantity = quantity
		sub.UnitAmountInCents = &price
		sub.AddOns = addOns
		sub.PendingSubscription = nil
		if req.CouponCode != "" {
			sub.CouponCode = req.CouponCode
		}
		s.retax(sub)
	}
	writeXML(w, http.StatusOK, sub)
}

func (s *Server) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.lookupSubscription(w, r)
	if !ok {
		return
	}
	next, err := billing.SubscriptionLifecycle.Next(r.Context(), sub.State, billing.SubscriptionCancel, nil)
	if err != nil {
		writeIllegal(w, err)
		return
	}
	sub.State = next
	sub.CanceledAt = s.timestamp()
	sub.ExpiresAt = sub.CurrentPeriodEndsAt
	if sub.ExpiresAt == nil {
		sub.ExpiresAt = sub.CanceledAt
	}
	writeXML(w, http.StatusOK, sub)
}

func (s *Server) reactivateSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.lookupSubscription(w, r)
	if !ok {
		return
	}
	period := billing.PaidPeriod{Now: s.now(), EndsAt: sub.CurrentPeriodEndsAt}
	next, err := billing.SubscriptionLifecycle.Next(r.Context(), sub.State, billing.SubscriptionReactivate, period)
	if err != nil {
		writeIllegal(w, err)
		return
	}
	sub.State = next
	sub.CanceledAt = nil
	sub.ExpiresAt = nil
	writeXML(w, http.StatusOK, sub)
}

func (s *Server) terminateSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.lookupSubscription(w, r)
	if !ok {
		return
	}
	refund := billing.RefundType(r.URL.Query().Get("refund"))
	if err := validator.Apply(validator.OneOf("refund", refund, billing.RefundNone, billing.RefundPartial, billing.RefundFull)); err != nil {
		writeValidation(w, err)
		return
	}
	next, err := billing.SubscriptionLifecycle.Next(r.Context(), sub.State, billing.SubscriptionTerminate, nil)
	if err != nil {
		writeIllegal(w, err)
		return
	}
	if inv, req, ok := s.terminationRefund(sub, refund); ok {
		if _, err := s.issueRefund(inv, req); err != nil {
			writeValidation(w, err)
			return
		}
	}
	delete(s.subscriptionInvoices, sub.UUID)
	sub.State = next
	sub.ExpiresAt = s.timestamp()
	if sub.CanceledAt == nil {
		sub.CanceledAt = sub.ExpiresAt
	}
	writeXML(w, http.StatusOK, sub)
}

func (s *Server) postponeSubscription(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.lookupSubscription(w, r)
	if !ok {
		return
	}
	date, err := time.Parse(time.RFC3339, r.URL.Query().Get("next_renewal_date"))
	if err != nil {
		writeFieldError(w, "next_renewal_date", "invalid", "is not a valid date")
		return
	}
	rules := []validator.Rule{validator.DateAfter("next_renewal_date", date, s.now())}
	if sub.CurrentPeriodStartedAt != nil {
		rules = append(rules, validator.DateAfter("next_renewal_date", date, *sub.CurrentPeriodStartedAt))
	}
	if err := validator.Apply(rules...); err != nil {
		writeValidation(w, err)
		return
	}
	if _, err := billing.SubscriptionLifecycle.Next(r.Context(), sub.State, billing.SubscriptionPostpone, nil); err != nil {
		writeIllegal(w, err)
		return
	}

	date = date.UTC()
	sub.CurrentPeriodEndsAt = &date
	switch sub.State {
	case billing.SubscriptionInTrial:
		sub.TrialEndsAt = &date
	case billing.SubscriptionFuture:
		sub.StartsAt = &date
	}
	writeXML(w, http.StatusOK, sub)
}

func (s *Server) updateSubscriptionNotes(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.lookupSubscription(w, r)
	if !ok {
		return
	}
	var req billing.SubscriptionNotes
	if !decodeBody(w, r, &req) {
		return
	}
	sub.CustomerNotes = req.CustomerNotes
	sub.TermsAndConditions = req.TermsAndConditions
	sub.VatReverseChargeNotes = req.VatReverseChargeNotes
	writeXML(w, http.StatusOK, sub)
}

// liveSubscriptions returns the subscriptions of an account that are not canceled or expired.
func (s *Server) liveSubscriptions(accountCode string) []*billing.Subscription {
	return s.subscriptions.filter(func(sub *billing.Subscription) bool {
		return sub.AccountCode == accountCode && slices.Contains([]billing.SubscriptionState{
			billing.SubscriptionFuture, billing.SubscriptionInTrial, billing.SubscriptionActive, billing.SubscriptionPastDue,
		}, sub.State)
	})
}
