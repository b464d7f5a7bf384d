package billingtest

import (
	"context"
	"net/http"
	"slices"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/validator"
)

// expire moves a redeemable coupon past its redeem-by date to Expired.
func (s *Server) expire(c *billing.Coupon) {
	if c.RedeemByDate == nil || c.RedeemByDate.After(s.now()) {
		return
	}
	if next, err := billing.CouponLifecycle.Next(context.Background(), c.State, billing.CouponExpire, nil); err == nil {
		c.State = next
	}
}

func (s *Server) redeemable(c *billing.Coupon) bool {
	s.expire(c)
	return c.State == billing.CouponRedeemable
}

func (s *Server) activeRedemption(accountCode string) *billing.CouponRedemption {
	for _, red := range s.redemptions.filter(nil) {
		if red.AccountCode == accountCode && red.State == billing.RedemptionActive {
			return red
		}
	}
	return nil
}

// redeem records a redemption and maxes the coupon out once it reaches its limit.
func (s *Server) redeem(ctx context.Context, c *billing.Coupon, accountCode, currency string) *billing.CouponRedemption {
	red := &billing.CouponRedemption{
		UUID:        newUUID(),
		CouponCode:  c.Code,
		AccountCode: accountCode,
		Currency:    currency,
		State:       billing.RedemptionLifecycle.Initial(),
		SingleUse:   c.SingleUse,
		CreatedAt:   s.timestamp(),
	}
	s.redemptions.put(red.UUID, red)

	used := len(s.redemptions.filter(func(r *billing.CouponRedemption) bool { return r.CouponCode == c.Code }))
	if c.MaxRedemptions > 0 && used >= c.MaxRedemptions {
		if next, err := billing.CouponLifecycle.Next(ctx, c.State, billing.CouponMaxOut, nil); err == nil {
			c.State = next
		}
	}
	return red
}

func (s *Server) lookupCoupon(w http.ResponseWriter, r *http.Request) (*billing.Coupon, bool) {
	code := param(r, "coupon")
	c, ok := s.coupons.get(code)
	if !ok {
		writeNotFound(w, "Coupon", code)
		return nil, false
	}
	s.expire(c)
	return c, true
}

func (s *Server) listCoupons(w http.ResponseWriter, r *http.Request) {
	state := billing.CouponState(r.URL.Query().Get(billing.QueryState))
	paginate(w, r, "coupons", s.coupons.filter(func(c *billing.Coupon) bool {
		s.expire(c)
		return state == "" || c.State == state
	}))
}

func (s *Server) createCoupon(w http.ResponseWriter, r *http.Request) {
	var in billing.Coupon
	if !decodeBody(w, r, &in) {
		return
	}
	_, exists := s.coupons.get(in.Code)
	if err := validator.Apply(
		validator.Required("coupon_code", in.Code),
		taken("coupon_code", exists),
	); err != nil {
		writeValidation(w, err)
		return
	}
	c := in
	c.State = billing.CouponLifecycle.Initial()
	c.CreatedAt = s.timestamp()
	s.expire(&c)
	s.coupons.put(c.Code, &c)
	writeXML(w, http.StatusCreated, &c)
}

func (s *Server) getCoupon(w http.ResponseWriter, r *http.Request) {
	if c, ok := s.lookupCoupon(w, r); ok {
		writeXML(w, http.StatusOK, c)
	}
}

func (s *Server) deactivateCoupon(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupCoupon(w, r)
	if !ok {
		return
	}
	next, err := billing.CouponLifecycle.Next(r.Context(), c.State, billing.CouponDeactivate, nil)
	if err != nil {
		writeIllegal(w, err)
		return
	}
	c.State = next
	w.WriteHeader(http.StatusNoContent)
}

// redeemCoupon applies a coupon to an account. An account holds one active
// redemption at a time; plan-scoped coupons need a live subscription to one
// of their plans.
func (s *Server) redeemCoupon(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupCoupon(w, r)
	if !ok {
		return
	}
	var req billing.RedemptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := billing.CouponLifecycle.Next(r.Context(), c.State, billing.CouponRedeem, nil); err != nil {
		writeIllegal(w, err)
		return
	}
	a, ok := s.accounts.get(req.AccountCode)
	if !ok {
		writeNotFound(w, "Account", req.AccountCode)
		return
	}
	if s.activeRedemption(a.Code) != nil {
		writeError(w, http.StatusConflict, "already_redeemed", "account already has an active coupon redemption")
		return
	}

	rules := []validator.Rule{validator.ValidCurrencyCode("currency", req.Currency)}
	if amounts, ok := c.AmountOff(); ok {
		_, priced := amounts.Get(req.Currency)
		rules = append(rules, unknown("currency", priced))
	}
	if !c.AppliesToAllPlans {
		matches := slices.ContainsFunc(s.liveSubscriptions(a.Code), func(sub *billing.Subscription) bool {
			return c.AppliesTo(sub.PlanCode)
		})
		rules = append(rules, validator.Rule{
			Check: func() bool { return matches },
			Error: validator.ValidationError{Field: "coupon_code", Symbol: "invalid", Message: "is not valid for any subscription of the account"},
		})
	}
	if err := validator.Apply(rules...); err != nil {
		writeValidation(w, err)
		return
	}

	writeXML(w, http.StatusCreated, s.redeem(r.Context(), c, a.Code, req.Currency))
}

func (s *Server) getActiveRedemption(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	red := s.activeRedemption(a.Code)
	if red == nil {
		writeNotFound(w, "Redemption", a.Code)
		return
	}
	writeXML(w, http.StatusOK, red)
}

func (s *Server) listAccountRedemptions(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	paginate(w, r, "redemptions", s.redemptions.filter(func(red *billing.CouponRedemption) bool {
		return red.AccountCode == a.Code
	}))
}

func (s *Server) deleteRedemption(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	id := param(r, "uuid")
	red, ok := s.redemptions.get(id)
	if !ok || red.AccountCode != a.Code {
		writeNotFound(w, "Redemption", id)
		return
	}
	next, err := billing.RedemptionLifecycle.Next(r.Context(), red.State, billing.RedemptionRemove, nil)
	if err != nil {
		writeIllegal(w, err)
		return
	}
	red.State = next
	w.WriteHeader(http.StatusNoContent)
}
