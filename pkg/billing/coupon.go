package billing

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/pager"
	"github.com/dmitrymomot/billing/pkg/validator"
)

// Discount is either a PercentDiscount or an AmountDiscount.
type Discount interface {
	discountType() string
	rules() []validator.Rule
}

// PercentDiscount takes a whole percentage (1..100) off.
type PercentDiscount struct {
	Percent int
}

// AmountDiscount takes a fixed amount off, per currency.
type AmountDiscount struct {
	Amounts Amounts
}

const (
	discountPercent = "percent"
	discountDollars = "dollars"
)

func (PercentDiscount) discountType() string { return discountPercent }
func (AmountDiscount) discountType() string  { return discountDollars }

func (d PercentDiscount) rules() []validator.Rule {
	return []validator.Rule{validator.ValidPercentage("discount_percent", d.Percent)}
}

func (d AmountDiscount) rules() []validator.Rule {
	rules := []validator.Rule{
		validator.RequiredMap("discount_in_cents", d.Amounts),
		validator.ValidCurrencyAmounts("discount_in_cents", d.Amounts),
	}
	for _, code := range d.Amounts.Currencies() {
		rules = append(rules, validator.PositiveAmount("discount_in_cents."+code, d.Amounts[code]))
	}
	return rules
}

// Coupon is a discount that accounts can redeem.
type Coupon struct {
	bound

	Code              string
	Name              string
	Description       string
	State             CouponState
	Discount          Discount
	MaxRedemptions    int
	RedeemByDate      *time.Time
	SingleUse         bool
	AppliesForMonths  int
	AppliesToAllPlans bool
	Plans             []string // plan codes, used when AppliesToAllPlans is false
	CreatedAt         *time.Time
}

// couponXML is the wire shape of a coupon. The discount is flattened into
// discount_type plus one of discount_percent or discount_in_cents.
type couponXML struct {
	XMLName           xml.Name    `xml:"coupon"`
	Code              string      `xml:"coupon_code"`
	Name              string      `xml:"name"`
	Description       string      `xml:"description,omitempty"`
	State             CouponState `xml:"state,omitempty"`
	DiscountType      string      `xml:"discount_type"`
	DiscountPercent   *int        `xml:"discount_percent,omitempty"`
	DiscountInCents   Amounts     `xml:"discount_in_cents,omitempty"`
	MaxRedemptions    int         `xml:"max_redemptions,omitempty"`
	RedeemByDate      *time.Time  `xml:"redeem_by_date,omitempty"`
	SingleUse         bool        `xml:"single_use,omitempty"`
	AppliesForMonths  int         `xml:"applies_for_months,omitempty"`
	AppliesToAllPlans bool        `xml:"applies_to_all_plans"`
	Plans             []string    `xml:"plan_codes>plan_code,omitempty"`
	CreatedAt         *time.Time  `xml:"created_at,omitempty"`
}

func (c Coupon) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	doc := couponXML{
		Code:              c.Code,
		Name:              c.Name,
		Description:       c.Description,
		State:             c.State,
		MaxRedemptions:    c.MaxRedemptions,
		RedeemByDate:      c.RedeemByDate,
		SingleUse:         c.SingleUse,
		AppliesForMonths:  c.AppliesForMonths,
		AppliesToAllPlans: c.AppliesToAllPlans,
		Plans:             c.Plans,
		CreatedAt:         c.CreatedAt,
	}
	switch d := c.Discount.(type) {
	case PercentDiscount:
		doc.DiscountType = discountPercent
		doc.DiscountPercent = &d.Percent
	case AmountDiscount:
		doc.DiscountType = discountDollars
		doc.DiscountInCents = d.Amounts
	default:
		return ErrDiscountRequired
	}
	return e.Encode(doc)
}

func (c *Coupon) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var doc couponXML
	if err := d.DecodeElement(&doc, &start); err != nil {
		return err
	}

	switch {
	case doc.DiscountPercent != nil && len(doc.DiscountInCents) > 0:
		return fmt.Errorf("%w: both percent and amount present", ErrDiscountRequired)
	case doc.DiscountType == discountPercent && doc.DiscountPercent != nil:
		c.Discount = PercentDiscount{Percent: *doc.DiscountPercent}
	case doc.DiscountType == discountDollars:
		c.Discount = AmountDiscount{Amounts: doc.DiscountInCents}
	default:
		return fmt.Errorf("%w: unknown discount type %q", ErrDiscountRequired, doc.DiscountType)
	}

	c.Code = doc.Code
	c.Name = doc.Name
	c.Description = doc.Description
	c.State = doc.State
	c.MaxRedemptions = doc.MaxRedemptions
	c.RedeemByDate = doc.RedeemByDate
	c.SingleUse = doc.SingleUse
	c.AppliesForMonths = doc.AppliesForMonths
	c.AppliesToAllPlans = doc.AppliesToAllPlans
	c.Plans = doc.Plans
	c.CreatedAt = doc.CreatedAt
	return nil
}

// NewPercentCoupon returns a draft coupon valid for all plans.
func (c *Client) NewPercentCoupon(code, name string, percent int) *Coupon {
	return &Coupon{
		bound:             bound{client: c},
		Code:              code,
		Name:              name,
		Discount:          PercentDiscount{Percent: percent},
		AppliesToAllPlans: true,
	}
}

// NewAmountCoupon returns a draft coupon valid for all plans.
func (c *Client) NewAmountCoupon(code, name string, amounts Amounts) *Coupon {
	return &Coupon{
		bound:             bound{client: c},
		Code:              code,
		Name:              name,
		Discount:          AmountDiscount{Amounts: amounts},
		AppliesToAllPlans: true,
	}
}

// PercentOff returns the percentage, or false for amount coupons.
func (c *Coupon) PercentOff() (int, bool) {
	d, ok := c.Discount.(PercentDiscount)
	return d.Percent, ok
}

// AmountOff returns the per-currency amounts, or false for percent coupons.
func (c *Coupon) AmountOff() (Amounts, bool) {
	d, ok := c.Discount.(AmountDiscount)
	return d.Amounts, ok
}

// AppliesTo reports whether the coupon can discount a subscription to planCode.
func (c *Coupon) AppliesTo(planCode string) bool {
	if c.AppliesToAllPlans {
		return true
	}
	for _, p := range c.Plans {
		if p == planCode {
			return true
		}
	}
	return false
}

// Create posts the draft coupon. Exactly one discount kind must be set.
func (c *Coupon) Create(ctx context.Context) error {
	if err := c.draft(); err != nil {
		return err
	}
	if c.Discount == nil {
		return invalid(ErrDiscountRequired)
	}
	rules := []validator.Rule{
		validator.Required("coupon_code", c.Code),
		validator.MaxLen("coupon_code", c.Code, 50),
		validator.Required("name", c.Name),
		validator.NonNegativeAmount("max_redemptions", c.MaxRedemptions),
		validator.When(!c.AppliesToAllPlans, validator.Rule{
			Check: func() bool { return len(c.Plans) > 0 },
			Error: validator.ValidationError{Field: "plan_codes", Symbol: "blank", Message: "field is required", TranslationKey: "validation.required"},
		}),
	}
	if c.RedeemByDate != nil {
		rules = append(rules, validator.DateAfter("redeem_by_date", *c.RedeemByDate, c.client.now()))
	}
	rules = append(rules, c.Discount.rules()...)
	if err := invalid(validator.Apply(rules...)); err != nil {
		return err
	}

	var fresh Coupon
	if _, err := c.client.invoke(ctx, Call{Method: http.MethodPost, Path: "/coupons", Body: c}, &fresh); err != nil {
		return err
	}
	fresh.attach(c.client)
	*c = fresh
	return nil
}

// Deactivate stops further redemptions. Existing redemptions stay active.
func (c *Coupon) Deactivate(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	next, err := CouponLifecycle.Next(ctx, c.State, CouponDeactivate, nil)
	if err != nil {
		return illegal(err)
	}
	if _, err := c.client.invoke(ctx, Call{Method: http.MethodDelete, Path: "/coupons/" + url.PathEscape(c.Code)}, nil); err != nil {
		return err
	}
	from := c.State
	c.State = next
	c.client.logTransition(ctx, "coupon deactivated", string(from), string(next), logger.Group("coupon", slog.String("code", c.Code)))
	return nil
}

// CouponGateway reads coupons.
type CouponGateway struct {
	client *Client
}

// Get fetches a coupon by code.
func (g *CouponGateway) Get(ctx context.Context, code string) (*Coupon, error) {
	if err := invalid(validator.Apply(validator.Required("coupon_code", code))); err != nil {
		return nil, err
	}
	var c Coupon
	if _, err := g.client.invoke(ctx, Call{Method: http.MethodGet, Path: "/coupons/" + url.PathEscape(code)}, &c); err != nil {
		return nil, err
	}
	c.attach(g.client)
	return &c, nil
}

// List returns every coupon matching opts.
func (g *CouponGateway) List(opts CouponListOptions) *pager.Collection[*Coupon] {
	return list[Coupon](g.client, "/coupons", opts.ListOptions,
		filterValues(QueryState, string(opts.State)),
		oneOfOrEmpty("state", opts.State, CouponRedeemable, CouponExpired, CouponMaxedOut, CouponInactive),
	)
}
