package billing

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrymomot/billing/pkg/pager"
	"github.com/dmitrymomot/billing/pkg/validator"
)

// IntervalUnit is the unit of billing and trial intervals.
type IntervalUnit string

const (
	IntervalDays   IntervalUnit = "days"
	IntervalMonths IntervalUnit = "months"
)

// Plan is a catalog entry priced per currency.
type Plan struct {
	bound
	XMLName xml.Name `xml:"plan"`

	Code                string       `xml:"plan_code"`
	Name                string       `xml:"name"`
	Description         string       `xml:"description,omitempty"`
	AccountingCode      string       `xml:"accounting_code,omitempty"`
	UnitAmountInCents   Amounts      `xml:"unit_amount_in_cents,omitempty"`
	SetupFeeInCents     Amounts      `xml:"setup_fee_in_cents,omitempty"`
	IntervalLength      int          `xml:"plan_interval_length"`
	IntervalUnit        IntervalUnit `xml:"plan_interval_unit"`
	TrialIntervalLength int          `xml:"trial_interval_length,omitempty"`
	TrialIntervalUnit   IntervalUnit `xml:"trial_interval_unit,omitempty"`
	TotalBillingCycles  int          `xml:"total_billing_cycles,omitempty"`
	TaxExempt           *bool        `xml:"tax_exempt,omitempty"`
	TaxCode             string       `xml:"tax_code,omitempty"`
	CreatedAt           *time.Time   `xml:"created_at,omitempty"`
}

// NewPlan returns a draft monthly plan.
func (c *Client) NewPlan(code, name string) *Plan {
	return &Plan{
		bound:          bound{client: c},
		Code:           code,
		Name:           name,
		IntervalLength: 1,
		IntervalUnit:   IntervalMonths,
	}
}

func (p *Plan) path(parts ...string) string {
	s := "/plans/" + url.PathEscape(p.Code)
	for _, part := range parts {
		s += "/" + part
	}
	return s
}

func (p *Plan) validate() error {
	return invalid(validator.Apply(
		validator.Required("plan_code", p.Code),
		validator.MaxLen("plan_code", p.Code, 50),
		validator.Required("name", p.Name),
		validator.RequiredMap("unit_amount_in_cents", p.UnitAmountInCents),
		validator.ValidCurrencyAmounts("unit_amount_in_cents", p.UnitAmountInCents),
		validator.ValidCurrencyAmounts("setup_fee_in_cents", p.SetupFeeInCents),
		validator.PositiveAmount("plan_interval_length", p.IntervalLength),
		validator.OneOf("plan_interval_unit", p.IntervalUnit, IntervalDays, IntervalMonths),
		validator.When(p.TrialIntervalLength > 0,
			validator.OneOf("trial_interval_unit", p.TrialIntervalUnit, IntervalDays, IntervalMonths)),
	))
}

// Create posts the draft plan.
func (p *Plan) Create(ctx context.Context) error {
	if err := p.draft(); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	return p.roundTrip(ctx, Call{Method: http.MethodPost, Path: "/plans", Body: p})
}

// Update sends the plan fields. Existing subscriptions keep their price.
func (p *Plan) Update(ctx context.Context) error {
	if err := p.ready(); err != nil {
		return err
	}
	if err := p.validate(); err != nil {
		return err
	}
	return p.roundTrip(ctx, Call{Method: http.MethodPut, Path: p.path(), Body: p})
}

// Deactivate removes the plan from the catalog. Existing subscriptions keep it.
func (p *Plan) Deactivate(ctx context.Context) error {
	if err := p.ready(); err != nil {
		return err
	}
	if _, err := p.client.invoke(ctx, Call{Method: http.MethodDelete, Path: p.path()}, nil); err != nil {
		return err
	}
	p.persisted = false
	return nil
}

// NewAddOn returns a draft add-on of the plan with a default quantity of 1.
func (p *Plan) NewAddOn(code, name string) *AddOn {
	return &AddOn{
		bound:           bound{client: p.client},
		PlanCode:        p.Code,
		Code:            code,
		Name:            name,
		DefaultQuantity: 1,
	}
}

// AddOn fetches one add-on of the plan.
func (p *Plan) AddOn(ctx context.Context, code string) (*AddOn, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	var a AddOn
	if _, err := p.client.invoke(ctx, Call{Method: http.MethodGet, Path: p.path("add_ons", url.PathEscape(code))}, &a); err != nil {
		return nil, err
	}
	a.attach(p.client)
	return &a, nil
}

// AddOns lists the add-ons of the plan.
func (p *Plan) AddOns(opts ListOptions) *pager.Collection[*AddOn] {
	return list[AddOn](p.client, p.path("add_ons"), opts, nil)
}

func (p *Plan) roundTrip(ctx context.Context, call Call) error {
	var fresh Plan
	if _, err := p.client.invoke(ctx, call, &fresh); err != nil {
		return err
	}
	fresh.attach(p.client)
	*p = fresh
	return nil
}

// AddOn is an optional extra sold with a plan.
type AddOn struct {
	bound
	XMLName xml.Name `xml:"add_on"`

	PlanCode                    string     `xml:"plan_code,omitempty"`
	Code                        string     `xml:"add_on_code"`
	Name                        string     `xml:"name"`
	AccountingCode              string     `xml:"accounting_code,omitempty"`
	UnitAmountInCents           Amounts    `xml:"unit_amount_in_cents,omitempty"`
	DefaultQuantity             int        `xml:"default_quantity,omitempty"`
	DisplayQuantityOnHostedPage bool       `xml:"display_quantity_on_hosted_page,omitempty"`
	CreatedAt                   *time.Time `xml:"created_at,omitempty"`
}

func (a *AddOn) path() string {
	return "/plans/" + url.PathEscape(a.PlanCode) + "/add_ons"
}

func (a *AddOn) validate() error {
	return invalid(validator.Apply(
		validator.Required("plan_code", a.PlanCode),
		validator.Required("add_on_code", a.Code),
		validator.MaxLen("add_on_code", a.Code, 50),
		validator.Required("name", a.Name),
		validator.RequiredMap("unit_amount_in_cents", a.UnitAmountInCents),
		validator.ValidCurrencyAmounts("unit_amount_in_cents", a.UnitAmountInCents),
		validator.NonNegativeAmount("default_quantity", a.DefaultQuantity),
	))
}

// Create posts the draft add-on to its plan.
func (a *AddOn) Create(ctx context.Context) error {
	if err := a.draft(); err != nil {
		return err
	}
	if err := a.validate(); err != nil {
		return err
	}
	return a.roundTrip(ctx, Call{Method: http.MethodPost, Path: a.path(), Body: a})
}

func (a *AddOn) Update(ctx context.Context) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.validate(); err != nil {
		return err
	}
	return a.roundTrip(ctx, Call{Method: http.MethodPut, Path: a.path() + "/" + url.PathEscape(a.Code), Body: a})
}

// Delete removes the add-on from its plan.
func (a *AddOn) Delete(ctx context.Context) error {
	if err := a.ready(); err != nil {
		return err
	}
	if _, err := a.client.invoke(ctx, Call{Method: http.MethodDelete, Path: a.path() + "/" + url.PathEscape(a.Code)}, nil); err != nil {
		return err
	}
	a.persisted = false
	return nil
}

func (a *AddOn) roundTrip(ctx context.Context, call Call) error {
	var fresh AddOn
	if _, err := a.client.invoke(ctx, call, &fresh); err != nil {
		return err
	}
	fresh.attach(a.client)
	if fresh.PlanCode == "" {
		fresh.PlanCode = a.PlanCode
	}
	*a = fresh
	return nil
}

// PlanGateway reads the plan catalog.
type PlanGateway struct {
	client *Client
}

// Get fetches a plan by code.
func (g *PlanGateway) Get(ctx context.Context, code string) (*Plan, error) {
	if err := invalid(validator.Apply(validator.Required("plan_code", code))); err != nil {
		return nil, err
	}
	var p Plan
	if _, err := g.client.invoke(ctx, Call{Method: http.MethodGet, Path: "/plans/" + url.PathEscape(code)}, &p); err != nil {
		return nil, err
	}
	p.attach(g.client)
	return &p, nil
}

// List returns every plan.
func (g *PlanGateway) List(opts ListOptions) *pager.Collection[*Plan] {
	return list[Plan](g.client, "/plans", opts, nil)
}
