package billing

import (
	"fmt"
	"slices"

	"github.com/dmitrymomot/billing/pkg/validator"
)

// SubscriptionAddOn is one add-on line of a subscription. A nil unit amount
// uses the add-on price from the plan catalog.
type SubscriptionAddOn struct {
	Code              string `xml:"add_on_code"`
	Quantity          int    `xml:"quantity"`
	UnitAmountInCents *int64 `xml:"unit_amount_in_cents,omitempty"`
}

// SubscriptionAddOns keeps add-on lines in insertion order, at most one per code.
type SubscriptionAddOns []SubscriptionAddOn

// AddOnOption adjusts a line added with Add or AddFromCatalog.
type AddOnOption func(*SubscriptionAddOn)

// WithQuantity sets the quantity of the line.
func WithQuantity(n int) AddOnOption {
	return func(a *SubscriptionAddOn) {
		a.Quantity = n
	}
}

// WithUnitAmount overrides the catalog price of the line.
func WithUnitAmount(cents int64) AddOnOption {
	return func(a *SubscriptionAddOn) {
		a.UnitAmountInCents = &cents
	}
}

// Add appends a line for code with quantity 1 unless overridden.
// A second line for the same code is rejected with ErrDuplicateAddOn.
func (s *SubscriptionAddOns) Add(code string, opts ...AddOnOption) error {
	line := SubscriptionAddOn{Code: code, Quantity: 1}
	for _, opt := range opts {
		opt(&line)
	}
	return s.append(line)
}

// AddFromCatalog appends a line for a plan add-on, starting from its default quantity.
func (s *SubscriptionAddOns) AddFromCatalog(addOn *AddOn, opts ...AddOnOption) error {
	if addOn == nil {
		return invalid(validator.ValidationErrors{{Field: "add_on", Symbol: "blank", Message: "field is required"}})
	}
	line := SubscriptionAddOn{Code: addOn.Code, Quantity: max(addOn.DefaultQuantity, 1)}
	for _, opt := range opts {
		opt(&line)
	}
	return s.append(line)
}

func (s *SubscriptionAddOns) append(line SubscriptionAddOn) error {
	if err := line.validate(); err != nil {
		return err
	}
	if s.Get(line.Code) != nil {
		return invalid(fmt.Errorf("%w: %s", ErrDuplicateAddOn, line.Code))
	}
	*s = append(*s, line)
	return nil
}

// Get returns the line for code, or nil.
func (s SubscriptionAddOns) Get(code string) *SubscriptionAddOn {
	for i := range s {
		if s[i].Code == code {
			return &s[i]
		}
	}
	return nil
}

// Remove drops the line for code and reports whether it existed.
func (s *SubscriptionAddOns) Remove(code string) bool {
	n := len(*s)
	*s = slices.DeleteFunc(*s, func(a SubscriptionAddOn) bool { return a.Code == code })
	return len(*s) != n
}

// Codes returns the add-on codes in list order.
func (s SubscriptionAddOns) Codes() []string {
	codes := make([]string, len(s))
	for i, a := range s {
		codes[i] = a.Code
	}
	return codes
}

func (s SubscriptionAddOns) validate() error {
	for _, line := range s {
		if err := line.validate(); err != nil {
			return err
		}
	}
	if err := validator.Apply(validator.UniqueBy("subscription_add_ons", []SubscriptionAddOn(s), func(a SubscriptionAddOn) string { return a.Code })); err != nil {
		return invalid(err, ErrDuplicateAddOn)
	}
	return nil
}

func (a SubscriptionAddOn) validate() error {
	return invalid(validator.Apply(
		validator.Required("add_on_code", a.Code),
		validator.PositiveAmount("quantity", a.Quantity),
		validator.When(a.UnitAmountInCents != nil, validator.NonNegativeAmount("unit_amount_in_cents", deref(a.UnitAmountInCents))),
	))
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
