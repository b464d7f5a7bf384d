package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/validator"
)

// Catalog is the desired set of plans.
type Catalog struct {
	Plans []Plan `yaml:"plans"`
}

// Plan is a plan entry. Prices are in minor units keyed by currency code.
type Plan struct {
	Code               string           `yaml:"code"`
	Name               string           `yaml:"name"`
	Description        string           `yaml:"description"`
	AccountingCode     string           `yaml:"accounting_code"`
	Price              map[string]int64 `yaml:"price"`
	SetupFee           map[string]int64 `yaml:"setup_fee"`
	Interval           Interval         `yaml:"interval"`
	Trial              Interval         `yaml:"trial"`
	TotalBillingCycles int              `yaml:"total_billing_cycles"`
	TaxExempt          *bool            `yaml:"tax_exempt"`
	TaxCode            string           `yaml:"tax_code"`
	AddOns             []AddOn          `yaml:"add_ons"`
}

// Interval is a billing or trial period. A zero billing interval means one month.
type Interval struct {
	Length int                  `yaml:"length"`
	Unit   billing.IntervalUnit `yaml:"unit"`
}

// AddOn is an add-on of a plan. A zero default quantity means 1.
type AddOn struct {
	Code            string           `yaml:"code"`
	Name            string           `yaml:"name"`
	AccountingCode  string           `yaml:"accounting_code"`
	Price           map[string]int64 `yaml:"price"`
	DefaultQuantity int              `yaml:"default_quantity"`
	DisplayQuantity bool             `yaml:"display_quantity"`
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrReadCatalog, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog, fills defaults and validates it.
// Unknown keys are rejected so typos do not silently drop settings.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyCatalog
		}
		return nil, errors.Join(ErrParseCatalog, err)
	}
	if len(c.Plans) == 0 {
		return nil, ErrEmptyCatalog
	}

	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) normalize() {
	for i := range c.Plans {
		p := &c.Plans[i]
		if p.Interval.Length == 0 {
			p.Interval.Length = 1
		}
		if p.Interval.Unit == "" {
			p.Interval.Unit = billing.IntervalMonths
		}
		if p.Trial.Length > 0 && p.Trial.Unit == "" {
			p.Trial.Unit = billing.IntervalDays
		}
		for j := range p.AddOns {
			if p.AddOns[j].DefaultQuantity == 0 {
				p.AddOns[j].DefaultQuantity = 1
			}
		}
	}
}

// Validate checks the catalog with the same rules the billing client applies
// before creating plans and add-ons. Field names are prefixed with the plan
// code, e.g. "basic.price" or "basic.add_ons.seats.name".
func (c *Catalog) Validate() error {
	rules := []validator.Rule{
		validator.UniqueBy("plans", c.Plans, func(p Plan) string { return p.Code }),
	}
	for _, p := range c.Plans {
		prefix := p.Code + "."
		rules = append(rules,
			validator.Required("plans.code", p.Code),
			validator.MaxLen(prefix+"code", p.Code, 50),
			validator.Required(prefix+"name", p.Name),
			validator.RequiredMap(prefix+"price", p.Price),
			validator.ValidCurrencyAmounts(prefix+"price", p.Price),
			validator.ValidCurrencyAmounts(prefix+"setup_fee", p.SetupFee),
			validator.PositiveAmount(prefix+"interval.length", p.Interval.Length),
			validator.OneOf(prefix+"interval.unit", p.Interval.Unit, billing.IntervalDays, billing.IntervalMonths),
			validator.NonNegativeAmount(prefix+"trial.length", p.Trial.Length),
			validator.When(p.Trial.Length > 0,
				validator.OneOf(prefix+"trial.unit", p.Trial.Unit, billing.IntervalDays, billing.IntervalMonths)),
			validator.UniqueBy(prefix+"add_ons", p.AddOns, func(a AddOn) string { return a.Code }),
		)
		for _, a := range p.AddOns {
			addOnPrefix := fmt.Sprintf("%sadd_ons.%s.", prefix, a.Code)
			rules = append(rules,
				validator.Required(prefix+"add_ons.code", a.Code),
				validator.MaxLen(addOnPrefix+"code", a.Code, 50),
				validator.Required(addOnPrefix+"name", a.Name),
				validator.RequiredMap(addOnPrefix+"price", a.Price),
				validator.ValidCurrencyAmounts(addOnPrefix+"price", a.Price),
				validator.PositiveAmount(addOnPrefix+"default_quantity", a.DefaultQuantity),
			)
		}
	}
	if err := validator.Apply(rules...); err != nil {
		return errors.Join(ErrInvalidCatalog, err)
	}
	return nil
}

// Plan returns the plan with the given code.
func (c *Catalog) Plan(code string) (Plan, bool) {
	for _, p := range c.Plans {
		if p.Code == code {
			return p, true
		}
	}
	return Plan{}, false
}
