package billing

import (
	"encoding/xml"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Amounts maps ISO 4217 currency codes to amounts in the currency's minor unit.
//
// On the wire each currency is its own element:
//
//	<unit_amount_in_cents><USD>1000</USD><EUR>800</EUR></unit_amount_in_cents>
type Amounts map[string]int64

// Get returns the amount for currency.
func (a Amounts) Get(currency string) (int64, bool) {
	v, ok := a[currency]
	return v, ok
}

// Set stores the amount for currency, allocating the map when needed.
func (a *Amounts) Set(currency string, cents int64) {
	if *a == nil {
		*a = make(Amounts)
	}
	(*a)[currency] = cents
}

// Currencies returns the currency codes in lexical order.
func (a Amounts) Currencies() []string {
	return slices.Sorted(maps.Keys(a))
}

func (a Amounts) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, code := range a.Currencies() {
		el := xml.StartElement{Name: xml.Name{Local: code}}
		if err := e.EncodeElement(a[code], el); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func (a *Amounts) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	out := make(Amounts)
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var raw string
			if err := d.DecodeElement(&raw, &t); err != nil {
				return err
			}
			cents, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return fmt.Errorf("amount for %s: %w", t.Name.Local, err)
			}
			out[t.Name.Local] = cents
		case xml.EndElement:
			*a = out
			return nil
		}
	}
}

// TaxExclusive returns the part of a tax-inclusive amount that excludes tax,
// rounded down to the minor unit. A refund of 100 cents on an invoice taxed
// at 8.75% refunds 91 cents of subtotal.
func TaxExclusive(cents int64, rate float64) int64 {
	if rate <= 0 {
		return cents
	}
	// The epsilon keeps exact quotients such as 109/1.09 from flooring to 99.
	return int64(math.Floor(float64(cents)/(1+rate) + 1e-9))
}

// Tax computes tax on a tax-exclusive amount, rounded half away from zero.
func Tax(cents int64, rate float64) int64 {
	if rate <= 0 {
		return 0
	}
	// Snap to a micro-cent first so 100 * 0.0875 rounds to 9, not 8.
	micro := math.Round(float64(cents) * rate * 1e6)
	return int64(math.Round(micro / 1e6))
}
