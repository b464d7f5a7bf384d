package billing

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrymomot/billing/pkg/validator"
)

// Adjustment is a one-off charge or credit on an account. Positive amounts
// are charges, negative amounts credits.
type Adjustment struct {
	bound
	XMLName xml.Name `xml:"adjustment"`

	UUID              string          `xml:"uuid,omitempty"`
	AccountCode       string          `xml:"account_code,omitempty"`
	InvoiceNumber     int             `xml:"invoice_number,omitempty"`
	State             AdjustmentState `xml:"state,omitempty"`
	Description       string          `xml:"description,omitempty"`
	AccountingCode    string          `xml:"accounting_code,omitempty"`
	Currency          string          `xml:"currency"`
	UnitAmountInCents int64           `xml:"unit_amount_in_cents"`
	Quantity          int             `xml:"quantity"`
	TaxExempt         *bool           `xml:"tax_exempt,omitempty"`
	TaxInCents        int64           `xml:"tax_in_cents,omitempty"`
	TotalInCents      int64           `xml:"total_in_cents,omitempty"`
	StartDate         *time.Time      `xml:"start_date,omitempty"`
	EndDate           *time.Time      `xml:"end_date,omitempty"`
	CreatedAt         *time.Time      `xml:"created_at,omitempty"`
}

// Type derives charge or credit from the sign of the total, or of the unit
// amount while no total has been computed. Refund lines carry a positive unit
// amount and a negative quantity, so they are credits.
func (a *Adjustment) Type() AdjustmentType {
	amount := a.TotalInCents
	if amount == 0 {
		amount = a.UnitAmountInCents
		if a.Quantity < 0 {
			amount = -amount
		}
	}
	if amount < 0 {
		return AdjustmentCredit
	}
	return AdjustmentCharge
}

// Create posts the draft as a pending charge or credit on its account.
func (a *Adjustment) Create(ctx context.Context) error {
	if err := a.draft(); err != nil {
		return err
	}
	err := invalid(validator.Apply(
		validator.Required("account_code", a.AccountCode),
		validator.ValidCurrencyCode("currency", a.Currency),
		validator.NonZeroAmount("unit_amount_in_cents", a.UnitAmountInCents),
		validator.PositiveAmount("quantity", a.Quantity),
		validator.MaxLen("description", a.Description, 255),
	))
	if err != nil {
		return err
	}

	var fresh Adjustment
	path := "/accounts/" + url.PathEscape(a.AccountCode) + "/adjustments"
	if _, err := a.client.invoke(ctx, Call{Method: http.MethodPost, Path: path, Body: a}, &fresh); err != nil {
		return err
	}
	fresh.attach(a.client)
	*a = fresh
	return nil
}

// Delete removes a pending adjustment. Invoiced adjustments are immutable.
func (a *Adjustment) Delete(ctx context.Context) error {
	if err := a.ready(); err != nil {
		return err
	}
	if a.State != AdjustmentPending {
		return illegal(fmt.Errorf("adjustment %s is %s", a.UUID, a.State))
	}
	if _, err := a.client.invoke(ctx, Call{Method: http.MethodDelete, Path: "/adjustments/" + url.PathEscape(a.UUID)}, nil); err != nil {
		return err
	}
	a.persisted = false
	return nil
}

// AdjustmentGateway reads adjustments by UUID. Listing goes through Account.Adjustments.
type AdjustmentGateway struct {
	client *Client
}

// Get fetches an adjustment by UUID.
func (g *AdjustmentGateway) Get(ctx context.Context, uuid string) (*Adjustment, error) {
	if err := invalid(validator.Apply(validator.Required("uuid", uuid))); err != nil {
		return nil, err
	}
	var a Adjustment
	if _, err := g.client.invoke(ctx, Call{Method: http.MethodGet, Path: "/adjustments/" + url.PathEscape(uuid)}, &a); err != nil {
		return nil, err
	}
	a.attach(g.client)
	return &a, nil
}
