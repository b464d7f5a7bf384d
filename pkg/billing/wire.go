package billing

import (
	"encoding/xml"
	"time"
)

// Request and error documents exchanged with the service. Entity documents
// are the entity types themselves.

// RefundRequest asks for a refund invoice, either for line items or for an open amount.
type RefundRequest struct {
	XMLName       xml.Name         `xml:"invoice"`
	AmountInCents *int64           `xml:"amount_in_cents,omitempty"`
	LineItems     []RefundLineItem `xml:"line_items>adjustment,omitempty"`
}

// RefundLineItem selects a quantity of one invoice line to refund.
type RefundLineItem struct {
	XMLName  xml.Name `xml:"adjustment"`
	UUID     string   `xml:"uuid"`
	Quantity int      `xml:"quantity"`
	Prorate  bool     `xml:"prorate"`
}

// RedemptionRequest is the body of a coupon redemption.
type RedemptionRequest struct {
	XMLName     xml.Name `xml:"redemption"`
	AccountCode string   `xml:"account_code"`
	Currency    string   `xml:"currency"`
}

// SubscriptionChange carries the complete desired state of a subscription.
// The add-on list always replaces the current one.
type SubscriptionChange struct {
	XMLName           xml.Name            `xml:"subscription"`
	Timeframe         ChangeTimeframe     `xml:"timeframe"`
	PlanCode          string              `xml:"plan_code,omitempty"`
	Quantity          int                 `xml:"quantity,omitempty"`
	UnitAmountInCents *int64              `xml:"unit_amount_in_cents,omitempty"`
	CouponCode        string              `xml:"coupon_code,omitempty"`
	AddOns            []SubscriptionAddOn `xml:"subscription_add_ons>subscription_add_on"`
}

// SubscriptionNotes is the body of Subscription.UpdateNotes.
type SubscriptionNotes struct {
	XMLName               xml.Name `xml:"subscription"`
	CustomerNotes         string   `xml:"customer_notes"`
	TermsAndConditions    string   `xml:"terms_and_conditions"`
	VatReverseChargeNotes string   `xml:"vat_reverse_charge_notes"`
}

// PostponeQuery formats the renewal date the way the postpone endpoint expects it.
func PostponeQuery(date time.Time) string {
	return date.UTC().Format(time.RFC3339)
}

// FieldError is one entry of an ErrorsDocument.
type FieldError struct {
	Field   string `xml:"field,attr,omitempty"`
	Symbol  string `xml:"symbol,attr,omitempty"`
	Message string `xml:",chardata"`
}

// ErrorsDocument is the body of a validation failure.
type ErrorsDocument struct {
	XMLName xml.Name     `xml:"errors"`
	Errors  []FieldError `xml:"error"`
}

// ErrorDocument is the body of any other failure.
type ErrorDocument struct {
	XMLName     xml.Name `xml:"error"`
	Symbol      string   `xml:"symbol"`
	Description string   `xml:"description"`
}
