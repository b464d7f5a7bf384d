package billing

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/pager"
	"github.com/dmitrymomot/billing/pkg/validator"
)

// MediaTypePDF is requested from the invoice endpoint to get the rendered document.
const MediaTypePDF = "application/pdf"

// Invoice is an immutable snapshot of billed adjustments. Only its collection
// state changes after creation; refunds produce new invoices.
type Invoice struct {
	bound
	XMLName xml.Name `xml:"invoice"`

	Number                int            `xml:"invoice_number"`
	UUID                  string         `xml:"uuid"`
	AccountCode           string         `xml:"account_code"`
	State                 InvoiceState   `xml:"state"`
	Currency              string         `xml:"currency"`
	SubtotalInCents       int64          `xml:"subtotal_in_cents"`
	DiscountInCents       int64          `xml:"discount_in_cents,omitempty"`
	TaxInCents            int64          `xml:"tax_in_cents"`
	TotalInCents          int64          `xml:"total_in_cents"`
	TaxType               string         `xml:"tax_type,omitempty"`
	TaxRate               float64        `xml:"tax_rate,omitempty"`
	OriginalInvoiceNumber int            `xml:"original_invoice_number,omitempty"`
	PONumber              string         `xml:"po_number,omitempty"`
	Adjustments           []*Adjustment  `xml:"line_items>adjustment"`
	Transactions          []*Transaction `xml:"transactions>transaction"`
	CreatedAt             *time.Time     `xml:"created_at,omitempty"`
	ClosedAt              *time.Time     `xml:"closed_at,omitempty"`
}

func (inv *Invoice) attach(c *Client) {
	inv.bound.attach(c)
	for _, a := range inv.Adjustments {
		a.attach(c)
	}
	for _, t := range inv.Transactions {
		t.attach(c)
	}
}

func (inv *Invoice) path(parts ...string) string {
	p := "/invoices/" + strconv.Itoa(inv.Number)
	for _, s := range parts {
		p += "/" + s
	}
	return p
}

// IsRefund reports whether the invoice refunds another one.
func (inv *Invoice) IsRefund() bool {
	return inv.OriginalInvoiceNumber != 0
}

// MarkSuccessful records an offline payment of an open or past-due invoice.
func (inv *Invoice) MarkSuccessful(ctx context.Context) error {
	return inv.transition(ctx, InvoiceMarkSuccessful, "mark_successful", "invoice marked successful")
}

// MarkFailed gives up collecting an open or past-due invoice.
func (inv *Invoice) MarkFailed(ctx context.Context) error {
	return inv.transition(ctx, InvoiceMarkFailed, "mark_failed", "invoice marked failed")
}

func (inv *Invoice) transition(ctx context.Context, event InvoiceEvent, action, msg string) error {
	if err := inv.ready(); err != nil {
		return err
	}
	next, err := InvoiceLifecycle.Next(ctx, inv.State, event, nil)
	if err != nil {
		return illegal(err)
	}

	var fresh Invoice
	if _, err := inv.client.invoke(ctx, Call{Method: http.MethodPut, Path: inv.path(action)}, &fresh); err != nil {
		return err
	}
	from := inv.State
	fresh.attach(inv.client)
	*inv = fresh
	inv.client.logTransition(ctx, msg, string(from), string(next), logger.InvoiceNumber(inv.Number))
	return nil
}

// Refund refunds one line item in full and returns the refund invoice.
// The receiver is not modified.
func (inv *Invoice) Refund(ctx context.Context, adj *Adjustment, prorate bool) (*Invoice, error) {
	if adj == nil {
		return nil, invalid(validator.ValidationErrors{{Field: "adjustment", Symbol: "blank", Message: "field is required"}})
	}
	return inv.refund(ctx, RefundRequest{LineItems: []RefundLineItem{refundLine(adj, prorate)}})
}

// RefundLineItems refunds several line items on one refund invoice.
//
// Deprecated: use Refund per line item, or RefundAmount for an open amount.
func (inv *Invoice) RefundLineItems(ctx context.Context, adjs []*Adjustment, prorate bool) (*Invoice, error) {
	req := RefundRequest{LineItems: make([]RefundLineItem, 0, len(adjs))}
	for _, adj := range adjs {
		if adj != nil {
			req.LineItems = append(req.LineItems, refundLine(adj, prorate))
		}
	}
	if len(req.LineItems) == 0 {
		return nil, invalid(validator.ValidationErrors{{Field: "line_items", Symbol: "blank", Message: "field is required"}})
	}
	return inv.refund(ctx, req)
}

// RefundAmount refunds an open amount, tax included. The refund invoice
// subtotal is the tax-exclusive part, see TaxExclusive.
func (inv *Invoice) RefundAmount(ctx context.Context, cents int64) (*Invoice, error) {
	if err := invalid(validator.Apply(
		validator.PositiveAmount("amount_in_cents", cents),
		validator.When(inv.TotalInCents > 0, validator.AmountRange("amount_in_cents", cents, 1, inv.TotalInCents)),
	)); err != nil {
		return nil, err
	}
	return inv.refund(ctx, RefundRequest{AmountInCents: &cents})
}

func refundLine(adj *Adjustment, prorate bool) RefundLineItem {
	q := adj.Quantity
	if q <= 0 {
		q = 1
	}
	return RefundLineItem{UUID: adj.UUID, Quantity: q, Prorate: prorate}
}

func (inv *Invoice) refund(ctx context.Context, req RefundRequest) (*Invoice, error) {
	if err := inv.ready(); err != nil {
		return nil, err
	}
	if _, err := InvoiceLifecycle.Next(ctx, inv.State, InvoiceRefund, nil); err != nil {
		return nil, illegal(err)
	}
	for _, li := range req.LineItems {
		if li.UUID == "" {
			return nil, invalid(validator.ValidationErrors{{Field: "line_items.uuid", Symbol: "blank", Message: "field is required"}})
		}
	}

	var refund Invoice
	if _, err := inv.client.invoke(ctx, Call{Method: http.MethodPost, Path: inv.path("refund"), Body: req}, &refund); err != nil {
		return nil, err
	}
	refund.attach(inv.client)

	inv.client.logger.InfoContext(ctx, "invoice refunded",
		logger.InvoiceNumber(inv.Number),
		logger.Group("refund", logger.InvoiceNumber(refund.Number)),
	)
	return &refund, nil
}

// PDF returns the rendered invoice document.
func (inv *Invoice) PDF(ctx context.Context) ([]byte, error) {
	if err := inv.ready(); err != nil {
		return nil, err
	}
	var body []byte
	if _, err := inv.client.invoke(ctx, Call{Method: http.MethodGet, Path: inv.path(), Accept: MediaTypePDF}, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// Redemption returns the coupon redemption applied to the invoice, or nil when there is none.
func (inv *Invoice) Redemption(ctx context.Context) (*CouponRedemption, error) {
	if err := inv.ready(); err != nil {
		return nil, err
	}
	var r CouponRedemption
	if _, err := inv.client.invoke(ctx, Call{Method: http.MethodGet, Path: inv.path("redemption")}, &r); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	r.attach(inv.client)
	return &r, nil
}

// InvoiceGateway reads invoices.
type InvoiceGateway struct {
	client *Client
}

// Get fetches an invoice by number.
func (g *InvoiceGateway) Get(ctx context.Context, number int) (*Invoice, error) {
	if err := invalid(validator.Apply(validator.PositiveAmount("invoice_number", number))); err != nil {
		return nil, err
	}
	var inv Invoice
	if _, err := g.client.invoke(ctx, Call{Method: http.MethodGet, Path: "/invoices/" + strconv.Itoa(number)}, &inv); err != nil {
		return nil, err
	}
	inv.attach(g.client)
	return &inv, nil
}

// List returns invoices of every account matching opts.
func (g *InvoiceGateway) List(opts InvoiceListOptions) *pager.Collection[*Invoice] {
	return list[Invoice](g.client, "/invoices", opts.ListOptions,
		filterValues(QueryState, string(opts.State)),
		oneOfOrEmpty("state", opts.State, InvoiceOpen, InvoiceCollected, InvoiceFailed, InvoicePastDue, InvoiceProcessing),
	)
}
