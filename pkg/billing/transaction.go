package billing

import (
	"context"
	"encoding/xml"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/pager"
	"github.com/dmitrymomot/billing/pkg/validator"
)

// Transaction is a payment attempt against an account.
type Transaction struct {
	bound
	XMLName xml.Name `xml:"transaction"`

	UUID          string            `xml:"uuid,omitempty"`
	AccountCode   string            `xml:"account_code,omitempty"`
	Account       *Account          `xml:"account,omitempty"` // draft account, sent on Create only
	InvoiceNumber int               `xml:"invoice_number,omitempty"`
	Action        TransactionAction `xml:"action,omitempty"`
	Status        TransactionStatus `xml:"status,omitempty"`
	AmountInCents int64             `xml:"amount_in_cents"`
	TaxInCents    int64             `xml:"tax_in_cents,omitempty"`
	Currency      string            `xml:"currency"`
	Description   string            `xml:"description,omitempty"`
	Refundable    bool              `xml:"refundable,omitempty"`
	Voidable      bool              `xml:"voidable,omitempty"`
	CreatedAt     *time.Time        `xml:"created_at,omitempty"`
}

// NewTransaction returns a draft one-off charge. A persisted account is
// referenced by code; a draft account is created together with the
// transaction and must carry billing info.
func (c *Client) NewTransaction(account *Account, cents int64, currency string) *Transaction {
	t := &Transaction{
		bound:         bound{client: c},
		AmountInCents: cents,
		Currency:      currency,
	}
	if account != nil {
		if account.Persisted() {
			t.AccountCode = account.Code
		} else {
			t.Account = account
		}
	}
	return t
}

// Create charges a one-off amount, invoiced and collected at once.
func (t *Transaction) Create(ctx context.Context) error {
	if err := t.draft(); err != nil {
		return err
	}
	rules := []validator.Rule{
		validator.PositiveAmount("amount_in_cents", t.AmountInCents),
		validator.ValidCurrencyCode("currency", t.Currency),
		validator.When(t.Account == nil, validator.Required("account_code", t.AccountCode)),
	}
	if t.Account != nil {
		if err := t.Account.validate(); err != nil {
			return err
		}
		rules = append(rules, validator.Rule{
			Check: func() bool { return t.Account.BillingInfo.Method() != PaymentNone },
			Error: validator.ValidationError{
				Field:          "account.billing_info",
				Symbol:         "blank",
				Message:        "field is required",
				TranslationKey: "validation.required",
			},
		})
	}
	if err := invalid(validator.Apply(rules...)); err != nil {
		return err
	}

	var fresh Transaction
	if _, err := t.client.invoke(ctx, Call{Method: http.MethodPost, Path: "/transactions", Body: t}, &fresh); err != nil {
		return err
	}
	fresh.attach(t.client)
	*t = fresh

	t.client.logger.InfoContext(ctx, "transaction created",
		logger.AccountCode(t.AccountCode),
		logger.Group("transaction", slog.String("status", string(t.Status))),
	)
	return nil
}

// Invoice fetches the invoice the transaction paid.
func (t *Transaction) Invoice(ctx context.Context) (*Invoice, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	if t.InvoiceNumber == 0 {
		return nil, ErrNotFound
	}
	return t.client.Invoices.Get(ctx, t.InvoiceNumber)
}

// Refund returns money to the customer. A full refund (cents zero or equal to
// the amount) of a voidable transaction voids it in place and returns the
// receiver. Anything else creates and returns a new refund transaction.
//
// Deprecated: refund through Invoice.Refund or Invoice.RefundAmount.
func (t *Transaction) Refund(ctx context.Context, cents int64) (*Transaction, error) {
	if err := t.ready(); err != nil {
		return nil, err
	}
	if cents == 0 {
		cents = t.AmountInCents
	}
	if err := invalid(validator.Apply(validator.AmountRange("amount_in_cents", cents, 1, t.AmountInCents))); err != nil {
		return nil, err
	}

	event := TransactionRefund
	if cents == t.AmountInCents && t.Voidable {
		event = TransactionVoid
	}
	if _, err := TransactionLifecycle.Next(ctx, t.Status, event, t); err != nil {
		return nil, illegal(err)
	}

	call := Call{
		Method: http.MethodDelete,
		Path:   "/transactions/" + url.PathEscape(t.UUID),
		Query:  url.Values{"amount_in_cents": {strconv.FormatInt(cents, 10)}},
	}
	var fresh Transaction
	if _, err := t.client.invoke(ctx, call, &fresh); err != nil {
		return nil, err
	}
	fresh.attach(t.client)

	if fresh.UUID == t.UUID {
		from := t.Status
		*t = fresh
		t.client.logTransition(ctx, "transaction voided", string(from), string(t.Status), logger.AccountCode(t.AccountCode))
		return t, nil
	}
	return &fresh, nil
}

// TransactionGateway reads transactions.
type TransactionGateway struct {
	client *Client
}

// Get fetches a transaction by UUID.
func (g *TransactionGateway) Get(ctx context.Context, uuid string) (*Transaction, error) {
	if err := invalid(validator.Apply(validator.Required("uuid", uuid))); err != nil {
		return nil, err
	}
	var t Transaction
	if _, err := g.client.invoke(ctx, Call{Method: http.MethodGet, Path: "/transactions/" + url.PathEscape(uuid)}, &t); err != nil {
		return nil, err
	}
	t.attach(g.client)
	return &t, nil
}

// List returns transactions of every account matching opts.
func (g *TransactionGateway) List(opts TransactionListOptions) *pager.Collection[*Transaction] {
	return list[Transaction](g.client, "/transactions", opts.ListOptions,
		filterValues(QueryState, string(opts.Status), QueryType, string(opts.Type)),
		oneOfOrEmpty("state", opts.Status, TransactionSuccessful, TransactionFailed, TransactionVoided),
		oneOfOrEmpty("type", opts.Type, ActionPurchase, ActionAuthorization, ActionRefund),
	)
}
