package billing

import (
	"context"
	"encoding/xml"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/pager"
	"github.com/dmitrymomot/billing/pkg/validator"
)

// Account is a customer of the billing service, identified by a caller-assigned code.
type Account struct {
	bound
	XMLName xml.Name `xml:"account"`

	Code              string       `xml:"account_code"`
	State             AccountState `xml:"state,omitempty"`
	Username          string       `xml:"username,omitempty"`
	Email             string       `xml:"email,omitempty"`
	FirstName         string       `xml:"first_name,omitempty"`
	LastName          string       `xml:"last_name,omitempty"`
	CompanyName       string       `xml:"company_name,omitempty"`
	AcceptLanguage    string       `xml:"accept_language,omitempty"`
	CcEmails          string       `xml:"cc_emails,omitempty"`
	VatNumber         string       `xml:"vat_number,omitempty"`
	TaxExempt         *bool        `xml:"tax_exempt,omitempty"`
	EntityUseCode     string       `xml:"entity_use_code,omitempty"`
	VatLocationValid  *bool        `xml:"vat_location_valid,omitempty"`
	HasPastDueInvoice bool         `xml:"has_past_due_invoice,omitempty"`
	Address           *Address     `xml:"address,omitempty"`
	BillingInfo       *BillingInfo `xml:"billing_info,omitempty"`
	CreatedAt         *time.Time   `xml:"created_at,omitempty"`
	ClosedAt          *time.Time   `xml:"closed_at,omitempty"`
}

// Address is the postal address of an account, used for tax.
type Address struct {
	Address1 string `xml:"address1,omitempty"`
	Address2 string `xml:"address2,omitempty"`
	City     string `xml:"city,omitempty"`
	State    string `xml:"state,omitempty"`
	Zip      string `xml:"zip,omitempty"`
	Country  string `xml:"country,omitempty"`
	Phone    string `xml:"phone,omitempty"`
}

// NewAccount returns a draft account bound to the client.
func (c *Client) NewAccount(code string) *Account {
	return &Account{bound: bound{client: c}, Code: code}
}

func (a *Account) path(parts ...string) string {
	p := "/accounts/" + url.PathEscape(a.Code)
	for _, s := range parts {
		p += "/" + s
	}
	return p
}

func (a *Account) validate() error {
	rules := []validator.Rule{
		validator.Required("account_code", a.Code),
		validator.MaxLen("account_code", a.Code, 50),
		validator.When(a.Email != "", validator.ValidEmail("email", a.Email)),
	}
	if a.Address != nil {
		rules = append(rules, validator.When(a.Address.Country != "",
			validator.ValidCountryCode("address.country", a.Address.Country)))
	}
	if a.BillingInfo != nil {
		rules = append(rules, a.BillingInfo.rules()...)
	}
	return invalid(validator.Apply(rules...))
}

// Create persists a draft account, together with its billing info when set.
func (a *Account) Create(ctx context.Context) error {
	if err := a.draft(); err != nil {
		return err
	}
	if err := a.validate(); err != nil {
		return err
	}
	return a.roundTrip(ctx, Call{Method: http.MethodPost, Path: "/accounts", Body: a})
}

// Update saves the editable fields of a persisted account.
func (a *Account) Update(ctx context.Context) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.validate(); err != nil {
		return err
	}
	return a.roundTrip(ctx, Call{Method: http.MethodPut, Path: a.path(), Body: a})
}

// UpdateBillingInfo replaces the stored payment method of the account.
func (a *Account) UpdateBillingInfo(ctx context.Context, info *BillingInfo) error {
	if err := a.ready(); err != nil {
		return err
	}
	if info == nil {
		return invalid(validator.ValidationErrors{{Field: "billing_info", Symbol: "blank", Message: "field is required"}})
	}
	if err := invalid(validator.Apply(info.rules()...)); err != nil {
		return err
	}

	var fresh BillingInfo
	if _, err := a.client.invoke(ctx, Call{Method: http.MethodPut, Path: a.path("billing_info"), Body: info}, &fresh); err != nil {
		return err
	}
	a.BillingInfo = &fresh
	return nil
}

// Close moves the account to Closed. Subscriptions and invoices are left as they are.
func (a *Account) Close(ctx context.Context) error {
	if err := a.ready(); err != nil {
		return err
	}
	next, err := AccountLifecycle.Next(ctx, a.State, AccountClose, nil)
	if err != nil {
		return illegal(err)
	}
	if _, err := a.client.invoke(ctx, Call{Method: http.MethodDelete, Path: a.path()}, nil); err != nil {
		return err
	}

	from := a.State
	now := a.client.now()
	a.State = next
	a.ClosedAt = &now
	a.client.logTransition(ctx, "account closed", string(from), string(next), logger.AccountCode(a.Code))
	return nil
}

// Reopen reactivates a closed account.
func (a *Account) Reopen(ctx context.Context) error {
	if err := a.ready(); err != nil {
		return err
	}
	next, err := AccountLifecycle.Next(ctx, a.State, AccountReopen, nil)
	if err != nil {
		return illegal(err)
	}
	from := a.State
	if err := a.roundTrip(ctx, Call{Method: http.MethodPut, Path: a.path("reopen")}); err != nil {
		return err
	}
	a.client.logTransition(ctx, "account reopened", string(from), string(next), logger.AccountCode(a.Code))
	return nil
}

// NewAdjustment returns a draft charge (positive cents) or credit (negative cents) for the account.
func (a *Account) NewAdjustment(currency string, cents int64) *Adjustment {
	return &Adjustment{
		bound:             bound{client: a.client},
		AccountCode:       a.Code,
		Currency:          currency,
		UnitAmountInCents: cents,
		Quantity:          1,
	}
}

// Adjustments lists the charges and credits of the account.
func (a *Account) Adjustments(opts AdjustmentListOptions) *pager.Collection[*Adjustment] {
	return list[Adjustment](a.client, a.path("adjustments"), opts.ListOptions,
		filterValues(QueryState, string(opts.State), QueryType, string(opts.Type)),
		oneOfOrEmpty("state", opts.State, AdjustmentPending, AdjustmentInvoiced),
		oneOfOrEmpty("type", opts.Type, AdjustmentCharge, AdjustmentCredit),
	)
}

// InvoicePendingCharges bills every pending adjustment of the account on a new invoice.
// The returned invoice carries the consumed adjustments in their Invoiced state.
// ErrNothingToInvoice is returned when there is nothing pending.
func (a *Account) InvoicePendingCharges(ctx context.Context) (*Invoice, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}

	var inv Invoice
	if _, err := a.client.invoke(ctx, Call{Method: http.MethodPost, Path: a.path("invoices")}, &inv); err != nil {
		return nil, err
	}
	inv.attach(a.client)

	a.client.logger.InfoContext(ctx, "pending charges invoiced",
		logger.AccountCode(a.Code),
		logger.InvoiceNumber(inv.Number),
	)
	return &inv, nil
}

// Invoices lists the invoices of the account, refund invoices included.
func (a *Account) Invoices(opts InvoiceListOptions) *pager.Collection[*Invoice] {
	return list[Invoice](a.client, a.path("invoices"), opts.ListOptions,
		filterValues(QueryState, string(opts.State)),
		oneOfOrEmpty("state", opts.State, InvoiceOpen, InvoiceCollected, InvoiceFailed, InvoicePastDue, InvoiceProcessing),
	)
}

// Subscriptions lists the subscriptions of the account.
func (a *Account) Subscriptions(opts SubscriptionListOptions) *pager.Collection[*Subscription] {
	return list[Subscription](a.client, a.path("subscriptions"), opts.ListOptions,
		filterValues(QueryState, string(opts.State)),
		oneOfOrEmpty("state", opts.State, subscriptionStates...),
	)
}

// Transactions lists the payments and refunds of the account.
func (a *Account) Transactions(opts TransactionListOptions) *pager.Collection[*Transaction] {
	return list[Transaction](a.client, a.path("transactions"), opts.ListOptions,
		filterValues(QueryState, string(opts.Status), QueryType, string(opts.Type)),
		oneOfOrEmpty("state", opts.Status, TransactionSuccessful, TransactionFailed, TransactionVoided),
		oneOfOrEmpty("type", opts.Type, ActionPurchase, ActionAuthorization, ActionRefund),
	)
}

// RedeemCoupon applies a coupon to the account. An account holds at most one
// active redemption, so a second one fails with ErrConflict.
func (a *Account) RedeemCoupon(ctx context.Context, code, currency string) (*CouponRedemption, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	err := invalid(validator.Apply(
		validator.Required("coupon_code", code),
		validator.ValidCurrencyCode("currency", currency),
	))
	if err != nil {
		return nil, err
	}

	body := RedemptionRequest{AccountCode: a.Code, Currency: currency}
	var r CouponRedemption
	if _, err := a.client.invoke(ctx, Call{Method: http.MethodPost, Path: "/coupons/" + url.PathEscape(code) + "/redeem", Body: body}, &r); err != nil {
		return nil, err
	}
	r.attach(a.client)

	a.client.logger.InfoContext(ctx, "coupon redeemed",
		logger.AccountCode(a.Code),
		slog.String("coupon_code", code),
	)
	return &r, nil
}

// ActiveRedemption returns the active coupon redemption of the account, or nil when there is none.
func (a *Account) ActiveRedemption(ctx context.Context) (*CouponRedemption, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	var r CouponRedemption
	if _, err := a.client.invoke(ctx, Call{Method: http.MethodGet, Path: a.path("redemption")}, &r); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	r.attach(a.client)
	return &r, nil
}

// Redemptions lists every redemption of the account, active or not.
func (a *Account) Redemptions(opts ListOptions) *pager.Collection[*CouponRedemption] {
	return list[CouponRedemption](a.client, a.path("redemptions"), opts, nil)
}

// Notes lists the notes attached to the account.
func (a *Account) Notes(opts ListOptions) *pager.Collection[*Note] {
	return list[Note](a.client, a.path("notes"), opts, nil)
}

// roundTrip sends call and replaces the account with the returned snapshot.
func (a *Account) roundTrip(ctx context.Context, call Call) error {
	var fresh Account
	if _, err := a.client.invoke(ctx, call, &fresh); err != nil {
		return err
	}
	fresh.attach(a.client)
	*a = fresh
	return nil
}

// AccountGateway reads accounts.
type AccountGateway struct {
	client *Client
}

// Get fetches an account by code.
func (g *AccountGateway) Get(ctx context.Context, code string) (*Account, error) {
	if err := invalid(validator.Apply(validator.Required("account_code", code))); err != nil {
		return nil, err
	}
	var a Account
	if _, err := g.client.invoke(ctx, Call{Method: http.MethodGet, Path: "/accounts/" + url.PathEscape(code)}, &a); err != nil {
		return nil, err
	}
	a.attach(g.client)
	return &a, nil
}

// List returns every account matching opts. Invalid filters are reported by
// the first fetch.
func (g *AccountGateway) List(opts AccountListOptions) *pager.Collection[*Account] {
	filters := filterValues(QueryState, string(opts.State))
	if opts.PastDue {
		filters.Set(QueryPastDue, strconv.FormatBool(true))
	}
	return list[Account](g.client, "/accounts", opts.ListOptions, filters,
		oneOfOrEmpty("state", opts.State, AccountActive, AccountClosed),
	)
}
