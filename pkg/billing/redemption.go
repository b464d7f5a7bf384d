package billing

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrymomot/billing/pkg/logger"
)

// CouponRedemption links a coupon to an account.
type CouponRedemption struct {
	bound
	XMLName xml.Name `xml:"redemption"`

	UUID                   string          `xml:"uuid"`
	CouponCode             string          `xml:"coupon_code"`
	AccountCode            string          `xml:"account_code"`
	Currency               string          `xml:"currency"`
	State                  RedemptionState `xml:"state"`
	SingleUse              bool            `xml:"single_use,omitempty"`
	TotalDiscountedInCents int64           `xml:"total_discounted_in_cents"`
	CreatedAt              *time.Time      `xml:"created_at,omitempty"`
}

// Delete removes the redemption from the account. Invoices already
// discounted keep their discount.
func (r *CouponRedemption) Delete(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	next, err := RedemptionLifecycle.Next(ctx, r.State, RedemptionRemove, nil)
	if err != nil {
		return illegal(err)
	}
	path := "/accounts/" + url.PathEscape(r.AccountCode) + "/redemptions/" + url.PathEscape(r.UUID)
	if _, err := r.client.invoke(ctx, Call{Method: http.MethodDelete, Path: path}, nil); err != nil {
		return err
	}
	from := r.State
	r.State = next
	r.client.logTransition(ctx, "coupon redemption removed", string(from), string(next), logger.AccountCode(r.AccountCode))
	return nil
}
