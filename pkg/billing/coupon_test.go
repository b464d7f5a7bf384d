package billing_test

import (
	"context"
	"encoding/xml"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/billingtest"
	"github.com/dmitrymomot/billing/pkg/validator"
)

func createCoupon(t *testing.T, c *billing.Coupon) *billing.Coupon {
	t.Helper()
	require.NoError(t, c.Create(context.Background()))
	return c
}

func TestCoupon_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	pct := createCoupon(t, client.NewPercentCoupon("save10", "Save 10%", 10))
	assert.Equal(t, billing.CouponRedeemable, pct.State)
	assert.True(t, pct.Persisted())

	amt := createCoupon(t, client.NewAmountCoupon("five", "Five off", billing.Amounts{"USD": 500, "EUR": 450}))

	fetched, err := client.Coupons.Get(ctx, "save10")
	require.NoError(t, err)
	percent, ok := fetched.PercentOff()
	assert.True(t, ok)
	assert.Equal(t, 10, percent)
	_, ok = fetched.AmountOff()
	assert.False(t, ok)

	fetched, err = client.Coupons.Get(ctx, amt.Code)
	require.NoError(t, err)
	amounts, ok := fetched.AmountOff()
	require.True(t, ok)
	assert.Equal(t, billing.Amounts{"EUR": 450, "USD": 500}, amounts)
	_, ok = fetched.PercentOff()
	assert.False(t, ok)

	err = client.NewPercentCoupon("save10", "Again", 5).Create(ctx)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).HasSymbol("taken"))
}

func TestCoupon_Create_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	noDiscount := client.NewPercentCoupon("none", "None", 10)
	noDiscount.Discount = nil
	err := noDiscount.Create(ctx)
	assert.ErrorIs(t, err, billing.ErrValidation)
	assert.ErrorIs(t, err, billing.ErrDiscountRequired)

	err = client.NewPercentCoupon("big", "Big", 150).Create(ctx)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("discount_percent"))

	err = client.NewAmountCoupon("zero", "Zero", billing.Amounts{"USD": 0}).Create(ctx)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("discount_in_cents.USD"))

	err = client.NewAmountCoupon("empty", "Empty", nil).Create(ctx)
	assert.ErrorIs(t, err, billing.ErrValidation)

	scoped := client.NewPercentCoupon("scoped", "Scoped", 10)
	scoped.AppliesToAllPlans = false
	err = scoped.Create(ctx)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("plan_codes"))

	stale := client.NewPercentCoupon("stale", "Stale", 10)
	stale.RedeemByDate = ptr(now.Add(-time.Hour))
	assert.ErrorIs(t, stale.Create(ctx), billing.ErrValidation)

	assert.Equal(t, 0, srv.Hits("POST", "/coupons"))
}

func TestCoupon_XML(t *testing.T) {
	t.Parallel()

	t.Run("percent", func(t *testing.T) {
		t.Parallel()
		out, err := xml.Marshal(billing.Coupon{Code: "c", Name: "C", Discount: billing.PercentDiscount{Percent: 15}})
		require.NoError(t, err)
		assert.Contains(t, string(out), "<discount_type>percent</discount_type>")
		assert.Contains(t, string(out), "<discount_percent>15</discount_percent>")
		assert.NotContains(t, string(out), "discount_in_cents")
	})

	t.Run("amount", func(t *testing.T) {
		t.Parallel()
		out, err := xml.Marshal(billing.Coupon{Code: "c", Name: "C", Discount: billing.AmountDiscount{Amounts: billing.Amounts{"USD": 100}}})
		require.NoError(t, err)
		assert.Contains(t, string(out), "<discount_type>dollars</discount_type>")
		assert.Contains(t, string(out), "<discount_in_cents><USD>100</USD></discount_in_cents>")
		assert.NotContains(t, string(out), "discount_percent")
	})

	t.Run("missing discount", func(t *testing.T) {
		t.Parallel()
		_, err := xml.Marshal(billing.Coupon{Code: "c"})
		assert.ErrorIs(t, err, billing.ErrDiscountRequired)
	})

	t.Run("both discounts", func(t *testing.T) {
		t.Parallel()
		doc := `<coupon><coupon_code>c</coupon_code><discount_type>percent</discount_type>` +
			`<discount_percent>10</discount_percent><discount_in_cents><USD>100</USD></discount_in_cents></coupon>`
		var c billing.Coupon
		assert.ErrorIs(t, xml.Unmarshal([]byte(doc), &c), billing.ErrDiscountRequired)
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()
		var c billing.Coupon
		err := xml.Unmarshal([]byte(`<coupon><coupon_code>c</coupon_code><discount_type>free</discount_type></coupon>`), &c)
		assert.ErrorIs(t, err, billing.ErrDiscountRequired)
	})
}

func TestCoupon_AppliesTo(t *testing.T) {
	t.Parallel()

	all := billing.Coupon{AppliesToAllPlans: true}
	assert.True(t, all.AppliesTo("anything"))

	scoped := billing.Coupon{Plans: []string{"pro", "team"}}
	assert.True(t, scoped.AppliesTo("team"))
	assert.False(t, scoped.AppliesTo("basic"))
}

func TestAccount_RedeemCoupon_PercentDiscount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme")
	createCoupon(t, client.NewPercentCoupon("save10", "Save 10%", 10))

	red, err := acct.RedeemCoupon(ctx, "save10", "USD")
	require.NoError(t, err)
	assert.Equal(t, billing.RedemptionActive, red.State)
	assert.Equal(t, "save10", red.CouponCode)
	assert.Equal(t, "acme", red.AccountCode)

	_, err = acct.RedeemCoupon(ctx, "save10", "USD")
	assert.ErrorIs(t, err, billing.ErrConflict)

	active, err := acct.ActiveRedemption(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, red.UUID, active.UUID)

	charge(t, acct, 1000)
	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), inv.SubtotalInCents)
	assert.Equal(t, int64(100), inv.DiscountInCents)
	assert.Equal(t, int64(900), inv.TotalInCents)

	applied, err := inv.Redemption(ctx)
	require.NoError(t, err)
	require.NotNil(t, applied)
	assert.Equal(t, red.UUID, applied.UUID)
	assert.Equal(t, int64(100), applied.TotalDiscountedInCents)
}

func TestAccount_RedeemCoupon_DiscountBeforeTax(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme", withAddress("CA", "US"))
	createCoupon(t, client.NewPercentCoupon("half", "Half off", 50))
	_, err := acct.RedeemCoupon(ctx, "half", "USD")
	require.NoError(t, err)

	charge(t, acct, 2000)
	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), inv.DiscountInCents)
	assert.Equal(t, billing.Tax(1000, billingtest.TaxRateCA), inv.TaxInCents)
	assert.Equal(t, 1000+inv.TaxInCents, inv.TotalInCents)
}

func TestAccount_RedeemCoupon_AmountDiscount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme")
	createCoupon(t, client.NewAmountCoupon("five", "Five off", billing.Amounts{"USD": 500}))

	_, err := acct.RedeemCoupon(ctx, "five", "EUR")
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("currency"))

	_, err = acct.RedeemCoupon(ctx, "five", "USD")
	require.NoError(t, err)

	charge(t, acct, 300)
	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(300), inv.DiscountInCents)
	assert.Equal(t, int64(0), inv.TotalInCents)
	assert.Equal(t, billing.InvoiceCollected, inv.State)
}

func TestAccount_RedeemCoupon_SingleUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme")
	once := client.NewPercentCoupon("once", "Once", 20)
	once.SingleUse = true
	createCoupon(t, once)

	_, err := acct.RedeemCoupon(ctx, "once", "USD")
	require.NoError(t, err)

	charge(t, acct, 1000)
	first, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200), first.DiscountInCents)

	active, err := acct.ActiveRedemption(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	charge(t, acct, 1000)
	second, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.DiscountInCents)
}

func TestAccount_RedeemCoupon_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	acct := createAccount(t, client, "acme")

	_, err := acct.RedeemCoupon(ctx, "", "USD")
	assert.ErrorIs(t, err, billing.ErrValidation)
	_, err = acct.RedeemCoupon(ctx, "save10", "dollars")
	assert.ErrorIs(t, err, billing.ErrValidation)
	assert.Zero(t, srv.TotalHits()-srv.Hits("POST", "/accounts"))

	_, err = acct.RedeemCoupon(ctx, "ghost", "USD")
	assert.ErrorIs(t, err, billing.ErrNotFound)

	_, err = client.NewAccount("draft").RedeemCoupon(ctx, "ghost", "USD")
	assert.ErrorIs(t, err, billing.ErrNotPersisted)
}

func TestCoupon_PlanScoped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme")
	basic := createPlan(t, client, "basic", 1000)
	pro := createPlan(t, client, "pro", 3000)

	scoped := client.NewPercentCoupon("pro-only", "Pro only", 25)
	scoped.AppliesToAllPlans = false
	scoped.Plans = []string{"pro"}
	createCoupon(t, scoped)

	subscribe(t, client, acct, basic)
	_, err := acct.RedeemCoupon(ctx, "pro-only", "USD")
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("coupon_code"))

	subscribe(t, client, acct, pro)
	red, err := acct.RedeemCoupon(ctx, "pro-only", "USD")
	require.NoError(t, err)
	assert.Equal(t, billing.RedemptionActive, red.State)
}

func TestCoupon_Deactivate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	acct := createAccount(t, client, "acme")
	coupon := createCoupon(t, client.NewPercentCoupon("save10", "Save 10%", 10))

	require.NoError(t, coupon.Deactivate(ctx))
	assert.Equal(t, billing.CouponInactive, coupon.State)

	err := coupon.Deactivate(ctx)
	assert.ErrorIs(t, err, billing.ErrIllegalTransition)
	assert.Equal(t, 1, srv.Hits("DELETE", "/coupons/save10"))

	_, err = acct.RedeemCoupon(ctx, "save10", "USD")
	assert.ErrorIs(t, err, billing.ErrConflict)

	inactive, err := client.Coupons.List(billing.CouponListOptions{State: billing.CouponInactive}).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, inactive, 1)
	assert.Equal(t, "save10", inactive[0].Code)

	assert.ErrorIs(t, client.NewPercentCoupon("x", "X", 1).Deactivate(ctx), billing.ErrNotPersisted)
}

func TestCoupon_MaxRedemptions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	first := createAccount(t, client, "first")
	second := createAccount(t, client, "second")
	limited := client.NewPercentCoupon("limited", "Limited", 10)
	limited.MaxRedemptions = 1
	createCoupon(t, limited)

	_, err := first.RedeemCoupon(ctx, "limited", "USD")
	require.NoError(t, err)

	fetched, err := client.Coupons.Get(ctx, "limited")
	require.NoError(t, err)
	assert.Equal(t, billing.CouponMaxedOut, fetched.State)

	_, err = second.RedeemCoupon(ctx, "limited", "USD")
	assert.ErrorIs(t, err, billing.ErrConflict)

	require.NoError(t, fetched.Deactivate(ctx))
	assert.Equal(t, billing.CouponInactive, fetched.State)
}

func TestCoupon_Expires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var current atomic.Int64
	current.Store(now.UnixNano())
	srv := billingtest.New(t, billingtest.WithClock(func() time.Time { return time.Unix(0, current.Load()).UTC() }))
	client := srv.Client(t)

	acct := createAccount(t, client, "acme")
	soon := client.NewPercentCoupon("soon", "Soon", 10)
	soon.RedeemByDate = ptr(now.AddDate(0, 0, 1))
	createCoupon(t, soon)
	createCoupon(t, client.NewPercentCoupon("forever", "Forever", 5))

	current.Store(now.AddDate(0, 0, 2).UnixNano())

	expired, err := client.Coupons.List(billing.CouponListOptions{State: billing.CouponExpired}).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "soon", expired[0].Code)

	_, err = acct.RedeemCoupon(ctx, "soon", "USD")
	assert.ErrorIs(t, err, billing.ErrConflict)
	_, err = acct.RedeemCoupon(ctx, "forever", "USD")
	assert.NoError(t, err)
}

func TestCouponRedemption_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	acct := createAccount(t, client, "acme")
	createCoupon(t, client.NewPercentCoupon("save10", "Save 10%", 10))
	createCoupon(t, client.NewPercentCoupon("save20", "Save 20%", 20))

	red, err := acct.RedeemCoupon(ctx, "save10", "USD")
	require.NoError(t, err)
	require.NoError(t, red.Delete(ctx))
	assert.Equal(t, billing.RedemptionInactive, red.State)

	err = red.Delete(ctx)
	assert.ErrorIs(t, err, billing.ErrIllegalTransition)
	assert.Equal(t, 1, srv.Hits("DELETE", "/accounts/acme/redemptions/"+red.UUID))

	active, err := acct.ActiveRedemption(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	_, err = acct.RedeemCoupon(ctx, "save20", "USD")
	require.NoError(t, err)

	all, err := acct.Redemptions(billing.ListOptions{}).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, billing.RedemptionInactive, all[0].State)
	assert.Equal(t, billing.RedemptionActive, all[1].State)
}

func TestSubscription_CouponCodeRedeems(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme")
	plan := createPlan(t, client, "basic", 1000)
	createCoupon(t, client.NewPercentCoupon("save10", "Save 10%", 10))

	sub := client.NewSubscription(acct.Code, plan.Code, "USD")
	sub.CouponCode = "save10"
	require.NoError(t, sub.Create(ctx))

	red, err := acct.ActiveRedemption(ctx)
	require.NoError(t, err)
	require.NotNil(t, red)
	assert.Equal(t, "save10", red.CouponCode)

	bogus := client.NewSubscription(acct.Code, plan.Code, "USD")
	bogus.CouponCode = "ghost"
	err = bogus.Create(ctx)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("coupon_code"))
}
