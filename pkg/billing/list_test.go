package billing_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/pager"
	"github.com/dmitrymomot/billing/pkg/validator"
)

func TestList_Pagination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	for i := range 7 {
		createAccount(t, client, fmt.Sprintf("acct-%d", i))
	}

	accounts := client.Accounts.List(billing.AccountListOptions{ListOptions: billing.ListOptions{PerPage: 5}})
	assert.Equal(t, 0, srv.Hits("GET", "/accounts"), "listing is lazy")

	require.NoError(t, accounts.Load(ctx))
	assert.Equal(t, 5, accounts.Capacity())
	assert.Equal(t, 5, accounts.Len())
	assert.NotEmpty(t, accounts.Next())
	total, ok := accounts.Total()
	assert.True(t, ok)
	assert.Equal(t, 7, total)
	assert.Equal(t, 1, srv.Hits("GET", "/accounts"))

	third, err := accounts.At(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "acct-2", third.Code)
	assert.True(t, third.Persisted())
	require.NoError(t, accounts.Load(ctx))
	assert.Equal(t, 1, srv.Hits("GET", "/accounts"))

	last, err := accounts.At(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, "acct-6", last.Code)
	assert.Equal(t, 2, accounts.Capacity())
	assert.Empty(t, accounts.Next())
	assert.Equal(t, 2, accounts.Pages())
	assert.Equal(t, 2, srv.Hits("GET", "/accounts"))

	_, err = accounts.At(ctx, 7)
	assert.ErrorIs(t, err, pager.ErrIndexOutOfRange)

	all, err := accounts.Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 7)
	assert.Equal(t, 2, srv.Hits("GET", "/accounts"))

	accounts.Reset()
	assert.Equal(t, 0, accounts.Len())
	require.NoError(t, accounts.Load(ctx))
	assert.Equal(t, 3, srv.Hits("GET", "/accounts"))
}

func TestList_All(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t, billing.WithPageSize(2))

	plan := createPlan(t, client, "basic", 100)
	for i := range 5 {
		createAddOn(t, plan, fmt.Sprintf("addon-%d", i), 10)
	}

	addOns := plan.AddOns(billing.ListOptions{})
	var codes []string
	for addOn, err := range addOns.All(ctx) {
		require.NoError(t, err)
		codes = append(codes, addOn.Code)
		if len(codes) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"addon-0", "addon-1", "addon-2"}, codes)
	assert.Equal(t, 2, srv.Hits("GET", "/plans/basic/add_ons"))

	count := 0
	for _, err := range addOns.All(ctx) {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 5, count)
	assert.Equal(t, 3, srv.Hits("GET", "/plans/basic/add_ons"))
}

func TestList_InvalidPageSize(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	plans := client.Plans.List(billing.ListOptions{PerPage: billing.MaxPageSize + 1})
	_, err := plans.Collect(ctx)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("per_page"))
	assert.ErrorIs(t, plans.Err(), billing.ErrValidation)
	assert.Equal(t, 0, srv.Hits("GET", "/plans"))
}

func TestList_Empty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	coupons := client.Coupons.List(billing.CouponListOptions{})
	all, err := coupons.Collect(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	total, ok := coupons.Total()
	assert.True(t, ok)
	assert.Zero(t, total)
	assert.Empty(t, coupons.Next())
}
