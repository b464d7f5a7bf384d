package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/billingtest"
)

// now is the fixed clock shared by the fake service and clients in these tests.
var now = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func setup(t *testing.T, opts ...billing.Option) (*billingtest.Server, *billing.Client) {
	t.Helper()
	srv := billingtest.New(t, billingtest.WithClock(clock))
	return srv, srv.Client(t, opts...)
}

type accountOption func(*billing.Account)

// withCard stores a Visa test card located in the given US state.
func withCard(state string) accountOption {
	return func(a *billing.Account) {
		a.BillingInfo = &billing.BillingInfo{
			FirstName:  "Verena",
			LastName:   "Example",
			Address1:   "123 Main St.",
			City:       "San Francisco",
			State:      state,
			Country:    "US",
			PostalCode: "94105",
			Number:     "4111-1111-1111-1111",
			Month:      12,
			Year:       2030,
		}
	}
}

// withBankAccount stores an ACH checking account.
func withBankAccount() accountOption {
	return func(a *billing.Account) {
		a.BillingInfo = &billing.BillingInfo{
			FirstName:     "Verena",
			LastName:      "Example",
			Country:       "US",
			NameOnAccount: "Verena Example",
			RoutingNumber: "123456780",
			AccountNumber: "111111113",
			AccountType:   billing.BankAccountChecking,
		}
	}
}

func withAddress(state, country string) accountOption {
	return func(a *billing.Account) {
		a.Address = &billing.Address{Address1: "1 Market St.", City: "Somewhere", State: state, Country: country, Zip: "94105"}
	}
}

func createAccount(t *testing.T, client *billing.Client, code string, opts ...accountOption) *billing.Account {
	t.Helper()
	acct := client.NewAccount(code)
	acct.Email = code + "@example.com"
	acct.FirstName = "Verena"
	acct.LastName = "Example"
	for _, opt := range opts {
		opt(acct)
	}
	require.NoError(t, acct.Create(context.Background()))
	return acct
}

func charge(t *testing.T, acct *billing.Account, cents int64) *billing.Adjustment {
	t.Helper()
	adj := acct.NewAdjustment("USD", cents)
	adj.Description = "test charge"
	require.NoError(t, adj.Create(context.Background()))
	return adj
}

// createPlan creates a monthly plan priced in USD.
func createPlan(t *testing.T, client *billing.Client, code string, cents int64) *billing.Plan {
	t.Helper()
	plan := client.NewPlan(code, "Plan "+code)
	plan.UnitAmountInCents = billing.Amounts{"USD": cents}
	require.NoError(t, plan.Create(context.Background()))
	return plan
}

func createAddOn(t *testing.T, plan *billing.Plan, code string, cents int64) *billing.AddOn {
	t.Helper()
	addOn := plan.NewAddOn(code, "Add-on "+code)
	addOn.UnitAmountInCents = billing.Amounts{"USD": cents}
	require.NoError(t, addOn.Create(context.Background()))
	return addOn
}

func subscribe(t *testing.T, client *billing.Client, acct *billing.Account, plan *billing.Plan) *billing.Subscription {
	t.Helper()
	sub := client.NewSubscription(acct.Code, plan.Code, "USD")
	require.NoError(t, sub.Create(context.Background()))
	return sub
}

func ptr[T any](v T) *T { return &v }
