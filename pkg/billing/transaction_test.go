package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/validator"
)

func TestTransaction_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme", withCard("CA"))

	tx := client.NewTransaction(acct, 1000, "USD")
	tx.Description = "Setup"
	require.NoError(t, tx.Create(ctx))
	assert.True(t, tx.Persisted())
	assert.NotEmpty(t, tx.UUID)
	assert.Equal(t, "acme", tx.AccountCode)
	assert.Equal(t, billing.ActionPurchase, tx.Action)
	assert.Equal(t, billing.TransactionSuccessful, tx.Status)
	assert.Equal(t, int64(1000), tx.AmountInCents)
	assert.True(t, tx.Voidable)
	assert.True(t, tx.Refundable)

	inv, err := tx.Invoice(ctx)
	require.NoError(t, err)
	assert.Equal(t, tx.InvoiceNumber, inv.Number)
	assert.Equal(t, billing.InvoiceCollected, inv.State)
	assert.Equal(t, int64(0), inv.TaxInCents)
	assert.Equal(t, int64(1000), inv.TotalInCents)

	assert.ErrorIs(t, tx.Create(ctx), billing.ErrAlreadyPersisted)
}

func TestTransaction_Create_DraftAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	bare := client.NewAccount("bare")
	err := client.NewTransaction(bare, 1000, "USD").Create(ctx)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("account.billing_info"))
	assert.Equal(t, 0, srv.Hits("POST", "/transactions"))

	draft := client.NewAccount("walk-in")
	withCard("NY")(draft)
	tx := client.NewTransaction(draft, 2500, "USD")
	require.NoError(t, tx.Create(ctx))
	assert.Equal(t, "walk-in", tx.AccountCode)

	acct, err := client.Accounts.Get(ctx, "walk-in")
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentCreditCard, acct.BillingInfo.Method())
	assert.Empty(t, acct.BillingInfo.Number)
}

func TestTransaction_Create_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	acct := createAccount(t, client, "acme")

	err := client.NewTransaction(acct, 0, "USD").Create(ctx)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("amount_in_cents"))

	err = client.NewTransaction(nil, 100, "USD").Create(ctx)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("account_code"))
	assert.Equal(t, 0, srv.Hits("POST", "/transactions"))

	// acme exists but has nothing to charge.
	err = client.NewTransaction(acct, 100, "USD").Create(ctx)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("billing_info"))
}

func TestTransaction_Refund_Void(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	acct := createAccount(t, client, "acme", withCard("NY"))
	tx := client.NewTransaction(acct, 1000, "USD")
	require.NoError(t, tx.Create(ctx))
	uuid := tx.UUID

	voided, err := tx.Refund(ctx, 0)
	require.NoError(t, err)
	assert.Same(t, tx, voided)
	assert.Equal(t, uuid, voided.UUID)
	assert.Equal(t, billing.TransactionVoided, voided.Status)
	assert.False(t, voided.Voidable)

	_, err = tx.Refund(ctx, 0)
	assert.ErrorIs(t, err, billing.ErrIllegalTransition)
	assert.Equal(t, 1, srv.Hits("DELETE", "/transactions/"+uuid))

	refunds, err := acct.Transactions(billing.TransactionListOptions{Type: billing.ActionRefund}).Collect(ctx)
	require.NoError(t, err)
	assert.Empty(t, refunds)
}

func TestTransaction_Refund_Partial(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	acct := createAccount(t, client, "acme", withCard("NY"))
	tx := client.NewTransaction(acct, 1000, "USD")
	require.NoError(t, tx.Create(ctx))

	_, err := tx.Refund(ctx, 2000)
	assert.ErrorIs(t, err, billing.ErrValidation)
	assert.Equal(t, 0, srv.Hits("DELETE", "/transactions/"+tx.UUID))

	refund, err := tx.Refund(ctx, 400)
	require.NoError(t, err)
	assert.NotSame(t, tx, refund)
	assert.NotEqual(t, tx.UUID, refund.UUID)
	assert.Equal(t, billing.ActionRefund, refund.Action)
	assert.Equal(t, int64(400), refund.AmountInCents)
	assert.Equal(t, billing.TransactionSuccessful, tx.Status)

	original, err := client.Transactions.Get(ctx, tx.UUID)
	require.NoError(t, err)
	assert.False(t, original.Voidable)
	assert.True(t, original.Refundable)

	// A full-amount refund is no longer a void once the transaction was partially refunded.
	_, err = original.Refund(ctx, 1000)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("amount_in_cents"))

	rest, err := original.Refund(ctx, 600)
	require.NoError(t, err)
	assert.Equal(t, int64(600), rest.AmountInCents)

	original, err = client.Transactions.Get(ctx, tx.UUID)
	require.NoError(t, err)
	assert.False(t, original.Refundable)
	_, err = original.Refund(ctx, 1)
	assert.ErrorIs(t, err, billing.ErrIllegalTransition)

	refunds, err := client.Transactions.List(billing.TransactionListOptions{Type: billing.ActionRefund}).Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, refunds, 2)

	purchases, err := acct.Transactions(billing.TransactionListOptions{Type: billing.ActionPurchase}).Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, purchases, 1)
}

func TestTransaction_NotPersisted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	tx := client.NewTransaction(client.NewAccount("acme"), 100, "USD")
	_, err := tx.Invoice(ctx)
	assert.ErrorIs(t, err, billing.ErrNotPersisted)
	_, err = tx.Refund(ctx, 0)
	assert.ErrorIs(t, err, billing.ErrNotPersisted)

	_, err = client.Transactions.Get(ctx, "missing")
	assert.ErrorIs(t, err, billing.ErrNotFound)
	_, err = client.Transactions.List(billing.TransactionListOptions{Status: "pending"}).Collect(ctx)
	assert.ErrorIs(t, err, billing.ErrValidation)
}
