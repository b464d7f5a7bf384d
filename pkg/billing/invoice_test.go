package billing_test

import (
	"bytes"
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/billingtest"
	"github.com/dmitrymomot/billing/pkg/validator"
)

func invoicePath(inv *billing.Invoice, action string) string {
	return "/invoices/" + strconv.Itoa(inv.Number) + "/" + action
}

func TestAccount_InvoicePendingCharges_NothingPending(t *testing.T) {
	t.Parallel()
	_, client := setup(t)

	acct := createAccount(t, client, "acme")
	inv, err := acct.InvoicePendingCharges(context.Background())
	assert.Nil(t, inv)
	assert.ErrorIs(t, err, billing.ErrNothingToInvoice)
}

func TestAccount_InvoicePendingCharges_NetsCredits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme")
	charge(t, acct, 1234)
	credit := charge(t, acct, -5678)
	assert.Equal(t, billing.AdjustmentCredit, credit.Type())

	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1001, inv.Number)
	assert.Equal(t, int64(0), inv.SubtotalInCents)
	assert.Equal(t, int64(0), inv.TotalInCents)
	assert.Equal(t, billing.InvoiceCollected, inv.State)

	require.Len(t, inv.Adjustments, 3)
	amounts := make([]int64, 0, len(inv.Adjustments))
	for _, adj := range inv.Adjustments {
		amounts = append(amounts, adj.TotalInCents)
		assert.Equal(t, billing.AdjustmentInvoiced, adj.State)
		assert.Equal(t, inv.Number, adj.InvoiceNumber)
	}
	assert.Equal(t, []int64{1234, -5678, 4444}, amounts)

	pending, err := acct.Adjustments(billing.AdjustmentListOptions{State: billing.AdjustmentPending}).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(-4444), pending[0].TotalInCents)
	assert.Equal(t, billing.AdjustmentCredit, pending[0].Type())

	credits, err := acct.Adjustments(billing.AdjustmentListOptions{Type: billing.AdjustmentCredit}).Collect(ctx)
	require.NoError(t, err)
	var sum int64
	for _, c := range credits {
		sum += c.TotalInCents
	}
	assert.Equal(t, int64(-10122), sum)

	charges, err := acct.Adjustments(billing.AdjustmentListOptions{Type: billing.AdjustmentCharge}).Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, charges, 2)
}

func TestAccount_InvoicePendingCharges_OldestCurrencyOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme")
	charge(t, acct, 500)
	eur := acct.NewAdjustment("EUR", 700)
	require.NoError(t, eur.Create(ctx))

	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	assert.Equal(t, "USD", inv.Currency)
	assert.Equal(t, int64(500), inv.TotalInCents)

	inv, err = acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	assert.Equal(t, "EUR", inv.Currency)
	assert.Equal(t, int64(700), inv.TotalInCents)
}

func TestAccount_InvoicePendingCharges_CardCollectsWithTax(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme", withCard("CA"))
	charge(t, acct, 1000)

	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceCollected, inv.State)
	assert.Equal(t, int64(1000), inv.SubtotalInCents)
	assert.Equal(t, int64(88), inv.TaxInCents)
	assert.Equal(t, int64(1088), inv.TotalInCents)
	assert.InDelta(t, billingtest.TaxRateCA, inv.TaxRate, 1e-9)
	assert.Equal(t, billingtest.TaxTypeUS, inv.TaxType)
	require.NotNil(t, inv.ClosedAt)

	require.Len(t, inv.Transactions, 1)
	tx := inv.Transactions[0]
	assert.Equal(t, billing.ActionPurchase, tx.Action)
	assert.Equal(t, billing.TransactionSuccessful, tx.Status)
	assert.Equal(t, int64(1088), tx.AmountInCents)
	assert.True(t, tx.Persisted())
}

func TestAccount_InvoicePendingCharges_OutOfStateIsUntaxed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme", withCard("NY"))
	charge(t, acct, 1000)

	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inv.TaxInCents)
	assert.Equal(t, int64(1000), inv.TotalInCents)
	assert.Empty(t, inv.TaxType)
}

func TestInvoice_BankAccountProcessing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	acct := createAccount(t, client, "acme", withBankAccount())
	charge(t, acct, 2500)

	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceProcessing, inv.State)
	assert.Empty(t, inv.Transactions)

	err = inv.MarkSuccessful(ctx)
	assert.ErrorIs(t, err, billing.ErrIllegalTransition)
	err = inv.MarkFailed(ctx)
	assert.ErrorIs(t, err, billing.ErrIllegalTransition)
	_, err = inv.RefundAmount(ctx, 100)
	assert.ErrorIs(t, err, billing.ErrIllegalTransition)
	assert.Equal(t, 0, srv.Hits("PUT", invoicePath(inv, "mark_successful")))
	assert.Equal(t, 0, srv.Hits("POST", invoicePath(inv, "refund")))

	require.NoError(t, srv.ApplyInvoiceEvent(inv.Number, billing.InvoiceSettle))
	settled, err := client.Invoices.Get(ctx, inv.Number)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceCollected, settled.State)
	assert.NotNil(t, settled.ClosedAt)
}

func TestInvoice_Mark(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	acct := createAccount(t, client, "acme")

	charge(t, acct, 100)
	failed, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	require.Equal(t, billing.InvoiceOpen, failed.State)
	require.NoError(t, failed.MarkFailed(ctx))
	assert.Equal(t, billing.InvoiceFailed, failed.State)
	assert.NotNil(t, failed.ClosedAt)

	err = failed.MarkSuccessful(ctx)
	assert.ErrorIs(t, err, billing.ErrIllegalTransition)
	assert.Equal(t, 0, srv.Hits("PUT", invoicePath(failed, "mark_successful")))

	charge(t, acct, 200)
	paid, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	require.NoError(t, paid.MarkSuccessful(ctx))
	assert.Equal(t, billing.InvoiceCollected, paid.State)

	collected, err := acct.Invoices(billing.InvoiceListOptions{State: billing.InvoiceCollected}).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, collected, 1)
	assert.Equal(t, paid.Number, collected[0].Number)
}

func TestInvoice_Mark_PastDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	acct := createAccount(t, client, "acme")
	charge(t, acct, 100)
	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	require.NoError(t, srv.ApplyInvoiceEvent(inv.Number, billing.InvoiceBecomePastDue))

	inv, err = client.Invoices.Get(ctx, inv.Number)
	require.NoError(t, err)
	require.Equal(t, billing.InvoicePastDue, inv.State)
	require.NoError(t, inv.MarkSuccessful(ctx))
	assert.Equal(t, billing.InvoiceCollected, inv.State)
}

func TestInvoice_Mark_StaleSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme")
	charge(t, acct, 100)
	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	stale, err := client.Invoices.Get(ctx, inv.Number)
	require.NoError(t, err)

	require.NoError(t, inv.MarkFailed(ctx))

	err = stale.MarkSuccessful(ctx)
	assert.ErrorIs(t, err, billing.ErrConflict)
	assert.Equal(t, billing.InvoiceOpen, stale.State)
}

func TestInvoice_Refund_LineItem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme")
	charge(t, acct, 3999)
	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)

	refund, err := inv.Refund(ctx, inv.Adjustments[0], false)
	require.NoError(t, err)
	assert.True(t, refund.IsRefund())
	assert.Equal(t, inv.Number, refund.OriginalInvoiceNumber)
	assert.Equal(t, inv.Number+1, refund.Number)
	assert.NotEqual(t, inv.UUID, refund.UUID)
	assert.Equal(t, int64(-3999), refund.SubtotalInCents)
	assert.Equal(t, billing.InvoiceOpen, refund.State)
	assert.Empty(t, refund.Transactions)

	require.Len(t, refund.Adjustments, 1)
	line := refund.Adjustments[0]
	assert.Equal(t, -1, line.Quantity)
	assert.Equal(t, int64(3999), line.UnitAmountInCents)
	assert.Equal(t, billing.AdjustmentCredit, line.Type())

	original, err := client.Invoices.Get(ctx, inv.Number)
	require.NoError(t, err)
	assert.Equal(t, int64(3999), original.SubtotalInCents)
	assert.Equal(t, billing.InvoiceOpen, original.State)
	assert.False(t, original.IsRefund())
}

func TestInvoice_Refund_TaxedLineItems(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme", withCard("CA"))
	charge(t, acct, 1000)
	charge(t, acct, 2000)
	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(263), inv.TaxInCents)

	refund, err := inv.RefundLineItems(ctx, inv.Adjustments, true)
	require.NoError(t, err)
	assert.Equal(t, int64(-3000), refund.SubtotalInCents)
	assert.Equal(t, int64(-88-175), refund.TaxInCents)
	assert.Equal(t, int64(-3263), refund.TotalInCents)
	assert.Equal(t, billing.InvoiceCollected, refund.State)

	require.Len(t, refund.Transactions, 1)
	assert.Equal(t, billing.ActionRefund, refund.Transactions[0].Action)
	assert.Equal(t, int64(3263), refund.Transactions[0].AmountInCents)

	_, err = inv.RefundLineItems(ctx, nil, false)
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestInvoice_Refund_ForeignLineItem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme")
	charge(t, acct, 100)
	first, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	charge(t, acct, 200)
	second, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)

	_, err = first.Refund(ctx, second.Adjustments[0], false)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("line_items.uuid"))

	_, err = first.Refund(ctx, nil, false)
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestInvoice_RefundAmount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	acct := createAccount(t, client, "acme", withCard("CA"))
	charge(t, acct, 1000)
	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1088), inv.TotalInCents)
	purchase := inv.Transactions[0]
	require.True(t, purchase.Voidable)

	refund, err := inv.RefundAmount(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(-91), refund.SubtotalInCents)
	assert.Equal(t, int64(-9), refund.TaxInCents)
	assert.Equal(t, int64(-100), refund.TotalInCents)
	require.Len(t, refund.Transactions, 1)
	assert.Equal(t, int64(100), refund.Transactions[0].AmountInCents)

	purchase, err = client.Transactions.Get(ctx, purchase.UUID)
	require.NoError(t, err)
	assert.False(t, purchase.Voidable)

	_, err = inv.RefundAmount(ctx, 2000)
	assert.ErrorIs(t, err, billing.ErrValidation)
	_, err = inv.RefundAmount(ctx, 0)
	assert.ErrorIs(t, err, billing.ErrValidation)
	assert.Equal(t, 1, srv.Hits("POST", invoicePath(inv, "refund")))

	// Only 988 cents remain refundable.
	_, err = inv.RefundAmount(ctx, 1000)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("amount_in_cents"))
}

func TestInvoice_PDF(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme")
	charge(t, acct, 4200)
	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)

	pdf, err := inv.PDF(ctx)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	assert.Equal(t, billingtest.RenderPDF(inv), pdf)

	_, err = (&billing.Invoice{Number: 1}).PDF(ctx)
	assert.ErrorIs(t, err, billing.ErrUnboundEntity)
}

func TestInvoice_Redemption_None(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	acct := createAccount(t, client, "acme")
	charge(t, acct, 100)
	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)

	red, err := inv.Redemption(ctx)
	require.NoError(t, err)
	assert.Nil(t, red)
}

func TestInvoiceGateway(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, client := setup(t)

	_, err := client.Invoices.Get(ctx, 0)
	assert.ErrorIs(t, err, billing.ErrValidation)
	_, err = client.Invoices.Get(ctx, 4242)
	assert.ErrorIs(t, err, billing.ErrNotFound)

	for _, code := range []string{"a", "b"} {
		acct := createAccount(t, client, code)
		charge(t, acct, 100)
		_, err := acct.InvoicePendingCharges(ctx)
		require.NoError(t, err)
	}

	all, err := client.Invoices.List(billing.InvoiceListOptions{}).Collect(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].AccountCode)
	assert.Equal(t, "b", all[1].AccountCode)

	open, err := client.Invoices.List(billing.InvoiceListOptions{State: billing.InvoiceOpen}).Collect(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestAdjustment_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	acct := createAccount(t, client, "acme")
	adj := charge(t, acct, 100)
	require.Equal(t, billing.AdjustmentPending, adj.State)
	uuid := adj.UUID

	require.NoError(t, adj.Delete(ctx))
	assert.False(t, adj.Persisted())
	_, err := client.Adjustments.Get(ctx, uuid)
	assert.ErrorIs(t, err, billing.ErrNotFound)

	kept := charge(t, acct, 300)
	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)

	err = inv.Adjustments[0].Delete(ctx)
	assert.ErrorIs(t, err, billing.ErrIllegalTransition)
	assert.Equal(t, 0, srv.Hits("DELETE", "/adjustments/"+inv.Adjustments[0].UUID))

	// kept still believes it is pending; the service knows better.
	err = kept.Delete(ctx)
	assert.ErrorIs(t, err, billing.ErrConflict)
}

func TestAdjustment_Create_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv, client := setup(t)

	acct := createAccount(t, client, "acme")

	zero := acct.NewAdjustment("USD", 0)
	err := zero.Create(ctx)
	require.ErrorIs(t, err, billing.ErrValidation)
	assert.True(t, validator.ExtractValidationErrors(err).Has("unit_amount_in_cents"))

	noCurrency := acct.NewAdjustment("", 100)
	assert.ErrorIs(t, noCurrency.Create(ctx), billing.ErrValidation)
	assert.Equal(t, 0, srv.Hits("POST", "/accounts/acme/adjustments"))

	adj := charge(t, acct, 100)
	assert.ErrorIs(t, adj.Create(ctx), billing.ErrAlreadyPersisted)

	ghost := client.NewAccount("ghost").NewAdjustment("USD", 100)
	assert.ErrorIs(t, ghost.Create(ctx), billing.ErrNotFound)
}

func TestAdjustment_Type(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		adj  billing.Adjustment
		want billing.AdjustmentType
	}{
		{"positive total", billing.Adjustment{TotalInCents: 100}, billing.AdjustmentCharge},
		{"negative total", billing.Adjustment{TotalInCents: -100}, billing.AdjustmentCredit},
		{"draft charge", billing.Adjustment{UnitAmountInCents: 100, Quantity: 1}, billing.AdjustmentCharge},
		{"draft credit", billing.Adjustment{UnitAmountInCents: -100, Quantity: 1}, billing.AdjustmentCredit},
		{"refund line", billing.Adjustment{UnitAmountInCents: 100, Quantity: -1}, billing.AdjustmentCredit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.adj.Type())
		})
	}
}
