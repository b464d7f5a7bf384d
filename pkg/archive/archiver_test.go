package archive_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/archive"
	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/billingtest"
	"github.com/dmitrymomot/billing/pkg/logger"
)

func invoice(t *testing.T, client *billing.Client, code string, cents int64) *billing.Invoice {
	t.Helper()
	ctx := context.Background()

	acct := client.NewAccount(code)
	acct.Email = code + "@example.com"
	require.NoError(t, acct.Create(ctx))

	adj := acct.NewAdjustment("USD", cents)
	adj.Description = "archive test"
	require.NoError(t, adj.Create(ctx))

	inv, err := acct.InvoicePendingCharges(ctx)
	require.NoError(t, err)
	return inv
}

func TestArchiver_Archive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := billingtest.New(t)
	client := srv.Client(t)
	store := archive.NewMemoryStore()
	arch := archive.New(store, archive.WithLogger(logger.Discard()))

	inv := invoice(t, client, "acme", 1500)
	path := fmt.Sprintf("/invoices/%d", inv.Number)

	res, err := arch.Archive(ctx, inv)
	require.NoError(t, err)
	assert.True(t, res.Stored)
	assert.Equal(t, fmt.Sprintf("invoices/acme/%d.pdf", inv.Number), res.Key)

	data, err := store.Get(ctx, res.Key)
	require.NoError(t, err)
	assert.Equal(t, billingtest.RenderPDF(inv), data)
	assert.Equal(t, len(data), res.Size)
	assert.Equal(t, billing.MediaTypePDF, store.ContentType(res.Key))
	assert.Equal(t, 1, srv.Hits("GET", path))

	again, err := arch.Archive(ctx, inv)
	require.NoError(t, err)
	assert.False(t, again.Stored)
	assert.Equal(t, res.Key, again.Key)
	assert.Equal(t, 1, srv.Hits("GET", path), "existing objects are not downloaded again")
}

func TestArchiver_Key(t *testing.T) {
	t.Parallel()

	inv := &billing.Invoice{Number: 1042, AccountCode: "acme corp"}
	assert.Equal(t, "invoices/acme%20corp/1042.pdf", archive.New(archive.NewMemoryStore()).Key(inv))
	assert.Equal(t, "billing/pdf/acme%20corp/1042.pdf",
		archive.New(archive.NewMemoryStore(), archive.WithPrefix("billing/pdf/")).Key(inv))
}

func TestArchiver_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	arch := archive.New(archive.NewMemoryStore(), archive.WithLogger(logger.Discard()))

	_, err := arch.Archive(ctx, nil)
	assert.ErrorIs(t, err, archive.ErrNilInvoice)

	_, err = arch.Archive(ctx, &billing.Invoice{Number: 1, AccountCode: "acme"})
	assert.ErrorIs(t, err, billing.ErrNotPersisted)
}

func TestArchiver_ArchiveAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := billingtest.New(t)
	client := srv.Client(t, billing.WithPageSize(2))
	store := archive.NewMemoryStore()
	arch := archive.New(store, archive.WithLogger(logger.Discard()))

	first := invoice(t, client, "a", 100)
	invoice(t, client, "b", 200)
	invoice(t, client, "c", 300)

	_, err := arch.Archive(ctx, first)
	require.NoError(t, err)

	sum, err := arch.ArchiveAll(ctx, client.Invoices.List(billing.InvoiceListOptions{}))
	require.NoError(t, err)
	assert.Equal(t, archive.Summary{Stored: 2, Skipped: 1}, sum)
	assert.Len(t, store.Keys(), 3)

	sum, err = arch.ArchiveAll(ctx, client.Invoices.List(billing.InvoiceListOptions{State: "bogus"}))
	assert.ErrorIs(t, err, billing.ErrValidation)
	assert.Zero(t, sum)
}
