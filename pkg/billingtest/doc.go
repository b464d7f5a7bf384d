// Package billingtest runs an in-memory billing service for tests.
//
// The Server speaks the same XML protocol as the real service over a local
// httptest.Server, so a client built with Server.Client exercises the whole
// stack: entity validation, lifecycle checks, the HTTP transport, error
// mapping and cursor pagination.
//
//	srv := billingtest.New(t)
//	client := srv.Client(t)
//
//	acct := client.NewAccount("acme")
//	require.NoError(t, acct.Create(ctx))
//
// The server emulates the service rules the client relies on: pending
// charges are netted against credits when invoiced, California accounts pay
// 8.75% sales tax, invoices paid by card are collected at once while ACH
// payments stay processing, coupons discount the next invoice, and refunds
// produce new invoices. Each renewal invoices the coming period, and
// terminating with a partial or full refund credits the unused or whole part
// of that invoice. Lifecycle moves the service performs on its own are
// triggered explicitly with Renew, ApplyInvoiceEvent and
// ApplySubscriptionEvent.
//
// Hits reports how many requests reached an endpoint, which lets tests
// assert that an operation failed locally without a round trip.
package billingtest
