// Package billing is a client for a remote subscription-billing service.
//
// Accounts, subscriptions, plans and add-ons, adjustments, invoices,
// transactions, coupons and coupon redemptions are plain structs that mirror
// remote resources. A Client binds them to a RemoteClient (usually
// transport.Client) and exposes read-only gateways for lookups and listings.
//
// # Lifecycle
//
// Every entity that has a lifecycle has an exported transition table built
// with pkg/statemachine (AccountLifecycle, InvoiceLifecycle,
// SubscriptionLifecycle, CouponLifecycle and so on). Operations check the
// table before calling the service, so illegal requests such as closing a
// closed account fail locally with ErrIllegalTransition and never reach the
// network. Transitions the service performs on its own (renewals, failed
// payments, ACH settlement) are part of the tables but have no method.
//
// Each operation performs exactly one remote round trip. On success the
// entity is replaced with the snapshot returned by the service; on failure it
// is left as it was.
//
// # Errors
//
// Failures match one of ErrNotFound, ErrValidation, ErrInvalidCredentials,
// ErrConflict or ErrTransport with errors.Is. ErrIllegalTransition is a
// Conflict. Field-level validation details, whether produced locally or by
// the service, are available through validator.ExtractValidationErrors.
//
// # Listing
//
// List methods return a *pager.Collection that fetches pages lazily:
//
//	invoices := client.Invoices.List(billing.InvoiceListOptions{State: billing.InvoiceOpen})
//	for inv, err := range invoices.All(ctx) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(inv.Number, inv.TotalInCents)
//	}
//
// # Usage
//
//	settings, err := billing.LoadSettings()
//	if err != nil {
//		return err
//	}
//	client, err := billing.NewClient(transport.New(settings), billing.WithSettings(settings))
//	if err != nil {
//		return err
//	}
//
//	acct := client.NewAccount("acme")
//	acct.Email = "billing@acme.test"
//	if err := acct.Create(ctx); err != nil {
//		return err
//	}
//	charge := acct.NewAdjustment("USD", 5000)
//	if err := charge.Create(ctx); err != nil {
//		return err
//	}
//	invoice, err := acct.InvoicePendingCharges(ctx)
package billing
