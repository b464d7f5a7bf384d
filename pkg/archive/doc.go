// Package archive copies rendered invoice PDFs into object storage.
//
// An Archiver fetches the PDF of each invoice through the billing client and
// stores it under a stable key, "invoices/<account code>/<invoice number>.pdf".
// Objects that already exist are left untouched, so archiving the same
// invoices again costs one existence check per invoice and no download.
//
// Two stores are provided: S3Store for Amazon S3 and S3-compatible services,
// and MemoryStore for tests and local tooling.
//
//	store, err := archive.NewS3Store(ctx, archive.S3Config{Bucket: "invoices", Region: "us-east-1"})
//	if err != nil {
//		return err
//	}
//	arch := archive.New(store, archive.WithLogger(log))
//	summary, err := arch.ArchiveAll(ctx, client.Invoices.List(billing.InvoiceListOptions{State: billing.InvoiceCollected}))
package archive
