package archive

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/pager"
)

// Archiver copies invoice PDFs into a Store.
type Archiver struct {
	store  Store
	logger *slog.Logger
	prefix string
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithLogger sets the logger for stored and skipped invoices.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archiver) {
		a.logger = logger.OrDefault(l)
	}
}

// WithPrefix replaces the default "invoices/" key prefix.
func WithPrefix(prefix string) Option {
	return func(a *Archiver) {
		a.prefix = prefix
	}
}

// New creates an Archiver writing to store under the "invoices/" prefix.
func New(store Store, opts ...Option) *Archiver {
	a := &Archiver{
		store:  store,
		logger: slog.Default(),
		prefix: "invoices/",
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("archive"))
	return a
}

// Key returns the object key of an invoice, e.g. "invoices/acme/1001.pdf".
// Account codes are path-escaped.
func (a *Archiver) Key(inv *billing.Invoice) string {
	return fmt.Sprintf("%s%s/%d.pdf", a.prefix, url.PathEscape(inv.AccountCode), inv.Number)
}

// Result describes the outcome for one invoice.
type Result struct {
	Key    string
	Stored bool // false when the object already existed
	Size   int
}

// Archive stores the PDF of inv unless its key already exists.
func (a *Archiver) Archive(ctx context.Context, inv *billing.Invoice) (Result, error) {
	if inv == nil {
		return Result{}, ErrNilInvoice
	}
	if !inv.Persisted() {
		return Result{}, billing.ErrNotPersisted
	}

	res := Result{Key: a.Key(inv)}
	exists, err := a.store.Exists(ctx, res.Key)
	if err != nil {
		return res, fmt.Errorf("check %s: %w", res.Key, err)
	}
	if exists {
		return res, nil
	}

	pdf, err := inv.PDF(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch invoice %d: %w", inv.Number, err)
	}
	if err := a.store.Put(ctx, res.Key, pdf, billing.MediaTypePDF); err != nil {
		return res, fmt.Errorf("store %s: %w", res.Key, err)
	}

	res.Stored = true
	res.Size = len(pdf)
	a.logger.InfoContext(ctx, "invoice archived",
		logger.AccountCode(inv.AccountCode),
		logger.InvoiceNumber(inv.Number),
		slog.String("key", res.Key),
		slog.Int("size", res.Size),
	)
	return res, nil
}

// Summary counts what ArchiveAll did.
type Summary struct {
	Stored  int
	Skipped int
}

// ArchiveAll walks the collection and archives every invoice. It stops at the
// first failure and returns the counts reached so far.
func (a *Archiver) ArchiveAll(ctx context.Context, invoices *pager.Collection[*billing.Invoice]) (Summary, error) {
	var sum Summary
	for inv, err := range invoices.All(ctx) {
		if err != nil {
			return sum, err
		}
		res, err := a.Archive(ctx, inv)
		if err != nil {
			a.logger.ErrorContext(ctx, "invoice archiving failed", logger.InvoiceNumber(inv.Number), logger.Error(err))
			return sum, err
		}
		if res.Stored {
			sum.Stored++
		} else {
			sum.Skipped++
		}
	}
	return sum, nil
}
