package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billing/pkg/logger"
)

// Client binds entities and gateways to a RemoteClient and a set of Settings.
// A Client is immutable after construction and safe for concurrent use;
// entities it returns are not.
type Client struct {
	remote   RemoteClient
	settings Settings
	logger   *slog.Logger
	now      func() time.Time

	Accounts      *AccountGateway
	Adjustments   *AdjustmentGateway
	Invoices      *InvoiceGateway
	Subscriptions *SubscriptionGateway
	Plans         *PlanGateway
	Coupons       *CouponGateway
	Transactions  *TransactionGateway
}

// Option configures a Client.
type Option func(*Client)

// WithSettings sets credentials, routing and the page size. Zero fields take
// their defaults.
func WithSettings(s Settings) Option {
	return func(c *Client) {
		c.settings = s
	}
}

// WithPageSize overrides the default page size of listings. Values above
// MaxPageSize are lowered to it.
func WithPageSize(n int) Option {
	return func(c *Client) {
		c.settings.PageSize = n
	}
}

// WithLogger sets the logger for lifecycle transitions. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the time source used by local lifecycle checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient creates a client. Without WithSettings the default page size is used.
func NewClient(remote RemoteClient, opts ...Option) (*Client, error) {
	if remote == nil {
		return nil, ErrNilRemote
	}

	c := &Client{
		remote: remote,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.settings = c.settings.withDefaults()
	c.settings.PageSize = min(c.settings.PageSize, MaxPageSize)
	c.bind()

	return c, nil
}

// Settings returns the settings in effect.
func (c *Client) Settings() Settings {
	return c.settings
}

// ApplySettings returns a copy of the client using s. The receiver is left
// untouched, so tests can change the page size mid-run without affecting
// other users of the original client.
func (c *Client) ApplySettings(s Settings) *Client {
	cp := *c
	cp.settings = s.withDefaults()
	cp.settings.PageSize = min(cp.settings.PageSize, MaxPageSize)
	cp.bind()
	return &cp
}

func (c *Client) bind() {
	c.Accounts = &AccountGateway{client: c}
	c.Adjustments = &AdjustmentGateway{client: c}
	c.Invoices = &InvoiceGateway{client: c}
	c.Subscriptions = &SubscriptionGateway{client: c}
	c.Plans = &PlanGateway{client: c}
	c.Coupons = &CouponGateway{client: c}
	c.Transactions = &TransactionGateway{client: c}
}

func (c *Client) invoke(ctx context.Context, call Call, out any) (Result, error) {
	return c.remote.Invoke(ctx, call, out)
}

func (c *Client) logTransition(ctx context.Context, msg string, from, to string, attrs ...slog.Attr) {
	attrs = append(attrs, logger.Transition(from, to))
	c.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

// bound is embedded by every entity.
type bound struct {
	client    *Client
	persisted bool
}

func (b *bound) attach(c *Client) {
	b.client = c
	b.persisted = true
}

// Persisted reports whether the entity exists remotely.
func (b *bound) Persisted() bool {
	return b.persisted
}

func (b *bound) ready() error {
	if b.client == nil {
		return ErrUnboundEntity
	}
	if !b.persisted {
		return ErrNotPersisted
	}
	return nil
}

func (b *bound) draft() error {
	if b.client == nil {
		return ErrUnboundEntity
	}
	if b.persisted {
		return ErrAlreadyPersisted
	}
	return nil
}
