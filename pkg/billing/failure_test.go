package billing_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/billingtest"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/transport"
)

func TestAccount_Close_CanceledContextKeepsAccount(t *testing.T) {
	t.Parallel()
	srv, client := setup(t)

	acct := createAccount(t, client, "acme")
	before := *acct

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := acct.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, billing.IsTransport(err))

	assert.Equal(t, before, *acct)
	assert.Equal(t, billing.AccountActive, acct.State)
	assert.Nil(t, acct.ClosedAt)
	assert.True(t, acct.Persisted())
	assert.Equal(t, 0, srv.Hits("DELETE", "/accounts/acme"))

	// The account is still usable once the context is live again.
	require.NoError(t, acct.Close(context.Background()))
	assert.Equal(t, billing.AccountClosed, acct.State)
}

func TestSubscription_FailedCallKeepsSubscription(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := billingtest.New(t, billingtest.WithClock(clock))

	outage := errors.New("connection reset by peer")
	remote := transport.New(srv.Settings(), transport.WithLogger(logger.Discard()))
	failing := billing.RemoteClientFunc(func(ctx context.Context, call billing.Call, out any) (billing.Result, error) {
		if call.Method == http.MethodPut && strings.HasPrefix(call.Path, "/subscriptions/") {
			return billing.Result{}, &billing.RemoteError{Kind: billing.KindTransport, Err: outage}
		}
		return remote.Invoke(ctx, call, out)
	})
	client, err := billing.NewClient(failing,
		billing.WithSettings(srv.Settings()),
		billing.WithClock(clock),
		billing.WithLogger(logger.Discard()),
	)
	require.NoError(t, err)

	acct := createAccount(t, client, "acme")
	plan := createPlan(t, client, "basic", 1999)
	sub := subscribe(t, client, acct, plan)
	before := *sub

	tests := []struct {
		name string
		call func() error
	}{
		{name: "cancel", call: func() error { return sub.Cancel(ctx) }},
		{name: "terminate", call: func() error { return sub.Terminate(ctx, billing.RefundFull) }},
		{name: "postpone", call: func() error { return sub.Postpone(ctx, now.AddDate(0, 2, 0)) }},
		{name: "change", call: func() error {
			sub.Quantity = 3
			defer func() { sub.Quantity = before.Quantity }()
			return sub.Change(ctx, billing.TimeframeNow)
		}},
	}
	for _, tt := range tests {
		err := tt.call()
		require.ErrorIs(t, err, outage, tt.name)
		assert.ErrorIs(t, err, billing.ErrTransport, tt.name)

		assert.Equal(t, before, *sub, tt.name)
		assert.Equal(t, billing.SubscriptionActive, sub.State, tt.name)
		assert.Nil(t, sub.CanceledAt, tt.name)
		assert.Nil(t, sub.ExpiresAt, tt.name)
		assert.True(t, sub.Persisted(), tt.name)
	}

	fetched, err := client.Subscriptions.Get(ctx, sub.UUID)
	require.NoError(t, err)
	assert.Equal(t, billing.SubscriptionActive, fetched.State)
}
