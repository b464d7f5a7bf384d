package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/logger"
)

// Action is what Sync did, or would do, with one plan or add-on.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// Change records the outcome for one item. AddOn is empty for plan changes.
type Change struct {
	Plan   string
	AddOn  string
	Action Action
}

func (c Change) String() string {
	if c.AddOn == "" {
		return fmt.Sprintf("plan %s %s", c.Plan, c.Action)
	}
	return fmt.Sprintf("add-on %s/%s %s", c.Plan, c.AddOn, c.Action)
}

// Report lists changes in catalog order. On failure it holds what was
// done before the error.
type Report struct {
	Changes []Change
	DryRun  bool
}

// Count returns the number of changes with the given action.
func (r Report) Count(a Action) int {
	n := 0
	for _, c := range r.Changes {
		if c.Action == a {
			n++
		}
	}
	return n
}

// Changed reports whether anything was, or would be, created or updated.
func (r Report) Changed() bool {
	return r.Count(ActionCreated)+r.Count(ActionUpdated) > 0
}

// SyncOption configures Sync.
type SyncOption func(*syncer)

// WithLogger sets the logger that reports each change.
func WithLogger(l *slog.Logger) SyncOption {
	return func(s *syncer) {
		s.logger = logger.OrDefault(l)
	}
}

// WithDryRun makes Sync compare only. Reads still reach the service.
func WithDryRun() SyncOption {
	return func(s *syncer) {
		s.dryRun = true
	}
}

type syncer struct {
	client *billing.Client
	logger *slog.Logger
	dryRun bool
	report Report
}

// Sync makes the service catalog match c. Items are processed in order and
// the first failure stops the run.
func Sync(ctx context.Context, client *billing.Client, c *Catalog, opts ...SyncOption) (Report, error) {
	if client == nil {
		return Report{}, ErrNilClient
	}
	if c == nil || len(c.Plans) == 0 {
		return Report{}, ErrEmptyCatalog
	}
	s := &syncer{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("catalog"))
	s.report.DryRun = s.dryRun

	for _, p := range c.Plans {
		if err := s.plan(ctx, p); err != nil {
			s.logger.ErrorContext(ctx, "catalog sync failed", slog.String("plan", p.Code), logger.Error(err))
			return s.report, errors.Join(ErrSyncFailed, err)
		}
	}

	s.logger.InfoContext(ctx, "catalog synced",
		slog.Bool("dry_run", s.dryRun),
		slog.Int("created", s.report.Count(ActionCreated)),
		slog.Int("updated", s.report.Count(ActionUpdated)),
		slog.Int("unchanged", s.report.Count(ActionUnchanged)),
	)
	return s.report, nil
}

func (s *syncer) plan(ctx context.Context, want Plan) error {
	remote, err := s.client.Plans.Get(ctx, want.Code)
	switch {
	case billing.IsNotFound(err):
		remote = s.client.NewPlan(want.Code, want.Name)
		applyPlan(remote, want)
		if !s.dryRun {
			if err := remote.Create(ctx); err != nil {
				return fmt.Errorf("create plan %s: %w", want.Code, err)
			}
		}
		s.record(ctx, Change{Plan: want.Code, Action: ActionCreated})

		// A new plan has no add-ons yet.
		for _, a := range want.AddOns {
			if err := s.createAddOn(ctx, remote, a); err != nil {
				return err
			}
		}
		return nil
	case err != nil:
		return fmt.Errorf("get plan %s: %w", want.Code, err)
	}

	if planMatches(remote, want) {
		s.record(ctx, Change{Plan: want.Code, Action: ActionUnchanged})
	} else {
		applyPlan(remote, want)
		if !s.dryRun {
			if err := remote.Update(ctx); err != nil {
				return fmt.Errorf("update plan %s: %w", want.Code, err)
			}
		}
		s.record(ctx, Change{Plan: want.Code, Action: ActionUpdated})
	}

	for _, a := range want.AddOns {
		if err := s.addOn(ctx, remote, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *syncer) addOn(ctx context.Context, plan *billing.Plan, want AddOn) error {
	remote, err := plan.AddOn(ctx, want.Code)
	switch {
	case billing.IsNotFound(err):
		return s.createAddOn(ctx, plan, want)
	case err != nil:
		return fmt.Errorf("get add-on %s/%s: %w", plan.Code, want.Code, err)
	}

	if addOnMatches(remote, want) {
		s.record(ctx, Change{Plan: plan.Code, AddOn: want.Code, Action: ActionUnchanged})
		return nil
	}
	applyAddOn(remote, want)
	if !s.dryRun {
		if err := remote.Update(ctx); err != nil {
			return fmt.Errorf("update add-on %s/%s: %w", plan.Code, want.Code, err)
		}
	}
	s.record(ctx, Change{Plan: plan.Code, AddOn: want.Code, Action: ActionUpdated})
	return nil
}

func (s *syncer) createAddOn(ctx context.Context, plan *billing.Plan, want AddOn) error {
	if !s.dryRun {
		addOn := plan.NewAddOn(want.Code, want.Name)
		applyAddOn(addOn, want)
		if err := addOn.Create(ctx); err != nil {
			return fmt.Errorf("create add-on %s/%s: %w", plan.Code, want.Code, err)
		}
	}
	s.record(ctx, Change{Plan: plan.Code, AddOn: want.Code, Action: ActionCreated})
	return nil
}

func (s *syncer) record(ctx context.Context, c Change) {
	s.report.Changes = append(s.report.Changes, c)
	if c.Action != ActionUnchanged {
		s.logger.InfoContext(ctx, c.String(), slog.Bool("dry_run", s.dryRun))
	}
}

func applyPlan(p *billing.Plan, want Plan) {
	p.Name = want.Name
	p.Description = want.Description
	p.AccountingCode = want.AccountingCode
	p.UnitAmountInCents = billing.Amounts(maps.Clone(want.Price))
	p.SetupFeeInCents = billing.Amounts(maps.Clone(want.SetupFee))
	p.IntervalLength = want.Interval.Length
	p.IntervalUnit = want.Interval.Unit
	p.TrialIntervalLength = want.Trial.Length
	p.TrialIntervalUnit = want.Trial.Unit
	p.TotalBillingCycles = want.TotalBillingCycles
	if want.TaxExempt != nil {
		p.TaxExempt = want.TaxExempt
	}
	p.TaxCode = want.TaxCode
}

func planMatches(p *billing.Plan, want Plan) bool {
	return p.Name == want.Name &&
		p.Description == want.Description &&
		p.AccountingCode == want.AccountingCode &&
		maps.Equal(p.UnitAmountInCents, billing.Amounts(want.Price)) &&
		maps.Equal(p.SetupFeeInCents, billing.Amounts(want.SetupFee)) &&
		p.IntervalLength == want.Interval.Length &&
		p.IntervalUnit == want.Interval.Unit &&
		p.TrialIntervalLength == want.Trial.Length &&
		p.TrialIntervalUnit == want.Trial.Unit &&
		p.TotalBillingCycles == want.TotalBillingCycles &&
		(want.TaxExempt == nil || (p.TaxExempt != nil && *p.TaxExempt == *want.TaxExempt)) &&
		p.TaxCode == want.TaxCode
}

func applyAddOn(a *billing.AddOn, want AddOn) {
	a.Name = want.Name
	a.AccountingCode = want.AccountingCode
	a.UnitAmountInCents = billing.Amounts(maps.Clone(want.Price))
	a.DefaultQuantity = want.DefaultQuantity
	a.DisplayQuantityOnHostedPage = want.DisplayQuantity
}

func addOnMatches(a *billing.AddOn, want AddOn) bool {
	return a.Name == want.Name &&
		a.AccountingCode == want.AccountingCode &&
		maps.Equal(a.UnitAmountInCents, billing.Amounts(want.Price)) &&
		a.DefaultQuantity == want.DefaultQuantity &&
		a.DisplayQuantityOnHostedPage == want.DisplayQuantity
}
