package billing

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dmitrymomot/billing/pkg/pager"
	"github.com/dmitrymomot/billing/pkg/validator"
)

// Query parameters understood by list endpoints.
const (
	QueryPerPage = "per_page"
	QueryCursor  = "cursor"
	QueryState   = "state"
	QueryType    = "type"
	QueryPastDue = "past_due"
)

// ListOptions is shared by every listing. A zero PerPage uses the client page size.
type ListOptions struct {
	PerPage int
}

// AccountListOptions filters account listings.
type AccountListOptions struct {
	ListOptions
	State   AccountState
	PastDue bool // only accounts holding a past-due invoice, in any state
}

type AdjustmentListOptions struct {
	ListOptions
	State AdjustmentState
	Type  AdjustmentType
}

// InvoiceListOptions filters invoice listings.
type InvoiceListOptions struct {
	ListOptions
	State InvoiceState
}

type SubscriptionListOptions struct {
	ListOptions
	State SubscriptionState
}

// TransactionListOptions filters transactions by status and action.
type TransactionListOptions struct {
	ListOptions
	Status TransactionStatus
	Type   TransactionAction
}

type CouponListOptions struct {
	ListOptions
	State CouponState
}

// listDocument decodes any wrapper element whose children are entity documents.
type listDocument[T any] struct {
	Items []T `xml:",any"`
}

// attachable is satisfied by pointers to entity types.
type attachable[T any] interface {
	*T
	attach(*Client)
}

// list builds a lazy collection over a list endpoint. Filter problems are
// reported by the first fetch so the constructor stays infallible.
func list[T any, PT attachable[T]](c *Client, path string, opts ListOptions, filters url.Values, rules ...validator.Rule) *pager.Collection[PT] {
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = c.settings.PageSize
	}
	rules = append(rules, validator.AmountRange("per_page", perPage, 1, MaxPageSize))
	check := invalid(validator.Apply(rules...))

	return pager.New(func(ctx context.Context, cursor string) (pager.Page[PT], error) {
		if check != nil {
			return pager.Page[PT]{}, check
		}

		query := url.Values{}
		for k, v := range filters {
			query[k] = v
		}
		query.Set(QueryPerPage, strconv.Itoa(perPage))
		if cursor != "" {
			query.Set(QueryCursor, cursor)
		}

		var doc listDocument[T]
		res, err := c.invoke(ctx, Call{Method: http.MethodGet, Path: path, Query: query}, &doc)
		if err != nil {
			return pager.Page[PT]{}, err
		}

		items := make([]PT, len(doc.Items))
		for i := range doc.Items {
			item := PT(&doc.Items[i])
			item.attach(c)
			items[i] = item
		}
		return pager.Page[PT]{Items: items, Next: res.Next, Total: res.Total}, nil
	})
}

func filterValues(pairs ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			v.Set(pairs[i], pairs[i+1])
		}
	}
	return v
}

// oneOfOrEmpty accepts the zero value as "no filter".
func oneOfOrEmpty[T ~string](field string, value T, allowed ...T) validator.Rule {
	return validator.When(value != "", validator.OneOf(field, value, allowed...))
}
