package pager

import (
	"context"
	"iter"
	"sync"
)

// Page is one server response of a listing endpoint.
type Page[T any] struct {
	Items []T
	Next  string // opaque cursor for the following page, empty on the last page
	Total int    // total records reported by the server, -1 when unknown
}

// FetchFunc fetches the page starting at cursor. The empty cursor denotes the first page.
type FetchFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Collection is a lazy view over a remote, cursor-paginated result set.
//
// Pages are fetched on demand when an index beyond the already retrieved
// elements is requested, and are kept for the life of the collection. Element
// order is the order the server returned them in.
type Collection[T any] struct {
	mu     sync.Mutex
	fetch  FetchFunc[T]
	pages  [][]T
	count  int
	next   string
	total  int
	loaded bool // at least one page was fetched
	err    error
}

// New creates an empty collection. Nothing is fetched until elements are requested.
func New[T any](fetch FetchFunc[T]) *Collection[T] {
	if fetch == nil {
		panic("pager: fetch function is required")
	}
	return &Collection[T]{fetch: fetch, total: -1}
}

// Load fetches the first page if it has not been fetched yet.
func (c *Collection[T]) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return nil
	}
	return c.fetchNext(ctx)
}

// At returns element i, fetching just enough pages to cover it.
// ErrIndexOutOfRange is returned when the result set is shorter than i+1.
func (c *Collection[T]) At(ctx context.Context, i int) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if i < 0 {
		return zero, ErrIndexOutOfRange
	}

	for i >= c.count {
		if c.exhausted() {
			return zero, ErrIndexOutOfRange
		}
		if err := c.fetchNext(ctx); err != nil {
			return zero, err
		}
	}

	return c.elementAt(i), nil
}

// All iterates over the whole result set, fetching pages as the iteration
// crosses page boundaries. Already fetched pages are served from memory, so
// ranging twice does not refetch them. A fetch error is yielded once and ends
// the iteration.
func (c *Collection[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for i := 0; ; i++ {
			v, err := c.At(ctx, i)
			if err == ErrIndexOutOfRange {
				return
			}
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Collect materializes the full result set. On error the elements fetched
// so far are returned alongside it.
func (c *Collection[T]) Collect(ctx context.Context) ([]T, error) {
	for _, err := range c.All(ctx) {
		if err != nil {
			return c.Fetched(), err
		}
	}
	return c.Fetched(), nil
}

// Fetched returns a copy of every element retrieved so far, in server order.
func (c *Collection[T]) Fetched() []T {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]T, 0, c.count)
	for _, p := range c.pages {
		out = append(out, p...)
	}
	return out
}

// Len is the number of elements fetched so far, not the size of the result set.
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Capacity is the number of elements in the most recently fetched page.
func (c *Collection[T]) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pages) == 0 {
		return 0
	}
	return len(c.pages[len(c.pages)-1])
}

// Next returns the cursor of the page that would be fetched next.
// It is empty before the first fetch and after the last page.
func (c *Collection[T]) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Total reports the size of the whole result set when the server provided it.
func (c *Collection[T]) Total() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total, c.total >= 0
}

// Pages is the number of pages fetched so far.
func (c *Collection[T]) Pages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

// Err returns the last fetch error, if any.
func (c *Collection[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Reset discards every cached page so the next access starts again from the first page.
func (c *Collection[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pages = nil
	c.count = 0
	c.next = ""
	c.total = -1
	c.loaded = false
	c.err = nil
}

func (c *Collection[T]) exhausted() bool {
	return c.loaded && c.next == ""
}

// fetchNext must be called with mu held.
func (c *Collection[T]) fetchNext(ctx context.Context) error {
	if c.exhausted() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return err
	}

	page, err := c.fetch(ctx, c.next)
	if err != nil {
		c.err = err
		return err
	}

	// A page cursor that does not advance would loop forever.
	if c.loaded && page.Next != "" && page.Next == c.next {
		c.err = ErrCursorNotAdvancing
		return c.err
	}

	c.pages = append(c.pages, page.Items)
	c.count += len(page.Items)
	c.next = page.Next
	c.loaded = true
	c.err = nil
	if page.Total >= 0 {
		c.total = page.Total
	}

	// An empty page with a cursor is not an error, but it would never cover a new index.
	if len(page.Items) == 0 && page.Next != "" {
		c.next = ""
	}
	return nil
}

func (c *Collection[T]) elementAt(i int) T {
	for _, p := range c.pages {
		if i < len(p) {
			return p[i]
		}
		i -= len(p)
	}
	var zero T
	return zero
}
