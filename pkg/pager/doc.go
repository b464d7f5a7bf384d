// Package pager implements a lazy, cursor-driven view over remote listing
// endpoints.
//
// A Collection is built from a FetchFunc that knows how to retrieve one page
// given an opaque cursor. Nothing is fetched on construction; asking for
// element i fetches exactly the pages needed to cover i, and every fetched
// page is retained, so repeated access or repeated iteration never reissues a
// request for a page already in memory. Reset starts over from the first
// page.
//
// Two counters are exposed and deliberately kept apart from the size of the
// remote result set: Len is how many elements were fetched so far and
// Capacity is the size of the most recent page. Total reports the server-side
// count only when the server provided one.
//
// When a page fetch fails the error is returned to the caller and the
// elements fetched before the failure stay available through Fetched.
//
//	c := pager.New(func(ctx context.Context, cursor string) (pager.Page[Invoice], error) {
//	    return api.ListInvoices(ctx, cursor, 50)
//	})
//	for inv, err := range c.All(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(inv.Number)
//	}
package pager
