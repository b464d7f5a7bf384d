package billing

import (
	"context"
	"net/url"
)

// Call describes one remote operation.
type Call struct {
	Method string
	Path   string // relative to the API root, e.g. "/accounts/acme"
	Query  url.Values
	Body   any    // encoded as an XML document when non-nil
	Accept string // response media type, empty means XML
}

// Result carries response metadata the caller may need beyond the decoded body.
type Result struct {
	Status int
	Next   string // cursor of the next page for list calls, empty on the last page
	Total  int    // record count reported by the service, -1 when absent
}

// RemoteClient performs a single round trip against the billing service.
//
// Implementations decode the response into out (which may be nil, or a
// *[]byte for raw bodies) and report failures as *RemoteError. They must not
// retry.
type RemoteClient interface {
	Invoke(ctx context.Context, call Call, out any) (Result, error)
}

// RemoteClientFunc adapts a function to RemoteClient.
type RemoteClientFunc func(ctx context.Context, call Call, out any) (Result, error)

func (f RemoteClientFunc) Invoke(ctx context.Context, call Call, out any) (Result, error) {
	return f(ctx, call, out)
}
