package transport

import (
	"net/url"
	"strings"

	"github.com/dmitrymomot/billing/pkg/billing"
)

// nextCursor extracts the cursor query parameter of the rel="next" link.
// It returns an empty string on the last page.
func nextCursor(headers []string) string {
	for _, header := range headers {
		for _, link := range strings.Split(header, ",") {
			target, params, ok := strings.Cut(strings.TrimSpace(link), ";")
			if !ok || !isNext(params) {
				continue
			}
			target = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(target), "<"), ">")
			u, err := url.Parse(target)
			if err != nil {
				continue
			}
			return u.Query().Get(billing.QueryCursor)
		}
	}
	return ""
}

func isNext(params string) bool {
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "rel") {
			continue
		}
		for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(v), `"`)) {
			if strings.EqualFold(rel, "next") {
				return true
			}
		}
	}
	return false
}

// NextLink formats a Link header value pointing at the page after the
// current one. Servers speaking this protocol, fakes included, use it.
func NextLink(base *url.URL, cursor string) string {
	u := *base
	q := u.Query()
	q.Set(billing.QueryCursor, cursor)
	u.RawQuery = q.Encode()
	return `<` + u.String() + `>; rel="next"`
}
