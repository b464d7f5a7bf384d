package billingtest

import (
	"encoding/xml"
	"net/http"
	"strconv"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/transport"
	"github.com/dmitrymomot/billing/pkg/validator"
)

// table keeps rows in insertion order, which is the order listings use.
type table[K comparable, V any] struct {
	keys []K
	rows map[K]V
}

func newTable[K comparable, V any]() *table[K, V] {
	return &table[K, V]{rows: make(map[K]V)}
}

func (t *table[K, V]) put(k K, v V) {
	if _, ok := t.rows[k]; !ok {
		t.keys = append(t.keys, k)
	}
	t.rows[k] = v
}

func (t *table[K, V]) get(k K) (V, bool) {
	v, ok := t.rows[k]
	return v, ok
}

func (t *table[K, V]) remove(k K) {
	if _, ok := t.rows[k]; !ok {
		return
	}
	delete(t.rows, k)
	for i, key := range t.keys {
		if key == k {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
}

// filter returns matching rows in insertion order. A nil keep matches everything.
func (t *table[K, V]) filter(keep func(V) bool) []V {
	out := make([]V, 0, len(t.keys))
	for _, k := range t.keys {
		v := t.rows[k]
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// listDocument wraps a page of entities in a named root element.
type listDocument[T any] struct {
	XMLName xml.Name
	Items   []T
}

// paginate writes one page of items. The cursor is the offset of the first
// element, which keeps the fake stateless between requests.
func paginate[T any](w http.ResponseWriter, r *http.Request, name string, items []T) {
	q := r.URL.Query()

	perPage := billing.DefaultPageSize
	if v := q.Get(billing.QueryPerPage); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			perPage = n
		}
		if err != nil || validator.Apply(validator.AmountRange(billing.QueryPerPage, n, 1, billing.MaxPageSize)) != nil {
			writeError(w, http.StatusBadRequest, "invalid_parameter", "per_page must be between 1 and 200")
			return
		}
	}

	offset := 0
	if v := q.Get(billing.QueryCursor); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_parameter", "cursor is not valid")
			return
		}
		offset = min(n, len(items))
	}

	end := min(offset+perPage, len(items))
	if end < len(items) {
		w.Header().Set(transport.HeaderLink, transport.NextLink(r.URL, strconv.Itoa(end)))
	}
	w.Header().Set(transport.HeaderRecords, strconv.Itoa(len(items)))
	writeXML(w, http.StatusOK, listDocument[T]{XMLName: xml.Name{Local: name}, Items: items[offset:end]})
}

// mapSlice applies fn to every element.
func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}
