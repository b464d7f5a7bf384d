package billingtest

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/transport"
	"github.com/dmitrymomot/billing/pkg/validator"
)

// DefaultAPIKey is accepted by a Server created without WithAPIKey.
const DefaultAPIKey = "test-api-key"

// Sales tax applied to accounts billed in California.
const (
	TaxRateCA = 0.0875
	TaxTypeUS = "usst"
)

// Server is an in-memory billing service. Requests are handled one at a time.
type Server struct {
	mu     sync.Mutex
	http   *httptest.Server
	now    func() time.Time
	apiKey string
	hits   map[string]int

	accounts      *table[string, *billing.Account]
	adjustments   *table[string, *billing.Adjustment]
	invoices      *table[int, *billing.Invoice]
	subscriptions *table[string, *billing.Subscription]
	plans         *table[string, *billing.Plan]
	addOns        *table[string, *billing.AddOn]
	coupons       *table[string, *billing.Coupon]
	redemptions   *table[string, *billing.CouponRedemption]
	transactions  *table[string, *billing.Transaction]
	notes         []*billing.Note

	lastInvoice          int
	invoiceRedemptions   map[int]string
	refunded             map[string]int64 // transaction UUID -> refunded cents
	subscriptionInvoices map[string]int   // subscription UUID -> invoice of the current period
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the time source of the server and of clients it builds.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAPIKey sets the only API key the server accepts.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// New starts a server that is closed when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		now:    time.Now,
		apiKey: DefaultAPIKey,
		hits:   make(map[string]int),

		accounts:      newTable[string, *billing.Account](),
		adjustments:   newTable[string, *billing.Adjustment](),
		invoices:      newTable[int, *billing.Invoice](),
		subscriptions: newTable[string, *billing.Subscription](),
		plans:         newTable[string, *billing.Plan](),
		addOns:        newTable[string, *billing.AddOn](),
		coupons:       newTable[string, *billing.Coupon](),
		redemptions:   newTable[string, *billing.CouponRedemption](),
		transactions:  newTable[string, *billing.Transaction](),

		lastInvoice:          1000,
		invoiceRedemptions:   make(map[int]string),
		refunded:             make(map[string]int64),
		subscriptionInvoices: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.http = httptest.NewServer(s.routes())
	t.Cleanup(s.http.Close)
	return s
}

// URL is the root of the test server. The API lives under /v2.
func (s *Server) URL() string {
	return s.http.URL
}

// Settings points a client at the server.
func (s *Server) Settings() billing.Settings {
	return billing.Settings{
		APIKey:   s.apiKey,
		BaseURL:  s.http.URL + "/v2",
		PageSize: billing.DefaultPageSize,
		Timeout:  5 * time.Second,
	}
}

// Client builds a billing client that talks to the server over HTTP and
// shares its clock. Options are applied last.
func (s *Server) Client(t testing.TB, opts ...billing.Option) *billing.Client {
	t.Helper()

	settings := s.Settings()
	remote := transport.New(settings, transport.WithLogger(logger.Discard()))
	client, err := billing.NewClient(remote, append([]billing.Option{
		billing.WithSettings(settings),
		billing.WithClock(s.now),
		billing.WithLogger(logger.Discard()),
	}, opts...)...)
	require.NoError(t, err)
	return client
}

// Hits returns how many requests reached method and path, e.g. Hits("GET", "/accounts").
// Unauthenticated requests are counted too.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// TotalHits returns the number of requests received so far.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, v := range s.hits {
		n += v
	}
	return n
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" is not supported on "+r.URL.Path)
	})

	r.Route("/v2", func(r chi.Router) {
		r.Use(s.serialize, s.authenticate)

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.listAccounts)
			r.Post("/", s.createAccount)
			r.Route("/{account}", func(r chi.Router) {
				r.Get("/", s.getAccount)
				r.Put("/", s.updateAccount)
				r.Delete("/", s.closeAccount)
				r.Put("/reopen", s.reopenAccount)
				r.Put("/billing_info", s.updateBillingInfo)
				r.Get("/adjustments", s.listAccountAdjustments)
				r.Post("/adjustments", s.createAdjustment)
				r.Get("/invoices", s.listAccountInvoices)
				r.Post("/invoices", s.invoicePendingCharges)
				r.Get("/subscriptions", s.listAccountSubscriptions)
				r.Get("/transactions", s.listAccountTransactions)
				r.Get("/redemption", s.getActiveRedemption)
				r.Get("/redemptions", s.listAccountRedemptions)
				r.Delete("/redemptions/{uuid}", s.deleteRedemption)
				r.Get("/notes", s.listNotes)
			})
		})

		r.Route("/adjustments/{uuid}", func(r chi.Router) {
			r.Get("/", s.getAdjustment)
			r.Delete("/", s.deleteAdjustment)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", s.listInvoices)
			r.Route("/{number}", func(r chi.Router) {
				r.Get("/", s.getInvoice)
				r.Put("/mark_successful", s.markInvoice(billing.InvoiceMarkSuccessful))
				r.Put("/mark_failed", s.markInvoice(billing.InvoiceMarkFailed))
				r.Post("/refund", s.refundInvoice)
				r.Get("/redemption", s.getInvoiceRedemption)
			})
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", s.listSubscriptions)
			r.Post("/", s.createSubscription)
			r.Post("/preview", s.previewSubscription)
			r.Route("/{uuid}", func(r chi.Router) {
				r.Get("/", s.getSubscription)
				r.Put("/", s.changeSubscription)
				r.Put("/cancel", s.cancelSubscription)
				r.Put("/reactivate", s.reactivateSubscription)
				r.Put("/terminate", s.terminateSubscription)
				r.Put("/postpone", s.postponeSubscription)
				r.Put("/notes", s.updateSubscriptionNotes)
			})
		})

		r.Route("/plans", func(r chi.Router) {
			r.Get("/", s.listPlans)
			r.Post("/", s.createPlan)
			r.Route("/{plan}", func(r chi.Router) {
				r.Get("/", s.getPlan)
				r.Put("/", s.updatePlan)
				r.Delete("/", s.deletePlan)
				r.Get("/add_ons", s.listAddOns)
				r.Post("/add_ons", s.createAddOn)
				r.Get("/add_ons/{addon}", s.getAddOn)
				r.Put("/add_ons/{addon}", s.updateAddOn)
				r.Delete("/add_ons/{addon}", s.deleteAddOn)
			})
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Get("/", s.listCoupons)
			r.Post("/", s.createCoupon)
			r.Route("/{coupon}", func(r chi.Router) {
				r.Get("/", s.getCoupon)
				r.Delete("/", s.deactivateCoupon)
				r.Post("/redeem", s.redeemCoupon)
			})
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.listTransactions)
			r.Post("/", s.createTransaction)
			r.Get("/{uuid}", s.getTransaction)
			r.Delete("/{uuid}", s.refundTransaction)
		})
	})

	return r
}

// serialize runs one request at a time and counts it.
func (s *Server) serialize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.hits[r.Method+" "+strings.TrimPrefix(r.URL.Path, "/v2")]++
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		if !ok || user != s.apiKey {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) timestamp() *time.Time {
	now := s.now().UTC()
	return &now
}

func newUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("%s %q not found", name, chi.URLParam(r, name)))
		return 0, false
	}
	return n, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := xml.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_xml", err.Error())
		return false
	}
	return true
}

func writeXML(w http.ResponseWriter, status int, v any) {
	body, err := xml.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	w.Header().Set("Content-Type", transport.MediaTypeXML+"; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, symbol, description string) {
	body, _ := xml.Marshal(billing.ErrorDocument{Symbol: symbol, Description: description})
	w.Header().Set("Content-Type", transport.MediaTypeXML+"; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}

// writeValidation reports rule failures as a 422 errors document.
func writeValidation(w http.ResponseWriter, err error) {
	doc := billing.ErrorsDocument{}
	for _, fe := range validator.ExtractValidationErrors(err) {
		doc.Errors = append(doc.Errors, billing.FieldError{Field: fe.Field, Symbol: fe.Symbol, Message: fe.Message})
	}
	if len(doc.Errors) == 0 {
		doc.Errors = append(doc.Errors, billing.FieldError{Symbol: "invalid", Message: err.Error()})
	}
	writeXML(w, http.StatusUnprocessableEntity, doc)
}

func writeFieldError(w http.ResponseWriter, field, symbol, message string) {
	writeValidation(w, validator.ValidationErrors{{Field: field, Symbol: symbol, Message: message}})
}

func writeNotFound(w http.ResponseWriter, kind, id string) {
	writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("couldn't find %s with id = %s", kind, id))
}

func writeIllegal(w http.ResponseWriter, err error) {
	writeError(w, http.StatusConflict, "invalid_transition", err.Error())
}

// taken is the rule the service applies to unique codes.
func taken(field string, exists bool) validator.Rule {
	return validator.Rule{
		Check: func() bool { return !exists },
		Error: validator.ValidationError{Field: field, Symbol: "taken", Message: "has already been taken"},
	}
}

// unknown is the rule the service applies to references to other resources.
func unknown(field string, found bool) validator.Rule {
	return validator.Rule{
		Check: func() bool { return found },
		Error: validator.ValidationError{Field: field, Symbol: "invalid", Message: "is not a known value"},
	}
}
