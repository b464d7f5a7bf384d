package billingtest

import (
	"net/http"
	"strings"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/validator"
)

// AddNote attaches a back-office note to an account.
func (s *Server) AddNote(accountCode, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes = append(s.notes, &billing.Note{AccountCode: accountCode, Message: message, CreatedAt: s.timestamp()})
}

// accountView is the account as the service renders it.
func (s *Server) accountView(a *billing.Account) *billing.Account {
	out := *a
	out.HasPastDueInvoice = len(s.invoices.filter(func(inv *billing.Invoice) bool {
		return inv.AccountCode == a.Code && inv.State == billing.InvoicePastDue
	})) > 0
	return &out
}

func (s *Server) lookupAccount(w http.ResponseWriter, r *http.Request) (*billing.Account, bool) {
	code := param(r, "account")
	a, ok := s.accounts.get(code)
	if !ok {
		writeNotFound(w, "Account", code)
	}
	return a, ok
}

// insertAccount stores a new account built from a request document.
func (s *Server) insertAccount(in billing.Account) (*billing.Account, error) {
	_, exists := s.accounts.get(in.Code)
	if err := validator.Apply(
		validator.Required("account_code", in.Code),
		taken("account_code", exists),
	); err != nil {
		return nil, err
	}

	a := in
	a.State = billing.AccountActive
	a.HasPastDueInvoice = false
	a.CreatedAt = s.timestamp()
	a.ClosedAt = nil
	if in.BillingInfo != nil {
		a.BillingInfo = sanitize(in.BillingInfo)
	}
	s.accounts.put(a.Code, &a)
	return &a, nil
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := billing.AccountState(q.Get(billing.QueryState))
	pastDue := q.Get(billing.QueryPastDue) == "true"

	items := mapSlice(s.accounts.filter(nil), s.accountView)
	items = filterSlice(items, func(a *billing.Account) bool {
		return (state == "" || a.State == state) && (!pastDue || a.HasPastDueInvoice)
	})
	paginate(w, r, "accounts", items)
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var in billing.Account
	if !decodeBody(w, r, &in) {
		return
	}
	a, err := s.insertAccount(in)
	if err != nil {
		writeValidation(w, err)
		return
	}
	writeXML(w, http.StatusCreated, s.accountView(a))
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	if a, ok := s.lookupAccount(w, r); ok {
		writeXML(w, http.StatusOK, s.accountView(a))
	}
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	var in billing.Account
	if !decodeBody(w, r, &in) {
		return
	}

	a.Username = in.Username
	a.Email = in.Email
	a.FirstName = in.FirstName
	a.LastName = in.LastName
	a.CompanyName = in.CompanyName
	a.AcceptLanguage = in.AcceptLanguage
	a.CcEmails = in.CcEmails
	a.VatNumber = in.VatNumber
	a.TaxExempt = in.TaxExempt
	a.EntityUseCode = in.EntityUseCode
	a.Address = in.Address
	if in.BillingInfo != nil && (in.BillingInfo.Number != "" || in.BillingInfo.AccountNumber != "") {
		a.BillingInfo = sanitize(in.BillingInfo)
	}
	writeXML(w, http.StatusOK, s.accountView(a))
}

func (s *Server) closeAccount(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	next, err := billing.AccountLifecycle.Next(r.Context(), a.State, billing.AccountClose, nil)
	if err != nil {
		writeIllegal(w, err)
		return
	}
	a.State = next
	a.ClosedAt = s.timestamp()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reopenAccount(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	next, err := billing.AccountLifecycle.Next(r.Context(), a.State, billing.AccountReopen, nil)
	if err != nil {
		writeIllegal(w, err)
		return
	}
	a.State = next
	a.ClosedAt = nil
	writeXML(w, http.StatusOK, s.accountView(a))
}

func (s *Server) updateBillingInfo(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	var in billing.BillingInfo
	if !decodeBody(w, r, &in) {
		return
	}
	if in.Method() == billing.PaymentNone {
		writeFieldError(w, "billing_info.number", "blank", "a credit card or bank account is required")
		return
	}
	a.BillingInfo = sanitize(&in)
	writeXML(w, http.StatusOK, a.BillingInfo)
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	paginate(w, r, "notes", filterSlice(s.notes, func(n *billing.Note) bool { return n.AccountCode == a.Code }))
}

// sanitize drops the write-only payment details, keeping what the service echoes back.
func sanitize(in *billing.BillingInfo) *billing.BillingInfo {
	out := *in
	if number := digits(in.Number); len(number) >= 10 {
		out.FirstSix = number[:6]
		out.LastFour = number[len(number)-4:]
		out.CardType = cardType(number)
	}
	if account := digits(in.AccountNumber); len(account) >= 4 {
		out.LastFour = account[len(account)-4:]
	}
	out.Number = ""
	out.VerificationValue = ""
	out.AccountNumber = ""
	return &out
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func cardType(number string) string {
	switch {
	case strings.HasPrefix(number, "4"):
		return "visa"
	case strings.HasPrefix(number, "5"):
		return "master"
	case strings.HasPrefix(number, "34"), strings.HasPrefix(number, "37"):
		return "american_express"
	}
	return "unknown"
}

// taxRate returns the sales tax rate of the account location.
func taxRate(a *billing.Account) (float64, string) {
	if a == nil || (a.TaxExempt != nil && *a.TaxExempt) {
		return 0, ""
	}
	if bi := a.BillingInfo; bi != nil && bi.Country == "US" && bi.State == "CA" {
		return TaxRateCA, TaxTypeUS
	}
	if addr := a.Address; addr != nil && addr.Country == "US" && addr.State == "CA" {
		return TaxRateCA, TaxTypeUS
	}
	return 0, ""
}

func filterSlice[T any](in []T, keep func(T) bool) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
