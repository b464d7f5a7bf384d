package billingtest

import (
	"net/http"
	"strconv"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/validator"
)

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	paginate(w, r, "transactions", s.transactions.filter(transactionFilter(r, "")))
}

func (s *Server) listAccountTransactions(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	paginate(w, r, "transactions", s.transactions.filter(transactionFilter(r, a.Code)))
}

func transactionFilter(r *http.Request, accountCode string) func(*billing.Transaction) bool {
	q := r.URL.Query()
	status := billing.TransactionStatus(q.Get(billing.QueryState))
	action := billing.TransactionAction(q.Get(billing.QueryType))
	return func(t *billing.Transaction) bool {
		return (accountCode == "" || t.AccountCode == accountCode) &&
			(status == "" || t.Status == status) &&
			(action == "" || t.Action == action)
	}
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id := param(r, "uuid")
	t, ok := s.transactions.get(id)
	if !ok {
		writeNotFound(w, "Transaction", id)
		return
	}
	writeXML(w, http.StatusOK, t)
}

// createTransaction charges an account at once. An embedded account document
// creates the account first. The charge is billed on its own collected invoice.
func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var in billing.Transaction
	if !decodeBody(w, r, &in) {
		return
	}
	if err := validator.Apply(
		validator.PositiveAmount("amount_in_cents", in.AmountInCents),
		validator.ValidCurrencyCode("currency", in.Currency),
	); err != nil {
		writeValidation(w, err)
		return
	}

	var account *billing.Account
	switch {
	case in.Account != nil:
		existing, ok := s.accounts.get(in.Account.Code)
		if ok {
			account = existing
			break
		}
		created, err := s.insertAccount(*in.Account)
		if err != nil {
			writeValidation(w, err)
			return
		}
		account = created
	default:
		existing, ok := s.accounts.get(in.AccountCode)
		if !ok {
			writeFieldError(w, "account_code", "invalid", "is not a known value")
			return
		}
		account = existing
	}
	if account.BillingInfo.Method() == billing.PaymentNone {
		writeFieldError(w, "billing_info", "blank", "account has no billing info")
		return
	}

	description := in.Description
	if description == "" {
		description = "One-time charge"
	}
	exempt := true
	line := s.newAdjustment(account.Code, in.Currency, in.AmountInCents, description)
	line.TaxExempt = &exempt
	s.adjustments.put(line.UUID, line)

	inv, err := s.issueInvoice(r.Context(), account, in.Currency, []*billing.Adjustment{line}, true)
	if err != nil {
		writeIllegal(w, err)
		return
	}
	t := paidBy(inv)
	if t == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "charge was not collected")
		return
	}
	t.Description = in.Description
	writeXML(w, http.StatusCreated, t)
}

// refundTransaction voids a voidable transaction refunded in full and
// otherwise records a separate refund transaction.
func (s *Server) refundTransaction(w http.ResponseWriter, r *http.Request) {
	id := param(r, "uuid")
	t, ok := s.transactions.get(id)
	if !ok {
		writeNotFound(w, "Transaction", id)
		return
	}

	remaining := t.AmountInCents - s.refunded[t.UUID]
	amount := remaining
	if v := r.URL.Query().Get("amount_in_cents"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeFieldError(w, "amount_in_cents", "invalid", "is not a number")
			return
		}
		amount = n
	}
	if err := validator.Apply(validator.AmountRange("amount_in_cents", amount, 1, max(remaining, 0))); err != nil {
		writeValidation(w, err)
		return
	}

	if amount == t.AmountInCents && t.Voidable {
		next, err := billing.TransactionLifecycle.Next(r.Context(), t.Status, billing.TransactionVoid, t)
		if err != nil {
			writeIllegal(w, err)
			return
		}
		t.Status = next
		t.Voidable = false
		t.Refundable = false
		writeXML(w, http.StatusOK, t)
		return
	}

	if _, err := billing.TransactionLifecycle.Next(r.Context(), t.Status, billing.TransactionRefund, t); err != nil {
		writeIllegal(w, err)
		return
	}
	refund := &billing.Transaction{
		UUID:          newUUID(),
		AccountCode:   t.AccountCode,
		InvoiceNumber: t.InvoiceNumber,
		Action:        billing.ActionRefund,
		Status:        billing.TransactionSuccessful,
		AmountInCents: amount,
		Currency:      t.Currency,
		CreatedAt:     s.timestamp(),
	}
	s.transactions.put(refund.UUID, refund)
	s.refunded[t.UUID] += amount
	t.Voidable = false
	t.Refundable = s.refunded[t.UUID] < t.AmountInCents
	writeXML(w, http.StatusCreated, refund)
}
