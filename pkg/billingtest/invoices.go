package billingtest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/validator"
)

// ApplyInvoiceEvent moves an invoice the way the service does on its own,
// for example InvoiceSettle after an ACH payment clears.
func (s *Server) ApplyInvoiceEvent(number int, event billing.InvoiceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices.get(number)
	if !ok {
		return fmt.Errorf("invoice %d: %w", number, billing.ErrNotFound)
	}
	next, err := billing.InvoiceLifecycle.Next(context.Background(), inv.State, event, nil)
	if err != nil {
		return err
	}
	inv.State = next
	if next == billing.InvoiceCollected || next == billing.InvoiceFailed {
		inv.ClosedAt = s.timestamp()
	}
	return nil
}

func (s *Server) createAdjustment(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	var in billing.Adjustment
	if !decodeBody(w, r, &in) {
		return
	}
	if err := validator.Apply(
		validator.ValidCurrencyCode("currency", in.Currency),
		validator.NonZeroAmount("unit_amount_in_cents", in.UnitAmountInCents),
		validator.When(in.Quantity != 0, validator.PositiveAmount("quantity", in.Quantity)),
	); err != nil {
		writeValidation(w, err)
		return
	}

	adj := in
	adj.UUID = newUUID()
	adj.AccountCode = a.Code
	adj.State = billing.AdjustmentPending
	adj.InvoiceNumber = 0
	adj.Quantity = max(adj.Quantity, 1)
	adj.TotalInCents = adj.UnitAmountInCents * int64(adj.Quantity)
	adj.TaxInCents = 0
	adj.CreatedAt = s.timestamp()
	if adj.StartDate == nil {
		adj.StartDate = adj.CreatedAt
	}
	s.adjustments.put(adj.UUID, &adj)
	writeXML(w, http.StatusCreated, &adj)
}

func (s *Server) listAccountAdjustments(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	state := billing.AdjustmentState(q.Get(billing.QueryState))
	kind := billing.AdjustmentType(q.Get(billing.QueryType))

	paginate(w, r, "adjustments", s.adjustments.filter(func(adj *billing.Adjustment) bool {
		return adj.AccountCode == a.Code &&
			(state == "" || adj.State == state) &&
			(kind == "" || adj.Type() == kind)
	}))
}

func (s *Server) getAdjustment(w http.ResponseWriter, r *http.Request) {
	id := param(r, "uuid")
	adj, ok := s.adjustments.get(id)
	if !ok {
		writeNotFound(w, "Adjustment", id)
		return
	}
	writeXML(w, http.StatusOK, adj)
}

func (s *Server) deleteAdjustment(w http.ResponseWriter, r *http.Request) {
	id := param(r, "uuid")
	adj, ok := s.adjustments.get(id)
	if !ok {
		writeNotFound(w, "Adjustment", id)
		return
	}
	if adj.State != billing.AdjustmentPending {
		writeError(w, http.StatusConflict, "invalid_transition", "invoiced adjustments cannot be deleted")
		return
	}
	s.adjustments.remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// invoicePendingCharges bills the pending adjustments of the account in the
// currency of the oldest one. Credits beyond the charges are offset by a
// balancing charge and carried forward as a new pending credit.
func (s *Server) invoicePendingCharges(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	pending := s.adjustments.filter(func(adj *billing.Adjustment) bool {
		return adj.AccountCode == a.Code && adj.State == billing.AdjustmentPending
	})
	if len(pending) == 0 {
		writeError(w, http.StatusBadRequest, billing.SymbolWillNotInvoice, "No charges to invoice")
		return
	}
	currency := pending[0].Currency
	pending = filterSlice(pending, func(adj *billing.Adjustment) bool { return adj.Currency == currency })

	var balance int64
	for _, adj := range pending {
		balance += adj.TotalInCents
	}
	if balance < 0 {
		carried := s.newAdjustment(a.Code, currency, balance, "Credit carried forward")
		balancing := s.newAdjustment(a.Code, currency, -balance, "Credit applied to invoice")
		s.adjustments.put(carried.UUID, carried)
		s.adjustments.put(balancing.UUID, balancing)
		pending = append(pending, balancing)
	}

	inv, err := s.issueInvoice(r.Context(), a, currency, pending, false)
	if err != nil {
		writeIllegal(w, err)
		return
	}
	writeXML(w, http.StatusCreated, s.invoiceView(inv))
}

func (s *Server) newAdjustment(accountCode, currency string, cents int64, description string) *billing.Adjustment {
	now := s.timestamp()
	return &billing.Adjustment{
		UUID:              newUUID(),
		AccountCode:       accountCode,
		State:             billing.AdjustmentPending,
		Description:       description,
		Currency:          currency,
		UnitAmountInCents: cents,
		Quantity:          1,
		TotalInCents:      cents,
		StartDate:         now,
		CreatedAt:         now,
	}
}

// issueInvoice invoices lines, applying the active coupon and sales tax of
// the account. Without a payment method the invoice stays open; a card is
// charged at once and a bank account starts an ACH payment. collect forces
// an immediate undiscounted charge regardless of the payment method.
func (s *Server) issueInvoice(ctx context.Context, a *billing.Account, currency string, lines []*billing.Adjustment, collect bool) (*billing.Invoice, error) {
	s.lastInvoice++
	inv := &billing.Invoice{
		Number:      s.lastInvoice,
		UUID:        newUUID(),
		AccountCode: a.Code,
		State:       billing.InvoiceLifecycle.Initial(),
		Currency:    currency,
		CreatedAt:   s.timestamp(),
	}

	var taxable int64
	for _, adj := range lines {
		next, err := billing.AdjustmentLifecycle.Next(ctx, adj.State, billing.AdjustmentInvoice, nil)
		if err != nil {
			return nil, err
		}
		adj.State = next
		adj.InvoiceNumber = inv.Number
		inv.SubtotalInCents += adj.TotalInCents
		if adj.TaxExempt == nil || !*adj.TaxExempt {
			taxable += adj.TotalInCents
		}
		line := *adj
		inv.Adjustments = append(inv.Adjustments, &line)
	}

	if !collect {
		inv.DiscountInCents = s.applyCoupon(a, inv)
	}
	taxable = max(taxable-inv.DiscountInCents, 0)

	rate, kind := taxRate(a)
	if rate > 0 {
		inv.TaxRate = rate
		inv.TaxType = kind
		inv.TaxInCents = billing.Tax(taxable, rate)
	}
	inv.TotalInCents = inv.SubtotalInCents - inv.DiscountInCents + inv.TaxInCents

	var err error
	switch method := a.BillingInfo.Method(); {
	case inv.TotalInCents <= 0:
		inv.State, err = billing.InvoiceLifecycle.Next(ctx, inv.State, billing.InvoiceMarkSuccessful, nil)
	case collect || method == billing.PaymentCreditCard:
		inv.State, err = billing.InvoiceLifecycle.Next(ctx, inv.State, billing.InvoiceMarkSuccessful, nil)
		s.charge(inv)
	case method == billing.PaymentBankAccount:
		inv.State, err = billing.InvoiceLifecycle.Next(ctx, inv.State, billing.InvoiceBeginProcessing, nil)
	}
	if err != nil {
		return nil, err
	}
	if inv.State == billing.InvoiceCollected {
		inv.ClosedAt = inv.CreatedAt
	}

	s.invoices.put(inv.Number, inv)
	return inv, nil
}

// charge records a successful purchase paying the invoice in full.
func (s *Server) charge(inv *billing.Invoice) {
	t := &billing.Transaction{
		UUID:          newUUID(),
		AccountCode:   inv.AccountCode,
		InvoiceNumber: inv.Number,
		Action:        billing.ActionPurchase,
		Status:        billing.TransactionSuccessful,
		AmountInCents: inv.TotalInCents,
		TaxInCents:    inv.TaxInCents,
		Currency:      inv.Currency,
		Refundable:    true,
		Voidable:      true,
		CreatedAt:     inv.CreatedAt,
	}
	s.transactions.put(t.UUID, t)
	inv.Transactions = append(inv.Transactions, t)
}

// applyCoupon discounts the invoice with the active redemption of the
// account and returns the discount.
func (s *Server) applyCoupon(a *billing.Account, inv *billing.Invoice) int64 {
	red := s.activeRedemption(a.Code)
	if red == nil || inv.SubtotalInCents <= 0 {
		return 0
	}
	coupon, ok := s.coupons.get(red.CouponCode)
	if !ok {
		return 0
	}

	var discount int64
	if pct, ok := coupon.PercentOff(); ok {
		discount = inv.SubtotalInCents * int64(pct) / 100
	} else if amounts, ok := coupon.AmountOff(); ok {
		off, _ := amounts.Get(inv.Currency)
		discount = min(off, inv.SubtotalInCents)
	}
	if discount == 0 {
		return 0
	}

	red.TotalDiscountedInCents += discount
	s.invoiceRedemptions[inv.Number] = red.UUID
	if red.SingleUse {
		red.State, _ = billing.RedemptionLifecycle.Next(context.Background(), red.State, billing.RedemptionRemove, nil)
	}
	return discount
}

// invoiceView renders an invoice with the current state of its transactions.
func (s *Server) invoiceView(inv *billing.Invoice) *billing.Invoice {
	out := *inv
	out.Transactions = make([]*billing.Transaction, 0, len(inv.Transactions))
	for _, t := range inv.Transactions {
		if cur, ok := s.transactions.get(t.UUID); ok {
			t = cur
		}
		out.Transactions = append(out.Transactions, t)
	}
	return &out
}

func (s *Server) lookupInvoice(w http.ResponseWriter, r *http.Request) (*billing.Invoice, bool) {
	number, ok := intParam(w, r, "number")
	if !ok {
		return nil, false
	}
	inv, ok := s.invoices.get(number)
	if !ok {
		writeNotFound(w, "Invoice", fmt.Sprint(number))
	}
	return inv, ok
}

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	state := billing.InvoiceState(r.URL.Query().Get(billing.QueryState))
	items := s.invoices.filter(func(inv *billing.Invoice) bool {
		return state == "" || inv.State == state
	})
	paginate(w, r, "invoices", mapSlice(items, s.invoiceView))
}

func (s *Server) listAccountInvoices(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAccount(w, r)
	if !ok {
		return
	}
	state := billing.InvoiceState(r.URL.Query().Get(billing.QueryState))
	items := s.invoices.filter(func(inv *billing.Invoice) bool {
		return inv.AccountCode == a.Code && (state == "" || inv.State == state)
	})
	paginate(w, r, "invoices", mapSlice(items, s.invoiceView))
}

func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.lookupInvoice(w, r)
	if !ok {
		return
	}
	if r.Header.Get("Accept") == billing.MediaTypePDF {
		w.Header().Set("Content-Type", billing.MediaTypePDF)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(RenderPDF(inv))
		return
	}
	writeXML(w, http.StatusOK, s.invoiceView(inv))
}

// RenderPDF returns the document the fake serves for an invoice.
func RenderPDF(inv *billing.Invoice) []byte {
	return fmt.Appendf(nil, "%%PDF-1.4\n%% invoice %d account %s total %d %s\n%%%%EOF\n",
		inv.Number, inv.AccountCode, inv.TotalInCents, inv.Currency)
}

func (s *Server) markInvoice(event billing.InvoiceEvent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inv, ok := s.lookupInvoice(w, r)
		if !ok {
			return
		}
		next, err := billing.InvoiceLifecycle.Next(r.Context(), inv.State, event, nil)
		if err != nil {
			writeIllegal(w, err)
			return
		}
		inv.State = next
		inv.ClosedAt = s.timestamp()
		writeXML(w, http.StatusOK, s.invoiceView(inv))
	}
}

// refundInvoice issues a refund invoice for line items or for an open
// amount. The original invoice is left untouched.
func (s *Server) refundInvoice(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.lookupInvoice(w, r)
	if !ok {
		return
	}
	if _, err := billing.InvoiceLifecycle.Next(r.Context(), inv.State, billing.InvoiceRefund, nil); err != nil {
		writeIllegal(w, err)
		return
	}
	var req billing.RefundRequest
	if !decodeBody(w, r, &req) {
		return
	}

	refund, err := s.issueRefund(inv, req)
	if err != nil {
		writeValidation(w, err)
		return
	}
	writeXML(w, http.StatusCreated, s.invoiceView(refund))
}

// issueRefund creates a refund invoice for line items or an open amount of
// inv. Money goes back only when inv was paid by a transaction; otherwise the
// refund invoice stays open.
func (s *Server) issueRefund(inv *billing.Invoice, req billing.RefundRequest) (*billing.Invoice, error) {
	var lines []*billing.Adjustment
	var tax int64
	switch {
	case req.AmountInCents != nil:
		amount := *req.AmountInCents
		remaining := inv.TotalInCents - s.refundedTotal(inv.Number)
		if err := validator.Apply(validator.AmountRange("amount_in_cents", amount, 1, max(remaining, 0))); err != nil {
			return nil, err
		}
		net := billing.TaxExclusive(amount, inv.TaxRate)
		tax = -(amount - net)
		line := s.newAdjustment(inv.AccountCode, inv.Currency, net, "Refund")
		line.Quantity = -1
		line.TotalInCents = -net
		line.TaxInCents = tax
		lines = append(lines, line)
	case len(req.LineItems) > 0:
		for _, item := range req.LineItems {
			orig := findLine(inv, item.UUID)
			if orig == nil {
				return nil, validator.ValidationErrors{{Field: "line_items.uuid", Symbol: "invalid", Message: "is not a line item of invoice " + fmt.Sprint(inv.Number)}}
			}
			if err := validator.Apply(validator.AmountRange("line_items.quantity", item.Quantity, 1, max(orig.Quantity, 1))); err != nil {
				return nil, err
			}
			line := s.newAdjustment(inv.AccountCode, inv.Currency, orig.UnitAmountInCents, orig.Description)
			line.Quantity = -item.Quantity
			line.TotalInCents = -orig.UnitAmountInCents * int64(item.Quantity)
			line.AccountingCode = orig.AccountingCode
			if inv.TaxRate > 0 && (orig.TaxExempt == nil || !*orig.TaxExempt) {
				line.TaxInCents = -billing.Tax(-line.TotalInCents, inv.TaxRate)
				tax += line.TaxInCents
			}
			lines = append(lines, line)
		}
	default:
		return nil, validator.ValidationErrors{{Field: "line_items", Symbol: "blank", Message: "line items or an amount are required"}}
	}

	s.lastInvoice++
	refund := &billing.Invoice{
		Number:                s.lastInvoice,
		UUID:                  newUUID(),
		AccountCode:           inv.AccountCode,
		State:                 billing.InvoiceOpen,
		Currency:              inv.Currency,
		TaxInCents:            tax,
		TaxRate:               inv.TaxRate,
		TaxType:               inv.TaxType,
		OriginalInvoiceNumber: inv.Number,
		CreatedAt:             s.timestamp(),
	}
	for _, line := range lines {
		line.State = billing.AdjustmentInvoiced
		line.InvoiceNumber = refund.Number
		s.adjustments.put(line.UUID, line)
		refund.SubtotalInCents += line.TotalInCents
		cp := *line
		refund.Adjustments = append(refund.Adjustments, &cp)
	}
	refund.TotalInCents = refund.SubtotalInCents + refund.TaxInCents

	if paid := paidBy(inv); paid != nil {
		t := &billing.Transaction{
			UUID:          newUUID(),
			AccountCode:   inv.AccountCode,
			InvoiceNumber: refund.Number,
			Action:        billing.ActionRefund,
			Status:        billing.TransactionSuccessful,
			AmountInCents: -refund.TotalInCents,
			TaxInCents:    -refund.TaxInCents,
			Currency:      inv.Currency,
			CreatedAt:     refund.CreatedAt,
		}
		s.transactions.put(t.UUID, t)
		s.refunded[paid.UUID] += t.AmountInCents
		if cur, ok := s.transactions.get(paid.UUID); ok {
			cur.Voidable = false
		}
		refund.Transactions = append(refund.Transactions, t)
		refund.State = billing.InvoiceCollected
		refund.ClosedAt = refund.CreatedAt
	}

	s.invoices.put(refund.Number, refund)
	return refund, nil
}

func findLine(inv *billing.Invoice, uuid string) *billing.Adjustment {
	for _, adj := range inv.Adjustments {
		if adj.UUID == uuid {
			return adj
		}
	}
	return nil
}

func paidBy(inv *billing.Invoice) *billing.Transaction {
	for _, t := range inv.Transactions {
		if t.Action == billing.ActionPurchase && t.Status == billing.TransactionSuccessful {
			return t
		}
	}
	return nil
}

// refundedTotal sums the refund invoices issued against number, as a positive amount.
func (s *Server) refundedTotal(number int) int64 {
	var total int64
	for _, inv := range s.invoices.filter(func(inv *billing.Invoice) bool { return inv.OriginalInvoiceNumber == number }) {
		total -= inv.TotalInCents
	}
	return total
}

func (s *Server) getInvoiceRedemption(w http.ResponseWriter, r *http.Request) {
	inv, ok := s.lookupInvoice(w, r)
	if !ok {
		return
	}
	id, ok := s.invoiceRedemptions[inv.Number]
	if !ok {
		writeNotFound(w, "Redemption", fmt.Sprint(inv.Number))
		return
	}
	red, ok := s.redemptions.get(id)
	if !ok {
		writeNotFound(w, "Redemption", id)
		return
	}
	writeXML(w, http.StatusOK, red)
}
