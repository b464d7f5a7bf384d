package billingtest

import (
	"net/http"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/validator"
)

func (s *Server) lookupPlan(w http.ResponseWriter, r *http.Request) (*billing.Plan, bool) {
	code := param(r, "plan")
	p, ok := s.plans.get(code)
	if !ok {
		writeNotFound(w, "Plan", code)
	}
	return p, ok
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	paginate(w, r, "plans", s.plans.filter(nil))
}

func (s *Server) createPlan(w http.ResponseWriter, r *http.Request) {
	var in billing.Plan
	if !decodeBody(w, r, &in) {
		return
	}
	_, exists := s.plans.get(in.Code)
	if err := validator.Apply(
		validator.Required("plan_code", in.Code),
		taken("plan_code", exists),
		validator.RequiredMap("unit_amount_in_cents", in.UnitAmountInCents),
	); err != nil {
		writeValidation(w, err)
		return
	}
	p := in
	p.CreatedAt = s.timestamp()
	s.plans.put(p.Code, &p)
	writeXML(w, http.StatusCreated, &p)
}

func (s *Server) getPlan(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.lookupPlan(w, r); ok {
		writeXML(w, http.StatusOK, p)
	}
}

func (s *Server) updatePlan(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPlan(w, r)
	if !ok {
		return
	}
	var in billing.Plan
	if !decodeBody(w, r, &in) {
		return
	}
	if err := validator.Apply(validator.RequiredMap("unit_amount_in_cents", in.UnitAmountInCents)); err != nil {
		writeValidation(w, err)
		return
	}
	in.Code = p.Code
	in.CreatedAt = p.CreatedAt
	*p = in
	writeXML(w, http.StatusOK, p)
}

// deletePlan removes the plan and its add-ons from the catalog. Subscriptions keep their plan code.
func (s *Server) deletePlan(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPlan(w, r)
	if !ok {
		return
	}
	for _, a := range s.addOns.filter(func(a *billing.AddOn) bool { return a.PlanCode == p.Code }) {
		s.addOns.remove(addOnKey(a.PlanCode, a.Code))
	}
	s.plans.remove(p.Code)
	w.WriteHeader(http.StatusNoContent)
}

func addOnKey(planCode, code string) string {
	return planCode + "/" + code
}

func (s *Server) lookupAddOn(w http.ResponseWriter, r *http.Request) (*billing.AddOn, bool) {
	p, ok := s.lookupPlan(w, r)
	if !ok {
		return nil, false
	}
	code := param(r, "addon")
	a, ok := s.addOns.get(addOnKey(p.Code, code))
	if !ok {
		writeNotFound(w, "AddOn", code)
	}
	return a, ok
}

func (s *Server) listAddOns(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPlan(w, r)
	if !ok {
		return
	}
	paginate(w, r, "add_ons", s.addOns.filter(func(a *billing.AddOn) bool { return a.PlanCode == p.Code }))
}

func (s *Server) createAddOn(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPlan(w, r)
	if !ok {
		return
	}
	var in billing.AddOn
	if !decodeBody(w, r, &in) {
		return
	}
	_, exists := s.addOns.get(addOnKey(p.Code, in.Code))
	if err := validator.Apply(
		validator.Required("add_on_code", in.Code),
		taken("add_on_code", exists),
		validator.RequiredMap("unit_amount_in_cents", in.UnitAmountInCents),
	); err != nil {
		writeValidation(w, err)
		return
	}
	a := in
	a.PlanCode = p.Code
	a.DefaultQuantity = max(a.DefaultQuantity, 1)
	a.CreatedAt = s.timestamp()
	s.addOns.put(addOnKey(p.Code, a.Code), &a)
	writeXML(w, http.StatusCreated, &a)
}

func (s *Server) getAddOn(w http.ResponseWriter, r *http.Request) {
	if a, ok := s.lookupAddOn(w, r); ok {
		writeXML(w, http.StatusOK, a)
	}
}

func (s *Server) updateAddOn(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAddOn(w, r)
	if !ok {
		return
	}
	var in billing.AddOn
	if !decodeBody(w, r, &in) {
		return
	}
	in.PlanCode = a.PlanCode
	in.Code = a.Code
	in.CreatedAt = a.CreatedAt
	in.DefaultQuantity = max(in.DefaultQuantity, 1)
	*a = in
	writeXML(w, http.StatusOK, a)
}

func (s *Server) deleteAddOn(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookupAddOn(w, r)
	if !ok {
		return
	}
	s.addOns.remove(addOnKey(a.PlanCode, a.Code))
	w.WriteHeader(http.StatusNoContent)
}
