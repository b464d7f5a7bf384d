// Package validator provides small, composable validation rules for billing
// payloads: required fields, ISO 4217 currency codes and per-currency price
// maps, signed and unsigned cent amounts, percentages, card and bank account
// numbers, country codes and dates.
//
// Each exported rule function constructs a Rule value pairing a boolean Check
// with error metadata. Apply evaluates rules and aggregates failures into a
// ValidationErrors slice that implements error.
//
// # Usage
//
//	err := validator.Apply(
//	    validator.Required("account_code", code),
//	    validator.ValidCurrencyCode("currency", currency),
//	    validator.When(email != "", validator.ValidEmail("email", email)),
//	)
//	if verrs := validator.ExtractValidationErrors(err); verrs != nil {
//	    for _, f := range verrs.Fields() { ... }
//	}
//
// # Symbols
//
// Every ValidationError carries a Symbol, a short machine readable reason
// such as "blank", "invalid" or "taken". The billing transport decodes
// service-side field errors into the same type, so an application handles
// local and remote validation failures with one code path.
package validator
