package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrymomot/billing/pkg/validator"
)

var (
	ErrNotFound           = errors.New("billing resource not found")
	ErrValidation         = errors.New("billing request failed validation")
	ErrInvalidCredentials = errors.New("billing API credentials rejected")
	ErrConflict           = errors.New("billing resource state conflict")
	ErrIllegalTransition  = fmt.Errorf("%w: illegal lifecycle transition", ErrConflict)
	ErrTransport          = errors.New("billing remote call failed")

	ErrNothingToInvoice    = errors.New("no pending charges to invoice")
	ErrNotPersisted        = errors.New("billing resource has not been created yet")
	ErrAlreadyPersisted    = errors.New("billing resource has already been created")
	ErrDuplicateAddOn      = errors.New("duplicate subscription add-on code")
	ErrInvalidPostponeDate = errors.New("invalid subscription postpone date")
	ErrDiscountRequired    = errors.New("coupon requires exactly one discount")
	ErrUnboundEntity       = errors.New("billing entity is not bound to a client")

	ErrNilRemote            = errors.New("billing remote client is required")
	ErrInvalidSettings      = errors.New("invalid billing settings")
	ErrSettingsNotInContext = errors.New("billing settings not found in context")
)

// SymbolWillNotInvoice is the service error symbol for an invoice request
// without pending charges.
const SymbolWillNotInvoice = "will_not_invoice"

// ErrorKind classifies a failed remote call.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "not_found"
	KindValidation         ErrorKind = "validation"
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindConflict           ErrorKind = "conflict"
	KindTransport          ErrorKind = "transport"
)

// RemoteError is returned by RemoteClient implementations for every failed call.
// It matches the package sentinels with errors.Is according to its Kind, and
// exposes field-level details through validator.ExtractValidationErrors.
type RemoteError struct {
	Kind    ErrorKind
	Status  int    // HTTP status, zero when no response was received
	Symbol  string // service error symbol, e.g. "will_not_invoice"
	Message string
	Errors  validator.ValidationErrors
	Err     error // underlying cause for transport failures
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	b.WriteString("billing ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Errors) > 0 {
		b.WriteString(": ")
		b.WriteString(e.Errors.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrInvalidCredentials:
		return e.Kind == KindInvalidCredentials
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrNothingToInvoice:
		return e.Symbol == SymbolWillNotInvoice
	}
	return false
}

func (e *RemoteError) Unwrap() []error {
	var errs []error
	if len(e.Errors) > 0 {
		errs = append(errs, e.Errors)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func IsNotFound(err error) bool           { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool         { return errors.Is(err, ErrValidation) }
func IsInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }
func IsConflict(err error) bool           { return errors.Is(err, ErrConflict) }
func IsTransport(err error) bool          { return errors.Is(err, ErrTransport) }

// invalid wraps local rule failures so they match ErrValidation and keep field details.
func invalid(err error, causes ...error) error {
	if err == nil {
		return nil
	}
	return errors.Join(append([]error{ErrValidation}, append(causes, err)...)...)
}

// illegal wraps a state machine rejection.
func illegal(err error) error {
	return errors.Join(ErrIllegalTransition, err)
}
