package billing

import (
	"encoding/xml"

	"github.com/dmitrymomot/billing/pkg/validator"
)

// PaymentMethod tells which kind of billing info is stored.
type PaymentMethod string

const (
	PaymentNone        PaymentMethod = ""
	PaymentCreditCard  PaymentMethod = "credit_card"
	PaymentBankAccount PaymentMethod = "bank_account"
)

const (
	BankAccountChecking = "checking"
	BankAccountSavings  = "savings"
)

// BillingInfo holds either a credit card or a bank account, never both.
// Number and AccountNumber are write-only: the service echoes back only
// FirstSix/LastFour, and payment details are validated only when one of
// them is set.
type BillingInfo struct {
	XMLName xml.Name `xml:"billing_info"`

	FirstName  string `xml:"first_name,omitempty"`
	LastName   string `xml:"last_name,omitempty"`
	Company    string `xml:"company,omitempty"`
	Address1   string `xml:"address1,omitempty"`
	Address2   string `xml:"address2,omitempty"`
	City       string `xml:"city,omitempty"`
	State      string `xml:"state,omitempty"`
	Country    string `xml:"country,omitempty"`
	PostalCode string `xml:"zip,omitempty"`
	Phone      string `xml:"phone,omitempty"`
	VatNumber  string `xml:"vat_number,omitempty"`
	IPAddress  string `xml:"ip_address,omitempty"`

	Number            string `xml:"number,omitempty"`
	Month             int    `xml:"month,omitempty"`
	Year              int    `xml:"year,omitempty"`
	VerificationValue string `xml:"verification_value,omitempty"`
	CardType          string `xml:"card_type,omitempty"`
	FirstSix          string `xml:"first_six,omitempty"`

	NameOnAccount string `xml:"name_on_account,omitempty"`
	RoutingNumber string `xml:"routing_number,omitempty"`
	AccountNumber string `xml:"account_number,omitempty"`
	AccountType   string `xml:"account_type,omitempty"`

	LastFour string `xml:"last_four,omitempty"`
}

// Method reports the kind of payment method held.
func (b *BillingInfo) Method() PaymentMethod {
	switch {
	case b == nil:
		return PaymentNone
	case b.RoutingNumber != "" || b.AccountNumber != "":
		return PaymentBankAccount
	case b.Number != "" || b.FirstSix != "" || b.LastFour != "":
		return PaymentCreditCard
	}
	return PaymentNone
}

func (b *BillingInfo) rules() []validator.Rule {
	card := b.Number != ""
	bank := b.AccountNumber != ""

	rules := []validator.Rule{
		{
			Check: func() bool { return !(card && bank) },
			Error: validator.ValidationError{
				Field:          "billing_info",
				Symbol:         "exclusive",
				Message:        "either a credit card or a bank account, not both",
				TranslationKey: "validation.payment_method_exclusive",
			},
		},
		validator.When(b.Country != "", validator.ValidCountryCode("billing_info.country", b.Country)),
	}

	if card {
		rules = append(rules,
			validator.ValidCreditCardChecksum("billing_info.number", b.Number),
			validator.AmountRange("billing_info.month", b.Month, 1, 12),
			validator.AmountRange("billing_info.year", b.Year, 2000, 9999),
		)
	}
	if bank {
		rules = append(rules,
			validator.Required("billing_info.name_on_account", b.NameOnAccount),
			validator.ValidRoutingNumber("billing_info.routing_number", b.RoutingNumber),
			validator.ValidAccountNumber("billing_info.account_number", b.AccountNumber),
			validator.OneOf("billing_info.account_type", b.AccountType, BankAccountChecking, BankAccountSavings),
		)
	}
	return rules
}
