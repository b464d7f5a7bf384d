package validator

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/currency"
)

var (
	digitsRegex        = regexp.MustCompile(`^\d+$`)
	routingNumberRegex = regexp.MustCompile(`^\d{9}$`)
	accountNumberRegex = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// ValidCurrencyCode validates that a string is an ISO 4217 currency code.
// Codes must be given in upper case, as the billing service expects them.
func ValidCurrencyCode(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if len(value) != 3 || strings.ToUpper(value) != value {
				return false
			}
			_, err := currency.ParseISO(value)
			return err == nil
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "invalid_currency",
			Message:        "must be a valid ISO 4217 currency code",
			TranslationKey: "validation.currency_code",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// ValidCurrencyAmounts validates every key of a per-currency price map.
func ValidCurrencyAmounts[M ~map[string]V, V Numeric](field string, amounts M) Rule {
	return Rule{
		Check: func() bool {
			for code, cents := range amounts {
				if !ValidCurrencyCode(field, code).Check() || cents < 0 {
					return false
				}
			}
			return true
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "invalid",
			Message:        "must map ISO 4217 currency codes to non-negative amounts",
			TranslationKey: "validation.currency_amounts",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

func PositiveAmount[T Numeric](field string, value T) Rule {
	return Rule{
		Check: func() bool {
			return value > 0
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "greater_than",
			Message:        "amount must be positive",
			TranslationKey: "validation.positive_amount",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

func NonNegativeAmount[T Numeric](field string, value T) Rule {
	return Rule{
		Check: func() bool {
			return value >= 0
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "greater_than_or_equal_to",
			Message:        "amount cannot be negative",
			TranslationKey: "validation.non_negative_amount",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// NonZeroAmount accepts charges and credits alike but not an empty adjustment.
func NonZeroAmount[T Numeric](field string, value T) Rule {
	return Rule{
		Check: func() bool {
			return value != 0
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "other_than",
			Message:        "amount cannot be zero",
			TranslationKey: "validation.non_zero_amount",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// ValidPercentage validates that a value is a valid percentage (1-100).
func ValidPercentage[T Numeric](field string, value T) Rule {
	return Rule{
		Check: func() bool {
			return value > 0 && value <= 100
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "invalid",
			Message:        "percentage must be between 1% and 100%",
			TranslationKey: "validation.percentage",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

func AmountRange[T Numeric](field string, value T, min T, max T) Rule {
	return Rule{
		Check: func() bool {
			return value >= min && value <= max
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "invalid",
			Message:        fmt.Sprintf("must be between %v and %v", min, max),
			TranslationKey: "validation.amount_range",
			TranslationValues: map[string]any{
				"field": field,
				"min":   min,
				"max":   max,
			},
		},
	}
}

// ValidCreditCardChecksum validates a credit card number using the Luhn algorithm.
func ValidCreditCardChecksum(field, value string) Rule {
	return Rule{
		Check: func() bool {
			cleaned := strings.ReplaceAll(strings.ReplaceAll(value, " ", ""), "-", "")

			if !digitsRegex.MatchString(cleaned) {
				return false
			}
			if len(cleaned) < 13 || len(cleaned) > 19 {
				return false
			}

			sum := 0
			isEven := false
			for i := len(cleaned) - 1; i >= 0; i-- {
				digit := int(cleaned[i] - '0')
				if isEven {
					digit *= 2
					if digit > 9 {
						digit = digit/10 + digit%10
					}
				}
				sum += digit
				isEven = !isEven
			}

			return sum%10 == 0
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "invalid",
			Message:        "invalid credit card number",
			TranslationKey: "validation.credit_card",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// ValidAccountNumber is a format check only; banks apply their own rules.
func ValidAccountNumber(field, value string) Rule {
	return Rule{
		Check: func() bool {
			cleaned := strings.ReplaceAll(strings.ReplaceAll(value, " ", ""), "-", "")
			if !accountNumberRegex.MatchString(cleaned) {
				return false
			}
			return len(cleaned) >= 4 && len(cleaned) <= 34 // IBAN max length
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "invalid",
			Message:        "invalid account number format",
			TranslationKey: "validation.account_number",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// ValidRoutingNumber validates a US ABA routing number including its checksum.
func ValidRoutingNumber(field, value string) Rule {
	return Rule{
		Check: func() bool {
			cleaned := strings.ReplaceAll(strings.ReplaceAll(value, " ", ""), "-", "")
			if !routingNumberRegex.MatchString(cleaned) {
				return false
			}

			weights := []int{3, 7, 1, 3, 7, 1, 3, 7, 1}
			sum := 0
			for i, digit := range cleaned {
				sum += int(digit-'0') * weights[i]
			}
			return sum%10 == 0
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "invalid",
			Message:        "invalid routing number",
			TranslationKey: "validation.routing_number",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}
