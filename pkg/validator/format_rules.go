package validator

import (
	"net/mail"
	"strings"

	"golang.org/x/text/language"
)

// ValidEmail validates that a string is a valid email address using RFC 5322.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if strings.TrimSpace(value) == "" {
				return false
			}

			addr, err := mail.ParseAddress(value)
			if err != nil {
				return false
			}

			localPart, domain, ok := strings.Cut(addr.Address, "@")
			if !ok || localPart == "" {
				return false
			}

			// Domain must contain at least one dot and cannot start/end with dot
			if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
				return false
			}
			for part := range strings.SplitSeq(domain, ".") {
				if part == "" {
					return false
				}
			}

			return true
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "invalid_email",
			Message:        "must be a valid email address",
			TranslationKey: "validation.email",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}

// ValidCountryCode validates an ISO 3166-1 alpha-2 country code.
func ValidCountryCode(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if len(value) != 2 {
				return false
			}
			region, err := language.ParseRegion(value)
			return err == nil && region.IsCountry()
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "invalid",
			Message:        "must be an ISO 3166-1 alpha-2 country code",
			TranslationKey: "validation.country_code",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}
