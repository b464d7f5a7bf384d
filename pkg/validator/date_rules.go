package validator

import (
	"fmt"
	"time"
)

// DateAfter requires value to be strictly later than after.
func DateAfter(field string, value time.Time, after time.Time) Rule {
	return Rule{
		Check: func() bool {
			return value.After(after)
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "invalid",
			Message:        fmt.Sprintf("date must be after %s", after.Format(time.RFC3339)),
			TranslationKey: "validation.date_after",
			TranslationValues: map[string]any{
				"field": field,
				"after": after.Format(time.RFC3339),
			},
		},
	}
}

// RequiredTime rejects the zero time.
func RequiredTime(field string, value time.Time) Rule {
	return Rule{
		Check: func() bool {
			return !value.IsZero()
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "blank",
			Message:        "field is required",
			TranslationKey: "validation.required",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}
