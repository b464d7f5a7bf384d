package validator

// RequiredMap fails for a nil or empty map.
func RequiredMap[K comparable, V any](field string, value map[K]V) Rule {
	return Rule{
		Check: func() bool {
			return len(value) > 0
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

// UniqueBy validates that key(item) is distinct across items.
func UniqueBy[T any, K comparable](field string, items []T, key func(T) K) Rule {
	return Rule{
		Check: func() bool {
			seen := make(map[K]struct{}, len(items))
			for _, it := range items {
				k := key(it)
				if _, ok := seen[k]; ok {
					return false
				}
				seen[k] = struct{}{}
			}
			return true
		},
		Error: ValidationError{
			Field:          field,
			Symbol:         "taken",
			Message:        "must not contain duplicates",
			TranslationKey: "validation.unique",
			TranslationValues: map[string]any{
				"field": field,
			},
		},
	}
}
