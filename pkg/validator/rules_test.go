package validator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billing/pkg/validator"
)

func TestValidCurrencyCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code  string
		valid bool
	}{
		{"USD", true},
		{"EUR", true},
		{"JPY", true},
		{"UAH", true},
		{"usd", false},
		{"US", false},
		{"XYZ", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := validator.Apply(validator.ValidCurrencyCode("currency", tt.code))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidCurrencyAmounts(t *testing.T) {
	t.Parallel()

	type amounts map[string]int64

	assert.NoError(t, validator.Apply(validator.ValidCurrencyAmounts("unit_amount_in_cents", amounts{"USD": 1000, "EUR": 0})))
	assert.Error(t, validator.Apply(validator.ValidCurrencyAmounts("unit_amount_in_cents", amounts{"USD": -1})))
	assert.Error(t, validator.Apply(validator.ValidCurrencyAmounts("unit_amount_in_cents", amounts{"dollars": 1})))
}

func TestAmountRules(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validator.Apply(validator.PositiveAmount("amount", int64(1))))
	assert.Error(t, validator.Apply(validator.PositiveAmount("amount", int64(0))))

	assert.NoError(t, validator.Apply(validator.NonNegativeAmount("amount", 0)))
	assert.Error(t, validator.Apply(validator.NonNegativeAmount("amount", -5)))

	assert.NoError(t, validator.Apply(validator.NonZeroAmount("amount", -5678)))
	assert.Error(t, validator.Apply(validator.NonZeroAmount("amount", 0)))

	assert.NoError(t, validator.Apply(validator.ValidPercentage("discount_percent", 100)))
	assert.Error(t, validator.Apply(validator.ValidPercentage("discount_percent", 0)))
	assert.Error(t, validator.Apply(validator.ValidPercentage("discount_percent", 101)))

	assert.NoError(t, validator.Apply(validator.AmountRange("month", 12, 1, 12)))
	assert.Error(t, validator.Apply(validator.AmountRange("month", 13, 1, 12)))
}

func TestPaymentMethodRules(t *testing.T) {
	t.Parallel()

	t.Run("credit card", func(t *testing.T) {
		assert.NoError(t, validator.Apply(validator.ValidCreditCardChecksum("number", "4111111111111111")))
		assert.NoError(t, validator.Apply(validator.ValidCreditCardChecksum("number", "4111-1111-1111-1111")))
		assert.Error(t, validator.Apply(validator.ValidCreditCardChecksum("number", "4111111111111112")))
		assert.Error(t, validator.Apply(validator.ValidCreditCardChecksum("number", "1234")))
	})

	t.Run("routing number", func(t *testing.T) {
		assert.NoError(t, validator.Apply(validator.ValidRoutingNumber("routing_number", "123123123")))
		assert.Error(t, validator.Apply(validator.ValidRoutingNumber("routing_number", "123456789")))
		assert.Error(t, validator.Apply(validator.ValidRoutingNumber("routing_number", "12")))
	})

	t.Run("account number", func(t *testing.T) {
		assert.NoError(t, validator.Apply(validator.ValidAccountNumber("account_number", "111111111")))
		assert.Error(t, validator.Apply(validator.ValidAccountNumber("account_number", "12")))
		assert.Error(t, validator.Apply(validator.ValidAccountNumber("account_number", "12#45")))
	})
}

func TestFormatRules(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validator.Apply(validator.ValidEmail("email", "verena@example.com")))
	assert.Error(t, validator.Apply(validator.ValidEmail("email", "verena@example")))
	assert.Error(t, validator.Apply(validator.ValidEmail("email", "")))

	assert.NoError(t, validator.Apply(validator.ValidCountryCode("country", "US")))
	assert.NoError(t, validator.Apply(validator.ValidCountryCode("country", "DE")))
	assert.Error(t, validator.Apply(validator.ValidCountryCode("country", "USA")))
	assert.Error(t, validator.Apply(validator.ValidCountryCode("country", "9Z")))
}

func TestOneOfAndUniqueBy(t *testing.T) {
	t.Parallel()

	type unit string
	assert.NoError(t, validator.Apply(validator.OneOf("interval_unit", unit("months"), "days", "months")))
	assert.Error(t, validator.Apply(validator.OneOf("interval_unit", unit("weeks"), "days", "months")))

	codes := func(s string) string { return s }
	assert.NoError(t, validator.Apply(validator.UniqueBy("add_ons", []string{"a", "b"}, codes)))

	err := validator.Apply(validator.UniqueBy("add_ons", []string{"a", "b", "a"}, codes))
	assert.True(t, validator.ExtractValidationErrors(err).HasSymbol("taken"))
}

func TestDateRules(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, validator.Apply(validator.DateAfter("next_renewal_date", now.Add(time.Hour), now)))
	assert.Error(t, validator.Apply(validator.DateAfter("next_renewal_date", now, now)))

	assert.NoError(t, validator.Apply(validator.RequiredTime("starts_at", now)))
	assert.Error(t, validator.Apply(validator.RequiredTime("starts_at", time.Time{})))
	assert.NoError(t, validator.Apply(validator.MaxLen("name", "Ünïcödé", 7)))
}
