package logger

import (
	"log/slog"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// RequestID records the request identifier under the key "request_id".
// Empty ids produce an empty Attr.
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// AccountCode records the account code under the key "account_code".
func AccountCode(code string) slog.Attr {
	if code == "" {
		return slog.Attr{}
	}
	return slog.String("account_code", code)
}

// InvoiceNumber records the invoice number under the key "invoice_number".
// Zero means the invoice is not known yet and yields an empty Attr.
func InvoiceNumber(number int) slog.Attr {
	if number == 0 {
		return slog.Attr{}
	}
	return slog.Int("invoice_number", number)
}

// SubscriptionUUID records the subscription identifier under the key "subscription_uuid".
func SubscriptionUUID(uuid string) slog.Attr {
	if uuid == "" {
		return slog.Attr{}
	}
	return slog.String("subscription_uuid", uuid)
}

func Transition(from, to string) slog.Attr {
	return Group("transition", slog.String("from", from), slog.String("to", to))
}

// Duration records a duration in milliseconds under the key "duration_ms".
func Duration(d time.Duration) slog.Attr {
	return slog.Int64("duration_ms", d.Milliseconds())
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
