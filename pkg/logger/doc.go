// Package logger provides a context-aware wrapper around log/slog used by the
// billing client and its HTTP transport.
//
// New builds a *slog.Logger from functional options: output format (text or
// JSON), minimum level, static attributes and ContextExtractor callbacks that
// pull request-scoped values out of context.Context every time a record is
// handled. The transport stores the ID of each outgoing call with
// ContextWithRequestID; loggers built WithRequestID add it to every record
// logged with that context.
//
// Attribute helpers in attr.go keep key names consistent across packages:
//
//	log := logger.New(logger.WithEnvironment("development", "billing"), logger.WithRequestID())
//	log.InfoContext(ctx, "invoice collected",
//	    logger.AccountCode(acct.Code),
//	    logger.InvoiceNumber(inv.Number),
//	    logger.Transition("open", "collected"),
//	)
//
// Helpers return an empty slog.Attr for empty input (nil error, blank code),
// which slog drops, so callers need no nil checks.
package logger
