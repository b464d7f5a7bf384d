// Package transport implements billing.RemoteClient over HTTP.
//
// Requests are XML documents sent to the endpoint derived from
// billing.Settings, authenticated with HTTP basic auth using the API key as
// the user name. Every request carries an X-Request-Id; when the context
// already holds one (see logger.ContextWithRequestID) it is reused, otherwise
// a UUID is generated and stored in the context used for logging.
//
// Responses are mapped onto *billing.RemoteError:
//
//	401, 403   invalid credentials
//	404        not found
//	409        conflict
//	400, 422   validation, with per-field details from <errors>
//	other      transport, as are network failures and timeouts
//
// List responses advertise the next page with a Link header (rel="next")
// whose cursor query parameter becomes billing.Result.Next, and the total
// record count with X-Records.
//
// The client never retries. An optional Breaker stops calling an endpoint
// that keeps failing at the transport level. Response bodies are capped (see
// WithMaxBodySize); an oversized body is an error, never a truncated document.
package transport
