package transport

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/validator"
)

const (
	MediaTypeXML = "application/xml"

	HeaderRequestID = "X-Request-Id"
	HeaderRecords   = "X-Records"
	HeaderLink      = "Link"

	defaultUserAgent = "billing-go/2"
	maxBodySize      = 10 << 20
)

// Client implements billing.RemoteClient over HTTP with XML bodies.
// It never retries. Safe for concurrent use.
type Client struct {
	http         *http.Client
	endpoint     string
	apiKey       string
	logger       *slog.Logger
	breaker      *Breaker
	userAgent    string
	maxBody      int64
	newRequestID func() string
}

var _ billing.RemoteClient = (*Client)(nil)

// New creates a client for the endpoint and credentials in settings.
func New(settings billing.Settings, opts ...Option) *Client {
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = billing.DefaultTimeout
	}

	c := &Client{
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		endpoint:     settings.Endpoint(),
		apiKey:       settings.APIKey,
		logger:       slog.Default(),
		userAgent:    defaultUserAgent,
		maxBody:      maxBodySize,
		newRequestID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the API root requests are sent to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Invoke performs one round trip. See billing.RemoteClient.
func (c *Client) Invoke(ctx context.Context, call billing.Call, out any) (billing.Result, error) {
	if c.breaker == nil {
		return c.roundTrip(ctx, call, out)
	}
	if err := c.breaker.Allow(); err != nil {
		return billing.Result{Total: -1}, transportError(0, err)
	}
	res, err := c.roundTrip(ctx, call, out)
	c.breaker.Observe(err)
	return res, err
}

func (c *Client) roundTrip(ctx context.Context, call billing.Call, out any) (billing.Result, error) {
	res := billing.Result{Total: -1}

	requestID, ok := logger.RequestIDFromContext(ctx)
	if !ok || requestID == "" {
		requestID = c.newRequestID()
		ctx = logger.ContextWithRequestID(ctx, requestID)
	}

	req, err := c.newRequest(ctx, call, requestID)
	if err != nil {
		return res, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.WarnContext(ctx, "billing request failed",
			slog.String("method", call.Method),
			slog.String("path", call.Path),
			logger.Duration(elapsed),
			logger.Error(err),
		)
		return res, transportError(0, errors.Join(ErrRequestFailed, err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return res, transportError(resp.StatusCode, errors.Join(ErrRequestFailed, err))
	}
	if int64(len(body)) > c.maxBody {
		return res, transportError(resp.StatusCode, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxBody))
	}

	res.Status = resp.StatusCode
	c.logger.DebugContext(ctx, "billing round trip",
		slog.String("method", call.Method),
		slog.String("path", call.Path),
		slog.Int("status", resp.StatusCode),
		logger.Duration(elapsed),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return res, errorFromResponse(resp.StatusCode, body)
	}

	res.Next = nextCursor(resp.Header.Values(HeaderLink))
	if v := resp.Header.Get(HeaderRecords); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			res.Total = n
		}
	}

	if err := decode(body, out); err != nil {
		return res, transportError(resp.StatusCode, err)
	}
	return res, nil
}

func (c *Client) newRequest(ctx context.Context, call billing.Call, requestID string) (*http.Request, error) {
	target := c.endpoint + call.Path
	if len(call.Query) > 0 {
		target += "?" + call.Query.Encode()
	}

	var body io.Reader
	if call.Body != nil {
		payload, err := xml.Marshal(call.Body)
		if err != nil {
			return nil, transportError(0, fmt.Errorf("%w: %w", ErrEncodeRequest, err))
		}
		body = bytes.NewReader(append([]byte(xml.Header), payload...))
	}

	method := call.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, transportError(0, errors.Join(ErrRequestFailed, err))
	}

	accept := call.Accept
	if accept == "" {
		accept = MediaTypeXML
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", MediaTypeXML+"; charset=utf-8")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(HeaderRequestID, requestID)
	req.SetBasicAuth(c.apiKey, "")
	return req, nil
}

func decode(body []byte, out any) error {
	switch dst := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*dst = body
		return nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := xml.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeResponse, err)
	}
	return nil
}

// errorFromResponse maps a non-2xx response to a RemoteError.
func errorFromResponse(status int, body []byte) *billing.RemoteError {
	rerr := &billing.RemoteError{Status: status, Kind: kindFor(status)}

	var many billing.ErrorsDocument
	if err := xml.Unmarshal(body, &many); err == nil && len(many.Errors) > 0 {
		for _, fe := range many.Errors {
			rerr.Errors.Add(validator.ValidationError{
				Field:   fe.Field,
				Symbol:  fe.Symbol,
				Message: strings.TrimSpace(fe.Message),
			})
		}
		rerr.Symbol = many.Errors[0].Symbol
		return rerr
	}

	var one billing.ErrorDocument
	if err := xml.Unmarshal(body, &one); err == nil {
		rerr.Symbol = one.Symbol
		rerr.Message = one.Description
	}
	if rerr.Message == "" {
		rerr.Message = http.StatusText(status)
	}
	if rerr.Kind == billing.KindTransport {
		rerr.Err = ErrServerError
	}
	return rerr
}

func kindFor(status int) billing.ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return billing.KindInvalidCredentials
	case http.StatusNotFound:
		return billing.KindNotFound
	case http.StatusConflict:
		return billing.KindConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return billing.KindValidation
	}
	return billing.KindTransport
}

func transportError(status int, err error) *billing.RemoteError {
	return &billing.RemoteError{Kind: billing.KindTransport, Status: status, Err: err}
}
