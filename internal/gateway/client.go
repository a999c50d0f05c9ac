// Package gateway is the HTTP client for the remote cart API. Every call
// that reaches the network returns the server's authoritative cart snapshot
// or a *RequestError; the client never retries.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mesh-intelligence/cartsync/pkg/types"
)

// Operation names used in errors, logs and metrics.
const (
	OpFetch  = "fetch"
	OpAdd    = "add"
	OpUpdate = "update"
	OpRemove = "remove"
	OpClear  = "clear"
)

// Cart API paths.
const (
	pathCart   = "/api/cart"
	pathAdd    = "/api/cart/add"
	pathUpdate = "/api/cart/update/"
	pathRemove = "/api/cart/remove/"
	pathClear  = "/api/cart/clear"
)

// DefaultTimeout bounds one request when no http.Client is supplied.
const DefaultTimeout = 10 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 4 << 20

// Snapshot is the server's cart: raw item rows plus optional pricing, both
// exactly as the API sent them.
type Snapshot struct {
	Items   []json.RawMessage
	Pricing json.RawMessage
}

// envelope is the API response body. Missing data or items mean an empty cart.
type envelope struct {
	Data *struct {
		Items   []json.RawMessage `json:"items"`
		Pricing json.RawMessage   `json:"pricing"`
	} `json:"data"`
	Message json.RawMessage `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// Client talks to the cart API under one base URL.
type Client struct {
	baseURL string
	client  *http.Client
	headers types.HeaderResolver
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client for baseURL, e.g. http://localhost:5000.
// headers supplies the session identity of every request.
func NewClient(baseURL string, headers types.HeaderResolver, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
		headers: headers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "gateway")
	return c
}

// FetchCart returns the current server cart.
func (c *Client) FetchCart(ctx context.Context) (Snapshot, error) {
	return c.do(ctx, OpFetch, http.MethodGet, pathCart, nil)
}

// AddItem adds quantity units of productID. The server increments an
// existing line rather than replacing it.
func (c *Client) AddItem(ctx context.Context, productID string, quantity int) (Snapshot, error) {
	body := map[string]any{"productId": productID, "quantity": quantity}
	return c.do(ctx, OpAdd, http.MethodPost, pathAdd, body)
}

// SetQuantity sets the quantity of one cart row.
func (c *Client) SetQuantity(ctx context.Context, cartRowID string, quantity int) (Snapshot, error) {
	if cartRowID == "" {
		return Snapshot{}, invalidRequest(OpUpdate)
	}
	body := map[string]any{"quantity": quantity}
	return c.do(ctx, OpUpdate, http.MethodPut, pathUpdate+url.PathEscape(cartRowID), body)
}

// RemoveItem deletes one cart row.
func (c *Client) RemoveItem(ctx context.Context, cartRowID string) (Snapshot, error) {
	if cartRowID == "" {
		return Snapshot{}, invalidRequest(OpRemove)
	}
	return c.do(ctx, OpRemove, http.MethodDelete, pathRemove+url.PathEscape(cartRowID), nil)
}

// ClearCart empties the cart.
func (c *Client) ClearCart(ctx context.Context) (Snapshot, error) {
	return c.do(ctx, OpClear, http.MethodDelete, pathClear, nil)
}

// invalidRequest counts and returns a row operation rejected before sending.
func invalidRequest(op string) error {
	requestsTotal.WithLabelValues(op, outcomeInvalid).Inc()
	return fmt.Errorf("%s: %w", op, ErrMissingRowID)
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (Snapshot, error) {
	start := time.Now()
	snap, status, err := c.roundTrip(ctx, op, method, path, body)
	elapsed := time.Since(start)

	requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	outcome := outcomeOK
	if err != nil {
		outcome = err.outcome
	}
	requestsTotal.WithLabelValues(op, outcome).Inc()

	if err != nil {
		c.logger.Debug("cart request failed", "op", op, "method", method, "path", path,
			"status", status, "elapsed", elapsed, "error", err.Message)
		return Snapshot{}, err
	}
	c.logger.Debug("cart request", "op", op, "method", method, "path", path,
		"status", status, "items", len(snap.Items), "elapsed", elapsed)
	return snap, nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body any) (Snapshot, int, *RequestError) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Snapshot{}, 0, transportError(op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Snapshot{}, 0, transportError(op, err)
	}
	if c.headers != nil {
		for k, vs := range c.headers.ResolveHeaders(ctx, body != nil) {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return Snapshot{}, 0, transportError(op, err)
	}
	defer res.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(res.Body, maxBody+1))
	if readErr == nil && len(raw) > maxBody {
		readErr = fmt.Errorf("%w (limit %d bytes)", ErrBodyTooLarge, maxBody)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return Snapshot{}, res.StatusCode, statusError(op, res.StatusCode, decodeEnvelope(raw).message())
	}
	// A cut-off success body must not be mistaken for an empty cart.
	if readErr != nil {
		return Snapshot{}, res.StatusCode, bodyError(op, res.StatusCode, readErr)
	}
	env := decodeEnvelope(raw)

	snap := Snapshot{Items: []json.RawMessage{}}
	if env.Data != nil {
		if env.Data.Items != nil {
			snap.Items = env.Data.Items
		}
		snap.Pricing = env.Data.Pricing
	}
	return snap, res.StatusCode, nil
}

// decodeEnvelope parses body, substituting an empty envelope for empty or
// non-JSON bodies.
func decodeEnvelope(body []byte) envelope {
	var env envelope
	if len(bytes.TrimSpace(body)) == 0 {
		return env
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}
	}
	return env
}

// message returns the server-supplied error text, if any.
func (e envelope) message() string {
	for _, raw := range []json.RawMessage{e.Message, e.Error} {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
