// Package cartsync assembles the cart synchronization engine: a durable
// store, the session identity resolver, the remote cart gateway and the
// cart store on top of them.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mesh-intelligence/cartsync/internal/cart"
	"github.com/mesh-intelligence/cartsync/internal/checkout"
	"github.com/mesh-intelligence/cartsync/internal/gateway"
	"github.com/mesh-intelligence/cartsync/internal/session"
	"github.com/mesh-intelligence/cartsync/pkg/types"
)

// Version is the cartsync release.
const Version = "v0.3.0"

// ErrNoBaseURL is returned by Open without a cart API address.
var ErrNoBaseURL = errors.New("base url must not be empty")

// Options configures Open.
type Options struct {
	Store   types.Config
	BaseURL string
	// Timeout bounds one gateway request. Zero uses gateway.DefaultTimeout.
	Timeout time.Duration
	// FeeRule is the delivery fee rule used by Summary.
	FeeRule    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Engine is an opened cart synchronization engine.
type Engine struct {
	KV      types.KVStore
	Tokens  *session.TokenStore
	Session *session.Resolver
	Gateway *gateway.Client
	Cart    *cart.Store

	feeRule checkout.FeeRule
	logger  *slog.Logger
}

// Open attaches the durable store and wires the engine. The cart is not
// hydrated; call Start.
func Open(opts Options) (*Engine, error) {
	if opts.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rule, err := checkout.ParseFeeRule(opts.FeeRule)
	if err != nil {
		return nil, err
	}

	kv, err := NewKVStore(opts.Store.Backend)
	if err != nil {
		return nil, err
	}
	if err := kv.Attach(opts.Store); err != nil {
		return nil, fmt.Errorf("attach %s store: %w", opts.Store.Backend, err)
	}

	tokens := session.NewTokenStore(kv)
	resolver := session.NewResolver(kv, tokens, session.WithLogger(logger))
	gwOpts := []gateway.Option{gateway.WithLogger(logger)}
	if opts.HTTPClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(opts.HTTPClient))
	} else if opts.Timeout > 0 {
		gwOpts = append(gwOpts, gateway.WithTimeout(opts.Timeout))
	}
	client := gateway.NewClient(opts.BaseURL, resolver, gwOpts...)

	return &Engine{
		KV:      kv,
		Tokens:  tokens,
		Session: resolver,
		Gateway: client,
		Cart:    cart.NewStore(client, kv, cart.WithLogger(logger)),
		feeRule: rule,
		logger:  logger,
	}, nil
}

// Close detaches the durable store.
func (e *Engine) Close() error {
	return e.KV.Detach()
}

// Start hydrates the cart from the local snapshot and then reconciles it
// with the server. The hydrated cart stays in place when the sync fails.
func (e *Engine) Start(ctx context.Context) error {
	e.Cart.HydrateLocal(ctx)
	return e.Cart.SyncFromServer(ctx)
}

// Login stores token as the signed-in credential and loads that user's
// server cart.
func (e *Engine) Login(ctx context.Context, token string) error {
	if err := e.Tokens.SetToken(ctx, token); err != nil {
		return err
	}
	e.logger.Info("signed in")
	return e.Cart.SyncFromServer(ctx)
}

// Logout forgets the credential and the local cart. The server cart is left
// as it is.
func (e *Engine) Logout(ctx context.Context) error {
	if err := e.Tokens.ClearToken(ctx); err != nil {
		return err
	}
	e.Cart.ResetLocal(ctx)
	e.logger.Info("signed out")
	return nil
}

// CanCheckout runs the stock gate over the current cart.
func (e *Engine) CanCheckout() checkout.Result {
	return checkout.CanCheckout(e.Cart.Items())
}

// Summary totals the current cart with the configured delivery fee.
func (e *Engine) Summary() (checkout.Summary, error) {
	return checkout.Summarize(e.Cart.Items(), e.feeRule)
}
