package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cartsync/internal/cart"
	"github.com/mesh-intelligence/cartsync/internal/checkout"
	"github.com/mesh-intelligence/cartsync/internal/gateway"
	"github.com/mesh-intelligence/cartsync/internal/session"
	"github.com/mesh-intelligence/cartsync/pkg/cartsync"
	"github.com/mesh-intelligence/cartsync/pkg/types"
)

// storeConfig returns the durable store configuration.
func (rt *runtime) storeConfig() (types.Config, error) {
	dataDir, err := rt.dataDir()
	if err != nil {
		return types.Config{}, sysError(fmt.Errorf("resolve data dir: %w", err))
	}
	cfg := types.Config{
		Backend: rt.cfg.GetString(cfgKeyBackend),
		DataDir: dataDir,
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, userError(fmt.Errorf("config %s: %w", cfgKeyBackend, err))
	}
	return cfg, nil
}

// openEngine validates the configuration and opens the engine. The caller
// must Close it.
func (rt *runtime) openEngine() (*cartsync.Engine, error) {
	store, err := rt.storeConfig()
	if err != nil {
		return nil, err
	}
	to, err := timeout(rt.cfg)
	if err != nil {
		return nil, userError(err)
	}
	fee := rt.cfg.GetString(cfgKeyDeliveryFee)
	if _, err := checkout.ParseFeeRule(fee); err != nil {
		return nil, userError(err)
	}
	baseURL := rt.cfg.GetString(cfgKeyBaseURL)
	if baseURL == "" {
		return nil, userError(fmt.Errorf("config %s: %w", cfgKeyBaseURL, cartsync.ErrNoBaseURL))
	}

	e, err := cartsync.Open(cartsync.Options{
		Store:   store,
		BaseURL: baseURL,
		Timeout: to,
		FeeRule: fee,
		Logger:  rt.logger,
	})
	if err != nil {
		return nil, sysError(err)
	}
	return e, nil
}

// withEngine opens the engine, runs fn and closes the engine.
func (rt *runtime) withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *cartsync.Engine) error) error {
	e, err := rt.openEngine()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			rt.logger.Warn("closing store failed", "error", cerr)
		}
	}()
	return fn(cmd.Context(), e)
}

// classify maps an engine error to an exit code. Requests the server
// rejected as invalid are user errors; everything else is a system error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var reqErr *gateway.RequestError
	if errors.As(err, &reqErr) && reqErr.Status >= 400 && reqErr.Status < 500 {
		return userError(err)
	}
	if errors.Is(err, cart.ErrEmptyProductID) || errors.Is(err, session.ErrEmptyToken) ||
		errors.Is(err, gateway.ErrMissingRowID) {
		return userError(err)
	}
	return sysError(err)
}

// startCart hydrates and syncs the cart before a command acts on it.
func startCart(ctx context.Context, e *cartsync.Engine) error {
	if err := e.Start(ctx); err != nil {
		return classify(fmt.Errorf("sync cart: %w", err))
	}
	return nil
}

// requireItem fails with a user error when id is not in the cart.
func requireItem(e *cartsync.Engine, id string) error {
	if _, ok := e.Cart.Item(id); !ok {
		return userError(fmt.Errorf("product %q is not in the cart", id))
	}
	return nil
}
