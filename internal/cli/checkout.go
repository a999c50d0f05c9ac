package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cartsync/internal/checkout"
	"github.com/mesh-intelligence/cartsync/pkg/cartsync"
	"github.com/mesh-intelligence/cartsync/pkg/types"
)

// checkoutView is the JSON shape printed by the checkout command.
type checkoutView struct {
	checkout.Result
	Summary checkout.Summary `json:"summary"`
	Items   []types.CartItem `json:"items"`
}

func newCheckoutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout",
		Short: "Sync the cart, check stock and print the payable total",
		Long:  "Refresh the cart from the server so stock is current, then check that\nevery item is in stock. Exits 1 when the cart cannot be checked out.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withEngine(cmd, func(ctx context.Context, e *cartsync.Engine) error {
				if err := startCart(ctx, e); err != nil {
					return err
				}
				result := e.CanCheckout()
				summary, err := e.Summary()
				if err != nil {
					return userError(fmt.Errorf("config %s: %w", cfgKeyDeliveryFee, err))
				}

				out := cmd.OutOrStdout()
				if rt.flags.jsonMode {
					if err := printJSON(out, checkoutView{Result: result, Summary: summary, Items: e.Cart.Items()}); err != nil {
						return err
					}
				} else {
					if err := printCart(out, e.Cart.Items(), false); err != nil {
						return err
					}
					printSummary(out, summary)
				}

				if !result.OK {
					if result.ItemID != "" {
						return userError(fmt.Errorf("cannot check out: %s (%s)", result.Reason, result.ItemID))
					}
					return userError(fmt.Errorf("cannot check out: %s", result.Reason))
				}
				if !rt.flags.jsonMode {
					fmt.Fprintln(out, "Ready to check out")
				}
				return nil
			})
		},
	}
}
