package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cartsync/pkg/cartsync"
	"github.com/mesh-intelligence/cartsync/pkg/types"
)

func newShowCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the locally stored cart without contacting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withEngine(cmd, func(ctx context.Context, e *cartsync.Engine) error {
				e.Cart.HydrateLocal(ctx)
				return printCart(cmd.OutOrStdout(), e.Cart.Items(), rt.flags.jsonMode)
			})
		},
	}
}

func newSyncCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replace the local cart with the server cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withEngine(cmd, func(ctx context.Context, e *cartsync.Engine) error {
				if err := startCart(ctx, e); err != nil {
					return err
				}
				return printCart(cmd.OutOrStdout(), e.Cart.Items(), rt.flags.jsonMode)
			})
		},
	}
}

func newAddCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "add <product-id> [quantity]",
		Short: "Add a product to the cart",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity := 1
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n < 1 {
					return userError(fmt.Errorf("quantity must be a positive integer, got %q", args[1]))
				}
				quantity = n
			}
			return rt.withEngine(cmd, func(ctx context.Context, e *cartsync.Engine) error {
				if err := startCart(ctx, e); err != nil {
					return err
				}
				if err := e.Cart.AddItem(ctx, types.CartItem{ID: args[0]}, quantity); err != nil {
					return classify(fmt.Errorf("add %s: %w", args[0], err))
				}
				return printCart(cmd.OutOrStdout(), e.Cart.Items(), rt.flags.jsonMode)
			})
		},
	}
}

// itemCmd builds a command that applies op to one cart item.
func itemCmd(rt *runtime, use, short string, op func(e *cartsync.Engine) func(context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <product-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return rt.withEngine(cmd, func(ctx context.Context, e *cartsync.Engine) error {
				if err := startCart(ctx, e); err != nil {
					return err
				}
				if err := requireItem(e, id); err != nil {
					return err
				}
				if err := op(e)(ctx, id); err != nil {
					return classify(fmt.Errorf("%s %s: %w", use, id, err))
				}
				return printCart(cmd.OutOrStdout(), e.Cart.Items(), rt.flags.jsonMode)
			})
		},
	}
}

func newIncCmd(rt *runtime) *cobra.Command {
	return itemCmd(rt, "inc", "Add one unit of a product", func(e *cartsync.Engine) func(context.Context, string) error {
		return e.Cart.Increase
	})
}

func newDecCmd(rt *runtime) *cobra.Command {
	return itemCmd(rt, "dec", "Remove one unit of a product, dropping it at zero", func(e *cartsync.Engine) func(context.Context, string) error {
		return e.Cart.Decrease
	})
}

func newRemoveCmd(rt *runtime) *cobra.Command {
	return itemCmd(rt, "remove", "Remove a product from the cart", func(e *cartsync.Engine) func(context.Context, string) error {
		return e.Cart.Remove
	})
}

func newClearCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart on the server and locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withEngine(cmd, func(ctx context.Context, e *cartsync.Engine) error {
				if err := startCart(ctx, e); err != nil {
					return err
				}
				if err := e.Cart.Clear(ctx); err != nil {
					return classify(fmt.Errorf("clear: %w", err))
				}
				return printCart(cmd.OutOrStdout(), e.Cart.Items(), rt.flags.jsonMode)
			})
		},
	}
}
