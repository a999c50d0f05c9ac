package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cartsync/pkg/cartsync"
)

func newLoginCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "login <token>",
		Short: "Sign in with a bearer token and load that cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withEngine(cmd, func(ctx context.Context, e *cartsync.Engine) error {
				e.Cart.HydrateLocal(ctx)
				if err := e.Login(ctx, args[0]); err != nil {
					return classify(fmt.Errorf("login: %w", err))
				}
				if !rt.flags.jsonMode {
					fmt.Fprintln(cmd.OutOrStdout(), "Signed in")
				}
				return printCart(cmd.OutOrStdout(), e.Cart.Items(), rt.flags.jsonMode)
			})
		},
	}
}

func newLogoutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the local cart",
		Long:  "Remove the stored token and the local cart snapshot. The server cart is\nnot touched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withEngine(cmd, func(ctx context.Context, e *cartsync.Engine) error {
				e.Cart.HydrateLocal(ctx)
				if err := e.Logout(ctx); err != nil {
					return sysError(fmt.Errorf("logout: %w", err))
				}
				if rt.flags.jsonMode {
					return printJSON(cmd.OutOrStdout(), map[string]bool{"signedOut": true})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}
