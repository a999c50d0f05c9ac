package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cartsync/pkg/cartsync"
)

const modulePath = "github.com/mesh-intelligence/cartsync"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cart version",
		Args:  cobra.NoArgs,
		// version needs no configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "cart %s\nmodule: %s\n", cartsync.Version, modulePath)
			return nil
		},
	}
}
