package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cartsync/pkg/cartsync"
)

func newInitCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize cart configuration and storage",
		Long:  "Create the configuration directory with a default config.yaml, then\ncreate the data directory and the local store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.storeConfig()
			if err != nil {
				return err
			}
			kv, err := cartsync.NewKVStore(cfg.Backend)
			if err != nil {
				return userError(err)
			}
			if err := kv.Attach(cfg); err != nil {
				return sysError(fmt.Errorf("initialize storage: %w", err))
			}
			if err := kv.Detach(); err != nil {
				return sysError(fmt.Errorf("finalize storage: %w", err))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Cart initialized successfully")
			fmt.Fprintln(out, "  config:", rt.configDir)
			fmt.Fprintln(out, "  data:  ", cfg.DataDir)
			return nil
		},
	}
}
