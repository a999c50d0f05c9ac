// Package cli implements the cart command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/cartsync/internal/paths"
	"github.com/mesh-intelligence/cartsync/pkg/cartsync"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	verbose   bool
}

// runtime is the per-invocation state shared by subcommands.
type runtime struct {
	flags     rootFlags
	configDir string
	cfg       *viper.Viper
	logger    *slog.Logger
}

// NewRootCmd creates the top-level "cart" command with global flags and all
// subcommands registered.
func NewRootCmd() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:     "cart",
		Short:   "Keep a shopping cart in sync with the store",
		Long:    "cart keeps a local cart snapshot and a guest session, and reconciles\nthem with the remote cart API on every change.",
		Version: cartsync.Version,
		// Errors are reported by Execute with their exit code.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&rt.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&rt.flags.dataDir, "data-dir", "", "data directory (default: platform data dir)")
	root.PersistentFlags().BoolVar(&rt.flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&rt.flags.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(rt))
	root.AddCommand(newLoginCmd(rt))
	root.AddCommand(newLogoutCmd(rt))
	root.AddCommand(newShowCmd(rt))
	root.AddCommand(newSyncCmd(rt))
	root.AddCommand(newAddCmd(rt))
	root.AddCommand(newIncCmd(rt))
	root.AddCommand(newDecCmd(rt))
	root.AddCommand(newRemoveCmd(rt))
	root.AddCommand(newClearCmd(rt))
	root.AddCommand(newCheckoutCmd(rt))

	return root
}

// Execute runs the root command and exits with the matching code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, NewRootCmd(), os.Stderr)
	stop()
	os.Exit(code)
}

// run executes root and maps its error to an exit code.
func run(ctx context.Context, root *cobra.Command, stderr io.Writer) int {
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(stderr, "Error:", err)
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	// Flag and argument errors from cobra itself.
	return exitUserError
}

// setup resolves directories, loads config.yaml and builds the logger.
func (rt *runtime) setup(cmd *cobra.Command) error {
	level := slog.LevelWarn
	if rt.flags.verbose {
		level = slog.LevelDebug
	}
	rt.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	configDir, err := paths.ResolveConfigDir(rt.flags.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return sysError(err)
	}
	rt.configDir = configDir
	rt.cfg = cfg
	rt.logger.Debug("config loaded", "config_dir", configDir, "backend", cfg.GetString(cfgKeyBackend))
	return nil
}

// dataDir resolves the data directory: --data-dir, then data_dir from
// config.yaml, then CART_DATA_DIR, then the platform default.
func (rt *runtime) dataDir() (string, error) {
	return paths.ResolveDataDir(rt.flags.dataDir, rt.cfg.GetString(cfgKeyDataDir))
}

// cliError carries the process exit code for a failed command.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func userError(err error) error { return &cliError{code: exitUserError, err: err} }
func sysError(err error) error  { return &cliError{code: exitSysError, err: err} }
