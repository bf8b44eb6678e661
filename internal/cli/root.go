// Package cli wires the shop-floor tool's cobra command tree: plan and order
// life-cycle commands, the simulation runner, contract confirmation, shipment
// and inventory queries, and the equipment link commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/suk-kr/shopfloor/internal/config"
	"github.com/suk-kr/shopfloor/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	Database  string // path to the SQLite ledger
	ConfigDir string // CUE configuration directory, empty for defaults
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the shopfloor CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "shopfloor",
		Short: "Shop-floor production order execution tool",
		Long: `Shop-floor execution tool: production order life-cycle, production
simulation, contract fulfillment and equipment link monitoring over a
SQLite ledger.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			setupLogging(opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "shopfloor.db", "path to SQLite database")
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config", "", "CUE configuration directory (compiled-in defaults if unset)")

	// Add subcommands
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewOrderCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewContractCommand(opts))
	cmd.AddCommand(NewShipmentCommand(opts))
	cmd.AddCommand(NewInventoryCommand(opts))
	cmd.AddCommand(NewPLCCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// loadConfig resolves the runtime configuration: the CUE directory when
// --config is set, the compiled-in defaults otherwise.
func (o *RootOptions) loadConfig() (config.Config, error) {
	if o.ConfigDir == "" {
		return config.Default(), nil
	}
	return config.Load(o.ConfigDir)
}

// openStore opens the ledger database, creating it on first use.
func (o *RootOptions) openStore() (*store.Store, error) {
	st, err := store.Open(o.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// formatter builds the output formatter for a command invocation.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// currentUser names the operator recorded on documents and audit entries.
func currentUser() string {
	if u := os.Getenv("SHOPFLOOR_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "operator"
}
