package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/suk-kr/shopfloor/internal/config"
	"github.com/suk-kr/shopfloor/internal/plc"
)

// PLCOptions holds flags for the plc subcommands.
type PLCOptions struct {
	*RootOptions
	Line   string
	Action string
	Count  int
}

// NewPLCCommand creates the plc command group: equipment link monitoring and
// action execution against the configured lines. The simulated device stands
// in for the vendor handle; swapping in a real one is a Device implementation
// away.
func NewPLCCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plc",
		Short: "Monitor equipment links and run line actions",
	}
	cmd.AddCommand(newPLCLinesCommand(rootOpts))
	cmd.AddCommand(newPLCWatchCommand(rootOpts))
	cmd.AddCommand(newPLCRunCommand(rootOpts))
	return cmd
}

// buildMonitor assembles the link monitor for the configured lines, each
// backed by a simulated device wired to that line's register names.
func buildMonitor(cfg config.Config, listener plc.Listener) (*plc.Monitor, error) {
	lines := make([]plc.LineConfig, 0, len(cfg.Lines))
	devices := make(map[string]plc.Device, len(cfg.Lines))
	for _, l := range cfg.Lines {
		lines = append(lines, plc.LineConfig{
			ID:      l.ID,
			Station: l.Station,
			Registers: plc.Registers{
				Heartbeat:     l.Registers.Heartbeat,
				HeartbeatLive: l.Registers.HeartbeatLive,
				Mode:          l.Registers.Mode,
				Count:         l.Registers.Count,
				Done:          l.Registers.Done,
			},
			PollInterval:  l.PollDuration(),
			MissTolerance: l.MissTolerance,
			Actions:       l.Actions,
		})
		devices[l.ID] = plc.NewSimDevice(l.Registers.Heartbeat, l.Registers.Mode, l.Registers.Done)
	}
	return plc.New(lines, devices, plc.WithListener(listener))
}

func newPLCLinesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "lines",
		Short:         "Show configured production lines",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load configuration", err)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%-10s %7s %-10s %-6s %-6s %-6s %-6s %s\n",
				"LINE", "STATION", "HEARTBEAT", "MODE", "COUNT", "DONE", "POLL", "ACTIONS")
			for _, l := range cfg.Lines {
				actions := make([]string, 0, len(l.Actions))
				for a := range l.Actions {
					actions = append(actions, a)
				}
				sort.Strings(actions)
				fmt.Fprintf(&b, "%-10s %7d %-10s %-6s %-6s %-6s %-6s %s\n",
					l.ID, l.Station, l.Registers.Heartbeat, l.Registers.Mode,
					l.Registers.Count, l.Registers.Done, l.PollInterval,
					strings.Join(actions, ","))
			}
			return out.SuccessText(strings.TrimRight(b.String(), "\n"), cfg.Lines)
		},
	}
}

// linkReporter prints link events as they happen.
type linkReporter struct {
	out      *OutputFormatter
	finished chan plc.ActionResult
}

func (r *linkReporter) LinkStateChanged(line string, state plc.LinkState, reason string) {
	if reason != "" {
		fmt.Fprintf(r.out.Writer, "%s: %s (%s)\n", line, state, reason)
		return
	}
	fmt.Fprintf(r.out.Writer, "%s: %s\n", line, state)
}

func (r *linkReporter) ActionFinished(line, action string, count int) {
	if r.finished != nil {
		r.finished <- plc.ActionResult{Line: line, Action: action, Count: count}
	}
}

func newPLCWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PLCOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect a line and watch its heartbeat until interrupted",
		Long: `Connect one production line and keep its heartbeat poller running.
Link state changes are printed as they happen. Ctrl-C disconnects.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchLine(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Line, "line", "line-1", "production line")
	return cmd
}

func watchLine(opts *PLCOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	monitor, err := buildMonitor(cfg, &linkReporter{out: out})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build link monitor", err)
	}
	defer monitor.Shutdown()

	if err := monitor.Connect(opts.Line); err != nil {
		_ = out.Error(ErrCodeDevice, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to connect line", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	fmt.Fprintln(cmd.OutOrStdout(), "Watching. Press Ctrl-C to disconnect.")
	<-sigChan
	slog.Info("received signal, disconnecting", "line", opts.Line)
	return nil
}

func newPLCRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PLCOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a line action and wait for completion",
		Long: `Connect a line, write the action's mode and count registers, and wait
for the done register. On completion the registers are cleared and an audit
entry is appended.

Example:
  shopfloor plc run --line line-1 --action op-1 --count 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLineAction(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Line, "line", "line-1", "production line")
	cmd.Flags().StringVar(&opts.Action, "action", "", "action name (required)")
	cmd.Flags().IntVar(&opts.Count, "count", 1, "target count written to the count register")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func runLineAction(opts *PLCOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	reporter := &linkReporter{out: out, finished: make(chan plc.ActionResult, 1)}
	monitor, err := buildMonitor(cfg, reporter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build link monitor", err)
	}
	defer monitor.Shutdown()

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := monitor.Connect(opts.Line); err != nil {
		_ = out.Error(ErrCodeDevice, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to connect line", err)
	}
	if err := monitor.ExecuteAction(opts.Line, opts.Action, opts.Count); err != nil {
		_ = out.Error(ErrCodeDevice, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to execute action", err)
	}
	slog.Info("action started", "line", opts.Line, "action", opts.Action, "count", opts.Count)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case res := <-reporter.finished:
		st.AppendAudit(cmd.Context(), currentUser(), "plc-action-finished",
			fmt.Sprintf("line=%s action=%s count=%d", res.Line, res.Action, res.Count))
		return out.SuccessText(
			fmt.Sprintf("%s: %s finished (count %d)", res.Line, res.Action, res.Count), res)
	case <-sigChan:
		slog.Info("received signal, disconnecting", "line", opts.Line)
		return NewExitError(ExitFailure, "interrupted before action completed")
	}
}
