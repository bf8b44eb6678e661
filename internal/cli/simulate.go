package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/suk-kr/shopfloor/internal/fulfillment"
	"github.com/suk-kr/shopfloor/internal/model"
	"github.com/suk-kr/shopfloor/internal/sim"
	"github.com/suk-kr/shopfloor/internal/workorder"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Tick time.Duration
	Step int
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <order-code>",
		Short: "Run the production simulation for an automatic-mode order",
		Long: `Run the production simulation loop for one automatic-mode work order.

The order's produced quantity is incremented once per tick and persisted on
every increment. When the ordered quantity is reached the order completes:
the inventory receipt is posted and, for a linked confirmed contract, the
pending shipment is created. Ctrl-C stops the run and marks the order
delayed; a later simulate picks it up from the persisted quantity.

Example:
  shopfloor simulate PP-20260830-001
  shopfloor simulate PP-20260830-001 --tick 250ms`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, args[0], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Tick, "tick", 0, "tick interval (overrides config)")
	cmd.Flags().IntVar(&opts.Step, "step", 0, "quantity per tick (overrides config)")

	return cmd
}

// progressPrinter implements sim.Observer for the terminal.
type progressPrinter struct {
	out *OutputFormatter
}

func (p progressPrinter) ProductionUpdated(code string, produced, ordered int, seq int64) {
	fmt.Fprintf(p.out.Writer, "%s: %d/%d\n", code, produced, ordered)
}

func (p progressPrinter) RunEnded(code string, status model.WorkOrderStatus, err error) {
	if err != nil {
		slog.Error("simulation run ended with error", "order", code, "status", status, "error", err)
	}
}

func runSimulation(opts *SimulateOptions, code string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	simCfg := sim.DefaultConfig()
	if interval, err := cfg.TickInterval(); err == nil {
		simCfg.TickInterval = interval
	}
	simCfg.StepQty = cfg.Simulation.StepQty
	if opts.Tick > 0 {
		simCfg.TickInterval = opts.Tick
	}
	if opts.Step > 0 {
		simCfg.StepQty = opts.Step
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	prompt := NewPromptDecider(cmd.InOrStdin(), cmd.OutOrStdout())
	coord := fulfillment.New(st, prompt, prompt, currentUser())
	engine := sim.New(st, coord, simCfg, sim.WithObserver(progressPrinter{out: out}))

	wo, err := st.GetWorkOrder(cmd.Context(), code)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read order", err)
	}
	if wo.Mode != model.ModeAutomatic {
		return NewExitError(ExitFailure,
			fmt.Sprintf("order %s is %s-mode; use the order subcommands to drive it", code, wo.Mode))
	}

	var run *sim.Run
	if wo.Status == model.StatusPaused {
		run, err = engine.Resume(cmd.Context(), code)
	} else {
		run, err = engine.Start(cmd.Context(), code)
	}
	if err != nil {
		if errors.Is(err, workorder.ErrInvalidTransition) {
			_ = out.Error(ErrCodeTransition, err.Error(), nil)
			return WrapExitError(ExitFailure, "cannot simulate order", err)
		}
		return WrapExitError(ExitFailure, "failed to start simulation", err)
	}
	slog.Info("simulation started", "order", code, "run", run.Token,
		"tick", simCfg.TickInterval, "step", simCfg.StepQty)
	out.VerboseLog("run token %s", run.Token)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		slog.Info("received signal, stopping run", "order", code)
		if err := engine.Stop(cmd.Context(), code); err != nil && !errors.Is(err, sim.ErrNotRunning) {
			return WrapExitError(ExitFailure, "failed to stop run", err)
		}
	case <-run.Done():
	}

	if err := run.Err(); err != nil {
		_ = out.Error(ErrCodeSimulation, err.Error(), nil)
		return WrapExitError(ExitFailure, "simulation failed", err)
	}

	final, err := st.GetWorkOrder(cmd.Context(), code)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to re-read order", err)
	}
	return out.SuccessText(
		fmt.Sprintf("%s: %s (%d/%d)", final.Code, final.Status, final.ProducedQty, final.OrderedQty), final)
}
