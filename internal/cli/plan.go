package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/suk-kr/shopfloor/internal/fulfillment"
	"github.com/suk-kr/shopfloor/internal/model"
)

// PlanOptions holds flags for the plan subcommands.
type PlanOptions struct {
	*RootOptions
	Product  string
	Name     string
	Quantity int
	Line     string
	Shift    string
	Mode     string
	Date     string
	Remarks  string
	Status   string
}

// NewPlanCommand creates the plan command group.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Register and list production plans",
	}
	cmd.AddCommand(newPlanAddCommand(rootOpts))
	cmd.AddCommand(newPlanListCommand(rootOpts))
	return cmd
}

func newPlanAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a production plan",
		Long: `Register a standalone production plan. The order code is allocated
from the per-day sequence for the planned date.

Example:
  shopfloor plan add --product WIDGET-01 --name "Widget" --qty 50 --line line-1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return addPlan(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Product, "product", "", "product code (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "product name")
	cmd.Flags().IntVar(&opts.Quantity, "qty", 0, "ordered quantity (required)")
	cmd.Flags().StringVar(&opts.Line, "line", "line-1", "production line")
	cmd.Flags().StringVar(&opts.Shift, "shift", "day-1", "work shift")
	cmd.Flags().StringVar(&opts.Mode, "mode", string(model.ModeManual), "simulation mode (manual|automatic)")
	cmd.Flags().StringVar(&opts.Date, "date", "", "planned date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.Remarks, "remarks", "", "free-form remarks")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("qty")

	return cmd
}

func addPlan(opts *PlanOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	plannedDate := time.Now()
	if opts.Date != "" {
		var err error
		plannedDate, err = time.Parse("2006-01-02", opts.Date)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --date", err)
		}
	}
	mode := model.SimulationMode(opts.Mode)
	if !mode.Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --mode %q", opts.Mode))
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	coord := fulfillment.New(st, NewPromptDecider(cmd.InOrStdin(), cmd.OutOrStdout()),
		NewPromptDecider(cmd.InOrStdin(), cmd.OutOrStdout()), currentUser())
	code, err := coord.PlanProduction(cmd.Context(), opts.Product, opts.Name, model.PlanRequest{
		Quantity:    opts.Quantity,
		Line:        opts.Line,
		Shift:       opts.Shift,
		Mode:        mode,
		PlannedDate: plannedDate,
		Remarks:     opts.Remarks,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to register plan", err)
	}

	return out.SuccessText(
		fmt.Sprintf("Registered %s: %d x %s on %s (%s)", code, opts.Quantity, opts.Product, opts.Line, mode),
		map[string]any{"code": code, "product": opts.Product, "qty": opts.Quantity, "line": opts.Line, "mode": mode})
}

func newPlanListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List production plans",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listPlans(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (pending|in_progress|paused|delayed|completed)")
	return cmd
}

func listPlans(opts *PlanOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	status := model.WorkOrderStatus(opts.Status)
	if opts.Status != "" && !status.Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --status %q", opts.Status))
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	orders, err := st.ListWorkOrders(cmd.Context(), status)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list plans", err)
	}

	return out.SuccessText(renderWorkOrders(orders), orders)
}

func renderWorkOrders(orders []model.WorkOrder) string {
	if len(orders) == 0 {
		return "no work orders"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-12s %-8s %9s %-12s %-10s %-8s %s\n",
		"CODE", "PRODUCT", "LINE", "QTY", "STATUS", "MODE", "SHIFT", "CONTRACT")
	for _, wo := range orders {
		fmt.Fprintf(&b, "%-16s %-12s %-8s %4d/%4d %-12s %-10s %-8s %s\n",
			wo.Code, wo.ProductCode, wo.Line, wo.ProducedQty, wo.OrderedQty,
			wo.Status, wo.Mode, wo.Shift, wo.OrderNumber)
	}
	return strings.TrimRight(b.String(), "\n")
}
