package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suk-kr/shopfloor/internal/fulfillment"
	"github.com/suk-kr/shopfloor/internal/model"
	"github.com/suk-kr/shopfloor/internal/store"
	"github.com/suk-kr/shopfloor/internal/workorder"
)

// NewOrderCommand creates the order command group: operator-driven life-cycle
// events for manual-mode work orders. Automatic-mode orders are driven by the
// simulate command; the state machine rejects operator events on them.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Drive a work order's life-cycle",
	}

	events := []struct {
		use   string
		short string
		event workorder.Event
	}{
		{"start <code>", "Start a pending order", workorder.EventStart},
		{"pause <code>", "Pause an in-progress order", workorder.EventPause},
		{"resume <code>", "Resume a paused order", workorder.EventResume},
		{"complete <code>", "Complete an order (posts the inventory receipt)", workorder.EventComplete},
		{"cancel <code>", "Cancel an order (marks it delayed)", workorder.EventStop},
		{"restart <code>", "Restart a delayed order", workorder.EventRestart},
	}
	for _, e := range events {
		cmd.AddCommand(newOrderEventCommand(rootOpts, e.use, e.short, e.event))
	}
	cmd.AddCommand(newOrderShowCommand(rootOpts))
	return cmd
}

func newOrderEventCommand(rootOpts *RootOptions, use, short string, event workorder.Event) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyOrderEvent(rootOpts, cmd, args[0], event)
		},
	}
}

func applyOrderEvent(opts *RootOptions, cmd *cobra.Command, code string, event workorder.Event) error {
	out := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	prompt := NewPromptDecider(cmd.InOrStdin(), cmd.OutOrStdout())
	coord := fulfillment.New(st, prompt, prompt, currentUser())

	if err := coord.ApplyEvent(cmd.Context(), code, event, workorder.OriginOperator); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			_ = out.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitFailure, "work order not found", err)
		case errors.Is(err, workorder.ErrInvalidTransition):
			_ = out.Error(ErrCodeTransition, err.Error(), nil)
			return WrapExitError(ExitFailure, "transition rejected", err)
		default:
			return WrapExitError(ExitFailure, fmt.Sprintf("failed to %s order", event), err)
		}
	}

	wo, err := st.GetWorkOrder(cmd.Context(), code)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to re-read order", err)
	}
	return out.SuccessText(
		fmt.Sprintf("%s: %s (%d/%d)", wo.Code, wo.Status, wo.ProducedQty, wo.OrderedQty), wo)
}

func newOrderShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <code>",
		Short:         "Show one work order",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			wo, err := st.GetWorkOrder(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					_ = out.Error(ErrCodeNotFound, err.Error(), nil)
					return WrapExitError(ExitFailure, "work order not found", err)
				}
				return WrapExitError(ExitFailure, "failed to read order", err)
			}
			return out.SuccessText(renderWorkOrders([]model.WorkOrder{*wo}), wo)
		},
	}
}
