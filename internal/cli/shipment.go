package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/suk-kr/shopfloor/internal/model"
)

// NewShipmentCommand creates the shipment command group.
func NewShipmentCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shipment",
		Short: "List planned shipments",
	}
	cmd.AddCommand(newShipmentListCommand(rootOpts))
	return cmd
}

func newShipmentListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List shipments",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			shipments, err := st.ListShipments(cmd.Context(), model.ShipmentStatus(status))
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list shipments", err)
			}
			return out.SuccessText(renderShipments(shipments), shipments)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending|shipped)")
	return cmd
}

func renderShipments(shipments []model.Shipment) string {
	if len(shipments) == 0 {
		return "no shipments"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-14s %-12s %6s %-12s %-12s %s\n",
		"CODE", "CONTRACT", "PRODUCT", "QTY", "SCHEDULED", "VEHICLE", "STATUS")
	for _, sh := range shipments {
		fmt.Fprintf(&b, "%-16s %-14s %-12s %6d %-12s %-12s %s\n",
			sh.Code, sh.OrderNumber, sh.ProductCode, sh.Quantity,
			sh.ScheduledFor.Format("2006-01-02"), sh.Vehicle, sh.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}
