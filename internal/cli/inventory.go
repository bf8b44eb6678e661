package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/suk-kr/shopfloor/internal/model"
)

// InventoryOptions holds flags for the inventory subcommands.
type InventoryOptions struct {
	*RootOptions
	Product  string
	Quantity int
	Type     string
	Remarks  string
}

// NewInventoryCommand creates the inventory command group.
func NewInventoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Post and query the inventory ledger",
	}
	cmd.AddCommand(newInventoryPostCommand(rootOpts))
	cmd.AddCommand(newInventoryListCommand(rootOpts))
	cmd.AddCommand(newInventoryStockCommand(rootOpts))
	return cmd
}

func newInventoryPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InventoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post an ad hoc inventory movement",
		Long: `Post an ad hoc receipt or issue to the inventory ledger. Production
receipts are posted by order completion, not by this command.

Example:
  shopfloor inventory post --product WIDGET-01 --qty 20 --type receipt`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return postInventory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Product, "product", "", "product code (required)")
	cmd.Flags().IntVar(&opts.Quantity, "qty", 0, "quantity, positive (required)")
	cmd.Flags().StringVar(&opts.Type, "type", string(model.PostingReceipt), "posting type (receipt|issue)")
	cmd.Flags().StringVar(&opts.Remarks, "remarks", "", "free-form remarks")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("qty")

	return cmd
}

func postInventory(opts *InventoryOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	if opts.Quantity <= 0 {
		return NewExitError(ExitCommandError, "--qty must be positive; use --type issue for outbound movements")
	}
	ptype := model.PostingType(opts.Type)
	qty := opts.Quantity
	switch ptype {
	case model.PostingReceipt:
	case model.PostingIssue:
		qty = -qty
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --type %q", opts.Type))
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.PostInventory(cmd.Context(), model.InventoryPosting{
		ProductCode: opts.Product,
		Quantity:    qty,
		Type:        ptype,
		Remarks:     opts.Remarks,
		PostedBy:    currentUser(),
		PostedAt:    time.Now(),
	}); err != nil {
		return WrapExitError(ExitFailure, "failed to post inventory", err)
	}

	stock, err := st.CurrentStock(cmd.Context(), opts.Product)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read stock", err)
	}
	return out.SuccessText(
		fmt.Sprintf("Posted %+d %s, stock now %d", qty, opts.Product, stock),
		map[string]any{"product": opts.Product, "quantity": qty, "stock": stock})
}

func newInventoryListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InventoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List ledger postings for a product",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)

			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			postings, err := st.ListPostings(cmd.Context(), opts.Product)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list postings", err)
			}
			return out.SuccessText(renderPostings(postings), postings)
		},
	}
	cmd.Flags().StringVar(&opts.Product, "product", "", "product code (required)")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}

func renderPostings(postings []model.InventoryPosting) string {
	if len(postings) == 0 {
		return "no postings"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%6s %-12s %7s %-8s %-20s %-26s %s\n",
		"ID", "PRODUCT", "QTY", "TYPE", "POSTED", "TAG", "REMARKS")
	for _, p := range postings {
		fmt.Fprintf(&b, "%6d %-12s %+7d %-8s %-20s %-26s %s\n",
			p.ID, p.ProductCode, p.Quantity, p.Type,
			p.PostedAt.Format(time.RFC3339), p.Tag, p.Remarks)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newInventoryStockCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InventoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "stock",
		Short:         "Show current stock for a product",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := opts.formatter(cmd)

			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			stock, err := st.CurrentStock(cmd.Context(), opts.Product)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read stock", err)
			}
			return out.SuccessText(
				fmt.Sprintf("%s: %d", opts.Product, stock),
				map[string]any{"product": opts.Product, "stock": stock})
		},
	}
	cmd.Flags().StringVar(&opts.Product, "product", "", "product code (required)")
	_ = cmd.MarkFlagRequired("product")
	return cmd
}
