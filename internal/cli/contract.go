package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/suk-kr/shopfloor/internal/fulfillment"
	"github.com/suk-kr/shopfloor/internal/model"
	"github.com/suk-kr/shopfloor/internal/store"
)

// ContractOptions holds flags for the contract subcommands.
type ContractOptions struct {
	*RootOptions
	Order    string
	Company  string
	Name     string
	Product  string
	Quantity int
	Delivery string
	Status   string
}

// NewContractCommand creates the contract command group.
func NewContractCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Register, list and confirm sales contracts",
	}
	cmd.AddCommand(newContractAddCommand(rootOpts))
	cmd.AddCommand(newContractListCommand(rootOpts))
	cmd.AddCommand(newContractConfirmCommand(rootOpts))
	return cmd
}

func newContractAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContractOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "add",
		Short:         "Register a sales contract",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return addContract(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Order, "order", "", "order number (required)")
	cmd.Flags().StringVar(&opts.Company, "company", "", "customer company code (required)")
	cmd.Flags().StringVar(&opts.Name, "company-name", "", "customer company name")
	cmd.Flags().StringVar(&opts.Product, "product", "", "product code (required)")
	cmd.Flags().IntVar(&opts.Quantity, "qty", 0, "contracted quantity (required)")
	cmd.Flags().StringVar(&opts.Delivery, "delivery", "", "delivery date YYYY-MM-DD (required)")
	_ = cmd.MarkFlagRequired("order")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("qty")
	_ = cmd.MarkFlagRequired("delivery")

	return cmd
}

func addContract(opts *ContractOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	delivery, err := time.Parse("2006-01-02", opts.Delivery)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --delivery", err)
	}
	if opts.Quantity <= 0 {
		return NewExitError(ExitCommandError, "--qty must be positive")
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	contract := model.Contract{
		OrderNumber:  opts.Order,
		CompanyCode:  opts.Company,
		CompanyName:  opts.Name,
		ProductCode:  opts.Product,
		Quantity:     opts.Quantity,
		DeliveryDate: delivery,
		Status:       model.ContractPending,
	}
	if err := st.CreateContract(cmd.Context(), contract); err != nil {
		return WrapExitError(ExitFailure, "failed to register contract", err)
	}
	st.AppendAudit(cmd.Context(), currentUser(), "contract-registered",
		fmt.Sprintf("contract=%s product=%s qty=%d", opts.Order, opts.Product, opts.Quantity))

	return out.SuccessText(
		fmt.Sprintf("Registered contract %s: %d x %s, deliver by %s",
			opts.Order, opts.Quantity, opts.Product, opts.Delivery), contract)
}

func newContractListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContractOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List sales contracts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listContracts(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (pending|confirmed)")
	return cmd
}

func listContracts(opts *ContractOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	contracts, err := st.ListContracts(cmd.Context(), model.ContractStatus(opts.Status))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list contracts", err)
	}
	return out.SuccessText(renderContracts(contracts), contracts)
}

func renderContracts(contracts []model.Contract) string {
	if len(contracts) == 0 {
		return "no contracts"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-14s %-10s %-20s %-12s %6s %-12s %s\n",
		"ORDER", "COMPANY", "NAME", "PRODUCT", "QTY", "DELIVERY", "STATUS")
	for _, c := range contracts {
		fmt.Fprintf(&b, "%-14s %-10s %-20s %-12s %6d %-12s %s\n",
			c.OrderNumber, c.CompanyCode, c.CompanyName, c.ProductCode,
			c.Quantity, c.DeliveryDate.Format("2006-01-02"), c.Status)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newContractConfirmCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <order-number>",
		Short: "Confirm a pending contract",
		Long: `Confirm a pending sales contract.

With sufficient stock on hand the contract is confirmed and a pending
shipment is created. On a shortfall you are prompted for a production plan
covering the missing quantity; declining leaves the contract pending with
nothing written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return confirmContract(rootOpts, cmd, args[0])
		},
	}
}

func confirmContract(opts *RootOptions, cmd *cobra.Command, orderNumber string) error {
	out := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	prompt := NewPromptDecider(cmd.InOrStdin(), cmd.OutOrStdout())
	coord := fulfillment.New(st, prompt, prompt, currentUser())

	if err := coord.ConfirmContract(cmd.Context(), orderNumber); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			_ = out.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitFailure, "contract not found", err)
		case errors.Is(err, fulfillment.ErrDeclined):
			_ = out.Error(ErrCodeDeclined, err.Error(), nil)
			return WrapExitError(ExitFailure, "confirmation declined", err)
		default:
			return WrapExitError(ExitFailure, "failed to confirm contract", err)
		}
	}

	contract, err := st.GetContract(cmd.Context(), orderNumber)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to re-read contract", err)
	}
	return out.SuccessText(fmt.Sprintf("Contract %s: %s", orderNumber, contract.Status), contract)
}
