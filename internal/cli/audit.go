package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/suk-kr/shopfloor/internal/model"
)

// NewAuditCommand creates the audit command group.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}
	cmd.AddCommand(newAuditListCommand(rootOpts))
	return cmd
}

func newAuditListCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List recent audit entries",
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

			entries, err := st.ListAudit(cmd.Context(), limit)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list audit entries", err)
			}
			return out.SuccessText(renderAudit(entries), entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	return cmd
}

func renderAudit(entries []model.AuditEntry) string {
	if len(entries) == 0 {
		return "no audit entries"
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %-12s %-28s %s\n",
			e.LoggedAt.Format(time.RFC3339), e.UserID, e.ActionType, e.Detail)
	}
	return strings.TrimRight(b.String(), "\n")
}
