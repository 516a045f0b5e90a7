package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func payoutCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "payout",
		Short: "Pay every allowance that is due",
		Long:  "Runs one payout cycle. Running it twice in a period pays nothing the second time.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = parsed
			}
			result, err := a.ledger.RunPayoutCycle(cmd.Context(), now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d skipped=%d errors=%d\n",
				result.Processed, result.Skipped, result.Errors)
			if result.Errors > 0 {
				return fmt.Errorf("%d allowance(s) failed", result.Errors)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate due allowances at this RFC 3339 instant instead of now")
	return cmd
}
