package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func reconcileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <account-id>...",
		Short: "Check that cached balances match the transaction log",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var mismatched int
			for _, accountID := range args {
				rec, err := a.ledger.VerifyBalance(cmd.Context(), accountID)
				if err != nil {
					return fmt.Errorf("%s: %w", accountID, err)
				}
				status := "ok"
				if !rec.Consistent {
					status = "MISMATCH"
					mismatched++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s balance=%d ledger=%d %s\n",
					rec.AccountID, rec.Balance, rec.LedgerSum, status)
			}
			if mismatched > 0 {
				return fmt.Errorf("%d account(s) out of balance", mismatched)
			}
			return nil
		},
	}
}
