package commands

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sheikh-saqib/allowance-ledger/internal/ledger"
)

func adjustCmd(a *app) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "adjust <account-id> <amount>",
		Short: "Credit (positive) or debit (negative) an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			units, err := ledger.WholeUnits("amount", amount)
			if err != nil {
				return err
			}
			result, err := a.ledger.Adjust(cmd.Context(), args[0], units, description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Adjusted %s by %d. New balance: %d\n",
				args[0], result.Transaction.Amount, result.NewBalance)
			return nil
		},
	}
	cmd.Example = `  ledgerctl adjust -d "chores bonus" ada 15
  ledgerctl adjust -d "broke a window" -- ada -20`
	cmd.Flags().StringVarP(&description, "description", "d", "", "reason shown in the transaction history (required)")
	return cmd
}
