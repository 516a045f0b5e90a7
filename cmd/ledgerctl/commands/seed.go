package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	interfaces "github.com/sheikh-saqib/allowance-ledger/internal/interfaces"
	"github.com/sheikh-saqib/allowance-ledger/internal/models"
)

// seedFile is the JSON layout read by `ledgerctl seed`.
type seedFile struct {
	Accounts []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Balance int64  `json:"balance"` // credited as an opening adjustment
	} `json:"accounts"`
	Products   []models.Product `json:"products"`
	Allowances []struct {
		AccountID string           `json:"account_id"`
		Frequency models.Frequency `json:"frequency"`
		Amount    int64            `json:"amount"`
		Active    *bool            `json:"active"`
	} `json:"allowances"`
}

func seedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.json>",
		Short: "Create accounts, products and allowances from a JSON file",
		Long:  "Existing accounts are left untouched. Products are saved as given and allowances upserted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var seed seedFile
			if err := json.Unmarshal(raw, &seed); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			for _, acc := range seed.Accounts {
				_, err := a.store.CreateAccount(ctx, models.Account{ID: acc.ID, Name: acc.Name})
				if errors.Is(err, interfaces.ErrAlreadyExists) {
					fmt.Fprintf(out, "account %s exists, skipped\n", acc.ID)
					continue
				}
				if err != nil {
					return fmt.Errorf("account %s: %w", acc.ID, err)
				}
				if acc.Balance > 0 {
					if _, err := a.ledger.Adjust(ctx, acc.ID, acc.Balance, "Opening balance"); err != nil {
						return fmt.Errorf("account %s: %w", acc.ID, err)
					}
				}
				fmt.Fprintf(out, "account %s created\n", acc.ID)
			}
			for _, p := range seed.Products {
				if _, err := a.store.SaveProduct(ctx, p); err != nil {
					return fmt.Errorf("product %s: %w", p.ID, err)
				}
				fmt.Fprintf(out, "product %s saved\n", p.ID)
			}
			for _, al := range seed.Allowances {
				active := al.Active == nil || *al.Active
				if _, err := a.ledger.UpsertAllowanceConfig(ctx, al.AccountID, al.Frequency, al.Amount, active); err != nil {
					return fmt.Errorf("allowance %s: %w", al.AccountID, err)
				}
				fmt.Fprintf(out, "allowance %s saved\n", al.AccountID)
			}
			return nil
		},
	}
}
