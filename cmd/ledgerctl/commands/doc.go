// Package commands defines the ledgerctl CLI used by operators and by the
// timer that drives allowance payouts.
//
// Commands
//
//   - migrate     Apply the schema to the configured store
//   - seed        Load accounts, products and allowances from a JSON file
//   - payout      Run one allowance payout cycle
//   - adjust      Credit or debit an account with a description
//   - reconcile   Compare cached balances with the transaction log
//
// The root command reads the LEDGER_* environment (and .env), opens the store
// and builds the ledger before any subcommand runs.
package commands
