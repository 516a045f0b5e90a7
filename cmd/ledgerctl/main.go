package main

import (
	"os"

	"github.com/sheikh-saqib/allowance-ledger/cmd/ledgerctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
