package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/allowance-ledger/internal/ledger"
)

const seedJSON = `{
  "accounts": [
    {"id": "ada", "name": "Ada", "balance": 100},
    {"id": "bob", "name": "Bob"}
  ],
  "products": [
    {"id": "ice-cream", "name": "Ice cream", "price": 40, "active": true}
  ],
  "allowances": [
    {"account_id": "ada", "frequency": "weekly", "amount": 20},
    {"account_id": "bob", "frequency": "daily", "amount": 5, "active": false}
  ]
}`

func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--store", "sqlite", "--sqlite-path", dbPath, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestLedgerctl(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ledger.db")
	seedPath := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seedPath, []byte(seedJSON), 0o600))

	out, err := run(t, dbPath, "migrate")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Schema up to date")

	out, err = run(t, dbPath, "seed", seedPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "account ada created")
	assert.Contains(t, out, "allowance bob saved")

	out, err = run(t, dbPath, "seed", seedPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "account ada exists, skipped")

	out, err = run(t, dbPath, "payout", "--at", "2026-10-14T12:00:00Z")
	require.NoError(t, err, out)
	assert.Contains(t, out, "processed=1 skipped=0 errors=0")

	out, err = run(t, dbPath, "payout", "--at", "2026-10-14T13:00:00Z")
	require.NoError(t, err, out)
	assert.Contains(t, out, "processed=0 skipped=1 errors=0")

	out, err = run(t, dbPath, "adjust", "-d", "broke a window", "--", "ada", "-20.5")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Adjusted ada by -21. New balance: 99")

	_, err = run(t, dbPath, "adjust", "-d", "too much", "--", "ada", "-500")
	assert.Error(t, err)

	_, err = run(t, dbPath, "adjust", "ada", "5")
	assert.Error(t, err, "description is required")

	_, err = run(t, dbPath, "adjust", "-d", "wraps around", "ada", "18446744073709551716")
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	out, err = run(t, dbPath, "reconcile", "ada", "bob")
	require.NoError(t, err, out)
	assert.Contains(t, out, "ada balance=99 ledger=99 ok")
	assert.Contains(t, out, "bob balance=0 ledger=0 ok")

	_, err = run(t, dbPath, "payout", "--at", "yesterday")
	assert.Error(t, err)
}
