package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/allowance-ledger/internal/ledger"
	"github.com/sheikh-saqib/allowance-ledger/internal/models"
	"github.com/sheikh-saqib/allowance-ledger/internal/storage/memory"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (http.Handler, *memory.MemoryLedgerStore) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()
	l := ledger.NewLedger(store, ledger.WithClock(func() time.Time { return testNow }))

	_, err := store.CreateAccount(ctx, models.Account{ID: "kid", Name: "Kid"})
	require.NoError(t, err)
	_, err = l.Adjust(ctx, "kid", 100, "opening balance")
	require.NoError(t, err)
	_, err = store.SaveProduct(ctx, models.Product{ID: "p1", Name: "Ice cream", Price: 40, Active: true})
	require.NoError(t, err)

	h := &handler{
		ledger:     l,
		logger:     zap.NewNop(),
		adminToken: "admin-secret",
		cronSecret: "cron-secret",
		now:        func() time.Time { return testNow },
	}
	return h.routes(), store
}

func do(t *testing.T, srv http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestBalance(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/accounts/balance?account_id=kid", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"account_id":"kid","balance":100}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/accounts/balance", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/accounts/balance?account_id=nobody", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/accounts/balance?account_id=kid", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPurchaseEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/purchases", "", `{"account_id":"kid","product_id":"p1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(60), body["new_balance"])

	rec = do(t, srv, http.MethodPost, "/purchases", "", `{"account_id":"kid","product_id":"p1"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "2026-10-17T23:59:00Z", body["available_at"])

	rec = do(t, srv, http.MethodPost, "/purchases", "", `{"account_id":"kid","product_id":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodPost, "/purchases", "", `{"account_id":"","product_id":"p1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "account_id", decodeBody(t, rec)["field"])

	rec = do(t, srv, http.MethodPost, "/purchases", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/purchases/this-week?account_id=kid", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, []any{"p1"}, body["product_ids"])
	assert.Equal(t, "2026-10-17T23:59:00Z", body["resets_at"])

	rec = do(t, srv, http.MethodGet, "/transactions?account_id=kid&limit=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var txns []models.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txns))
	require.Len(t, txns, 1)
	assert.Equal(t, "Purchased Ice cream", txns[0].Description)

	rec = do(t, srv, http.MethodGet, "/transactions?account_id=kid&limit=x", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInsufficientBalanceIsBadRequest(t *testing.T) {
	srv, store := newTestServer(t)
	_, err := store.SaveProduct(context.Background(), models.Product{ID: "bike", Name: "Bike", Price: 500, Active: true})
	require.NoError(t, err)

	rec := do(t, srv, http.MethodPost, "/purchases", "", `{"account_id":"kid","product_id":"bike"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdjustEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("requires admin token", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/adjustments", "", `{"account_id":"kid","amount":5,"description":"x"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = do(t, srv, http.MethodPost, "/adjustments", "cron-secret", `{"account_id":"kid","amount":5,"description":"x"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("floors fractional amounts", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/adjustments", "admin-secret", `{"account_id":"kid","amount":10.9,"description":"bonus"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, float64(110), decodeBody(t, rec)["new_balance"])
	})

	t.Run("negative result", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/adjustments", "admin-secret", `{"account_id":"kid","amount":-500,"description":"oops"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("amount is required", func(t *testing.T) {
		for _, body := range []string{
			`{"account_id":"kid","description":"x"}`,
			`{"account_id":"kid","amount":null,"description":"x"}`,
		} {
			rec := do(t, srv, http.MethodPost, "/adjustments", "admin-secret", body)
			require.Equal(t, http.StatusBadRequest, rec.Code, body)
			assert.Equal(t, "amount", decodeBody(t, rec)["field"])
		}
	})

	t.Run("amount outside int64 is rejected", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/adjustments", "admin-secret",
			`{"account_id":"kid","amount":18446744073709551716,"description":"wraps"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.Equal(t, "amount", decodeBody(t, rec)["field"])
	})

	t.Run("balance overflow is rejected", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/adjustments", "admin-secret",
			`{"account_id":"kid","amount":9223372036854775807,"description":"jackpot"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.Equal(t, "amount", decodeBody(t, rec)["field"])
	})

	t.Run("rejected amounts leave the balance alone", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/accounts/balance?account_id=kid", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(110), decodeBody(t, rec)["balance"])
	})

	t.Run("reconcile", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/accounts/reconcile?account_id=kid", "admin-secret", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody(t, rec)["consistent"])
	})
}

func TestAllowanceEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPut, "/allowances/config", "admin-secret",
		`{"account_id":"kid","frequency":"weekly","amount":20}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "weekly", body["frequency"])
	assert.Equal(t, true, body["active"])

	rec = do(t, srv, http.MethodPut, "/allowances/config", "admin-secret",
		`{"account_id":"kid","frequency":"hourly","amount":20}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPut, "/allowances/config", "admin-secret",
		`{"account_id":"kid","frequency":"weekly"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount", decodeBody(t, rec)["field"])

	rec = do(t, srv, http.MethodPut, "/allowances/config", "admin-secret",
		`{"account_id":"kid","frequency":"weekly","amount":"99999999999999999999"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount", decodeBody(t, rec)["field"])

	rec = do(t, srv, http.MethodGet, "/allowances/config?account_id=kid", "admin-secret", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(20), decodeBody(t, rec)["amount"])

	t.Run("payout accepts the cron secret", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/allowances/payout", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = do(t, srv, http.MethodPost, "/allowances/payout", "cron-secret", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"processed":1,"skipped":0,"errors":0}`, rec.Body.String())

		rec = do(t, srv, http.MethodPost, "/allowances/payout", "admin-secret", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"processed":0,"skipped":1,"errors":0}`, rec.Body.String())
	})

	rec = do(t, srv, http.MethodDelete, "/allowances/config?account_id=kid", "admin-secret", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/allowances/config?account_id=kid", "admin-secret", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmptyTokensNeverAuthorize(t *testing.T) {
	l := ledger.NewLedger(memory.NewMemoryLedgerStore())
	h := &handler{ledger: l, logger: zap.NewNop(), now: time.Now}
	srv := h.routes()

	req := httptest.NewRequest(http.MethodPost, "/allowances/payout", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
