package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/allowance-ledger/internal/ledger"
	"github.com/sheikh-saqib/allowance-ledger/internal/models"
)

type handler struct {
	ledger     *ledger.Ledger
	logger     *zap.Logger
	adminToken string
	cronSecret string
	now        func() time.Time
}

func (h *handler) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /accounts/balance", h.getBalance)
	mux.HandleFunc("GET /transactions", h.listTransactions)
	mux.HandleFunc("POST /purchases", h.purchase)
	mux.HandleFunc("GET /purchases/this-week", h.purchasedThisWeek)

	mux.HandleFunc("POST /adjustments", h.requireAdmin(h.adjust))
	mux.HandleFunc("GET /accounts/reconcile", h.requireAdmin(h.reconcile))
	mux.HandleFunc("GET /allowances/config", h.requireAdmin(h.getAllowanceConfig))
	mux.HandleFunc("PUT /allowances/config", h.requireAdmin(h.upsertAllowanceConfig))
	mux.HandleFunc("DELETE /allowances/config", h.requireAdmin(h.deleteAllowanceConfig))
	mux.HandleFunc("POST /allowances/payout", h.requireBearer(h.payout, h.adminToken, h.cronSecret))

	return h.logRequests(mux)
}

func (h *handler) getBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireQuery(w, r, "account_id")
	if !ok {
		return
	}
	balance, err := h.ledger.GetBalance(r.Context(), accountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"balance":    balance,
	})
}

func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireQuery(w, r, "account_id")
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	txns, err := h.ledger.ListTransactions(r.Context(), accountID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

func (h *handler) purchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"account_id"`
		ProductID string `json:"product_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	result, err := h.ledger.Purchase(r.Context(), req.AccountID, req.ProductID, h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *handler) purchasedThisWeek(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireQuery(w, r, "account_id")
	if !ok {
		return
	}
	now := h.now()
	ids, err := h.ledger.PurchasedThisWeek(r.Context(), accountID, now)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":  accountID,
		"product_ids": ids,
		"resets_at":   h.ledger.NextReset(now),
	})
}

func (h *handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID   string           `json:"account_id"`
		Amount      *decimal.Decimal `json:"amount"`
		Description string           `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, err := requireAmount(req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	result, err := h.ledger.Adjust(r.Context(), req.AccountID, amount, req.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *handler) reconcile(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireQuery(w, r, "account_id")
	if !ok {
		return
	}
	rec, err := h.ledger.VerifyBalance(r.Context(), accountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) getAllowanceConfig(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireQuery(w, r, "account_id")
	if !ok {
		return
	}
	cfg, err := h.ledger.GetAllowanceConfig(r.Context(), accountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handler) upsertAllowanceConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string           `json:"account_id"`
		Frequency models.Frequency `json:"frequency"`
		Amount    *decimal.Decimal `json:"amount"`
		Active    *bool            `json:"active"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, err := requireAmount(req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	cfg, err := h.ledger.UpsertAllowanceConfig(r.Context(), req.AccountID, req.Frequency, amount, active)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *handler) deleteAllowanceConfig(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireQuery(w, r, "account_id")
	if !ok {
		return
	}
	if err := h.ledger.DeleteAllowanceConfig(r.Context(), accountID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) payout(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledger.RunPayoutCycle(r.Context(), h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return h.requireBearer(next, h.adminToken)
}

// requireBearer admits requests carrying any of the non-empty tokens.
func (h *handler) requireBearer(next http.HandlerFunc, tokens ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if ok && presented != "" {
			for _, token := range tokens {
				if token != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
					next(w, r)
					return
				}
			}
		}
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type errorBody struct {
	Error       string     `json:"error"`
	Field       string     `json:"field,omitempty"`
	AvailableAt *time.Time `json:"available_at,omitempty"`
}

// writeError maps ledger errors onto HTTP statuses. Anything unrecognised is
// logged and reported as a 500 without detail.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr    ledger.ValidationError
		already *ledger.AlreadyPurchasedError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Message, Field: verr.Field})
	case errors.As(err, &already):
		at := already.AvailableAt
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), AvailableAt: &at})
	case errors.Is(err, ledger.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrNegativeResult):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func requireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := strings.TrimSpace(r.URL.Query().Get(name))
	if value == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: name + " is a mandatory field", Field: name})
		return "", false
	}
	return value, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

// requireAmount floors a JSON amount to whole currency units. A missing or
// null amount is rejected.
func requireAmount(amount *decimal.Decimal) (int64, error) {
	if amount == nil {
		return 0, ledger.ValidationError{Field: "amount", Message: "is required"}
	}
	return ledger.WholeUnits("amount", *amount)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
