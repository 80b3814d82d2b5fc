// Package server exposes the settlement core to the application backend over
// a thin HMAC-verified HTTP surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coinrails/internal/config"
	"coinrails/internal/hmacauth"
	"coinrails/internal/idempotency"
	"coinrails/internal/ledger"
	"coinrails/internal/settlement"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Server struct {
	cfg        *config.AppConfig
	services   map[string]*settlement.Service
	store      idempotency.Store
	book       ledger.Ledger
	hmac       *hmacauth.Verifier
	metrics    *settlement.Metrics
	log        *zap.Logger
	httpServer *http.Server
	dbHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, services []*settlement.Service, store idempotency.Store, book ledger.Ledger, metrics *settlement.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	byCoin := make(map[string]*settlement.Service, len(services))
	for _, svc := range services {
		byCoin[svc.Coin()] = svc
	}

	s := &Server{
		cfg:      cfg,
		services: byCoin,
		store:    store,
		book:     book,
		metrics:  metrics,
		log:      log,
		hmac: &hmacauth.Verifier{
			Secret:  cfg.Service.HMACSecret,
			MaxSkew: cfg.Service.HMACClockSkew,
		},
	}

	if checker, ok := store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/transfers", s.hmac.Middleware(http.HandlerFunc(s.handleTransfers)))
	mux.Handle("/api/v1/withdrawals", s.hmac.Middleware(http.HandlerFunc(s.handleWithdrawals)))
	mux.HandleFunc("/api/v1/settlements", s.handleSettlements)
	mux.HandleFunc("/api/v1/balance", s.handleBalance)
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	if metrics != nil {
		mux.Handle("/api/v1/metrics", metrics.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info("settlement API listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type transferRequest struct {
	Coin       string `json:"coin"`
	FiatAmount string `json:"fiatAmount"`
	Recipient  string `json:"recipient"`
}

type withdrawalRequest struct {
	Coin string `json:"coin"`
}

type settlementResponse struct {
	Outcome    string `json:"outcome"`
	TxHash     string `json:"txHash,omitempty"`
	CoinAmount string `json:"coinAmount,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := strings.TrimSpace(r.Header.Get("X-Idempotency-Key"))
	if key == "" {
		http.Error(w, "missing X-Idempotency-Key header", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// A failed lookup falls through to a fresh settlement; that risks a
	// duplicate broadcast, so it must be visible in the logs.
	existing, err := s.store.Get(ctx, key)
	if err != nil {
		s.log.Error("idempotency lookup failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.StatusCode)
		_, _ = w.Write(existing.Response)
		return
	}

	var payload transferRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}

	coin := strings.ToUpper(payload.Coin)
	svc, ok := s.services[coin]
	if !ok {
		http.Error(w, fmt.Sprintf("unsupported coin %q", payload.Coin), http.StatusNotFound)
		return
	}

	amount, err := decimal.NewFromString(payload.FiatAmount)
	if err != nil {
		s.writeResult(w, r, key, coin, settlement.Result{
			Outcome: settlement.OutcomeError,
			Err:     &settlement.ValidationError{Msg: "amount must be a positive number"},
		})
		return
	}

	s.writeResult(w, r, key, coin, svc.Transfer(ctx, amount, payload.Recipient))
}

func (s *Server) handleWithdrawals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json payload", http.StatusBadRequest)
		return
	}

	coin := strings.ToUpper(payload.Coin)
	svc, ok := s.services[coin]
	if !ok {
		http.Error(w, fmt.Sprintf("unsupported coin %q", payload.Coin), http.StatusNotFound)
		return
	}

	s.writeResult(w, r, "", coin, svc.Withdraw(r.Context()))
}

// writeResult maps a settlement result to an HTTP response and, when an
// idempotency key is present, caches the response body for replay.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, key, coin string, res settlement.Result) {
	resp := settlementResponse{Outcome: string(res.Outcome), TxHash: res.TxHash}
	if !res.CoinAmount.IsZero() {
		resp.CoinAmount = res.CoinAmount.String()
	}

	status := http.StatusOK
	if res.Err != nil {
		resp.Error = res.Err.Error()
		var verr *settlement.ValidationError
		if errors.As(res.Err, &verr) {
			status = http.StatusBadRequest
		} else {
			status = http.StatusBadGateway
		}
	}

	body, _ := json.Marshal(resp)

	// Only terminal receipts are replayable; transient failures may be
	// retried with the same key.
	if key != "" && status == http.StatusOK {
		record := idempotency.Record{
			Coin:       coin,
			TxHash:     res.TxHash,
			StatusCode: status,
			Response:   body,
			CreatedAt:  time.Now(),
			ExpiresAt:  time.Now().Add(s.cfg.Service.IdemWindow),
		}
		if err := s.store.Save(r.Context(), key, record); err != nil {
			s.log.Error("idempotency save failed",
				zap.String("key", key),
				zap.String("coin", coin),
				zap.Error(err),
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.book == nil {
		http.Error(w, "ledger not configured", http.StatusNotFound)
		return
	}

	coin := strings.ToUpper(r.URL.Query().Get("coin"))
	if _, ok := s.services[coin]; !ok {
		http.Error(w, fmt.Sprintf("unsupported coin %q", coin), http.StatusNotFound)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := s.book.ListByCoin(r.Context(), coin, limit)
	if err != nil {
		http.Error(w, "ledger read failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	coin := strings.ToUpper(r.URL.Query().Get("coin"))
	svc, ok := s.services[coin]
	if !ok {
		http.Error(w, fmt.Sprintf("unsupported coin %q", coin), http.StatusNotFound)
		return
	}

	bal, err := svc.ContractBalance(r.Context())
	if err != nil {
		http.Error(w, "balance read failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Coin    string `json:"coin"`
		Balance string `json:"balance"`
	}{Coin: coin, Balance: bal.String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	type chainInfo struct {
		Connected bool    `json:"connected"`
		LatencyMs float64 `json:"latency_ms"`
		Error     string  `json:"error,omitempty"`
	}

	chains := make(map[string]chainInfo, len(s.services))
	for coin, svc := range s.services {
		start := time.Now()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := svc.Ping(pingCtx)
		cancel()

		info := chainInfo{Connected: err == nil}
		if err != nil {
			info.Error = err.Error()
			overallHealthy = false
		} else {
			info.LatencyMs = float64(time.Since(start).Microseconds()) / 1000.0
		}
		chains[coin] = info
	}

	dbInfo := struct {
		Connected bool   `json:"connected"`
		Error     string `json:"error,omitempty"`
	}{Connected: true}

	if s.dbHealthFn != nil {
		dbCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.dbHealthFn(dbCtx); err != nil {
			dbInfo.Connected = false
			dbInfo.Error = err.Error()
			overallHealthy = false
		}
	}

	status := "healthy"
	if !overallHealthy {
		status = "degraded"
	}

	resp := struct {
		Status   string               `json:"status"`
		Chains   map[string]chainInfo `json:"chains"`
		Database interface{}          `json:"database"`
	}{
		Status:   status,
		Chains:   chains,
		Database: dbInfo,
	}

	w.Header().Set("Content-Type", "application/json")
	if !overallHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
