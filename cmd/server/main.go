package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"paygate/internal/config"
	"paygate/internal/db"
	"paygate/internal/gateway"
	"paygate/internal/gateway/callback"
	"paygate/internal/idempotency"
	"paygate/internal/logger"
	"paygate/internal/metrics"
	"paygate/internal/middleware"
	"paygate/internal/sign"
	"paygate/internal/transaction"
	"paygate/internal/utils"

	"go.uber.org/zap"
)

// server bundles the handler dependencies.
type server struct {
	repo      transaction.Repository
	newGate   func() gateway.Gateway
	sharedGw  gateway.Gateway
	jwtSecret string
}

type payRequest struct {
	Amount      int64  `json:"amount"`
	CellNumber  string `json:"cell_number,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type payResponse struct {
	TransactionID string            `json:"transaction_id"`
	InvoiceNumber string            `json:"invoice_number"`
	URL           string            `json:"url"`
	Fields        map[string]string `json:"fields"`
}

// handlePay initiates a payment: a fresh adapter per request, then amount,
// pending record, signed redirect form.
func (s *server) handlePay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.WriteJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}

	gw := s.newGate()
	if req.CellNumber != "" {
		gw.SetCellNumber(req.CellNumber)
	}
	if req.CallbackURL != "" {
		gw.SetCallback(req.CallbackURL)
	}

	if err := gw.Set(req.Amount); err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := gw.Ready(r.Context())
	if err != nil {
		logger.FromCtx(r.Context()).Error("failed to initiate payment", zap.Error(err))
		utils.WriteJSONError(w, "could not initiate payment", http.StatusInternalServerError)
		return
	}

	form, err := gw.Redirect()
	if err != nil {
		logger.FromCtx(r.Context()).Error("failed to build redirect", zap.Error(err))
		utils.WriteJSONError(w, "could not build redirect", http.StatusInternalServerError)
		return
	}

	// API clients get the form fields as JSON; browsers get the
	// auto-submit page.
	if r.Header.Get("Accept") == "application/json" {
		utils.WriteJSON(w, payResponse{
			TransactionID: tx.ID,
			InvoiceNumber: tx.InvoiceNumber,
			URL:           form.URL,
			Fields:        form.Fields(),
		}, http.StatusCreated)
		return
	}

	html, err := form.HTML()
	if err != nil {
		utils.WriteJSONError(w, "could not render redirect", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

type refundRequest struct {
	TransactionID string `json:"transaction_id"`
}

type refundResponse struct {
	TransactionID string `json:"transaction_id"`
	IsSuccess     bool   `json:"is_success"`
	Message       string `json:"message,omitempty"`
	Status        string `json:"status"`
}

func (s *server) handleRefund(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		utils.WriteJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TransactionID == "" {
		utils.WriteJSONError(w, "malformed request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := s.repo.GetByID(ctx, req.TransactionID)
	if errors.Is(err, transaction.ErrNotFound) {
		utils.WriteJSONError(w, "unknown transaction", http.StatusNotFound)
		return
	}
	if err != nil {
		utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}

	result, err := s.sharedGw.Refund(ctx, tx)
	if errors.Is(err, gateway.ErrNotRefundable) {
		utils.WriteJSONError(w, "transaction is not refundable", http.StatusConflict)
		return
	}
	if err != nil {
		logger.FromCtx(ctx).Error("refund request failed", zap.Error(err))
		utils.WriteJSONError(w, "refund unavailable, retry later", http.StatusBadGateway)
		return
	}

	status := tx.Status
	if result.IsSuccess {
		if err := s.repo.MarkRefunded(ctx, tx.ID); err != nil {
			logger.FromCtx(ctx).Error("failed to mark transaction refunded", zap.Error(err))
			utils.WriteJSONError(w, "internal error", http.StatusInternalServerError)
			return
		}
		status = transaction.StatusRefunded
	}

	utils.WriteJSON(w, refundResponse{
		TransactionID: tx.ID,
		IsSuccess:     result.IsSuccess,
		Message:       result.Message,
		Status:        string(status),
	}, http.StatusOK)
}

func setupRouter(s *server, cb http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, metrics.Snapshot(), http.StatusOK)
	})

	mux.Handle("/pay", middleware.RequireMerchant(s.jwtSecret, http.HandlerFunc(s.handlePay)))
	mux.Handle("/callback/pasargad", cb)
	mux.Handle("/refund", middleware.RequireMerchant(s.jwtSecret, http.HandlerFunc(s.handleRefund)))

	return logger.RequestIDMiddleware(logger.LoggingMiddleware(middleware.RateLimit(mux)))
}

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := db.InitDB(cfg)
	defer database.Close()

	repo := transaction.NewRepository(database)
	store := idempotency.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, 0)

	signer, err := sign.LoadProcessor(cfg.Pasargad.CertificatePath)
	if err != nil {
		log.Fatalf("failed to load signing key: %v", err)
	}

	exchange := gateway.NewExchange("pasargad", 30*time.Second)
	shared := gateway.NewPasargad(cfg.Pasargad, signer, repo, exchange)

	s := &server{
		repo: repo,
		newGate: func() gateway.Gateway {
			return gateway.NewPasargad(cfg.Pasargad, signer, repo, exchange)
		},
		sharedGw:  shared,
		jwtSecret: cfg.JWTSecret,
	}

	cb := callback.NewHandler(repo, shared, store)
	router := setupRouter(s, cb)

	logger.L().Info("payment gateway listening", zap.String("port", cfg.AppPort))
	log.Fatal(http.ListenAndServe(":"+cfg.AppPort, router))
}
