package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"wallet-engine/internal/engine"
	"wallet-engine/internal/store"
	"wallet-engine/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// WalletHandler exposes the engine over HTTP. Every credentialed
// operation is a POST with the phone and PIN in the body, so neither
// ever appears in a URL or access log.
type WalletHandler struct {
	engine *engine.Engine
	logger *zap.Logger
}

func NewWalletHandler(eng *engine.Engine, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{
		engine: eng,
		logger: logger,
	}
}

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta carries pagination metadata.
type Meta struct {
	Page       int `json:"page,omitempty"`
	PageSize   int `json:"page_size,omitempty"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

type credentialRequest struct {
	Phone string `json:"phone"`
	PIN   string `json:"pin"`
}

type amountRequest struct {
	Phone  string `json:"phone"`
	PIN    string `json:"pin"`
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

type transferRequest struct {
	Phone          string `json:"phone"`
	PIN            string `json:"pin"`
	Asset          string `json:"asset"`
	Amount         int64  `json:"amount"`
	RecipientPhone string `json:"recipient_phone"`
}

type balanceRequest struct {
	Phone string `json:"phone"`
	PIN   string `json:"pin"`
	Asset string `json:"asset"`
}

type historyRequest struct {
	Phone    string `json:"phone"`
	PIN      string `json:"pin"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	SortBy   string `json:"sort_by"`
	Order    string `json:"order"`
}

// RegisterRoutes registers all wallet routes.
func (h *WalletHandler) RegisterRoutes(router chi.Router) {
	router.Route("/wallets", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/authenticate", h.Authenticate)
		r.Post("/exists", h.Exists)
		r.Post("/balance", h.GetBalance)
		r.Post("/deposit", h.Deposit)
		r.Post("/withdraw", h.Withdraw)
		r.Post("/transfer", h.Transfer)
		r.Post("/transactions", h.ListTransactions)
		r.Get("/stats", h.GetStats)
	})
}

// Register creates a wallet for a new (phone, PIN) pair.
func (h *WalletHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	id, err := h.engine.Register(ctx, req.Phone, req.PIN)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to register wallet")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(map[string]string{
		"identity": id.String(),
	}, "Wallet registered successfully"))
	h.logger.Info("wallet registered via HTTP",
		util.String("identity", id.String()),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Register"),
	)
}

// Authenticate validates credentials and returns the account view.
func (h *WalletHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	acct, err := h.engine.Authenticate(ctx, req.Phone, req.PIN)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Authentication failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(acct, "Authenticated successfully"))
	h.logger.Debug("wallet authenticated via HTTP",
		util.String("identity", acct.Identity),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Authenticate"),
	)
}

// Exists reports whether a wallet exists for the credentials.
func (h *WalletHandler) Exists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	exists, err := h.engine.Exists(ctx, req.Phone, req.PIN)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Existence check failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]bool{
		"exists": exists,
	}, "Existence check completed"))
}

// GetBalance returns the available balance for one asset.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req balanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	asset, err := store.ParseAsset(req.Asset)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid asset")
		return
	}

	available, err := h.engine.GetBalance(ctx, req.Phone, req.PIN, asset)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get balance")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"asset":     asset.String(),
		"available": available,
	}, "Balance retrieved successfully"))
}

// Deposit credits the authenticated wallet.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.balanceOperation(w, r, "Deposit", h.engine.Deposit)
}

// Withdraw debits the authenticated wallet.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.balanceOperation(w, r, "Withdraw", h.engine.Withdraw)
}

type balanceOp func(ctx context.Context, phone, pin string, asset store.Asset, amount int64) (*engine.Receipt, error)

func (h *WalletHandler) balanceOperation(w http.ResponseWriter, r *http.Request, name string, op balanceOp) {
	ctx := r.Context()
	startTime := time.Now()

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	asset, err := store.ParseAsset(req.Asset)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid asset")
		return
	}

	receipt, err := op(ctx, req.Phone, req.PIN, asset, req.Amount)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Operation failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(receipt, "Operation completed successfully"))
	h.logger.Info("balance operation via HTTP",
		util.Uint64("sequence_id", receipt.SequenceID),
		util.String("kind", receipt.Kind.String()),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", name),
	)
}

// Transfer moves funds to the wallet registered for another phone.
func (h *WalletHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	asset, err := store.ParseAsset(req.Asset)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid asset")
		return
	}

	receipt, err := h.engine.Transfer(ctx, req.Phone, req.PIN, asset, req.Amount, req.RecipientPhone)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Transfer failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(receipt, "Transfer completed successfully"))
	h.logger.Info("transfer via HTTP",
		util.Uint64("sequence_id", receipt.SequenceID),
		util.String("transfer_id", receipt.TransferID),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "Transfer"),
	)
}

// ListTransactions pages through the authenticated account's history.
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req historyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	sortBy, err := store.ParseSortBy(req.SortBy)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid sort field")
		return
	}
	order, err := store.ParseSortOrder(req.Order)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid sort order")
		return
	}

	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 || req.PageSize > 1000 {
		req.PageSize = 100
	}

	page, err := h.engine.ListTransactions(ctx, req.Phone, req.PIN, req.Page, req.PageSize, sortBy, order)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to list transactions")
		return
	}

	response := successResponse(page.Items, "Transactions retrieved successfully")
	response.Meta = &Meta{
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      page.TotalCount,
		TotalPages: page.TotalPages,
	}

	h.respondWithJSON(w, http.StatusOK, response)
	h.logger.Debug("transactions listed via HTTP",
		util.Int("count", len(page.Items)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "ListTransactions"),
	)
}

// GetStats returns aggregate, non-sensitive engine counts.
func (h *WalletHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats(r.Context())
	h.respondWithJSON(w, http.StatusOK, successResponse(stats, "Stats retrieved successfully"))
}

// Helper Methods

func (h *WalletHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *WalletHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode maps engine errors onto HTTP status codes.
func (h *WalletHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidInput), errors.Is(err, engine.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, engine.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrSelfTransfer):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrRecipientNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
