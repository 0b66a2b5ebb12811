package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/idxstock/stockapi/internal/auth"
	"github.com/idxstock/stockapi/internal/handler/dto"
	"github.com/idxstock/stockapi/internal/model"
	"github.com/idxstock/stockapi/internal/response"
	"github.com/idxstock/stockapi/internal/service"
)

// AdminReporter is the user and statistics surface used by AdminHandler.
type AdminReporter interface {
	ListUsers(ctx context.Context, page, limit int) (*service.UserPage, error)
	Stats(ctx context.Context) (*model.AdminStats, error)
}

// StockWriter is the stock management surface used by AdminHandler.
type StockWriter interface {
	ListAll(ctx context.Context) ([]*model.Stock, error)
	Create(ctx context.Context, actor string, in service.CreateStockInput) (*model.Stock, error)
	Update(ctx context.Context, actor, id string, u *model.StockUpdate) (*model.Stock, error)
	Delete(ctx context.Context, actor, id string) error
}

// AdminHandler provides admin-only endpoints for users and stock records.
type AdminHandler struct {
	admin  AdminReporter
	stocks StockWriter
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin AdminReporter, stocks StockWriter, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		stocks: stocks,
		logger: logger,
	}
}

const (
	msgStockMissingFields = "Symbol, name, dan price harus diisi"
	msgStockNotFound      = "Stock tidak ditemukan"
	msgStockExists        = "Stock dengan symbol ini sudah ada"
)

// ListUsers handles GET /admin/users.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, okPage := queryInt(r, "page", 1)
	limit, okLimit := queryInt(r, "limit", service.DefaultUserLimit)
	if !okPage || !okLimit {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Parameter page dan limit harus bilangan bulat positif")
		return
	}

	result, err := h.admin.ListUsers(r.Context(), page, limit)
	if errors.Is(err, service.ErrInvalidPage) {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Parameter page dan limit harus bilangan bulat positif")
		return
	}
	if err != nil {
		serverError(h.logger, w, r, "list users failed", err)
		return
	}
	response.OK(w, http.StatusOK, "", result.Users, result.Page)
}

// Stats handles GET /admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		serverError(h.logger, w, r, "admin stats failed", err)
		return
	}
	response.OK(w, http.StatusOK, "", stats, nil)
}

// ListStocks handles GET /admin/stocks.
func (h *AdminHandler) ListStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.stocks.ListAll(r.Context())
	if err != nil {
		serverError(h.logger, w, r, "list stocks failed", err)
		return
	}
	response.OK(w, http.StatusOK, "", stocks, nil)
}

// CreateStock handles POST /admin/stocks.
func (h *AdminHandler) CreateStock(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateStockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Normalize()
	if !validateBody(w, &req, msgStockMissingFields) {
		return
	}

	stock, err := h.stocks.Create(r.Context(), auth.UserIDFromContext(r.Context()), req.ToInput())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("stock_created", "stock_id", stock.ID, "symbol", stock.Symbol)
	response.OK(w, http.StatusCreated, "Stock berhasil ditambahkan", stock, nil)
}

// UpdateStock handles PUT /admin/stocks/{id}.
func (h *AdminHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dto.UpdateStockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validateBody(w, &req, msgStockMissingFields) {
		return
	}

	stock, err := h.stocks.Update(r.Context(), auth.UserIDFromContext(r.Context()), id, req.ToUpdate())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("stock_updated", "stock_id", stock.ID, "symbol", stock.Symbol)
	response.OK(w, http.StatusOK, "Stock berhasil diupdate", stock, nil)
}

// DeleteStock handles DELETE /admin/stocks/{id}.
func (h *AdminHandler) DeleteStock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.stocks.Delete(r.Context(), auth.UserIDFromContext(r.Context()), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("stock_deleted", "stock_id", id)
	response.OK(w, http.StatusOK, "Stock berhasil dihapus", nil, nil)
}

// writeError maps write-path service errors to responses.
func (h *AdminHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrStockNotFound):
		response.Error(w, http.StatusNotFound, response.CodeStockNotFound, msgStockNotFound)
	case errors.Is(err, service.ErrStockExists):
		response.Error(w, http.StatusConflict, response.CodeStockExists, msgStockExists)
	case errors.Is(err, service.ErrMissingFields):
		response.Error(w, http.StatusBadRequest, response.CodeMissingFields, msgStockMissingFields)
	case errors.Is(err, service.ErrEmptyUpdate):
		response.Error(w, http.StatusBadRequest, response.CodeMissingFields, "Tidak ada field yang diupdate")
	default:
		serverError(h.logger, w, r, "stock write failed", err)
	}
}
