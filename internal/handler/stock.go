package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/idxstock/stockapi/internal/model"
	"github.com/idxstock/stockapi/internal/response"
	"github.com/idxstock/stockapi/internal/service"
)

// dateLayout is the format of history range parameters.
const dateLayout = "2006-01-02"

// StockReader is the read surface used by StockHandler.
type StockReader interface {
	List(ctx context.Context, in service.ListStocksInput) (*service.StockPage, error)
	Get(ctx context.Context, symbol string) (*model.Stock, error)
	Search(ctx context.Context, q string, limit int) ([]*model.Stock, error)
	History(ctx context.Context, symbol string, in service.HistoryInput) (*service.History, error)
	MarketSummary(ctx context.Context) (*model.MarketSummary, error)
}

// StockHandler serves stock data to API-key callers.
type StockHandler struct {
	svc    StockReader
	logger *slog.Logger
}

// NewStockHandler creates a new StockHandler.
func NewStockHandler(svc StockReader, logger *slog.Logger) *StockHandler {
	return &StockHandler{svc: svc, logger: logger}
}

// SearchResult is the compact stock view returned by search.
type SearchResult struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	ChangePercent decimal.Decimal `json:"changePercent"`
}

// SearchMeta describes a search result set.
type SearchMeta struct {
	Query   string `json:"query"`
	Found   int    `json:"found"`
	Showing int    `json:"showing"`
}

// HistoryMeta echoes the requested range.
type HistoryMeta struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// List handles GET /api/v1/stocks.
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(r, "page", 1)
	if !ok {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Parameter page harus bilangan bulat positif")
		return
	}
	limit, ok := queryInt(r, "limit", service.DefaultStockLimit)
	if !ok {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Parameter limit harus bilangan bulat positif")
		return
	}

	q := r.URL.Query()
	result, err := h.svc.List(r.Context(), service.ListStocksInput{
		Page:  page,
		Limit: limit,
		Sort:  q.Get("sort"),
		Desc:  strings.EqualFold(q.Get("order"), "desc"),
	})
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	response.OK(w, http.StatusOK, "", result.Stocks, result.Page)
}

// Get handles GET /api/v1/stocks/{symbol}.
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	stock, err := h.svc.Get(r.Context(), symbol)
	if err != nil {
		h.writeError(w, r, err, symbol)
		return
	}
	response.OK(w, http.StatusOK, "", stock, nil)
}

// Search handles GET /api/v1/stocks/search.
func (h *StockHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit, ok := queryInt(r, "limit", service.DefaultSearchLimit)
	if !ok {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Parameter limit harus bilangan bulat positif")
		return
	}

	stocks, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}

	results := make([]SearchResult, 0, len(stocks))
	for _, s := range stocks {
		results = append(results, SearchResult{
			Symbol:        s.Symbol,
			Name:          s.Name,
			Price:         s.Price,
			ChangePercent: s.ChangePercent,
		})
	}
	response.OK(w, http.StatusOK, "", results, SearchMeta{Query: q, Found: len(results), Showing: len(results)})
}

// History handles GET /api/v1/stocks/{symbol}/history.
func (h *StockHandler) History(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	q := r.URL.Query()
	rawFrom, rawTo := q.Get("from"), q.Get("to")

	if rawFrom == "" || rawTo == "" {
		response.Error(w, http.StatusBadRequest, response.CodeMissingParameters, "Parameter from dan to harus diisi (format: YYYY-MM-DD)")
		return
	}
	from, errFrom := time.Parse(dateLayout, rawFrom)
	to, errTo := time.Parse(dateLayout, rawTo)
	if errFrom != nil || errTo != nil {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidDate, "Format tanggal tidak valid (format: YYYY-MM-DD)")
		return
	}

	history, err := h.svc.History(r.Context(), symbol, service.HistoryInput{
		From:     from,
		To:       to,
		Interval: q.Get("interval"),
	})
	if err != nil {
		h.writeError(w, r, err, symbol)
		return
	}
	response.OK(w, http.StatusOK, "", history, HistoryMeta{From: rawFrom, To: rawTo, Count: len(history.Prices)})
}

// Summary handles GET /api/v1/stocks/summary.
func (h *StockHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.MarketSummary(r.Context())
	if err != nil {
		h.writeError(w, r, err, "")
		return
	}
	response.OK(w, http.StatusOK, "", summary, nil)
}

// writeError maps read-path service errors to responses.
func (h *StockHandler) writeError(w http.ResponseWriter, r *http.Request, err error, symbol string) {
	switch {
	case errors.Is(err, service.ErrStockNotFound):
		response.Error(w, http.StatusNotFound, response.CodeStockNotFound,
			fmt.Sprintf("Saham dengan symbol '%s' tidak ditemukan", symbol))
	case errors.Is(err, service.ErrMissingQuery):
		response.Error(w, http.StatusBadRequest, response.CodeMissingQuery, "Parameter q harus diisi")
	case errors.Is(err, service.ErrInvalidQuery):
		response.Error(w, http.StatusBadRequest, response.CodeInvalidQuery, "Query pencarian minimal 2 karakter")
	case errors.Is(err, service.ErrInvalidSort):
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
			"Parameter sort tidak valid. Pilihan: "+strings.Join(model.ValidStockSorts, ", "))
	case errors.Is(err, service.ErrInvalidPage):
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Parameter page dan limit harus bilangan bulat positif")
	case errors.Is(err, service.ErrInvalidInterval):
		response.Error(w, http.StatusBadRequest, response.CodeInvalidInterval, "Interval tidak didukung. Gunakan 'daily'")
	case errors.Is(err, service.ErrInvalidDateRange):
		response.Error(w, http.StatusBadRequest, response.CodeInvalidDate, "Tanggal from harus sebelum atau sama dengan to")
	default:
		serverError(h.logger, w, r, "stock request failed", err)
	}
}
