package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/idxstock/stockapi/internal/model"
	"github.com/idxstock/stockapi/internal/response"
	"github.com/idxstock/stockapi/internal/service"
	"github.com/idxstock/stockapi/internal/testutil"
)

func newStockRouter(t *testing.T) (http.Handler, *testutil.MemoryStore) {
	t.Helper()
	store := testutil.NewMemoryStore()
	ctx := context.Background()
	for i, sym := range []string{"BBCA", "BBRI", "TLKM", "ASII"} {
		if err := store.CreateStock(ctx, testutil.NewTestStock(t, sym, int64(1000*(i+1)))); err != nil {
			t.Fatalf("seed stock: %v", err)
		}
	}

	bbca, err := store.GetStockBySymbol(ctx, "BBCA")
	if err != nil {
		t.Fatalf("get seeded stock: %v", err)
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]*model.StockHistory, 0, 10)
	for d := 0; d < 10; d++ {
		p := decimal.NewFromInt(int64(9000 + d*10))
		bars = append(bars, &model.StockHistory{
			ID: testutil.UniqueID("bar"), StockID: bbca.ID, Date: start.AddDate(0, 0, d),
			Open: p, High: p, Low: p, Close: p, Volume: 1000,
		})
	}
	if _, err := store.InsertHistory(ctx, bars); err != nil {
		t.Fatalf("seed history: %v", err)
	}

	h := NewStockHandler(service.NewStockService(store, nil, discardLogger()), discardLogger())
	r := chi.NewRouter()
	r.Get("/stocks", h.List)
	r.Get("/stocks/search", h.Search)
	r.Get("/stocks/summary", h.Summary)
	r.Get("/stocks/{symbol}", h.Get)
	r.Get("/stocks/{symbol}/history", h.History)
	return r, store
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestStockHandler_List(t *testing.T) {
	h, _ := newStockRouter(t)

	rec := get(h, "/stocks?page=2&limit=3&sort=price&order=desc")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	var stocks []model.Stock
	if err := json.Unmarshal(env.Data, &stocks); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(stocks) != 1 || stocks[0].Symbol != "BBCA" {
		t.Errorf("expected last page with BBCA, got %+v", stocks)
	}

	var meta service.Page
	if err := json.Unmarshal(env.Meta, &meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	want := service.Page{Total: 4, Page: 2, PerPage: 3, TotalPages: 2}
	if meta != want {
		t.Errorf("expected meta %+v, got %+v", want, meta)
	}
}

func TestStockHandler_ListRejectsBadParams(t *testing.T) {
	h, _ := newStockRouter(t)

	for _, target := range []string{
		"/stocks?page=0",
		"/stocks?limit=abc",
		"/stocks?sort=password",
		"/stocks?page=9223372036854775807&limit=100",
	} {
		rec := get(h, target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", target, rec.Code)
			continue
		}
		if got := errorCode(t, rec); got != response.CodeInvalidRequest {
			t.Errorf("%s: expected INVALID_REQUEST, got %s", target, got)
		}
	}
}

func TestStockHandler_Get(t *testing.T) {
	h, _ := newStockRouter(t)

	rec := get(h, "/stocks/bbca")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"symbol":"BBCA"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"volume":"1000000"`) {
		t.Errorf("volume should be a JSON string: %s", rec.Body.String())
	}

	rec = get(h, "/stocks/ZZZZ")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error.Code != response.CodeStockNotFound || env.Error.Message != "Saham dengan symbol 'ZZZZ' tidak ditemukan" {
		t.Errorf("unexpected error: %+v", env.Error)
	}
}

func TestStockHandler_Search(t *testing.T) {
	h, _ := newStockRouter(t)

	tests := []struct {
		target     string
		wantStatus int
		wantCode   string
		wantFound  int
	}{
		{"/stocks/search?q=bb", http.StatusOK, "", 2},
		{"/stocks/search?q=tbk&limit=3", http.StatusOK, "", 3},
		{"/stocks/search", http.StatusBadRequest, response.CodeMissingQuery, 0},
		{"/stocks/search?q=b", http.StatusBadRequest, response.CodeInvalidQuery, 0},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(h, tt.target)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantCode != "" {
				if got := errorCode(t, rec); got != tt.wantCode {
					t.Errorf("expected code %s, got %s", tt.wantCode, got)
				}
				return
			}

			env := decodeEnvelope(t, rec)
			var meta SearchMeta
			if err := json.Unmarshal(env.Meta, &meta); err != nil {
				t.Fatalf("decode meta: %v", err)
			}
			if meta.Found != tt.wantFound || meta.Showing != tt.wantFound {
				t.Errorf("expected %d results, got %+v", tt.wantFound, meta)
			}
			if strings.Contains(string(env.Data), "marketCap") {
				t.Errorf("search results should be compact: %s", env.Data)
			}
		})
	}
}

func TestStockHandler_History(t *testing.T) {
	h, _ := newStockRouter(t)

	rec := get(h, "/stocks/BBCA/history?from=2024-01-03&to=2024-01-05")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	var data service.History
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Symbol != "BBCA" || data.Interval != model.IntervalDaily || len(data.Prices) != 3 {
		t.Errorf("unexpected history: symbol=%s interval=%s bars=%d", data.Symbol, data.Interval, len(data.Prices))
	}
	var meta HistoryMeta
	if err := json.Unmarshal(env.Meta, &meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if meta != (HistoryMeta{From: "2024-01-03", To: "2024-01-05", Count: 3}) {
		t.Errorf("unexpected meta: %+v", meta)
	}
}

func TestStockHandler_HistoryErrors(t *testing.T) {
	h, _ := newStockRouter(t)

	tests := []struct {
		target     string
		wantStatus int
		wantCode   string
	}{
		{"/stocks/BBCA/history", http.StatusBadRequest, response.CodeMissingParameters},
		{"/stocks/BBCA/history?from=2024-01-01", http.StatusBadRequest, response.CodeMissingParameters},
		{"/stocks/BBCA/history?from=01-01-2024&to=2024-01-05", http.StatusBadRequest, response.CodeInvalidDate},
		{"/stocks/BBCA/history?from=2024-01-05&to=2024-01-01", http.StatusBadRequest, response.CodeInvalidDate},
		{"/stocks/BBCA/history?from=2024-01-01&to=2024-01-05&interval=weekly", http.StatusBadRequest, response.CodeInvalidInterval},
		{"/stocks/ZZZZ/history?from=2024-01-01&to=2024-01-05", http.StatusNotFound, response.CodeStockNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(h, tt.target)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := errorCode(t, rec); got != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, got)
			}
		})
	}
}

func TestStockHandler_Summary(t *testing.T) {
	h, _ := newStockRouter(t)

	rec := get(h, "/stocks/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"totalStocks":4`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}
