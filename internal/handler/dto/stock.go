package dto

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/idxstock/stockapi/internal/model"
	"github.com/idxstock/stockapi/internal/service"
)

// CreateStockRequest is the body of POST /admin/stocks. Decimal fields accept
// JSON numbers or numeric strings; counts accept the same.
type CreateStockRequest struct {
	Symbol        string           `json:"symbol" validate:"required,max=10"`
	Name          string           `json:"name" validate:"required,max=200"`
	Sector        string           `json:"sector" validate:"max=100"`
	Subsector     string           `json:"subsector" validate:"max=100"`
	Price         *decimal.Decimal `json:"price" validate:"required,gt=0"`
	Open          *decimal.Decimal `json:"open" validate:"omitempty,gte=0"`
	High          *decimal.Decimal `json:"high" validate:"omitempty,gte=0"`
	Low           *decimal.Decimal `json:"low" validate:"omitempty,gte=0"`
	Close         *decimal.Decimal `json:"close" validate:"omitempty,gte=0"`
	Change        *decimal.Decimal `json:"change"`
	ChangePercent *decimal.Decimal `json:"changePercent"`
	Volume        model.BigInt     `json:"volume" validate:"gte=0"`
	Value         model.BigInt     `json:"value" validate:"gte=0"`
	MarketCap     model.BigInt     `json:"marketCap" validate:"gte=0"`
	Shares        model.BigInt     `json:"shares" validate:"gte=0"`
	ForeignBuy    model.BigInt     `json:"foreignBuy" validate:"gte=0"`
	ForeignSell   model.BigInt     `json:"foreignSell" validate:"gte=0"`
}

// Normalize trims text fields.
func (r *CreateStockRequest) Normalize() {
	r.Symbol = strings.TrimSpace(r.Symbol)
	r.Name = strings.TrimSpace(r.Name)
	r.Sector = strings.TrimSpace(r.Sector)
	r.Subsector = strings.TrimSpace(r.Subsector)
}

// ToInput converts the request to service input.
func (r *CreateStockRequest) ToInput() service.CreateStockInput {
	return service.CreateStockInput{
		Symbol:        r.Symbol,
		Name:          r.Name,
		Sector:        r.Sector,
		Subsector:     r.Subsector,
		Price:         r.Price,
		Open:          r.Open,
		High:          r.High,
		Low:           r.Low,
		Close:         r.Close,
		Change:        r.Change,
		ChangePercent: r.ChangePercent,
		Volume:        r.Volume,
		Value:         r.Value,
		MarketCap:     r.MarketCap,
		Shares:        r.Shares,
		ForeignBuy:    r.ForeignBuy,
		ForeignSell:   r.ForeignSell,
	}
}

// UpdateStockRequest is the body of PUT /admin/stocks/{id}. Absent fields
// are left unchanged.
type UpdateStockRequest struct {
	Symbol        *string          `json:"symbol" validate:"omitempty,max=10"`
	Name          *string          `json:"name" validate:"omitempty,max=200"`
	Sector        *string          `json:"sector" validate:"omitempty,max=100"`
	Subsector     *string          `json:"subsector" validate:"omitempty,max=100"`
	Price         *decimal.Decimal `json:"price" validate:"omitnil,gt=0"`
	Open          *decimal.Decimal `json:"open" validate:"omitnil,gte=0"`
	High          *decimal.Decimal `json:"high" validate:"omitnil,gte=0"`
	Low           *decimal.Decimal `json:"low" validate:"omitnil,gte=0"`
	Close         *decimal.Decimal `json:"close" validate:"omitnil,gte=0"`
	Change        *decimal.Decimal `json:"change"`
	ChangePercent *decimal.Decimal `json:"changePercent"`
	Volume        *model.BigInt    `json:"volume" validate:"omitnil,gte=0"`
	Value         *model.BigInt    `json:"value" validate:"omitnil,gte=0"`
	MarketCap     *model.BigInt    `json:"marketCap" validate:"omitnil,gte=0"`
	Shares        *model.BigInt    `json:"shares" validate:"omitnil,gte=0"`
	ForeignBuy    *model.BigInt    `json:"foreignBuy" validate:"omitnil,gte=0"`
	ForeignSell   *model.BigInt    `json:"foreignSell" validate:"omitnil,gte=0"`
}

// ToUpdate converts the request to a model update.
func (r *UpdateStockRequest) ToUpdate() *model.StockUpdate {
	return &model.StockUpdate{
		Symbol:        r.Symbol,
		Name:          r.Name,
		Sector:        trimmed(r.Sector),
		Subsector:     trimmed(r.Subsector),
		Price:         r.Price,
		Open:          r.Open,
		High:          r.High,
		Low:           r.Low,
		Close:         r.Close,
		Change:        r.Change,
		ChangePercent: r.ChangePercent,
		Volume:        r.Volume,
		Value:         r.Value,
		MarketCap:     r.MarketCap,
		Shares:        r.Shares,
		ForeignBuy:    r.ForeignBuy,
		ForeignSell:   r.ForeignSell,
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
