package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock is a listed security with its latest quote.
type Stock struct {
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Sector        string          `json:"sector"`
	Subsector     string          `json:"subsector"`
	Price         decimal.Decimal `json:"price"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Volume        BigInt          `json:"volume"`
	Value         BigInt          `json:"value"`
	MarketCap     BigInt          `json:"marketCap"`
	Shares        BigInt          `json:"shares"`
	ForeignBuy    BigInt          `json:"foreignBuy"`
	ForeignSell   BigInt          `json:"foreignSell"`
	LastUpdate    time.Time       `json:"lastUpdate"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// StockHistory is one daily OHLCV bar.
type StockHistory struct {
	ID      string          `json:"id"`
	StockID string          `json:"stockId"`
	Date    time.Time       `json:"date"`
	Open    decimal.Decimal `json:"open"`
	High    decimal.Decimal `json:"high"`
	Low     decimal.Decimal `json:"low"`
	Close   decimal.Decimal `json:"close"`
	Volume  BigInt          `json:"volume"`
}

// MarketSummary aggregates the latest quotes of all stocks.
type MarketSummary struct {
	TotalStocks    int64     `json:"totalStocks"`
	Advancing      int64     `json:"advancing"`
	Declining      int64     `json:"declining"`
	Unchanged      int64     `json:"unchanged"`
	TotalVolume    BigInt    `json:"totalVolume"`
	TotalValue     BigInt    `json:"totalValue"`
	ForeignBuy     BigInt    `json:"foreignBuy"`
	ForeignSell    BigInt    `json:"foreignSell"`
	ForeignNet     BigInt    `json:"foreignNet"`
	TotalMarketCap BigInt    `json:"totalMarketCap"`
	LastUpdate     time.Time `json:"lastUpdate"`
}

// Stock sort columns accepted by the list endpoint.
const (
	SortSymbol        = "symbol"
	SortName          = "name"
	SortPrice         = "price"
	SortChangePercent = "changePercent"
	SortVolume        = "volume"
	SortValue         = "value"
	SortMarketCap     = "marketCap"
)

// ValidStockSorts contains all valid sort columns.
var ValidStockSorts = []string{
	SortSymbol, SortName, SortPrice, SortChangePercent,
	SortVolume, SortValue, SortMarketCap,
}

// IntervalDaily is the only supported history interval.
const IntervalDaily = "daily"

// StockUpdate is an explicit partial update. Nil fields are left unchanged.
type StockUpdate struct {
	Symbol        *string
	Name          *string
	Sector        *string
	Subsector     *string
	Price         *decimal.Decimal
	Open          *decimal.Decimal
	High          *decimal.Decimal
	Low           *decimal.Decimal
	Close         *decimal.Decimal
	Change        *decimal.Decimal
	ChangePercent *decimal.Decimal
	Volume        *BigInt
	Value         *BigInt
	MarketCap     *BigInt
	Shares        *BigInt
	ForeignBuy    *BigInt
	ForeignSell   *BigInt
}

// IsEmpty reports whether the update sets no field.
func (u *StockUpdate) IsEmpty() bool {
	return u.Symbol == nil && u.Name == nil && u.Sector == nil && u.Subsector == nil &&
		u.Price == nil && u.Open == nil && u.High == nil && u.Low == nil && u.Close == nil &&
		u.Change == nil && u.ChangePercent == nil &&
		u.Volume == nil && u.Value == nil && u.MarketCap == nil && u.Shares == nil &&
		u.ForeignBuy == nil && u.ForeignSell == nil
}
