package main

import (
	"github.com/shopspring/decimal"

	"github.com/idxstock/stockapi/internal/model"
)

type seedUser struct {
	Name     string
	Email    string
	Password string
	Role     model.Role
	Plan     model.Plan
	WithKey  bool
}

var seedUsers = []seedUser{
	{Name: "Admin User", Email: "admin@stockapi.com", Password: "admin123", Role: model.RoleAdmin, Plan: model.PlanEnterprise},
	{Name: "John Doe", Email: "john@example.com", Password: "user123", Role: model.RoleUser, Plan: model.PlanFree, WithKey: true},
	{Name: "Jane Smith", Email: "jane@example.com", Password: "user123", Role: model.RoleUser, Plan: model.PlanStarter, WithKey: true},
}

type seedStock struct {
	Symbol, Name, Sector, Subsector  string
	Price, Open, High, Low, Change   int64
	ChangePercent                    string
	Volume, Value, MarketCap, Shares int64
}

var seedStocks = []seedStock{
	{"BBCA", "Bank Central Asia Tbk", "Banking", "Bank", 9875, 9800, 9900, 9750, 125, "1.28", 45678900, 451234567890, 1234567890000, 125000000000},
	{"BBRI", "Bank Rakyat Indonesia Tbk", "Banking", "Bank", 5250, 5300, 5350, 5200, -50, "-0.94", 89234500, 468481125000, 987654321000, 188000000000},
	{"BMRI", "Bank Mandiri Tbk", "Banking", "Bank", 6500, 6475, 6550, 6450, 25, "0.39", 67890123, 441285799500, 1567890123000, 241000000000},
	{"TLKM", "Telkom Indonesia Tbk", "Telecommunication", "Telecommunication", 3850, 3800, 3900, 3775, 75, "1.99", 123456789, 475308637150, 385000000000, 100000000000},
	{"ASII", "Astra International Tbk", "Automotive", "Automotive", 5100, 5050, 5150, 5000, 50, "0.99", 34567890, 176296239000, 204000000000, 40000000000},
	{"UNVR", "Unilever Indonesia Tbk", "Consumer Goods", "Consumer Goods", 2650, 2625, 2675, 2610, 25, "0.95", 12345678, 32715546700, 198750000000, 75000000000},
	{"GOTO", "GoTo Gojek Tokopedia Tbk", "Technology", "E-commerce", 125, 100, 135, 98, 25, "25.00", 987654321, 123456790125, 25000000000, 200000000000},
	{"INDF", "Indofood Sukses Makmur Tbk", "Consumer Goods", "Food & Beverages", 6775, 6750, 6800, 6725, 25, "0.37", 23456789, 158934644775, 59581250000, 8793850000},
}

func (s seedStock) model() *model.Stock {
	price := decimal.NewFromInt(s.Price)
	return &model.Stock{
		Symbol:        s.Symbol,
		Name:          s.Name,
		Sector:        s.Sector,
		Subsector:     s.Subsector,
		Price:         price,
		Open:          decimal.NewFromInt(s.Open),
		High:          decimal.NewFromInt(s.High),
		Low:           decimal.NewFromInt(s.Low),
		Close:         price,
		Change:        decimal.NewFromInt(s.Change),
		ChangePercent: decimal.RequireFromString(s.ChangePercent),
		Volume:        model.BigInt(s.Volume),
		Value:         model.BigInt(s.Value),
		MarketCap:     model.BigInt(s.MarketCap),
		Shares:        model.BigInt(s.Shares),
	}
}
