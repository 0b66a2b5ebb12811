package dto

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/idxstock/stockapi/internal/model"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestValidate_CreateStockRequest(t *testing.T) {
	tests := []struct {
		name      string
		req       CreateStockRequest
		wantField string
		wantTag   string
	}{
		{"valid", CreateStockRequest{Symbol: "BBCA", Name: "Bank Central Asia Tbk", Price: decPtr("9250")}, "", ""},
		{"missing symbol", CreateStockRequest{Name: "Bank", Price: decPtr("1")}, "symbol", "required"},
		{"missing price", CreateStockRequest{Symbol: "BBCA", Name: "Bank"}, "price", "required"},
		{"negative price", CreateStockRequest{Symbol: "BBCA", Name: "Bank", Price: decPtr("-0.5")}, "price", "gt"},
		{"negative open", CreateStockRequest{Symbol: "BBCA", Name: "Bank", Price: decPtr("1"), Open: decPtr("-1")}, "open", "gte"},
		{"zero low allowed", CreateStockRequest{Symbol: "BBCA", Name: "Bank", Price: decPtr("1"), Low: decPtr("0")}, "", ""},
		{"negative change allowed", CreateStockRequest{Symbol: "BBCA", Name: "Bank", Price: decPtr("1"), Change: decPtr("-25")}, "", ""},
		{"negative shares", CreateStockRequest{Symbol: "BBCA", Name: "Bank", Price: decPtr("1"), Shares: -1}, "shares", "gte"},
		{"symbol too long", CreateStockRequest{Symbol: "ABCDEFGHIJK", Name: "Bank", Price: decPtr("1")}, "symbol", "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}

			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FieldError, got %v", err)
			}
			if fe.Field != tt.wantField || fe.Tag != tt.wantTag {
				t.Errorf("expected %s/%s, got %s/%s", tt.wantField, tt.wantTag, fe.Field, fe.Tag)
			}
		})
	}
}

func TestValidate_UpdateStockRequest(t *testing.T) {
	vol := model.BigInt(-1)
	if err := Validate(&UpdateStockRequest{}); err != nil {
		t.Errorf("empty update should pass validation, got %v", err)
	}
	if err := Validate(&UpdateStockRequest{Volume: &vol}); err == nil {
		t.Error("negative volume should fail")
	}
	if err := Validate(&UpdateStockRequest{Price: decPtr("0")}); err == nil {
		t.Error("zero price should fail")
	}
}

func TestUpdateStockRequest_ToUpdateTrimsSector(t *testing.T) {
	sector := "  Finance "
	u := (&UpdateStockRequest{Sector: &sector}).ToUpdate()
	if u.Sector == nil || *u.Sector != "Finance" {
		t.Errorf("sector not trimmed: %v", u.Sector)
	}
	if u.Name != nil {
		t.Error("absent fields must stay nil")
	}
}
