// Package events publishes stock change notifications for downstream
// consumers such as quote caches and search indexers.
package events

import (
	"context"
	"time"

	"github.com/idxstock/stockapi/internal/model"
)

// Event types.
const (
	StockCreated = "STOCK_CREATED"
	StockUpdated = "STOCK_UPDATED"
	StockDeleted = "STOCK_DELETED"
)

// StockEvent is the message body published for each change.
type StockEvent struct {
	EventType string       `json:"eventType"`
	Symbol    string       `json:"symbol"`
	StockID   string       `json:"stockId"`
	Stock     *model.Stock `json:"stock,omitempty"`
	Actor     string       `json:"actor,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Publisher emits stock events.
type Publisher interface {
	Publish(ctx context.Context, event StockEvent) error
	Close() error
}

// Noop discards events. Used when no broker is configured.
type Noop struct{}

// Publish discards the event.
func (Noop) Publish(context.Context, StockEvent) error { return nil }

// Close is a no-op.
func (Noop) Close() error { return nil }
