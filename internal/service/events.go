package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type OrderItemEvent struct {
	ProductID      uuid.UUID `json:"product_id"`
	Quantity       int64     `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	LineTotalCents int64     `json:"line_total_cents"`
}

type OrderPlacedEvent struct {
	OrderID      uuid.UUID        `json:"order_id"`
	CustomerName string           `json:"customer_name"`
	Items        []OrderItemEvent `json:"items"`
	TotalCents   int64            `json:"total_cents"`
	PlacedAt     time.Time        `json:"placed_at"`
}

type LowStockEvent struct {
	ProductID uuid.UUID `json:"product_id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Stock     int64     `json:"stock"`
	Threshold int64     `json:"threshold"`
}

type EventBus interface {
	PublishOrderPlaced(ctx context.Context, e OrderPlacedEvent) error
	PublishLowStock(ctx context.Context, e LowStockEvent) error
}

// NopEventBus — заглушка для деплоя без Kafka.
type NopEventBus struct{}

func (NopEventBus) PublishOrderPlaced(context.Context, OrderPlacedEvent) error { return nil }
func (NopEventBus) PublishLowStock(context.Context, LowStockEvent) error       { return nil }
