package models

import (
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID                uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SKU               string    `gorm:"type:text;not null;uniqueIndex"`
	Name              string    `gorm:"type:text;not null"`
	Description       string    `gorm:"type:text"`
	Category          string    `gorm:"type:text;index"`
	Barcode           string    `gorm:"type:text"`
	PriceCents        int64     `gorm:"not null;default:0"`
	Stock             int64     `gorm:"not null;default:0"` // CHECK stock >= 0 в миграции
	LowStockThreshold int64     `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Product) TableName() string { return "products" }

type MovementType string

const (
	MovementIn  MovementType = "in"
	MovementOut MovementType = "out"
)

// StockMovement — строка журнала склада. Append-only: записи никогда не
// правятся и не удаляются, коррекция — это новая компенсирующая запись.
type StockMovement struct {
	ID        int64        `gorm:"primaryKey;autoIncrement"`
	ProductID uuid.UUID    `gorm:"type:uuid;not null;index"`
	Type      MovementType `gorm:"type:text;not null;index"`
	Quantity  int64        `gorm:"not null"`
	Actor     string       `gorm:"type:text;not null;default:''"`
	Note      string       `gorm:"type:text;not null;default:''"`

	CreatedAt time.Time `gorm:"not null;default:now();index"`
}

func (StockMovement) TableName() string { return "stock_movements" }

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusReturned  OrderStatus = "RETURNED"
)

type Order struct {
	ID           uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerName string      `gorm:"type:text;not null"`
	Status       OrderStatus `gorm:"type:text;not null;default:'PENDING';index"`
	TotalCents   int64       `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"` // каскад на позиции
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Quantity       int64     `gorm:"not null"` // CHECK quantity > 0 в миграции
	UnitPriceCents int64     `gorm:"not null"` // цена зафиксирована в момент заказа
	LineTotalCents int64     `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (OrderItem) TableName() string { return "order_items" }
