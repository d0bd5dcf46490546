// Package storage определяет границу хранилища движка: Ledger владеет
// остатками и журналом движений, Journal владеет заказами. Две реализации —
// in-memory (internal/storage/memory) и Postgres (internal/storage/postgres).
package storage

import (
	"context"
	"time"

	"github.com/Chmgx81/ordina/internal/models"

	"github.com/google/uuid"
)

type ProductPatch struct {
	SKU               *string
	Name              *string
	Description       *string
	Category          *string
	Barcode           *string
	PriceCents        *int64
	LowStockThreshold *int64
}

type ProductFilter struct {
	Query    string // по name/sku
	Category string
	Limit    int
	Offset   int
}

type MovementFilter struct {
	ProductID *uuid.UUID
	Type      *models.MovementType
	From      *time.Time
	To        *time.Time
	Limit     int
}

// MovementInput — одно движение для ApplyMovements. Quantity > 0; для
// type=out требуется stock >= Quantity.
type MovementInput struct {
	ProductID uuid.UUID
	Type      models.MovementType
	Quantity  int64
	Actor     string
	Note      string
}

type OrderFilter struct {
	Status *models.OrderStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type ProductSales struct {
	ProductID uuid.UUID
	UnitsSold int64
}

type MonthlySales struct {
	Month      string // "2006-01"
	TotalCents int64
}

// Ledger — авторитетный владелец product.stock и append-only журнала движений.
type Ledger interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*models.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, patch ProductPatch) (*models.Product, error)
	// DeleteProduct возвращает false, если товара нет.
	DeleteProduct(ctx context.Context, id uuid.UUID) (bool, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int64, error)

	GetStock(ctx context.Context, id uuid.UUID) (int64, error)

	// ApplyMovements атомарно применяет весь набор: либо все остатки
	// скорректированы и все записи добавлены в журнал, либо ни одной.
	// Каждой записи назначается монотонный id и timestamp.
	ApplyMovements(ctx context.Context, inputs []MovementInput) ([]models.StockMovement, error)

	// ListMovements — read-only, по убыванию свежести, согласованный
	// снимок на вызов.
	ListMovements(ctx context.Context, f MovementFilter) ([]models.StockMovement, error)

	// LowStock — товары, где stock <= low_stock_threshold.
	LowStock(ctx context.Context) ([]models.Product, error)

	// InventoryValue — Σ price_cents * stock по всем товарам.
	InventoryValue(ctx context.Context) (int64, error)
}

// Journal — владелец записей заказов; остатки только читает.
type Journal interface {
	// RecordOrder вызывается координатором строго после коммита движений.
	RecordOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, int64, error)
	// UpdateOrderStatus меняет только статус: total и items заморожены.
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error

	// TopSellingProducts агрегирует количество по всем заказам независимо
	// от статуса; сортировка по unitsSold desc, при равенстве — по
	// productId asc.
	TopSellingProducts(ctx context.Context, limit int) ([]ProductSales, error)

	// SalesTotal — сумма total по заказам в перечисленных статусах.
	SalesTotal(ctx context.Context, statuses []models.OrderStatus) (int64, error)
	// SalesByMonth — суммы total по месяцам (все статусы), по возрастанию месяца.
	SalesByMonth(ctx context.Context) ([]MonthlySales, error)
}

// Store — полный бэкенд движка.
type Store interface {
	Ledger
	Journal
}
