package service

import (
	"context"
	"time"

	"github.com/Chmgx81/ordina/internal/models"
	"github.com/Chmgx81/ordina/internal/storage"

	"github.com/google/uuid"
)

type ProductInput struct {
	SKU               string
	Name              string
	Description       string
	Category          string
	Barcode           string
	PriceCents        int64
	InitialStock      int64
	LowStockThreshold int64
	Actor             string // кто заводит товар; попадает в движение Initial stock
}

type ProductPatch struct {
	SKU               *string
	Name              *string
	Description       *string
	Category          *string
	Barcode           *string
	PriceCents        *int64
	LowStockThreshold *int64
}

type ProductListFilter struct {
	Query    string
	Category string
	Limit    int
	Offset   int
}

type MovementInput struct {
	Type     models.MovementType
	Quantity int64
	Actor    string
	Note     string
}

type MovementListFilter struct {
	ProductID *uuid.UUID
	Type      *models.MovementType
	From      *time.Time
	To        *time.Time
	Limit     int
}

type OrderItemInput struct {
	ProductID uuid.UUID
	Quantity  int64
}

type PlaceOrderInput struct {
	CustomerName string
	Actor        string // по умолчанию "system"
	Items        []OrderItemInput
}

type OrderListFilter struct {
	Status *models.OrderStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type TopProduct struct {
	Product   models.Product
	UnitsSold int64
}

type DashboardStats struct {
	Products            int64
	InventoryValueCents int64
	TotalSalesCents     int64
}

type Dashboard struct {
	Stats        DashboardStats
	LowStock     []models.Product
	RecentOrders []models.Order
	SalesByMonth []storage.MonthlySales
}

type LedgerService interface {
	// catalog
	CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, productID uuid.UUID, patch ProductPatch) (*models.Product, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, f ProductListFilter) ([]models.Product, int64, error)
	DeleteProduct(ctx context.Context, productID uuid.UUID) (bool, error)

	// ledger
	GetStock(ctx context.Context, productID uuid.UUID) (int64, error)
	RecordMovement(ctx context.Context, productID uuid.UUID, in MovementInput) (*models.StockMovement, error)
	ListMovements(ctx context.Context, f MovementListFilter) ([]models.StockMovement, error)

	// orders (координатор + журнал)
	PlaceOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, f OrderListFilter) ([]models.Order, int64, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error)

	// reports
	TopSellingProducts(ctx context.Context, limit int) ([]TopProduct, error)
	LowStockProducts(ctx context.Context) ([]models.Product, error)
	GetDashboard(ctx context.Context) (*Dashboard, error)
}
