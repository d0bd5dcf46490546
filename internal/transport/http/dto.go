package http

import (
	"time"

	"github.com/Chmgx81/ordina/internal/models"
	"github.com/Chmgx81/ordina/internal/service"
)

type CreateProductRequest struct {
	SKU               string `json:"sku"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Category          string `json:"category"`
	Barcode           string `json:"barcode"`
	PriceCents        int64  `json:"price_cents"`
	InitialStock      int64  `json:"initial_stock"`
	LowStockThreshold int64  `json:"low_stock_threshold"`
	Actor             string `json:"actor"`
}

type UpdateProductRequest struct {
	SKU               *string `json:"sku"`
	Name              *string `json:"name"`
	Description       *string `json:"description"`
	Category          *string `json:"category"`
	Barcode           *string `json:"barcode"`
	PriceCents        *int64  `json:"price_cents"`
	LowStockThreshold *int64  `json:"low_stock_threshold"`
}

type ProductResponse struct {
	ID                string `json:"id"`
	SKU               string `json:"sku"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Category          string `json:"category,omitempty"`
	Barcode           string `json:"barcode,omitempty"`
	PriceCents        int64  `json:"price_cents"`
	Stock             int64  `json:"stock"`
	LowStockThreshold int64  `json:"low_stock_threshold"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int64             `json:"total"`
}

type StockResponse struct {
	ProductID string `json:"product_id"`
	Stock     int64  `json:"stock"`
}

type RecordMovementRequest struct {
	Type     string `json:"type"` // "in" | "out"
	Quantity int64  `json:"quantity"`
	Actor    string `json:"actor"`
	Note     string `json:"note"`
}

type MovementResponse struct {
	ID        int64  `json:"id"`
	ProductID string `json:"product_id"`
	Type      string `json:"type"`
	Quantity  int64  `json:"quantity"`
	Actor     string `json:"actor"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

type PlaceOrderRequest struct {
	CustomerName string              `json:"customer_name"`
	Actor        string              `json:"actor"`
	Items        []PlaceOrderItemDTO `json:"items"`
}

type PlaceOrderItemDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type OrderItemResponse struct {
	ProductID      string `json:"product_id"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type OrderResponse struct {
	ID           string              `json:"id"`
	CustomerName string              `json:"customer_name"`
	Status       string              `json:"status"`
	TotalCents   int64               `json:"total_cents"`
	Items        []OrderItemResponse `json:"items"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int64           `json:"total"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

type TopProductResponse struct {
	Product   ProductResponse `json:"product"`
	UnitsSold int64           `json:"units_sold"`
}

type MonthlySalesResponse struct {
	Month      string `json:"month"`
	TotalCents int64  `json:"total_cents"`
}

type DashboardResponse struct {
	Stats struct {
		Products            int64 `json:"products"`
		InventoryValueCents int64 `json:"inventory_value_cents"`
		TotalSalesCents     int64 `json:"total_sales_cents"`
	} `json:"stats"`
	LowStock     []ProductResponse      `json:"low_stock"`
	RecentOrders []OrderResponse        `json:"recent_orders"`
	SalesByMonth []MonthlySalesResponse `json:"sales_by_month"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Requested int64  `json:"requested,omitempty"`
	Available int64  `json:"available,omitempty"`
}

func mapProduct(p *models.Product) ProductResponse {
	return ProductResponse{
		ID:                p.ID.String(),
		SKU:               p.SKU,
		Name:              p.Name,
		Description:       p.Description,
		Category:          p.Category,
		Barcode:           p.Barcode,
		PriceCents:        p.PriceCents,
		Stock:             p.Stock,
		LowStockThreshold: p.LowStockThreshold,
		CreatedAt:         p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         p.UpdatedAt.Format(time.RFC3339),
	}
}

func mapProducts(list []models.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(list))
	for i := range list {
		out = append(out, mapProduct(&list[i]))
	}
	return out
}

func mapMovement(m *models.StockMovement) MovementResponse {
	return MovementResponse{
		ID:        m.ID,
		ProductID: m.ProductID.String(),
		Type:      string(m.Type),
		Quantity:  m.Quantity,
		Actor:     m.Actor,
		Note:      m.Note,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
}

func mapOrder(o *models.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ProductID:      it.ProductID.String(),
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			LineTotalCents: it.LineTotalCents,
		})
	}
	return OrderResponse{
		ID:           o.ID.String(),
		CustomerName: o.CustomerName,
		Status:       string(o.Status),
		TotalCents:   o.TotalCents,
		Items:        items,
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    o.UpdatedAt.Format(time.RFC3339),
	}
}

func mapOrders(list []models.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(list))
	for i := range list {
		out = append(out, mapOrder(&list[i]))
	}
	return out
}

func mapDashboard(d *service.Dashboard) DashboardResponse {
	var resp DashboardResponse
	resp.Stats.Products = d.Stats.Products
	resp.Stats.InventoryValueCents = d.Stats.InventoryValueCents
	resp.Stats.TotalSalesCents = d.Stats.TotalSalesCents
	resp.LowStock = mapProducts(d.LowStock)
	resp.RecentOrders = mapOrders(d.RecentOrders)
	resp.SalesByMonth = make([]MonthlySalesResponse, 0, len(d.SalesByMonth))
	for _, m := range d.SalesByMonth {
		resp.SalesByMonth = append(resp.SalesByMonth, MonthlySalesResponse{Month: m.Month, TotalCents: m.TotalCents})
	}
	return resp
}
