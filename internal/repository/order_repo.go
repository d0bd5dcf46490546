package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Chmgx81/ordina/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderListFilter struct {
	Status *models.OrderStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type ProductSalesRow struct {
	ProductID uuid.UUID
	UnitsSold int64
}

type MonthlySalesRow struct {
	Month      string
	TotalCents int64
}

type OrderRepo interface {
	Create(ctx context.Context, o *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) (bool, error)
	List(ctx context.Context, f OrderListFilter) ([]models.Order, int64, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	TopSelling(ctx context.Context, limit int) ([]ProductSalesRow, error)
	SalesTotal(ctx context.Context, statuses []models.OrderStatus) (int64, error)
	SalesByMonth(ctx context.Context) ([]MonthlySalesRow, error)
}

type orderRepo struct{ db *gorm.DB }

func NewOrderRepo(db *gorm.DB) OrderRepo { return &orderRepo{db: db} }

func (r *orderRepo) Create(ctx context.Context, o *models.Order) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var ord models.Order
	err := r.db.WithContext(ctx).Preload("Items").First(&ord, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &ord, err
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) (bool, error) {
	// меняем только статус: total и items неприкосновенны
	tx := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(map[string]any{
		"status":     status,
		"updated_at": time.Now(),
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *orderRepo) List(ctx context.Context, f OrderListFilter) ([]models.Order, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})

	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var list []models.Order
	err := q.Order("created_at DESC, id").Limit(f.Limit).Offset(f.Offset).Preload("Items").Find(&list).Error
	return list, total, err
}

func (r *orderRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Count(&cnt).Error
	return cnt > 0, err
}

func (r *orderRepo) TopSelling(ctx context.Context, limit int) ([]ProductSalesRow, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []ProductSalesRow
	// все заказы независимо от статуса; при равных суммах — product_id ASC
	err := r.db.WithContext(ctx).Raw(`
SELECT product_id, SUM(quantity) AS units_sold
FROM order_items
GROUP BY product_id
ORDER BY units_sold DESC, product_id ASC
LIMIT ?
`, limit).Scan(&rows).Error
	return rows, err
}

func (r *orderRepo) SalesTotal(ctx context.Context, statuses []models.OrderStatus) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var total int64
	err := q.Select("COALESCE(SUM(total_cents), 0)").Scan(&total).Error
	return total, err
}

func (r *orderRepo) SalesByMonth(ctx context.Context) ([]MonthlySalesRow, error) {
	var rows []MonthlySalesRow
	err := r.db.WithContext(ctx).Raw(`
SELECT to_char(date_trunc('month', created_at), 'YYYY-MM') AS month,
       SUM(total_cents) AS total_cents
FROM orders
GROUP BY 1
ORDER BY 1
`).Scan(&rows).Error
	return rows, err
}
