package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/Chmgx81/ordina/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProductListFilter struct {
	Query    string // по name/sku
	Category string
	Limit    int
	Offset   int
}

type ProductRepo interface {
	Create(ctx context.Context, p *models.Product) error
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetBySKU(ctx context.Context, sku string) (*models.Product, error)
	List(ctx context.Context, f ProductListFilter) ([]models.Product, int64, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// AdjustStock атомарно меняет остаток на delta при условии, что итог
	// не уходит в минус: UPDATE ... WHERE stock + delta >= 0.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int64) (bool, error)
	LowStock(ctx context.Context) ([]models.Product, error)
	InventoryValue(ctx context.Context) (int64, error)
}

type productRepo struct {
	db *gorm.DB
}

func NewProductRepo(db *gorm.DB) ProductRepo { return &productRepo{db: db} }

func (r *productRepo) Create(ctx context.Context, p *models.Product) error {
	return r.db.WithContext(ctx).Select("*").Create(p).Error
}

func (r *productRepo) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(fields).Error
}

func (r *productRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var p models.Product
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var p models.Product
	err := r.db.WithContext(ctx).Where("lower(sku) = lower(?)", sku).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}

func (r *productRepo) List(ctx context.Context, f ProductListFilter) ([]models.Product, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Product{})

	if s := strings.TrimSpace(f.Query); s != "" {
		q = q.Where("lower(name) LIKE lower(?) OR lower(sku) LIKE lower(?)", "%"+s+"%", "%"+s+"%")
	}

	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
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

	var list []models.Product
	if err := q.Order("created_at DESC, id").Limit(f.Limit).Offset(f.Offset).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *productRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tx := r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id)
	return tx.RowsAffected > 0, tx.Error
}

func (r *productRepo) AdjustStock(ctx context.Context, id uuid.UUID, delta int64) (bool, error) {
	// атомарно: stock += delta, только если итог неотрицателен
	tx := r.db.WithContext(ctx).Exec(`
UPDATE products
SET stock = stock + @delta,
    updated_at = now()
WHERE id = @pid
  AND stock + @delta >= 0
`, map[string]any{
		"pid":   id,
		"delta": delta,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (r *productRepo) LowStock(ctx context.Context) ([]models.Product, error) {
	var list []models.Product
	err := r.db.WithContext(ctx).
		Where("stock <= low_stock_threshold").
		Order("sku ASC").
		Find(&list).Error
	return list, err
}

func (r *productRepo) InventoryValue(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Select("COALESCE(SUM(price_cents * stock), 0)").
		Scan(&total).Error
	return total, err
}
