package repository

import (
	"context"
	"time"

	"github.com/Chmgx81/ordina/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MovementListFilter struct {
	ProductID *uuid.UUID
	Type      *models.MovementType
	From      *time.Time
	To        *time.Time
	Limit     int
}

// MovementRepo — журнал движений. Только Append и чтение: UPDATE/DELETE по
// таблице не существует в принципе.
type MovementRepo interface {
	Append(ctx context.Context, m *models.StockMovement) error
	List(ctx context.Context, f MovementListFilter) ([]models.StockMovement, error)
	SumByProduct(ctx context.Context, productID uuid.UUID, t models.MovementType) (int64, error)
}

type movementRepo struct{ db *gorm.DB }

func NewMovementRepo(db *gorm.DB) MovementRepo { return &movementRepo{db: db} }

func (r *movementRepo) Append(ctx context.Context, m *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *movementRepo) List(ctx context.Context, f MovementListFilter) ([]models.StockMovement, error) {
	q := r.db.WithContext(ctx).Model(&models.StockMovement{})

	if f.ProductID != nil {
		q = q.Where("product_id = ?", *f.ProductID)
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	if f.Limit <= 0 {
		f.Limit = 100
	}

	var list []models.StockMovement
	err := q.Order("id DESC").Limit(f.Limit).Find(&list).Error
	return list, err
}

func (r *movementRepo) SumByProduct(ctx context.Context, productID uuid.UUID, t models.MovementType) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&models.StockMovement{}).
		Where("product_id = ? AND type = ?", productID, t).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&sum).Error
	return sum, err
}
