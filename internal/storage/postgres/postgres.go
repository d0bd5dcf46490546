// Package postgres — durable-бэкенд движка поверх gorm-репозиториев.
// Per-product атомарность обеспечивается условным UPDATE c проверкой
// RowsAffected, all-or-nothing набора движений — транзакцией БД.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Chmgx81/ordina/internal/models"
	"github.com/Chmgx81/ordina/internal/repository"
	"github.com/Chmgx81/ordina/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Store struct {
	repo *repository.Repository
}

func New(db *gorm.DB) *Store {
	return &Store{repo: repository.New(db)}
}

var _ storage.Store = (*Store)(nil)

// wrapErr переводит инфраструктурные ошибки в StorageUnavailable; доменные
// ошибки и ошибки «не найдено» проходят без изменений.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrProductNotFound),
		errors.Is(err, storage.ErrOrderNotFound),
		errors.Is(err, storage.ErrSKUAlreadyExists),
		errors.Is(err, storage.ErrDuplicateOrder),
		errors.Is(err, storage.ErrInvalidQuantity),
		errors.Is(err, storage.ErrInsufficientStock),
		errors.Is(err, gorm.ErrRecordNotFound):
		return err
	}
	return fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	err := s.repo.WithTx(func(tx *repository.Repository) error {
		existing, err := tx.Products.GetBySKU(ctx, p.SKU)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrSKUAlreadyExists
		}
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		return tx.Products.Create(ctx, p)
	})
	return wrapErr(err)
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.repo.Products.GetByID(ctx, id)
	if err != nil {
		return nil, wrapErr(err)
	}
	if p == nil {
		return nil, storage.ErrProductNotFound
	}
	return p, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	p, err := s.repo.Products.GetBySKU(ctx, sku)
	if err != nil {
		return nil, wrapErr(err)
	}
	if p == nil {
		return nil, storage.ErrProductNotFound
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id uuid.UUID, patch storage.ProductPatch) (*models.Product, error) {
	fields := map[string]any{}

	if patch.SKU != nil {
		fields["sku"] = strings.TrimSpace(*patch.SKU)
	}
	if patch.Name != nil {
		fields["name"] = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		fields["description"] = *patch.Description
	}
	if patch.Category != nil {
		fields["category"] = *patch.Category
	}
	if patch.Barcode != nil {
		fields["barcode"] = *patch.Barcode
	}
	if patch.PriceCents != nil {
		fields["price_cents"] = *patch.PriceCents
	}
	if patch.LowStockThreshold != nil {
		fields["low_stock_threshold"] = *patch.LowStockThreshold
	}

	var out *models.Product
	err := s.repo.WithTx(func(tx *repository.Repository) error {
		p, err := tx.Products.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return storage.ErrProductNotFound
		}

		if v, ok := fields["sku"]; ok {
			existing, err := tx.Products.GetBySKU(ctx, v.(string))
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != id {
				return storage.ErrSKUAlreadyExists
			}
		}

		if err := tx.Products.UpdateFields(ctx, id, fields); err != nil {
			return err
		}

		out, err = tx.Products.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return out, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.repo.Products.Delete(ctx, id)
	return ok, wrapErr(err)
}

func (s *Store) ListProducts(ctx context.Context, f storage.ProductFilter) ([]models.Product, int64, error) {
	list, total, err := s.repo.Products.List(ctx, repository.ProductListFilter{
		Query:    f.Query,
		Category: f.Category,
		Limit:    f.Limit,
		Offset:   f.Offset,
	})
	return list, total, wrapErr(err)
}

func (s *Store) GetStock(ctx context.Context, id uuid.UUID) (int64, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

func (s *Store) ApplyMovements(ctx context.Context, inputs []storage.MovementInput) ([]models.StockMovement, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, storage.ErrInvalidQuantity
		}
		if in.Type != models.MovementIn && in.Type != models.MovementOut {
			return nil, storage.ErrInvalidMovementType
		}
	}

	out := make([]models.StockMovement, 0, len(inputs))
	err := s.repo.WithTx(func(tx *repository.Repository) error {
		for _, in := range inputs {
			p, err := tx.Products.GetByID(ctx, in.ProductID)
			if err != nil {
				return err
			}
			if p == nil {
				return storage.ErrProductNotFound
			}

			delta := in.Quantity
			if in.Type == models.MovementOut {
				delta = -in.Quantity
			}

			ok, err := tx.Products.AdjustStock(ctx, in.ProductID, delta)
			if err != nil {
				return err
			}
			if !ok {
				// условный UPDATE не прошёл — остатка не хватает
				return &storage.InsufficientStockError{
					ProductID: in.ProductID,
					Requested: in.Quantity,
					Available: p.Stock,
				}
			}

			m := models.StockMovement{
				ProductID: in.ProductID,
				Type:      in.Type,
				Quantity:  in.Quantity,
				Actor:     in.Actor,
				Note:      in.Note,
			}
			if err := tx.Movements.Append(ctx, &m); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	return out, nil
}

func (s *Store) ListMovements(ctx context.Context, f storage.MovementFilter) ([]models.StockMovement, error) {
	list, err := s.repo.Movements.List(ctx, repository.MovementListFilter{
		ProductID: f.ProductID,
		Type:      f.Type,
		From:      f.From,
		To:        f.To,
		Limit:     f.Limit,
	})
	return list, wrapErr(err)
}

func (s *Store) LowStock(ctx context.Context) ([]models.Product, error) {
	list, err := s.repo.Products.LowStock(ctx)
	return list, wrapErr(err)
}

func (s *Store) InventoryValue(ctx context.Context) (int64, error) {
	total, err := s.repo.Products.InventoryValue(ctx)
	return total, wrapErr(err)
}

func (s *Store) RecordOrder(ctx context.Context, o *models.Order) error {
	err := s.repo.WithTx(func(tx *repository.Repository) error {
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		exists, err := tx.Orders.Exists(ctx, o.ID)
		if err != nil {
			return err
		}
		if exists {
			return storage.ErrDuplicateOrder
		}
		return tx.Orders.Create(ctx, o)
	})
	return wrapErr(err)
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, err := s.repo.Orders.GetByID(ctx, id)
	if err != nil {
		return nil, wrapErr(err)
	}
	if o == nil {
		return nil, storage.ErrOrderNotFound
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, f storage.OrderFilter) ([]models.Order, int64, error) {
	list, total, err := s.repo.Orders.List(ctx, repository.OrderListFilter{
		Status: f.Status,
		From:   f.From,
		To:     f.To,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
	return list, total, wrapErr(err)
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	ok, err := s.repo.Orders.UpdateStatus(ctx, id, status)
	if err != nil {
		return wrapErr(err)
	}
	if !ok {
		return storage.ErrOrderNotFound
	}
	return nil
}

func (s *Store) TopSellingProducts(ctx context.Context, limit int) ([]storage.ProductSales, error) {
	rows, err := s.repo.Orders.TopSelling(ctx, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]storage.ProductSales, 0, len(rows))
	for _, row := range rows {
		out = append(out, storage.ProductSales{ProductID: row.ProductID, UnitsSold: row.UnitsSold})
	}
	return out, nil
}

func (s *Store) SalesTotal(ctx context.Context, statuses []models.OrderStatus) (int64, error) {
	total, err := s.repo.Orders.SalesTotal(ctx, statuses)
	return total, wrapErr(err)
}

func (s *Store) SalesByMonth(ctx context.Context) ([]storage.MonthlySales, error) {
	rows, err := s.repo.Orders.SalesByMonth(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]storage.MonthlySales, 0, len(rows))
	for _, row := range rows {
		out = append(out, storage.MonthlySales{Month: row.Month, TotalCents: row.TotalCents})
	}
	return out, nil
}
