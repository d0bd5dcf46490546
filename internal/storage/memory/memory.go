// Package memory — эталонный in-memory бэкенд движка. Все операции идут под
// одним RWMutex, поэтому каждый вызов видит согласованный снимок; наружу
// отдаются только копии.
package memory

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Chmgx81/ordina/internal/models"
	"github.com/Chmgx81/ordina/internal/storage"

	"github.com/google/uuid"
)

type Store struct {
	mu        sync.RWMutex
	products  map[uuid.UUID]*models.Product
	movements []models.StockMovement
	orders    map[uuid.UUID]*models.Order
	seq       int64 // монотонный id движений

	now func() time.Time
}

func New() *Store {
	return &Store{
		products: make(map[uuid.UUID]*models.Product),
		orders:   make(map[uuid.UUID]*models.Order),
		now:      time.Now,
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) CreateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if strings.EqualFold(existing.SKU, p.SKU) {
			return storage.ErrSKUAlreadyExists
		}
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now

	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *Store) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.productCopy(id)
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if strings.EqualFold(p.SKU, sku) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, storage.ErrProductNotFound
}

func (s *Store) UpdateProduct(_ context.Context, id uuid.UUID, patch storage.ProductPatch) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, storage.ErrProductNotFound
	}

	if patch.SKU != nil {
		for oid, existing := range s.products {
			if oid != id && strings.EqualFold(existing.SKU, *patch.SKU) {
				return nil, storage.ErrSKUAlreadyExists
			}
		}
		p.SKU = *patch.SKU
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Barcode != nil {
		p.Barcode = *patch.Barcode
	}
	if patch.PriceCents != nil {
		p.PriceCents = *patch.PriceCents
	}
	if patch.LowStockThreshold != nil {
		p.LowStockThreshold = *patch.LowStockThreshold
	}
	p.UpdatedAt = s.now()

	cp := *p
	return &cp, nil
}

func (s *Store) DeleteProduct(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return false, nil
	}
	delete(s.products, id)
	return true, nil
}

func (s *Store) ListProducts(_ context.Context, f storage.ProductFilter) ([]models.Product, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.Product, 0, len(s.products))
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for _, p := range s.products {
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.SKU), q) {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		matched = append(matched, *p)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return lessID(matched[i].ID, matched[j].ID)
	})

	total := int64(len(matched))
	matched = page(matched, f.Limit, f.Offset)
	return matched, total, nil
}

func (s *Store) GetStock(_ context.Context, id uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return 0, storage.ErrProductNotFound
	}
	return p.Stock, nil
}

func (s *Store) ApplyMovements(_ context.Context, inputs []storage.MovementInput) ([]models.StockMovement, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Сначала валидируем весь набор против проекции остатков — чтобы отказ
	// на k-й позиции не оставил частично применённые движения.
	projected := make(map[uuid.UUID]int64, len(inputs))
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, storage.ErrInvalidQuantity
		}
		p, ok := s.products[in.ProductID]
		if !ok {
			return nil, storage.ErrProductNotFound
		}
		if _, seen := projected[in.ProductID]; !seen {
			projected[in.ProductID] = p.Stock
		}
		switch in.Type {
		case models.MovementIn:
			projected[in.ProductID] += in.Quantity
		case models.MovementOut:
			if projected[in.ProductID] < in.Quantity {
				return nil, &storage.InsufficientStockError{
					ProductID: in.ProductID,
					Requested: in.Quantity,
					Available: projected[in.ProductID],
				}
			}
			projected[in.ProductID] -= in.Quantity
		default:
			return nil, storage.ErrInvalidMovementType
		}
	}

	now := s.now()
	out := make([]models.StockMovement, 0, len(inputs))
	for _, in := range inputs {
		p := s.products[in.ProductID]
		if in.Type == models.MovementIn {
			p.Stock += in.Quantity
		} else {
			p.Stock -= in.Quantity
		}
		p.UpdatedAt = now

		s.seq++
		m := models.StockMovement{
			ID:        s.seq,
			ProductID: in.ProductID,
			Type:      in.Type,
			Quantity:  in.Quantity,
			Actor:     in.Actor,
			Note:      in.Note,
			CreatedAt: now,
		}
		s.movements = append(s.movements, m)
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) ListMovements(_ context.Context, f storage.MovementFilter) ([]models.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.StockMovement, 0, len(s.movements))
	// журнал хранится по возрастанию id — обходим с конца, получая порядок
	// по убыванию свежести
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if f.ProductID != nil && m.ProductID != *f.ProductID {
			continue
		}
		if f.Type != nil && m.Type != *f.Type {
			continue
		}
		if f.From != nil && m.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && m.CreatedAt.After(*f.To) {
			continue
		}
		out = append(out, m)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) LowStock(_ context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Product, 0)
	for _, p := range s.products {
		if p.Stock <= p.LowStockThreshold {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *Store) InventoryValue(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, p := range s.products {
		total += p.PriceCents * p.Stock
	}
	return total, nil
}

func (s *Store) RecordOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if _, ok := s.orders[o.ID]; ok {
		return storage.ErrDuplicateOrder
	}

	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	s.orders[o.ID] = &cp
	return nil
}

func (s *Store) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	return orderCopy(o), nil
}

func (s *Store) ListOrders(_ context.Context, f storage.OrderFilter) ([]models.Order, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			continue
		}
		matched = append(matched, *orderCopy(o))
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return lessID(matched[i].ID, matched[j].ID)
	})

	total := int64(len(matched))
	matched = page(matched, f.Limit, f.Offset)
	return matched, total, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id uuid.UUID, status models.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return storage.ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = s.now()
	return nil
}

func (s *Store) TopSellingProducts(_ context.Context, limit int) ([]storage.ProductSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[uuid.UUID]int64)
	for _, o := range s.orders {
		for _, it := range o.Items {
			sums[it.ProductID] += it.Quantity
		}
	}

	out := make([]storage.ProductSales, 0, len(sums))
	for pid, units := range sums {
		out = append(out, storage.ProductSales{ProductID: pid, UnitsSold: units})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UnitsSold != out[j].UnitsSold {
			return out[i].UnitsSold > out[j].UnitsSold
		}
		return lessID(out[i].ProductID, out[j].ProductID)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SalesTotal(_ context.Context, statuses []models.OrderStatus) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[models.OrderStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	var total int64
	for _, o := range s.orders {
		if len(want) == 0 || want[o.Status] {
			total += o.TotalCents
		}
	}
	return total, nil
}

func (s *Store) SalesByMonth(_ context.Context) ([]storage.MonthlySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[string]int64)
	for _, o := range s.orders {
		sums[o.CreatedAt.Format("2006-01")] += o.TotalCents
	}

	out := make([]storage.MonthlySales, 0, len(sums))
	for month, total := range sums {
		out = append(out, storage.MonthlySales{Month: month, TotalCents: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (s *Store) productCopy(id uuid.UUID) (*models.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func orderCopy(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	return &cp
}

func lessID(a, b uuid.UUID) bool { return bytes.Compare(a[:], b[:]) < 0 }

func page[T any](list []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(list) {
		return []T{}
	}
	list = list[offset:]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}
