package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Chmgx81/ordina/internal/metrics"
	"github.com/Chmgx81/ordina/internal/models"
	"github.com/Chmgx81/ordina/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultActor = "system"

// Допустимые переходы статуса заказа. Из терминальных состояний
// (Delivered/Cancelled/Returned) переходов нет; total и items статусом
// не затрагиваются никогда.
var statusTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:   {models.OrderStatusConfirmed, models.OrderStatusCancelled, models.OrderStatusReturned},
	models.OrderStatusConfirmed: {models.OrderStatusShipped, models.OrderStatusCancelled, models.OrderStatusReturned},
	models.OrderStatusShipped:   {models.OrderStatusDelivered, models.OrderStatusCancelled, models.OrderStatusReturned},
}

func transitionAllowed(from, to models.OrderStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ledgerService struct {
	store      storage.Store
	locks      *keyedLocks // эксклюзив по товарам
	orderLocks *keyedLocks // эксклюзив по заказам (смена статуса)
	events     EventBus
	metrics    *metrics.Registry
	log        *zap.Logger
	now        func() time.Time
}

func NewLedgerService(store storage.Store, events EventBus, m *metrics.Registry, log *zap.Logger) *ledgerService {
	if events == nil {
		events = NopEventBus{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ledgerService{
		store:      store,
		locks:      newKeyedLocks(),
		orderLocks: newKeyedLocks(),
		events:     events,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

func (s *ledgerService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	if strings.TrimSpace(in.SKU) == "" || strings.TrimSpace(in.Name) == "" {
		return nil, ErrProductInvalid
	}
	if in.PriceCents < 0 {
		return nil, ErrInvalidPrice
	}
	if in.LowStockThreshold < 0 {
		return nil, ErrInvalidThreshold
	}
	if in.InitialStock < 0 {
		return nil, ErrInvalidQuantity
	}

	p := &models.Product{
		SKU:               strings.TrimSpace(in.SKU),
		Name:              strings.TrimSpace(in.Name),
		Description:       strings.TrimSpace(in.Description),
		Category:          strings.TrimSpace(in.Category),
		Barcode:           strings.TrimSpace(in.Barcode),
		PriceCents:        in.PriceCents,
		Stock:             0,
		LowStockThreshold: in.LowStockThreshold,
	}

	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	// стартовый остаток проводим движением, чтобы журнал объяснял каждый
	// юнит на складе
	if in.InitialStock > 0 {
		actor := in.Actor
		if actor == "" {
			actor = defaultActor
		}
		if _, err := s.store.ApplyMovements(ctx, []storage.MovementInput{{
			ProductID: p.ID,
			Type:      models.MovementIn,
			Quantity:  in.InitialStock,
			Actor:     actor,
			Note:      "Initial stock",
		}}); err != nil {
			// не оставляем товар с нулевым остатком при ошибке проводки
			if _, delErr := s.store.DeleteProduct(ctx, p.ID); delErr != nil {
				s.log.Error("failed to remove product after seed failure",
					zap.String("product_id", p.ID.String()), zap.Error(delErr))
			}
			return nil, err
		}
		p.Stock = in.InitialStock
	}

	return p, nil
}

func (s *ledgerService) UpdateProduct(ctx context.Context, productID uuid.UUID, patch ProductPatch) (*models.Product, error) {
	if patch.PriceCents != nil && *patch.PriceCents < 0 {
		return nil, ErrInvalidPrice
	}
	if patch.LowStockThreshold != nil && *patch.LowStockThreshold < 0 {
		return nil, ErrInvalidThreshold
	}
	return s.store.UpdateProduct(ctx, productID, storage.ProductPatch{
		SKU:               patch.SKU,
		Name:              patch.Name,
		Description:       patch.Description,
		Category:          patch.Category,
		Barcode:           patch.Barcode,
		PriceCents:        patch.PriceCents,
		LowStockThreshold: patch.LowStockThreshold,
	})
}

func (s *ledgerService) GetProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	return s.store.GetProduct(ctx, productID)
}

func (s *ledgerService) ListProducts(ctx context.Context, f ProductListFilter) ([]models.Product, int64, error) {
	return s.store.ListProducts(ctx, storage.ProductFilter{
		Query:    f.Query,
		Category: f.Category,
		Limit:    f.Limit,
		Offset:   f.Offset,
	})
}

// DeleteProduct берёт эксклюзив по товару, чтобы не снести его из-под
// идущего размещения заказа.
func (s *ledgerService) DeleteProduct(ctx context.Context, productID uuid.UUID) (bool, error) {
	unlock := s.locks.lockAll([]uuid.UUID{productID})
	defer unlock()

	return s.store.DeleteProduct(ctx, productID)
}

func (s *ledgerService) GetStock(ctx context.Context, productID uuid.UUID) (int64, error) {
	return s.store.GetStock(ctx, productID)
}

func (s *ledgerService) RecordMovement(ctx context.Context, productID uuid.UUID, in MovementInput) (*models.StockMovement, error) {
	if in.Type != models.MovementIn && in.Type != models.MovementOut {
		return nil, ErrInvalidMovementType
	}
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	actor := in.Actor
	if actor == "" {
		actor = defaultActor
	}

	unlock := s.locks.lockAll([]uuid.UUID{productID})
	movs, err := s.store.ApplyMovements(ctx, []storage.MovementInput{{
		ProductID: productID,
		Type:      in.Type,
		Quantity:  in.Quantity,
		Actor:     actor,
		Note:      in.Note,
	}})
	unlock()
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.MovementsApplied.Inc()
	}
	// ручное списание может опустить остаток под порог так же, как заказ
	if in.Type == models.MovementOut {
		s.checkLowStock(ctx, []uuid.UUID{productID})
	}
	return &movs[0], nil
}

func (s *ledgerService) ListMovements(ctx context.Context, f MovementListFilter) ([]models.StockMovement, error) {
	return s.store.ListMovements(ctx, storage.MovementFilter{
		ProductID: f.ProductID,
		Type:      f.Type,
		From:      f.From,
		To:        f.To,
		Limit:     f.Limit,
	})
}

// PlaceOrder делает заказ из N позиций единой атомарной операцией: либо все
// списания проведены и заказ записан, либо состояние не тронуто.
func (s *ledgerService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, error) {
	started := s.now()

	order, err := s.placeOrder(ctx, in)

	if s.metrics != nil {
		s.metrics.PlaceOrderSeconds.Observe(time.Since(started).Seconds())
		if err != nil {
			s.metrics.OrdersRejected.Inc()
		} else {
			s.metrics.OrdersPlaced.Inc()
		}
	}
	if err != nil {
		return nil, err
	}

	// публикация строго после освобождения эксклюзива: медленный брокер не
	// должен тормозить конкурентные размещения по тем же товарам
	s.publishPlaced(ctx, order)
	s.checkLowStock(ctx, orderProductIDs(order))

	return order, nil
}

func orderProductIDs(o *models.Order) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(o.Items))
	ids := make([]uuid.UUID, 0, len(o.Items))
	for _, it := range o.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}

func (s *ledgerService) placeOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	// суммарная потребность по товару: один и тот же товар может идти
	// несколькими позициями
	required := make(map[uuid.UUID]int64, len(in.Items))
	ids := make([]uuid.UUID, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if _, seen := required[it.ProductID]; !seen {
			ids = append(ids, it.ProductID)
		}
		required[it.ProductID] += it.Quantity
	}

	// эксклюзив по всем товарам заказа; порядок захвата канонический,
	// см. keyedLocks
	unlock := s.locks.lockAll(ids)
	defer unlock()

	// проверяем каждую позицию в порядке вызывающего: первый дефицитный
	// товар и называем
	prices := make(map[uuid.UUID]int64, len(ids))
	for _, it := range in.Items {
		if _, done := prices[it.ProductID]; done {
			continue
		}
		p, err := s.store.GetProduct(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if p.Stock < required[p.ID] {
			return nil, &storage.InsufficientStockError{
				ProductID: p.ID,
				Requested: required[p.ID],
				Available: p.Stock,
			}
		}
		prices[p.ID] = p.PriceCents
	}

	orderID := uuid.New()
	now := s.now()
	actor := in.Actor
	if actor == "" {
		actor = defaultActor
	}
	note := fmt.Sprintf("Order #%s", orderID)

	// одно out-движение на позицию заказа (не агрегируем дубли — журнал
	// повторяет структуру заказа)
	movInputs := make([]storage.MovementInput, 0, len(in.Items))
	for _, it := range in.Items {
		movInputs = append(movInputs, storage.MovementInput{
			ProductID: it.ProductID,
			Type:      models.MovementOut,
			Quantity:  it.Quantity,
			Actor:     actor,
			Note:      note,
		})
	}

	if _, err := s.store.ApplyMovements(ctx, movInputs); err != nil {
		return nil, err
	}

	var total int64
	items := make([]models.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		line := prices[it.ProductID] * it.Quantity
		total += line
		items = append(items, models.OrderItem{
			OrderID:        orderID,
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPriceCents: prices[it.ProductID], // копия цены, не ссылка
			LineTotalCents: line,
			CreatedAt:      now,
		})
	}

	order := &models.Order{
		ID:           orderID,
		CustomerName: in.CustomerName,
		Status:       models.OrderStatusPending,
		TotalCents:   total,
		CreatedAt:    now,
		UpdatedAt:    now,
		Items:        items,
	}

	if err := s.store.RecordOrder(ctx, order); err != nil {
		// движения уже зафиксированы — откатываем компенсирующими записями
		s.revertMovements(ctx, movInputs, orderID)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.MovementsApplied.Add(float64(len(movInputs)))
	}
	return order, nil
}

// revertMovements добавляет компенсирующие in-движения, если запись заказа
// не удалась после коммита списаний. Журнал append-only, правок нет.
func (s *ledgerService) revertMovements(ctx context.Context, applied []storage.MovementInput, orderID uuid.UUID) {
	reverts := make([]storage.MovementInput, 0, len(applied))
	for _, m := range applied {
		reverts = append(reverts, storage.MovementInput{
			ProductID: m.ProductID,
			Type:      models.MovementIn,
			Quantity:  m.Quantity,
			Actor:     defaultActor,
			Note:      fmt.Sprintf("Order #%s reverted", orderID),
		})
	}
	if _, err := s.store.ApplyMovements(ctx, reverts); err != nil {
		s.log.Error("failed to revert movements for unrecorded order",
			zap.String("order_id", orderID.String()), zap.Error(err))
	}
}

func (s *ledgerService) publishPlaced(ctx context.Context, o *models.Order) {
	e := OrderPlacedEvent{
		OrderID:      o.ID,
		CustomerName: o.CustomerName,
		TotalCents:   o.TotalCents,
		PlacedAt:     o.CreatedAt,
	}
	for _, it := range o.Items {
		e.Items = append(e.Items, OrderItemEvent{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			LineTotalCents: it.LineTotalCents,
		})
	}
	if err := s.events.PublishOrderPlaced(ctx, e); err != nil {
		s.log.Warn("publish order placed", zap.String("order_id", o.ID.String()), zap.Error(err))
	}
}

func (s *ledgerService) checkLowStock(ctx context.Context, ids []uuid.UUID) {
	for _, id := range ids {
		p, err := s.store.GetProduct(ctx, id)
		if err != nil {
			continue
		}
		if p.Stock <= p.LowStockThreshold {
			if err := s.events.PublishLowStock(ctx, LowStockEvent{
				ProductID: p.ID,
				SKU:       p.SKU,
				Name:      p.Name,
				Stock:     p.Stock,
				Threshold: p.LowStockThreshold,
			}); err != nil {
				s.log.Warn("publish low stock", zap.String("product_id", p.ID.String()), zap.Error(err))
			}
		}
	}
}

func (s *ledgerService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *ledgerService) ListOrders(ctx context.Context, f OrderListFilter) ([]models.Order, int64, error) {
	return s.store.ListOrders(ctx, storage.OrderFilter{
		Status: f.Status,
		From:   f.From,
		To:     f.To,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

func (s *ledgerService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	// read-check-update под эксклюзивом заказа: два конкурентных перехода из
	// одного статуса не должны пройти проверку оба
	unlock := s.orderLocks.lockAll([]uuid.UUID{orderID})
	defer unlock()

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(o.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, o.Status, status)
	}
	if err := s.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, orderID)
}

func (s *ledgerService) TopSellingProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = 10
	}
	sales, err := s.store.TopSellingProducts(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]TopProduct, 0, len(sales))
	for _, row := range sales {
		p, err := s.store.GetProduct(ctx, row.ProductID)
		if errors.Is(err, ErrProductNotFound) {
			continue // товар удалён из каталога, продажи остаются в журнале
		}
		if err != nil {
			return nil, err
		}
		out = append(out, TopProduct{Product: *p, UnitsSold: row.UnitsSold})
	}
	return out, nil
}

func (s *ledgerService) LowStockProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.LowStock(ctx)
}

func (s *ledgerService) GetDashboard(ctx context.Context) (*Dashboard, error) {
	_, productsTotal, err := s.store.ListProducts(ctx, storage.ProductFilter{Limit: 1})
	if err != nil {
		return nil, err
	}

	inventoryValue, err := s.store.InventoryValue(ctx)
	if err != nil {
		return nil, err
	}

	// продажами считаем отгруженные и доставленные заказы
	totalSales, err := s.store.SalesTotal(ctx, []models.OrderStatus{
		models.OrderStatusShipped, models.OrderStatusDelivered,
	})
	if err != nil {
		return nil, err
	}

	lowStock, err := s.store.LowStock(ctx)
	if err != nil {
		return nil, err
	}

	recent, _, err := s.store.ListOrders(ctx, storage.OrderFilter{Limit: 5})
	if err != nil {
		return nil, err
	}

	byMonth, err := s.store.SalesByMonth(ctx)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Stats: DashboardStats{
			Products:            productsTotal,
			InventoryValueCents: inventoryValue,
			TotalSalesCents:     totalSales,
		},
		LowStock:     lowStock,
		RecentOrders: recent,
		SalesByMonth: byMonth,
	}, nil
}
