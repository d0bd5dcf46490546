package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Chmgx81/ordina/internal/models"
	"github.com/Chmgx81/ordina/internal/service"
	"github.com/Chmgx81/ordina/internal/storage"
	"github.com/Chmgx81/ordina/internal/storage/memory"

	"github.com/google/uuid"
)

// blockingBus виснет в первой публикации, пока тест её не отпустит.
type blockingBus struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func newBlockingBus() *blockingBus {
	return &blockingBus{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingBus) PublishOrderPlaced(context.Context, service.OrderPlacedEvent) error {
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	b.mu.Unlock()

	if first {
		close(b.started)
		<-b.release
	}
	return nil
}

func (b *blockingBus) PublishLowStock(context.Context, service.LowStockEvent) error { return nil }

// captureBus копит опубликованные события.
type captureBus struct {
	mu  sync.Mutex
	low []service.LowStockEvent
}

func (b *captureBus) PublishOrderPlaced(context.Context, service.OrderPlacedEvent) error { return nil }

func (b *captureBus) PublishLowStock(_ context.Context, e service.LowStockEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.low = append(b.low, e)
	return nil
}

func (b *captureBus) lowEvents() []service.LowStockEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]service.LowStockEvent(nil), b.low...)
}

// seedFailStore роняет ApplyMovements, остальное делегирует.
type seedFailStore struct {
	storage.Store
	fail error
}

func (s *seedFailStore) ApplyMovements(context.Context, []storage.MovementInput) ([]models.StockMovement, error) {
	return nil, s.fail
}

func newService(t *testing.T) service.LedgerService {
	t.Helper()
	return service.NewLedgerService(memory.New(), nil, nil, nil)
}

func mustCreate(t *testing.T, svc service.LedgerService, sku string, price, stock, threshold int64) *models.Product {
	t.Helper()
	p, err := svc.CreateProduct(context.Background(), service.ProductInput{
		SKU:               sku,
		Name:              "Товар " + sku,
		PriceCents:        price,
		InitialStock:      stock,
		LowStockThreshold: threshold,
	})
	if err != nil {
		t.Fatalf("failed to create product %s: %v", sku, err)
	}
	return p
}

func TestCreateProductValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.CreateProduct(ctx, service.ProductInput{SKU: "", Name: "Без SKU"}); !errors.Is(err, service.ErrProductInvalid) {
		t.Fatalf("expected ErrProductInvalid, got %v", err)
	}
	if _, err := svc.CreateProduct(ctx, service.ProductInput{SKU: "X", Name: "X", PriceCents: -1}); !errors.Is(err, service.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := svc.CreateProduct(ctx, service.ProductInput{SKU: "X", Name: "X", InitialStock: -5}); !errors.Is(err, service.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

// Стартовый остаток заводится движением "Initial stock", так что журнал
// объясняет каждый юнит на складе с самого начала.
func TestCreateProductSeedsInitialMovement(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	p := mustCreate(t, svc, "SEED", 500, 15, 0)
	if p.Stock != 15 {
		t.Fatalf("stock after create: got %d, want 15", p.Stock)
	}

	movs, err := svc.ListMovements(ctx, service.MovementListFilter{ProductID: &p.ID})
	if err != nil {
		t.Fatalf("failed to list movements: %v", err)
	}
	if len(movs) != 1 {
		t.Fatalf("expected a single seeding movement, got %d", len(movs))
	}
	if movs[0].Type != models.MovementIn || movs[0].Quantity != 15 || movs[0].Note != "Initial stock" {
		t.Fatalf("wrong seeding movement: %+v", movs[0])
	}
}

func TestRecordMovement(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	p := mustCreate(t, svc, "MOVE", 100, 10, 0)

	m, err := svc.RecordMovement(ctx, p.ID, service.MovementInput{Type: models.MovementOut, Quantity: 4, Note: "Списание"})
	if err != nil {
		t.Fatalf("failed to record movement: %v", err)
	}
	if m.Actor != "system" {
		t.Fatalf("actor default: got %s, want system", m.Actor)
	}

	stock, err := svc.GetStock(ctx, p.ID)
	if err != nil {
		t.Fatalf("failed to get stock: %v", err)
	}
	if stock != 6 {
		t.Fatalf("stock after out: got %d, want 6", stock)
	}

	if _, err := svc.RecordMovement(ctx, p.ID, service.MovementInput{Type: models.MovementOut, Quantity: 0}); !errors.Is(err, service.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := svc.RecordMovement(ctx, p.ID, service.MovementInput{Type: "transfer", Quantity: 1}); !errors.Is(err, service.ErrInvalidMovementType) {
		t.Fatalf("expected ErrInvalidMovementType, got %v", err)
	}
	if _, err := svc.RecordMovement(ctx, p.ID, service.MovementInput{Type: models.MovementOut, Quantity: 100}); !errors.Is(err, service.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestPlaceOrder(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, "ORD-A", 1500, 10, 0)
	b := mustCreate(t, svc, "ORD-B", 250, 20, 0)

	order, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{
		CustomerName: "Анна",
		Items: []service.OrderItemInput{
			{ProductID: a.ID, Quantity: 2},
			{ProductID: b.ID, Quantity: 4},
		},
	})
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}

	if order.Status != models.OrderStatusPending {
		t.Fatalf("new order status: got %s, want PENDING", order.Status)
	}
	if order.TotalCents != 2*1500+4*250 {
		t.Fatalf("order total: got %d, want %d", order.TotalCents, 2*1500+4*250)
	}
	if len(order.Items) != 2 {
		t.Fatalf("order items: got %d, want 2", len(order.Items))
	}

	// остатки списаны
	if stock, _ := svc.GetStock(ctx, a.ID); stock != 8 {
		t.Fatalf("product A stock: got %d, want 8", stock)
	}
	if stock, _ := svc.GetStock(ctx, b.ID); stock != 16 {
		t.Fatalf("product B stock: got %d, want 16", stock)
	}

	// по одному out-движению на позицию, с пометкой заказа
	note := fmt.Sprintf("Order #%s", order.ID)
	movs, err := svc.ListMovements(ctx, service.MovementListFilter{})
	if err != nil {
		t.Fatalf("failed to list movements: %v", err)
	}
	var orderMovs int
	for _, m := range movs {
		if m.Note == note {
			orderMovs++
			if m.Type != models.MovementOut {
				t.Fatalf("order movement must be out, got %s", m.Type)
			}
		}
	}
	if orderMovs != 2 {
		t.Fatalf("order movements: got %d, want 2", orderMovs)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	p := mustCreate(t, svc, "VAL", 100, 5, 0)

	if _, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{CustomerName: "Пусто"}); !errors.Is(err, service.ErrEmptyOrder) {
		t.Fatalf("expected ErrEmptyOrder, got %v", err)
	}

	_, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{Items: []service.OrderItemInput{
		{ProductID: p.ID, Quantity: 0},
	}})
	if !errors.Is(err, service.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}

	// неизвестный товар валит весь заказ
	_, err = svc.PlaceOrder(ctx, service.PlaceOrderInput{Items: []service.OrderItemInput{
		{ProductID: p.ID, Quantity: 1},
		{ProductID: uuid.New(), Quantity: 1},
	}})
	if !errors.Is(err, service.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if stock, _ := svc.GetStock(ctx, p.ID); stock != 5 {
		t.Fatalf("stock changed on rejected order: got %d, want 5", stock)
	}
}

// Заказ из N позиций атомарен: дефицит по одной позиции откатывает всё.
func TestPlaceOrderAllOrNothing(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, "ATOM-A", 100, 3, 0)
	b := mustCreate(t, svc, "ATOM-B", 100, 50, 0)

	_, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{Items: []service.OrderItemInput{
		{ProductID: a.ID, Quantity: 10}, // дефицит
		{ProductID: b.ID, Quantity: 1},
	}})
	if !errors.Is(err, service.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	var detail *storage.InsufficientStockError
	if !errors.As(err, &detail) {
		t.Fatalf("expected InsufficientStockError detail, got %T", err)
	}
	if detail.ProductID != a.ID || detail.Requested != 10 || detail.Available != 3 {
		t.Fatalf("wrong detail: %+v", detail)
	}

	if stock, _ := svc.GetStock(ctx, a.ID); stock != 3 {
		t.Fatalf("product A stock changed: got %d, want 3", stock)
	}
	if stock, _ := svc.GetStock(ctx, b.ID); stock != 50 {
		t.Fatalf("product B stock changed: got %d, want 50", stock)
	}

	// движений заказа не появилось
	out := models.MovementOut
	movs, err := svc.ListMovements(ctx, service.MovementListFilter{Type: &out})
	if err != nil {
		t.Fatalf("failed to list movements: %v", err)
	}
	if len(movs) != 0 {
		t.Fatalf("rejected order left %d out movements", len(movs))
	}

	_, _, err = svc.ListOrders(ctx, service.OrderListFilter{})
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
}

// Один товар несколькими позициями: доступность проверяется по сумме.
func TestPlaceOrderDuplicateLines(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	p := mustCreate(t, svc, "DUP", 100, 5, 0)

	_, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{Items: []service.OrderItemInput{
		{ProductID: p.ID, Quantity: 3},
		{ProductID: p.ID, Quantity: 3},
	}})
	if !errors.Is(err, service.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock on summed lines, got %v", err)
	}
	if stock, _ := svc.GetStock(ctx, p.ID); stock != 5 {
		t.Fatalf("stock changed on rejected order: got %d, want 5", stock)
	}

	order, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{Items: []service.OrderItemInput{
		{ProductID: p.ID, Quantity: 2},
		{ProductID: p.ID, Quantity: 3},
	}})
	if err != nil {
		t.Fatalf("failed to place order with duplicate lines: %v", err)
	}
	if len(order.Items) != 2 {
		t.Fatalf("duplicate lines must stay separate: got %d items", len(order.Items))
	}
	if stock, _ := svc.GetStock(ctx, p.ID); stock != 0 {
		t.Fatalf("stock after order: got %d, want 0", stock)
	}
}

// Цена позиции — копия цены товара на момент заказа.
func TestPlaceOrderFreezesPrice(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	p := mustCreate(t, svc, "FRZ", 100, 10, 0)

	order, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{Items: []service.OrderItemInput{
		{ProductID: p.ID, Quantity: 2},
	}})
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}

	newPrice := int64(150)
	if _, err := svc.UpdateProduct(ctx, p.ID, service.ProductPatch{PriceCents: &newPrice}); err != nil {
		t.Fatalf("failed to update price: %v", err)
	}

	got, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to get order: %v", err)
	}
	if got.Items[0].UnitPriceCents != 100 || got.TotalCents != 200 {
		t.Fatalf("order price not frozen: unit=%d total=%d", got.Items[0].UnitPriceCents, got.TotalCents)
	}
}

// N конкурентных заказов по 1 шт при остатке N: все проходят, остаток 0,
// следующий заказ получает отказ по дефициту.
func TestPlaceOrderConcurrent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	const n = 50
	p := mustCreate(t, svc, "CONC", 100, n, 0)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{Items: []service.OrderItemInput{
				{ProductID: p.ID, Quantity: 1},
			}})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent placement failed: %v", err)
		}
	}

	stock, err := svc.GetStock(ctx, p.ID)
	if err != nil {
		t.Fatalf("failed to get stock: %v", err)
	}
	if stock != 0 {
		t.Fatalf("stock after %d placements: got %d, want 0", n, stock)
	}

	_, err = svc.PlaceOrder(ctx, service.PlaceOrderInput{Items: []service.OrderItemInput{
		{ProductID: p.ID, Quantity: 1},
	}})
	if !errors.Is(err, service.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock after sell-out, got %v", err)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	p := mustCreate(t, svc, "STAT", 100, 10, 0)
	order, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{Items: []service.OrderItemInput{
		{ProductID: p.ID, Quantity: 1},
	}})
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}

	// PENDING -> SHIPPED минуя CONFIRMED запрещён
	if _, err := svc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusShipped); !errors.Is(err, service.ErrInvalidStatusTransition) {
		t.Fatalf("expected ErrInvalidStatusTransition, got %v", err)
	}

	for _, status := range []models.OrderStatus{
		models.OrderStatusConfirmed, models.OrderStatusShipped, models.OrderStatusDelivered,
	} {
		got, err := svc.UpdateOrderStatus(ctx, order.ID, status)
		if err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
		if got.Status != status {
			t.Fatalf("status: got %s, want %s", got.Status, status)
		}
		// статус не трогает ни total, ни items
		if got.TotalCents != order.TotalCents || len(got.Items) != len(order.Items) {
			t.Fatalf("status change mutated order: %+v", got)
		}
	}

	// DELIVERED терминален
	if _, err := svc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCancelled); !errors.Is(err, service.ErrInvalidStatusTransition) {
		t.Fatalf("expected terminal status to reject transition, got %v", err)
	}

	// отмена не возвращает остаток автоматически
	if stock, _ := svc.GetStock(ctx, p.ID); stock != 9 {
		t.Fatalf("stock after lifecycle: got %d, want 9", stock)
	}
}

func TestTopSellingSkipsDeletedProducts(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, "TOP-A", 100, 10, 0)
	b := mustCreate(t, svc, "TOP-B", 100, 10, 0)

	if _, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{Items: []service.OrderItemInput{
		{ProductID: a.ID, Quantity: 5},
		{ProductID: b.ID, Quantity: 2},
	}}); err != nil {
		t.Fatalf("failed to place order: %v", err)
	}

	if _, err := svc.DeleteProduct(ctx, a.ID); err != nil {
		t.Fatalf("failed to delete product: %v", err)
	}

	top, err := svc.TopSellingProducts(ctx, 10)
	if err != nil {
		t.Fatalf("failed to get top selling: %v", err)
	}
	if len(top) != 1 || top[0].Product.ID != b.ID || top[0].UnitsSold != 2 {
		t.Fatalf("expected only surviving product in top, got %+v", top)
	}
}

func TestGetDashboard(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, "DASH-A", 1000, 10, 20) // ниже порога
	b := mustCreate(t, svc, "DASH-B", 500, 100, 5)

	order, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{Items: []service.OrderItemInput{
		{ProductID: b.ID, Quantity: 4},
	}})
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}
	if _, err := svc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusConfirmed); err != nil {
		t.Fatalf("failed to confirm order: %v", err)
	}
	if _, err := svc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusShipped); err != nil {
		t.Fatalf("failed to ship order: %v", err)
	}

	d, err := svc.GetDashboard(ctx)
	if err != nil {
		t.Fatalf("failed to get dashboard: %v", err)
	}

	if d.Stats.Products != 2 {
		t.Fatalf("products count: got %d, want 2", d.Stats.Products)
	}
	wantValue := int64(10*1000 + 96*500)
	if d.Stats.InventoryValueCents != wantValue {
		t.Fatalf("inventory value: got %d, want %d", d.Stats.InventoryValueCents, wantValue)
	}
	// продажи — только отгруженные и доставленные
	if d.Stats.TotalSalesCents != 4*500 {
		t.Fatalf("total sales: got %d, want %d", d.Stats.TotalSalesCents, 4*500)
	}
	if len(d.LowStock) != 1 || d.LowStock[0].ID != a.ID {
		t.Fatalf("low stock: got %+v", d.LowStock)
	}
	if len(d.RecentOrders) != 1 {
		t.Fatalf("recent orders: got %d, want 1", len(d.RecentOrders))
	}
	if len(d.SalesByMonth) != 1 {
		t.Fatalf("sales by month: got %d rows, want 1", len(d.SalesByMonth))
	}
}

func TestPlaceOrderPublishesOutsideExclusive(t *testing.T) {
	bus := newBlockingBus()
	svc := service.NewLedgerService(memory.New(), bus, nil, nil)
	p := mustCreate(t, svc, "PUB", 100, 10, 0)

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.PlaceOrder(context.Background(), service.PlaceOrderInput{
			Items: []service.OrderItemInput{{ProductID: p.ID, Quantity: 1}},
		})
		firstDone <- err
	}()

	// первый заказ проведён и завис в публикации события
	<-bus.started

	secondDone := make(chan error, 1)
	go func() {
		_, err := svc.PlaceOrder(context.Background(), service.PlaceOrderInput{
			Items: []service.OrderItemInput{{ProductID: p.ID, Quantity: 1}},
		})
		secondDone <- err
	}()

	select {
	case err := <-secondDone:
		if err != nil {
			t.Fatalf("second PlaceOrder: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second order waited for the first order's event publish")
	}

	close(bus.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first PlaceOrder: %v", err)
	}

	stock, err := svc.GetStock(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("failed to get stock: %v", err)
	}
	if stock != 8 {
		t.Fatalf("stock after two orders: got %d, want 8", stock)
	}
}

func TestUpdateOrderStatusConcurrentTransitions(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	p := mustCreate(t, svc, "RACE-ST", 100, 10, 0)

	order, err := svc.PlaceOrder(ctx, service.PlaceOrderInput{
		Items: []service.OrderItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("failed to place order: %v", err)
	}
	for _, st := range []models.OrderStatus{models.OrderStatusConfirmed, models.OrderStatusShipped} {
		if _, err := svc.UpdateOrderStatus(ctx, order.ID, st); err != nil {
			t.Fatalf("failed to move order to %s: %v", st, err)
		}
	}

	results := make(chan error, 2)
	for _, st := range []models.OrderStatus{models.OrderStatusDelivered, models.OrderStatusCancelled} {
		st := st
		go func() {
			_, err := svc.UpdateOrderStatus(ctx, order.ID, st)
			results <- err
		}()
	}

	// из одного статуса должен пройти ровно один переход
	var successes int
	for i := 0; i < 2; i++ {
		err := <-results
		if err == nil {
			successes++
			continue
		}
		if !errors.Is(err, service.ErrInvalidStatusTransition) {
			t.Fatalf("unexpected transition error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successful transitions: got %d, want exactly 1", successes)
	}

	got, err := svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to get order: %v", err)
	}
	if got.Status != models.OrderStatusDelivered && got.Status != models.OrderStatusCancelled {
		t.Fatalf("final status %s is not terminal", got.Status)
	}
}

func TestCreateProductSeedFailureLeavesNoProduct(t *testing.T) {
	mem := memory.New()
	svc := service.NewLedgerService(&seedFailStore{Store: mem, fail: storage.ErrStorageUnavailable}, nil, nil, nil)

	_, err := svc.CreateProduct(context.Background(), service.ProductInput{
		SKU:          "SEED-FAIL",
		Name:         "Товар SEED-FAIL",
		PriceCents:   100,
		InitialStock: 5,
	})
	if !errors.Is(err, service.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}

	// товар с нулевым остатком не должен пережить неудачную проводку
	if _, err := mem.GetProductBySKU(context.Background(), "SEED-FAIL"); !errors.Is(err, storage.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound after failed seed, got %v", err)
	}
}

func TestRecordMovementPublishesLowStock(t *testing.T) {
	bus := &captureBus{}
	svc := service.NewLedgerService(memory.New(), bus, nil, nil)
	p := mustCreate(t, svc, "LOW-MOVE", 100, 10, 5)

	if _, err := svc.RecordMovement(context.Background(), p.ID, service.MovementInput{
		Type:     models.MovementOut,
		Quantity: 6,
		Note:     "Списание брака",
	}); err != nil {
		t.Fatalf("failed to record movement: %v", err)
	}

	events := bus.lowEvents()
	if len(events) != 1 {
		t.Fatalf("low stock events: got %d, want 1", len(events))
	}
	if events[0].ProductID != p.ID || events[0].Stock != 4 || events[0].Threshold != 5 {
		t.Fatalf("wrong low stock event: %+v", events[0])
	}
}
