package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Chmgx81/ordina/internal/migrate"
	"github.com/Chmgx81/ordina/internal/models"
	"github.com/Chmgx81/ordina/internal/repository"
	"github.com/Chmgx81/ordina/internal/storage"
	"github.com/Chmgx81/ordina/internal/storage/postgres"
	"github.com/Chmgx81/ordina/internal/testutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func TestProductRepo(t *testing.T) {
	db := testutil.SetupTestPostgres(t)

	// Запускаем миграцию явно в тесте
	if err := migrate.MigrateLedgerDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	repo := repository.NewProductRepo(db)

	ctx := context.Background()

	p := models.Product{
		SKU:               "SKU-PG-1",
		Name:              "Тестовый товар",
		PriceCents:        1500,
		LowStockThreshold: 5,
	}
	if err := repo.Create(ctx, &p); err != nil {
		t.Fatalf("failed to create product: %v", err)
	}

	// проверка на уникальность SKU
	dup := models.Product{SKU: "SKU-PG-1", Name: "Дубль"}
	if err := repo.Create(ctx, &dup); err == nil {
		t.Fatal("expected unique constraint error, got nil")
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("failed to get product by ID: %v", err)
	}
	if got.Stock != 0 {
		t.Fatalf("new product stock: got %d, want 0", got.Stock)
	}

	if _, err := repo.GetBySKU(ctx, "SKU-PG-1"); err != nil {
		t.Fatalf("failed to get product by sku: %v", err)
	}

	if err := repo.UpdateFields(ctx, p.ID, map[string]any{"name": "Переименован"}); err != nil {
		t.Fatalf("failed to update product: %v", err)
	}
	updated, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("failed to get updated product: %v", err)
	}
	if updated.Name != "Переименован" {
		t.Fatalf("name not updated: got %s", updated.Name)
	}

	// AdjustStock охраняет неотрицательность остатка на уровне SQL
	if ok, err := repo.AdjustStock(ctx, p.ID, 10); err != nil || !ok {
		t.Fatalf("failed to increase stock: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.AdjustStock(ctx, p.ID, -4); err != nil || !ok {
		t.Fatalf("failed to decrease stock: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.AdjustStock(ctx, p.ID, -100); err != nil {
		t.Fatalf("unexpected error on overdraw: %v", err)
	} else if ok {
		t.Fatal("expected overdraw to be rejected")
	}

	after, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("failed to get product after adjustments: %v", err)
	}
	if after.Stock != 6 {
		t.Fatalf("stock after adjustments: got %d, want 6", after.Stock)
	}

	// при пороге 5 товар со stock=6 ещё не low stock; поднимаем порог
	if err := repo.UpdateFields(ctx, p.ID, map[string]any{"low_stock_threshold": 6}); err != nil {
		t.Fatalf("failed to raise threshold: %v", err)
	}
	low, err := repo.LowStock(ctx)
	if err != nil {
		t.Fatalf("failed to list low stock: %v", err)
	}
	if len(low) != 1 || low[0].ID != p.ID {
		t.Fatalf("expected product in low stock list, got %d rows", len(low))
	}

	value, err := repo.InventoryValue(ctx)
	if err != nil {
		t.Fatalf("failed to get inventory value: %v", err)
	}
	if value != 6*1500 {
		t.Fatalf("inventory value: got %d, want %d", value, 6*1500)
	}

	if ok, err := repo.Delete(ctx, p.ID); err != nil || !ok {
		t.Fatalf("failed to delete product: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("unexpected error on double delete: %v", err)
	} else if ok {
		t.Fatal("expected second delete to report missing product")
	}
}

func TestMovementRepoAppendOnly(t *testing.T) {
	db := testutil.SetupTestPostgres(t)

	if err := migrate.MigrateLedgerDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	repo := repository.New(db)
	ctx := context.Background()

	p := models.Product{SKU: "SKU-PG-MOV", Name: "Журнал", PriceCents: 100}
	if err := repo.Products.Create(ctx, &p); err != nil {
		t.Fatalf("failed to create product: %v", err)
	}

	m := models.StockMovement{
		ProductID: p.ID,
		Type:      models.MovementIn,
		Quantity:  10,
		Actor:     "test",
		Note:      "Initial stock",
	}
	if err := repo.Movements.Append(ctx, &m); err != nil {
		t.Fatalf("failed to append movement: %v", err)
	}
	if m.ID == 0 {
		t.Fatal("expected movement id to be assigned")
	}

	// триггер запрещает UPDATE и DELETE по журналу
	if err := db.Exec(`UPDATE stock_movements SET quantity = 1 WHERE id = ?`, m.ID).Error; err == nil {
		t.Fatal("expected journal update to be rejected")
	}
	if err := db.Exec(`DELETE FROM stock_movements WHERE id = ?`, m.ID).Error; err == nil {
		t.Fatal("expected journal delete to be rejected")
	}

	// CHECK не пускает нулевые количества
	bad := models.StockMovement{ProductID: p.ID, Type: models.MovementOut, Quantity: 0, Actor: "test"}
	if err := repo.Movements.Append(ctx, &bad); err == nil {
		t.Fatal("expected quantity check to reject zero")
	}

	list, err := repo.Movements.List(ctx, repository.MovementListFilter{ProductID: &p.ID})
	if err != nil {
		t.Fatalf("failed to list movements: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("movements: got %d, want 1", len(list))
	}

	sum, err := repo.Movements.SumByProduct(ctx, p.ID, models.MovementIn)
	if err != nil {
		t.Fatalf("failed to sum movements: %v", err)
	}
	if sum != 10 {
		t.Fatalf("in sum: got %d, want 10", sum)
	}
}

func TestOrderRepo(t *testing.T) {
	db := testutil.SetupTestPostgres(t)

	if err := migrate.MigrateLedgerDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	repo := repository.New(db)
	ctx := context.Background()

	a := models.Product{SKU: "SKU-PG-A", Name: "A", PriceCents: 100}
	b := models.Product{SKU: "SKU-PG-B", Name: "B", PriceCents: 200}
	for _, p := range []*models.Product{&a, &b} {
		if err := repo.Products.Create(ctx, p); err != nil {
			t.Fatalf("failed to create product: %v", err)
		}
	}

	order := models.Order{
		ID:           uuid.New(),
		CustomerName: "Пётр",
		Status:       models.OrderStatusPending,
		TotalCents:   500,
		Items: []models.OrderItem{
			{ProductID: a.ID, Quantity: 3, UnitPriceCents: 100, LineTotalCents: 300},
			{ProductID: b.ID, Quantity: 1, UnitPriceCents: 200, LineTotalCents: 200},
		},
	}
	if err := repo.Orders.Create(ctx, &order); err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	if exists, err := repo.Orders.Exists(ctx, order.ID); err != nil || !exists {
		t.Fatalf("expected order to exist: exists=%v err=%v", exists, err)
	}

	got, err := repo.Orders.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to get order: %v", err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("order items not preloaded: got %d", len(got.Items))
	}

	if ok, err := repo.Orders.UpdateStatus(ctx, order.ID, models.OrderStatusShipped); err != nil || !ok {
		t.Fatalf("failed to update status: ok=%v err=%v", ok, err)
	}

	total, err := repo.Orders.SalesTotal(ctx, []models.OrderStatus{models.OrderStatusShipped})
	if err != nil {
		t.Fatalf("failed to sum sales: %v", err)
	}
	if total != 500 {
		t.Fatalf("sales total: got %d, want 500", total)
	}

	// tie-break: продаём вторым заказом столько же юнитов b, сколько всего у a
	second := models.Order{
		ID:     uuid.New(),
		Status: models.OrderStatusPending,
		Items: []models.OrderItem{
			{ProductID: b.ID, Quantity: 2, UnitPriceCents: 200, LineTotalCents: 400},
		},
	}
	if err := repo.Orders.Create(ctx, &second); err != nil {
		t.Fatalf("failed to create second order: %v", err)
	}

	top, err := repo.Orders.TopSelling(ctx, 10)
	if err != nil {
		t.Fatalf("failed to get top selling: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("top selling rows: got %d, want 2", len(top))
	}
	// по 3 юнита у обоих — порядок определяет product_id asc
	wantFirst := a.ID
	if b.ID.String() < a.ID.String() {
		wantFirst = b.ID
	}
	if top[0].UnitsSold != 3 || top[1].UnitsSold != 3 {
		t.Fatalf("units sold: got %d/%d, want 3/3", top[0].UnitsSold, top[1].UnitsSold)
	}
	if top[0].ProductID != wantFirst {
		t.Fatalf("tie break by product id broken: got %s first", top[0].ProductID)
	}

	months, err := repo.Orders.SalesByMonth(ctx)
	if err != nil {
		t.Fatalf("failed to get sales by month: %v", err)
	}
	if len(months) != 1 {
		t.Fatalf("sales by month: got %d rows, want 1", len(months))
	}
}

// Атомарность набора движений на уровне транзакции Postgres.
func TestPostgresStoreApplyMovements(t *testing.T) {
	db := testutil.SetupTestPostgres(t)

	if err := migrate.MigrateLedgerDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	store := postgres.New(db)
	ctx := context.Background()

	a := models.Product{SKU: "SKU-TX-A", Name: "A", PriceCents: 100}
	b := models.Product{SKU: "SKU-TX-B", Name: "B", PriceCents: 100}
	for _, p := range []*models.Product{&a, &b} {
		if err := store.CreateProduct(ctx, p); err != nil {
			t.Fatalf("failed to create product: %v", err)
		}
	}

	if _, err := store.ApplyMovements(ctx, []storage.MovementInput{
		{ProductID: a.ID, Type: models.MovementIn, Quantity: 10, Actor: "test"},
		{ProductID: b.ID, Type: models.MovementIn, Quantity: 2, Actor: "test"},
	}); err != nil {
		t.Fatalf("failed to seed stock: %v", err)
	}

	// дефицит по b откатывает и списание по a
	_, err := store.ApplyMovements(ctx, []storage.MovementInput{
		{ProductID: a.ID, Type: models.MovementOut, Quantity: 5, Actor: "test"},
		{ProductID: b.ID, Type: models.MovementOut, Quantity: 3, Actor: "test"},
	})
	if !errors.Is(err, storage.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	var detail *storage.InsufficientStockError
	if !errors.As(err, &detail) {
		t.Fatalf("expected InsufficientStockError detail, got %T", err)
	}
	if detail.ProductID != b.ID || detail.Requested != 3 || detail.Available != 2 {
		t.Fatalf("wrong detail: %+v", detail)
	}

	if stock, _ := store.GetStock(ctx, a.ID); stock != 10 {
		t.Fatalf("product A stock: got %d, want 10", stock)
	}
	if stock, _ := store.GetStock(ctx, b.ID); stock != 2 {
		t.Fatalf("product B stock: got %d, want 2", stock)
	}

	movs, err := store.ListMovements(ctx, storage.MovementFilter{ProductID: &a.ID})
	if err != nil {
		t.Fatalf("failed to list movements: %v", err)
	}
	if len(movs) != 1 {
		t.Fatalf("rolled back movement leaked into journal: got %d rows", len(movs))
	}

	// неизвестный товар — NotFound, ничего не применяется
	_, err = store.ApplyMovements(ctx, []storage.MovementInput{
		{ProductID: a.ID, Type: models.MovementOut, Quantity: 1, Actor: "test"},
		{ProductID: uuid.New(), Type: models.MovementOut, Quantity: 1, Actor: "test"},
	})
	if !errors.Is(err, storage.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
	if stock, _ := store.GetStock(ctx, a.ID); stock != 10 {
		t.Fatalf("product A stock after not found batch: got %d, want 10", stock)
	}
}

func TestPostgresStoreRecordOrder(t *testing.T) {
	db := testutil.SetupTestPostgres(t)

	if err := migrate.MigrateLedgerDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	store := postgres.New(db)
	ctx := context.Background()

	p := models.Product{SKU: "SKU-REC", Name: "Товар", PriceCents: 100}
	if err := store.CreateProduct(ctx, &p); err != nil {
		t.Fatalf("failed to create product: %v", err)
	}

	order := models.Order{
		ID:           uuid.New(),
		CustomerName: "Мария",
		Status:       models.OrderStatusPending,
		TotalCents:   200,
		Items: []models.OrderItem{
			{ProductID: p.ID, Quantity: 2, UnitPriceCents: 100, LineTotalCents: 200},
		},
	}
	if err := store.RecordOrder(ctx, &order); err != nil {
		t.Fatalf("failed to record order: %v", err)
	}

	if err := store.RecordOrder(ctx, &order); !errors.Is(err, storage.ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}

	got, err := store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to get order: %v", err)
	}
	if got.TotalCents != 200 || len(got.Items) != 1 {
		t.Fatalf("order corrupted: total=%d items=%d", got.TotalCents, len(got.Items))
	}

	if _, err := store.GetOrder(ctx, uuid.New()); !errors.Is(err, storage.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
