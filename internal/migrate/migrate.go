package migrate

import (
	"context"

	"github.com/Chmgx81/ordina/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateExtensions       bool // pgcrypto, pg_trgm
	CreateChecks           bool // CHECK-constraint'ы
	CreateUpdatedAtTrigger bool // триггеры updated_at
	CreateAppendOnlyGuard  bool // запрет UPDATE/DELETE по журналу движений
	CreateSearchIndexes    bool // GIN trgm для поиска по name/sku
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateExtensions:       true,
		CreateChecks:           true,
		CreateUpdatedAtTrigger: true,
		CreateAppendOnlyGuard:  true,
		CreateSearchIndexes:    true,
	}
}

func MigrateLedgerDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("Начало миграции базы каталога/журнала")

	if opt.CreateExtensions {
		log.Info("Создание расширений PostgreSQL")
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
			log.Error("pgcrypto error", zap.Error(err))
			return err
		}
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pg_trgm`).Error; err != nil {
			log.Error("pg_trgm error", zap.Error(err))
			return err
		}
	}

	log.Info("Создание таблиц: products, stock_movements, orders, order_items")
	if err := db.AutoMigrate(&models.Product{}, &models.StockMovement{}, &models.Order{}, &models.OrderItem{}); err != nil {
		log.Error("AutoMigrate error", zap.Error(err))
		return err
	}

	if opt.CreateUpdatedAtTrigger {
		log.Info("Создание триггеров updated_at")
		if err := db.Exec(`
CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN NEW.updated_at = now(); RETURN NEW; END; $$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_products_updated ON products;
CREATE TRIGGER trg_products_updated BEFORE UPDATE ON products
FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS trg_orders_updated ON orders;
CREATE TRIGGER trg_orders_updated BEFORE UPDATE ON orders
FOR EACH ROW EXECUTE FUNCTION set_updated_at();
`).Error; err != nil {
			log.Error("triggers error", zap.Error(err))
			return err
		}
	}

	if opt.CreateChecks {
		log.Info("Создание CHECK-ограничений")

		// остаток не уходит в минус ни при каком раскладе
		if err := db.Exec(`
ALTER TABLE products
	DROP CONSTRAINT IF EXISTS chk_products_stock_non_negative,
	ADD CONSTRAINT chk_products_stock_non_negative
	CHECK (stock >= 0);
`).Error; err != nil {
			log.Error("chk stock", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE products
	DROP CONSTRAINT IF EXISTS chk_products_price_non_negative,
	ADD CONSTRAINT chk_products_price_non_negative
	CHECK (price_cents >= 0 AND low_stock_threshold >= 0);
`).Error; err != nil {
			log.Error("chk price", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE stock_movements
	DROP CONSTRAINT IF EXISTS chk_movements_quantity_positive,
	ADD CONSTRAINT chk_movements_quantity_positive
	CHECK (quantity > 0 AND type IN ('in', 'out'));
`).Error; err != nil {
			log.Error("chk movements", zap.Error(err))
			return err
		}

		if err := db.Exec(`
ALTER TABLE order_items
	DROP CONSTRAINT IF EXISTS chk_order_items_quantity_positive,
	ADD CONSTRAINT chk_order_items_quantity_positive
	CHECK (quantity > 0);
`).Error; err != nil {
			log.Error("chk order_items", zap.Error(err))
			return err
		}
	}

	if opt.CreateAppendOnlyGuard {
		log.Info("Создание защиты журнала от правок")
		// журнал append-only: коррекции — только новыми записями
		if err := db.Exec(`
CREATE OR REPLACE FUNCTION reject_movement_change() RETURNS trigger AS $$
BEGIN RAISE EXCEPTION 'stock_movements is append-only'; END; $$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_movements_immutable ON stock_movements;
CREATE TRIGGER trg_movements_immutable BEFORE UPDATE OR DELETE ON stock_movements
FOR EACH ROW EXECUTE FUNCTION reject_movement_change();
`).Error; err != nil {
			log.Error("append-only guard error", zap.Error(err))
			return err
		}
	}

	if opt.CreateSearchIndexes {
		log.Info("Создание поисковых индексов")
		if err := db.Exec(`
CREATE INDEX IF NOT EXISTS idx_products_name_trgm ON products USING gin (lower(name) gin_trgm_ops);
CREATE INDEX IF NOT EXISTS idx_products_sku_trgm ON products USING gin (lower(sku) gin_trgm_ops);
`).Error; err != nil {
			log.Error("search indexes error", zap.Error(err))
			return err
		}
	}

	log.Info("Миграция завершена")
	return nil
}
