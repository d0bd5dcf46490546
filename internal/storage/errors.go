package storage

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrOrderNotFound       = errors.New("order not found")
	ErrSKUAlreadyExists    = errors.New("sku already exists")
	ErrDuplicateOrder      = errors.New("order already recorded")
	ErrInvalidQuantity     = errors.New("quantity must be > 0")
	ErrInvalidMovementType = errors.New("movement type must be in or out")
	ErrInsufficientStock   = errors.New("insufficient stock")

	// ErrStorageUnavailable — бэкенд недоступен (сеть/БД). Вызывающий может
	// повторить с backoff, в отличие от бизнес-ошибок выше.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// InsufficientStockError называет товар и дефицит: отказ по остатку никогда
// не отдаётся как generic failure.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }
