package service

import (
	"errors"

	"github.com/Chmgx81/ordina/internal/storage"
)

var (
	ErrProductNotFound     = storage.ErrProductNotFound
	ErrOrderNotFound       = storage.ErrOrderNotFound
	ErrSKUAlreadyExists    = storage.ErrSKUAlreadyExists
	ErrDuplicateOrder      = storage.ErrDuplicateOrder
	ErrInvalidQuantity     = storage.ErrInvalidQuantity
	ErrInvalidMovementType = storage.ErrInvalidMovementType
	ErrInsufficientStock   = storage.ErrInsufficientStock
	ErrStorageUnavailable  = storage.ErrStorageUnavailable

	ErrEmptyOrder              = errors.New("order items empty")
	ErrProductInvalid          = errors.New("sku and name are required")
	ErrInvalidPrice            = errors.New("price must be >= 0")
	ErrInvalidThreshold        = errors.New("low stock threshold must be >= 0")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)
