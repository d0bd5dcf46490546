package repository

import "gorm.io/gorm"

type Repository struct {
	DB        *gorm.DB
	Products  ProductRepo
	Movements MovementRepo
	Orders    OrderRepo
}

func New(db *gorm.DB) *Repository {
	return &Repository{
		DB:        db,
		Products:  NewProductRepo(db),
		Movements: NewMovementRepo(db),
		Orders:    NewOrderRepo(db),
	}
}

// Глобальная транзакция на весь набор репо
func (r *Repository) WithTx(fn func(tx *Repository) error) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}
