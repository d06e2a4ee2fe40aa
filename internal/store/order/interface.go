package order

import (
	"time"

	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

type IStore interface {
	Create(tx *gorm.DB, order *model.Order) (*model.Order, error)
	GetByHash(tx *gorm.DB, orderHash string) (*model.Order, error)
	// GetByHashForUpdate takes a row lock where the dialect supports one.
	GetByHashForUpdate(tx *gorm.DB, orderHash string) (*model.Order, error)
	List(tx *gorm.DB, filter model.OrderFilter) ([]*model.Order, int64, error)
	// TransitionStatus moves an order from -> to only if it is still in from.
	// It returns ErrStatusConflict when another call won the race.
	TransitionStatus(tx *gorm.DB, orderHash string, from, to model.OrderStatus, updates map[string]interface{}) error
	FindExpiredOpen(tx *gorm.DB, now time.Time, limit int) ([]*model.Order, error)
	CountByStatus(tx *gorm.DB) (map[model.OrderStatus]int64, error)
}
