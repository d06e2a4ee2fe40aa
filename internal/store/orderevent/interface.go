package orderevent

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

type IStore interface {
	Create(tx *gorm.DB, event *model.OrderEvent) (*model.OrderEvent, error)
	ListByOrderHash(tx *gorm.DB, orderHash string) ([]*model.OrderEvent, error)
}
