package resolver

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

type IStore interface {
	Upsert(tx *gorm.DB, address, authorizedBy string) error
	Deactivate(tx *gorm.DB, address string) (bool, error)
	IsAuthorized(tx *gorm.DB, address string) (bool, error)
	List(tx *gorm.DB) ([]*model.Resolver, error)
	Count(tx *gorm.DB) (int64, error)
}
