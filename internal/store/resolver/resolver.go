package resolver

import (
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

type store struct{}

func New() IStore {
	return &store{}
}

// addresses are stored lowercased so lookups are case-insensitive
func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func (s *store) Upsert(tx *gorm.DB, address, authorizedBy string) error {
	r := &model.Resolver{
		Address:      normalize(address),
		Authorized:   true,
		AuthorizedBy: normalize(authorizedBy),
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"authorized", "authorized_by", "updated_at"}),
	}).Create(r).Error
	if err != nil {
		return errors.Wrap(err, "upsert resolver")
	}
	return nil
}

// Deactivate reports whether an authorized resolver was revoked.
func (s *store) Deactivate(tx *gorm.DB, address string) (bool, error) {
	res := tx.Model(&model.Resolver{}).
		Where("address = ? AND authorized = ?", normalize(address), true).
		Update("authorized", false)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "deactivate resolver")
	}
	return res.RowsAffected > 0, nil
}

func (s *store) IsAuthorized(tx *gorm.DB, address string) (bool, error) {
	var count int64
	err := tx.Model(&model.Resolver{}).
		Where("address = ? AND authorized = ?", normalize(address), true).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "check resolver")
	}
	return count > 0, nil
}

func (s *store) List(tx *gorm.DB) ([]*model.Resolver, error) {
	var resolvers []*model.Resolver
	err := tx.Where("authorized = ?", true).Order("address ASC").Find(&resolvers).Error
	if err != nil {
		return nil, errors.Wrap(err, "list resolvers")
	}
	return resolvers, nil
}

func (s *store) Count(tx *gorm.DB) (int64, error) {
	var count int64
	err := tx.Model(&model.Resolver{}).Where("authorized = ?", true).Count(&count).Error
	if err != nil {
		return 0, errors.Wrap(err, "count resolvers")
	}
	return count, nil
}
