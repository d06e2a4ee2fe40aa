package escrow

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

type store struct{}

func New() IStore {
	return &store{}
}

func (s *store) Create(tx *gorm.DB, escrow *model.Escrow) (*model.Escrow, error) {
	if err := tx.Create(escrow).Error; err != nil {
		return nil, errors.Wrapf(err, "create %s escrow", escrow.Side)
	}
	return escrow, nil
}

func (s *store) GetByOrderHash(tx *gorm.DB, orderHash string) (*model.EscrowPair, error) {
	var escrows []*model.Escrow
	if err := tx.Where("order_hash = ?", orderHash).Find(&escrows).Error; err != nil {
		return nil, errors.Wrap(err, "get escrows")
	}

	pair := &model.EscrowPair{}
	for _, e := range escrows {
		switch e.Side {
		case model.EscrowSideSource:
			pair.Source = e
		case model.EscrowSideDestination:
			pair.Destination = e
		}
	}
	return pair, nil
}

func (s *store) MarkReleased(tx *gorm.DB, id uint, release Release) error {
	column := "refunded"
	if release.Claimed {
		column = "claimed"
	}

	res := tx.Model(&model.Escrow{}).
		Where("id = ? AND claimed = ? AND refunded = ?", id, false, false).
		Updates(map[string]interface{}{
			column:        true,
			"released_to": release.To,
			"released_at": release.At,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "release escrow")
	}
	if res.RowsAffected == 0 {
		return model.ErrEscrowAlreadyReleased
	}
	return nil
}
