package balance

import (
	"math/big"
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

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *store) Get(tx *gorm.DB, account, asset string) (*big.Int, error) {
	row, err := s.find(tx, account, asset)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return new(big.Int), nil
	}
	return model.MustBigInt(row.Amount), nil
}

func (s *store) ListByAccount(tx *gorm.DB, account string) ([]*model.Balance, error) {
	var rows []*model.Balance
	err := tx.Where("account = ?", normalize(account)).Order("asset ASC").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list balances")
	}
	return rows, nil
}

func (s *store) Adjust(tx *gorm.DB, account, asset string, delta *big.Int) (*big.Int, error) {
	row, err := s.find(tx.Clauses(clause.Locking{Strength: "UPDATE"}), account, asset)
	if err != nil {
		return nil, err
	}

	current := new(big.Int)
	if row != nil {
		current = model.MustBigInt(row.Amount)
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		return nil, errors.Wrapf(model.ErrInsufficientBalance, "%s holds %s %s, needs %s", account, current, asset, new(big.Int).Neg(delta))
	}

	if row == nil {
		row = &model.Balance{Account: normalize(account), Asset: normalize(asset), Amount: next.String()}
		if err := tx.Create(row).Error; err != nil {
			return nil, errors.Wrap(err, "create balance")
		}
		return next, nil
	}

	err = tx.Model(&model.Balance{}).
		Where("account = ? AND asset = ?", row.Account, row.Asset).
		Update("amount", next.String()).Error
	if err != nil {
		return nil, errors.Wrap(err, "update balance")
	}
	return next, nil
}

func (s *store) find(tx *gorm.DB, account, asset string) (*model.Balance, error) {
	var row model.Balance
	err := tx.Where("account = ? AND asset = ?", normalize(account), normalize(asset)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get balance")
	}
	return &row, nil
}
