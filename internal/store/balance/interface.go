package balance

import (
	"math/big"

	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

type IStore interface {
	Get(tx *gorm.DB, account, asset string) (*big.Int, error)
	ListByAccount(tx *gorm.DB, account string) ([]*model.Balance, error)
	// Adjust adds delta to the balance and fails with
	// model.ErrInsufficientBalance if the result would be negative.
	Adjust(tx *gorm.DB, account, asset string, delta *big.Int) (*big.Int, error)
}
