package ledger

import (
	"math/big"

	"gorm.io/gorm"
)

// ILedger moves fungible balances between accounts. Escrow custody is an
// account like any other.
type ILedger interface {
	Balance(tx *gorm.DB, account, asset string) (*big.Int, error)
	Deposit(tx *gorm.DB, account, asset string, amount *big.Int) error
	Withdraw(tx *gorm.DB, account, asset string, amount *big.Int) error
	Transfer(tx *gorm.DB, from, to, asset string, amount *big.Int) error
}
