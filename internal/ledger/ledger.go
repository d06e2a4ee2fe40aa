package ledger

import (
	"math/big"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/store/balance"
)

type Ledger struct {
	balances balance.IStore
}

func New(balances balance.IStore) *Ledger {
	return &Ledger{balances: balances}
}

func (l *Ledger) Balance(tx *gorm.DB, account, asset string) (*big.Int, error) {
	return l.balances.Get(tx, account, asset)
}

func (l *Ledger) Deposit(tx *gorm.DB, account, asset string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	_, err := l.balances.Adjust(tx, account, asset, amount)
	return err
}

func (l *Ledger) Withdraw(tx *gorm.DB, account, asset string, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	_, err := l.balances.Adjust(tx, account, asset, new(big.Int).Neg(amount))
	return err
}

// Transfer debits from before crediting to, so a short balance leaves both
// accounts untouched. A zero amount is a no-op.
func (l *Ledger) Transfer(tx *gorm.DB, from, to, asset string, amount *big.Int) error {
	if amount != nil && amount.Sign() == 0 {
		return nil
	}
	if err := l.Withdraw(tx, from, asset, amount); err != nil {
		return errors.Wrapf(err, "transfer %s -> %s", from, to)
	}
	return l.Deposit(tx, to, asset, amount)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.Wrap(model.ErrInvalidAmount, "ledger amount must be non-negative")
	}
	return nil
}
