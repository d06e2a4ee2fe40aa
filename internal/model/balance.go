package model

import "time"

// Balance is one (account, asset) row of the custody ledger.
type Balance struct {
	Account   string    `gorm:"primaryKey;column:account;type:varchar(100)" json:"account"`
	Asset     string    `gorm:"primaryKey;column:asset;type:varchar(100)" json:"asset"`
	Amount    string    `gorm:"column:amount;type:varchar(78);not null" json:"amount"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Balance) TableName() string {
	return "balances"
}
