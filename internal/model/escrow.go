package model

import "time"

type EscrowSide string

const (
	EscrowSideSource      EscrowSide = "source"
	EscrowSideDestination EscrowSide = "destination"
)

// Escrow is one half of an order's escrow pair. A side is released at most
// once, either Claimed or Refunded.
type Escrow struct {
	ID        uint       `gorm:"primaryKey" json:"-"`
	OrderHash string     `gorm:"column:order_hash;type:varchar(66);not null;uniqueIndex:idx_escrow_order_side" json:"order_hash"`
	Side      EscrowSide `gorm:"column:side;type:varchar(16);not null;uniqueIndex:idx_escrow_order_side" json:"side"`

	// Account is the ledger custody account holding this side's funds.
	Account string `gorm:"column:account;type:varchar(100);not null" json:"account"`
	Asset   string `gorm:"column:asset;type:text;not null" json:"asset"`
	Amount  string `gorm:"column:amount;type:text;not null" json:"amount"`

	SafetyDeposit string `gorm:"column:safety_deposit;type:varchar(78);not null;default:'0'" json:"safety_deposit"`
	DepositAsset  string `gorm:"column:deposit_asset;type:varchar(42)" json:"deposit_asset,omitempty"`

	Hashlock  string    `gorm:"column:hashlock;type:varchar(64);not null" json:"hashlock"`
	Timelocks Timelocks `gorm:"embedded;embeddedPrefix:timelock_" json:"timelocks"`

	Claimed    bool       `gorm:"column:claimed;not null;default:false" json:"claimed"`
	Refunded   bool       `gorm:"column:refunded;not null;default:false" json:"refunded"`
	ReleasedTo string     `gorm:"column:released_to;type:varchar(42)" json:"released_to,omitempty"`
	ReleasedAt *time.Time `gorm:"column:released_at" json:"released_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Escrow) TableName() string {
	return "escrows"
}

func (e *Escrow) IsReleased() bool {
	return e.Claimed || e.Refunded
}

// EscrowPair is the read view of both sides of a matched order.
type EscrowPair struct {
	Source      *Escrow `json:"source"`
	Destination *Escrow `json:"destination"`
}
