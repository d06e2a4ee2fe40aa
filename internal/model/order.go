package model

import (
	"math/big"
	"time"
)

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusExpired   OrderStatus = "expired"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// CanTransition reports whether from -> to is one of the legal edges
// open->matched, open->expired, matched->completed, matched->refunded.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	switch s {
	case OrderStatusOpen:
		return to == OrderStatusMatched || to == OrderStatusExpired
	case OrderStatusMatched:
		return to == OrderStatusCompleted || to == OrderStatusRefunded
	}
	return false
}

func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusCompleted || s == OrderStatusExpired || s == OrderStatusRefunded
}

// Order is the append-only record of a cross-chain swap intent. Amounts are
// decimal strings in base units.
type Order struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	OrderHash string `gorm:"column:order_hash;type:varchar(66);not null;uniqueIndex" json:"order_hash"`

	Maker              string    `gorm:"column:maker;type:varchar(42);not null;index" json:"maker"`
	SourceToken        string    `gorm:"column:source_token;type:varchar(42);not null" json:"source_token"`
	SourceAmount       string    `gorm:"column:source_amount;type:varchar(78);not null" json:"source_amount"`
	DestinationChainID uint64    `gorm:"column:destination_chain_id;not null;index" json:"destination_chain_id"`
	DestinationToken   string    `gorm:"column:destination_token;type:text;not null" json:"destination_token"`
	DestinationAmount  string    `gorm:"column:destination_amount;type:text;not null" json:"destination_amount"`
	DestinationAddress string    `gorm:"column:destination_address;type:text;not null" json:"destination_address"`
	ResolverFee        string    `gorm:"column:resolver_fee;type:varchar(78);not null" json:"resolver_fee"`
	ExpiryTime         time.Time `gorm:"column:expiry_time;not null;index" json:"expiry_time"`
	ExecutionParams    string    `gorm:"column:execution_params;type:text" json:"execution_params,omitempty"`

	Status OrderStatus `gorm:"column:status;type:varchar(20);not null;index" json:"status"`

	// set once at match
	Resolver             string    `gorm:"column:resolver;type:varchar(42)" json:"resolver,omitempty"`
	Hashlock             string    `gorm:"column:hashlock;type:varchar(64)" json:"hashlock,omitempty"`
	Timelocks            Timelocks `gorm:"embedded;embeddedPrefix:timelock_" json:"timelocks"`
	SafetyDeposit        string    `gorm:"column:safety_deposit;type:varchar(78)" json:"safety_deposit,omitempty"`
	CapturedDepositBps   uint16    `gorm:"column:captured_deposit_bps" json:"captured_deposit_bps,omitempty"`
	CapturedDepositFloor string    `gorm:"column:captured_deposit_floor;type:varchar(78)" json:"captured_deposit_floor,omitempty"`

	// set once at completion
	Preimage  string `gorm:"column:preimage;type:text" json:"preimage,omitempty"`
	Completer string `gorm:"column:completer;type:varchar(42)" json:"completer,omitempty"`

	MatchedAt   *time.Time `gorm:"column:matched_at" json:"matched_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	RefundedAt  *time.Time `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	ExpiredAt   *time.Time `gorm:"column:expired_at" json:"expired_at,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// EscrowTotal is sourceAmount + resolverFee, the amount the maker must have
// in custody before the order can be matched.
func (o *Order) EscrowTotal() *big.Int {
	return new(big.Int).Add(MustBigInt(o.SourceAmount), MustBigInt(o.ResolverFee))
}

// SourceEscrowAccount and DestinationEscrowAccount are the ledger custody
// accounts owned exclusively by this order.
func (o *Order) SourceEscrowAccount() string {
	return "escrow:" + o.OrderHash + ":src"
}

func (o *Order) DestinationEscrowAccount() string {
	return "escrow:" + o.OrderHash + ":dst"
}

// OrderFilter narrows ListOrders. Zero values mean no constraint.
type OrderFilter struct {
	Status             OrderStatus
	Maker              string
	Resolver           string
	DestinationChainID uint64
	Offset             int
	Limit              int
}
