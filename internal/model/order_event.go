package model

import "time"

type OrderEventType string

const (
	OrderEventCreated   OrderEventType = "order_created"
	OrderEventMatched   OrderEventType = "order_matched"
	OrderEventCompleted OrderEventType = "order_completed"
	OrderEventRefunded  OrderEventType = "order_refunded"
	OrderEventExpired   OrderEventType = "order_expired"
)

// OrderEvent is the append-only audit trail. Fields holds every value the
// transition changed so an indexer never needs to re-query the order.
type OrderEvent struct {
	ID        string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderHash string            `gorm:"column:order_hash;type:varchar(66);not null;index" json:"order_hash"`
	Type      OrderEventType    `gorm:"column:type;type:varchar(32);not null" json:"type"`
	Payload   string            `gorm:"column:payload;type:text;not null" json:"-"`
	Fields    map[string]string `gorm:"-" json:"fields"`
	CreatedAt time.Time         `gorm:"column:created_at;index" json:"created_at"`
}

func (OrderEvent) TableName() string {
	return "order_events"
}
