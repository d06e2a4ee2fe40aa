package model

import "time"

type Resolver struct {
	Address      string    `gorm:"primaryKey;column:address;type:varchar(42)" json:"address"`
	Authorized   bool      `gorm:"column:authorized;not null;index" json:"authorized"`
	AuthorizedBy string    `gorm:"column:authorized_by;type:varchar(42)" json:"authorized_by"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Resolver) TableName() string {
	return "resolvers"
}
