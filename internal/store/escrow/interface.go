package escrow

import (
	"time"

	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

// Release describes how a side left custody.
type Release struct {
	Claimed bool
	To      string
	At      time.Time
}

type IStore interface {
	Create(tx *gorm.DB, escrow *model.Escrow) (*model.Escrow, error)
	GetByOrderHash(tx *gorm.DB, orderHash string) (*model.EscrowPair, error)
	// MarkReleased flips claimed or refunded exactly once; a second call
	// fails with model.ErrEscrowAlreadyReleased.
	MarkReleased(tx *gorm.DB, id uint, release Release) error
}
