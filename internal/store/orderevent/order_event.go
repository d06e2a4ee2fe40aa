package orderevent

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

type store struct{}

func New() IStore {
	return &store{}
}

func (s *store) Create(tx *gorm.DB, event *model.OrderEvent) (*model.OrderEvent, error) {
	if event.ID == "" {
		// v7 ids sort by creation, which breaks created_at ties
		id, err := uuid.NewV7()
		if err != nil {
			return nil, errors.Wrap(err, "new event id")
		}
		event.ID = id.String()
	}
	payload, err := json.Marshal(event.Fields)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event fields")
	}
	event.Payload = string(payload)

	if err := tx.Create(event).Error; err != nil {
		return nil, errors.Wrap(err, "create order event")
	}
	return event, nil
}

func (s *store) ListByOrderHash(tx *gorm.DB, orderHash string) ([]*model.OrderEvent, error) {
	var events []*model.OrderEvent
	err := tx.Where("order_hash = ?", orderHash).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "list order events")
	}

	for _, e := range events {
		if e.Payload == "" {
			continue
		}
		if err := json.Unmarshal([]byte(e.Payload), &e.Fields); err != nil {
			return nil, errors.Wrapf(err, "decode event %s", e.ID)
		}
	}
	return events, nil
}
