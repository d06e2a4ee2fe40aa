package order

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var ErrStatusConflict = errors.New("order status changed concurrently")

type store struct{}

func New() IStore {
	return &store{}
}

func (s *store) Create(tx *gorm.DB, order *model.Order) (*model.Order, error) {
	err := tx.Create(order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, model.ErrDuplicateOrder
	}
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return order, nil
}

func (s *store) GetByHash(tx *gorm.DB, orderHash string) (*model.Order, error) {
	return s.get(tx, orderHash)
}

func (s *store) GetByHashForUpdate(tx *gorm.DB, orderHash string) (*model.Order, error) {
	return s.get(tx.Clauses(clause.Locking{Strength: "UPDATE"}), orderHash)
}

func (s *store) get(tx *gorm.DB, orderHash string) (*model.Order, error) {
	var order model.Order
	err := tx.Where("order_hash = ?", orderHash).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return &order, nil
}

func (s *store) List(tx *gorm.DB, filter model.OrderFilter) ([]*model.Order, int64, error) {
	q := tx.Model(&model.Order{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Maker != "" {
		q = q.Where("LOWER(maker) = LOWER(?)", filter.Maker)
	}
	if filter.Resolver != "" {
		q = q.Where("LOWER(resolver) = LOWER(?)", filter.Resolver)
	}
	if filter.DestinationChainID != 0 {
		q = q.Where("destination_chain_id = ?", filter.DestinationChainID)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var orders []*model.Order
	err := q.Order("id DESC").Offset(filter.Offset).Limit(limit).Find(&orders).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list orders")
	}
	return orders, total, nil
}

func (s *store) TransitionStatus(tx *gorm.DB, orderHash string, from, to model.OrderStatus, updates map[string]interface{}) error {
	if !from.CanTransition(to) {
		return errors.Wrapf(model.ErrInvalidOrderStatus, "%s -> %s", from, to)
	}
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}

	res := tx.Model(&model.Order{}).
		Where("order_hash = ? AND status = ?", orderHash, from).
		Updates(values)
	if res.Error != nil {
		return errors.Wrap(res.Error, "transition order status")
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (s *store) FindExpiredOpen(tx *gorm.DB, now time.Time, limit int) ([]*model.Order, error) {
	var orders []*model.Order
	err := tx.Where("status = ? AND expiry_time <= ?", model.OrderStatusOpen, now).
		Order("expiry_time ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, errors.Wrap(err, "find expired orders")
	}
	return orders, nil
}

func (s *store) CountByStatus(tx *gorm.DB) (map[model.OrderStatus]int64, error) {
	var rows []struct {
		Status model.OrderStatus
		Count  int64
	}
	err := tx.Model(&model.Order{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "count orders by status")
	}

	counts := make(map[model.OrderStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
