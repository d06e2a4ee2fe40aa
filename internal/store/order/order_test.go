package order_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/store/order"
	"github.com/dwarvesf/fusion-bridge/internal/store/storetest"
)

var now = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newOrder(hash string, status model.OrderStatus, expiry time.Time) *model.Order {
	return &model.Order{
		OrderHash:          hash,
		Maker:              "0x00000000000000000000000000000000000000aa",
		SourceToken:        "0x00000000000000000000000000000000000000cc",
		SourceAmount:       "200",
		DestinationChainID: 397,
		DestinationToken:   "wrap.near",
		DestinationAmount:  "199",
		DestinationAddress: "alice.near",
		ResolverFee:        "20",
		ExpiryTime:         expiry,
		Status:             status,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	db := storetest.NewDB(t)
	s := order.New()

	_, err := s.Create(db, newOrder("0x01", model.OrderStatusOpen, now.Add(time.Hour)))
	require.NoError(t, err)

	got, err := s.GetByHash(db, "0x01")
	require.NoError(t, err)
	assert.Equal(t, "alice.near", got.DestinationAddress)
	assert.Equal(t, model.OrderStatusOpen, got.Status)
	assert.Equal(t, "220", got.EscrowTotal().String())

	_, err = s.Create(db, newOrder("0x01", model.OrderStatusOpen, now.Add(time.Hour)))
	assert.Equal(t, model.ErrDuplicateOrder, err)

	_, err = s.GetByHash(db, "0x02")
	assert.Equal(t, model.ErrOrderNotFound, err)

	locked, err := s.GetByHashForUpdate(db, "0x01")
	require.NoError(t, err)
	assert.Equal(t, got.ID, locked.ID)
}

func TestStore_TransitionStatus(t *testing.T) {
	db := storetest.NewDB(t)
	s := order.New()
	_, err := s.Create(db, newOrder("0x01", model.OrderStatusOpen, now.Add(time.Hour)))
	require.NoError(t, err)

	matchedAt := now
	err = s.TransitionStatus(db, "0x01", model.OrderStatusOpen, model.OrderStatusMatched, map[string]interface{}{
		"resolver":   "0x00000000000000000000000000000000000000bb",
		"hashlock":   "ab",
		"matched_at": &matchedAt,
	})
	require.NoError(t, err)

	got, err := s.GetByHash(db, "0x01")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusMatched, got.Status)
	assert.Equal(t, "ab", got.Hashlock)
	require.NotNil(t, got.MatchedAt)

	// the loser of a race sees a conflict, not a second transition
	err = s.TransitionStatus(db, "0x01", model.OrderStatusOpen, model.OrderStatusMatched, nil)
	assert.Equal(t, order.ErrStatusConflict, err)

	err = s.TransitionStatus(db, "0x01", model.OrderStatusMatched, model.OrderStatusOpen, nil)
	assert.Equal(t, model.KindState, model.KindOf(err))
}

func TestStore_ListAndExpired(t *testing.T) {
	db := storetest.NewDB(t)
	s := order.New()

	fixtures := []*model.Order{
		newOrder("0x01", model.OrderStatusOpen, now.Add(-time.Hour)),
		newOrder("0x02", model.OrderStatusOpen, now.Add(-2*time.Hour)),
		newOrder("0x03", model.OrderStatusOpen, now.Add(time.Hour)),
		newOrder("0x04", model.OrderStatusMatched, now.Add(-time.Hour)),
	}
	fixtures[3].DestinationChainID = 40001
	for _, o := range fixtures {
		_, err := s.Create(db, o)
		require.NoError(t, err)
	}

	expired, err := s.FindExpiredOpen(db, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.Equal(t, "0x02", expired[0].OrderHash)
	assert.Equal(t, "0x01", expired[1].OrderHash)

	limited, err := s.FindExpiredOpen(db, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	open, total, err := s.List(db, model.OrderFilter{Status: model.OrderStatusOpen, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, open, 2)
	assert.Equal(t, "0x03", open[0].OrderHash)

	byChain, total, err := s.List(db, model.OrderFilter{DestinationChainID: 40001})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "0x04", byChain[0].OrderHash)

	byMaker, _, err := s.List(db, model.OrderFilter{Maker: "0x00000000000000000000000000000000000000AA"})
	require.NoError(t, err)
	assert.Len(t, byMaker, 4)

	counts, err := s.CountByStatus(db)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[model.OrderStatusOpen])
	assert.Equal(t, int64(1), counts[model.OrderStatusMatched])
}
