package controller

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/authority"
	"github.com/dwarvesf/fusion-bridge/internal/chain"
	"github.com/dwarvesf/fusion-bridge/internal/ledger"
	"github.com/dwarvesf/fusion-bridge/internal/locker"
	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/monitoring"
	"github.com/dwarvesf/fusion-bridge/internal/registry"
	"github.com/dwarvesf/fusion-bridge/internal/store"
	"github.com/dwarvesf/fusion-bridge/internal/store/balance"
	"github.com/dwarvesf/fusion-bridge/internal/store/storetest"
	"github.com/dwarvesf/fusion-bridge/internal/utils/config"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

const (
	owner    = "0x1111111111111111111111111111111111111111"
	maker    = "0x2222222222222222222222222222222222222222"
	resolver = "0x3333333333333333333333333333333333333333"
	stranger = "0x4444444444444444444444444444444444444444"
	outsider = "0x5555555555555555555555555555555555555555"
	token    = "0xcccccccccccccccccccccccccccccccccccccccc"
	native   = "ETH"

	oneToken     = "1000000000000000000"
	sourceAmount = "200000000000000000" // 0.2
	resolverFee  = "20000000000000000"  // 0.02
	escrowTotal  = "220000000000000000" // 0.22
	minDeposit   = "10000000000000000"  // 5% of 0.2
)

var (
	t0     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	secret = []byte("the preimage only the resolver knows")
)

func amount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recorder struct {
	mu     sync.Mutex
	events []*model.OrderEvent
}

func (r *recorder) Publish(_ context.Context, e *model.OrderEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []model.OrderEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.OrderEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	t        *testing.T
	db       *gorm.DB
	ctrl     *Controller
	ledger   *ledger.Ledger
	registry *registry.Registry
	clock    *fakeClock
	events   *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storetest.NewDB(t)
	auth := authority.NewStatic(owner, resolver)
	reg := registry.New(auth, logger.NewNop())

	near, err := chain.NewNEAR(chain.Info{
		ChainID:            chain.NEARTestnetChainID,
		Name:               "NEAR Testnet",
		Symbol:             "NEAR",
		SafetyDepositBps:   500,
		SafetyDepositFloor: big.NewInt(0),
		DefaultTimelock:    24 * time.Hour,
		GasPrice:           big.NewInt(100000000),
	})
	require.NoError(t, err)
	btc, err := chain.NewUTXO(chain.Info{
		ChainID:            chain.BitcoinTestnetChainID,
		Name:               "Bitcoin Testnet",
		Symbol:             "tBTC",
		SafetyDepositBps:   500,
		SafetyDepositFloor: big.NewInt(546),
		DefaultTimelock:    48 * time.Hour,
	}, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	require.NoError(t, reg.RegisterAll(owner, []chain.Adapter{near, btc}))

	l := ledger.New(balance.New())
	clock := &fakeClock{t: t0}
	events := &recorder{}
	cfg := &config.AppConfig{Chains: config.ChainsConfig{NativeAsset: native}}
	ctrl := New(db, store.New(), reg, auth, l, locker.NewLocal(), events,
		monitoring.NewEngineMetrics(), logger.NewNop(), cfg, WithClock(clock.Now))

	require.NoError(t, l.Deposit(db, maker, token, amount(oneToken)))
	require.NoError(t, l.Deposit(db, resolver, native, amount(oneToken)))
	require.NoError(t, l.Deposit(db, outsider, native, amount(oneToken)))

	return &harness{t: t, db: db, ctrl: ctrl, ledger: l, registry: reg, clock: clock, events: events}
}

func (h *harness) balance(account, asset string) string {
	h.t.Helper()
	b, err := h.ledger.Balance(h.db, account, asset)
	require.NoError(h.t, err)
	return b.String()
}

func orderParams() CreateOrderParams {
	return CreateOrderParams{
		Maker:              maker,
		SourceToken:        token,
		SourceAmount:       amount(sourceAmount),
		DestinationChainID: chain.NEARTestnetChainID,
		DestinationToken:   "wrap.near",
		DestinationAmount:  "200000000000000000000000",
		DestinationAddress: "alice.near",
		ResolverFee:        amount(resolverFee),
		ExpiryTime:         t0.Add(time.Hour),
	}
}

func (h *harness) create(p CreateOrderParams) *model.Order {
	h.t.Helper()
	o, err := h.ctrl.CreateOrder(context.Background(), p)
	require.NoError(h.t, err)
	return o
}

func (h *harness) match(o *model.Order) *model.Order {
	h.t.Helper()
	matched, err := h.ctrl.MatchOrder(context.Background(), MatchParams{
		OrderHash:     o.OrderHash,
		Resolver:      resolver,
		Hashlock:      HashPreimage(secret),
		SafetyDeposit: amount(minDeposit),
	})
	require.NoError(h.t, err)
	return matched
}

func (h *harness) status(hash string) model.OrderStatus {
	h.t.Helper()
	o, err := h.ctrl.GetOrder(context.Background(), hash)
	require.NoError(h.t, err)
	return o.Status
}

func TestComputeOrderHash(t *testing.T) {
	p := orderParams()
	hash, err := ComputeOrderHash(p)
	require.NoError(t, err)
	assert.Regexp(t, "^0x[0-9a-f]{64}$", hash)

	again, err := ComputeOrderHash(p)
	require.NoError(t, err)
	assert.Equal(t, hash, again)

	mixed := p
	mixed.SourceToken = "0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"
	same, err := ComputeOrderHash(mixed)
	require.NoError(t, err)
	assert.Equal(t, hash, same)

	changed := orderParams()
	changed.ResolverFee = big.NewInt(1)
	other, err := ComputeOrderHash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)

	changed = orderParams()
	changed.DestinationAddress = "bob.near"
	other, err = ComputeOrderHash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)

	_, err = ComputeOrderHash(CreateOrderParams{Maker: "nope", SourceToken: token, SourceAmount: big.NewInt(1)})
	assert.True(t, errors.Is(err, model.ErrInvalidAddress))
}

func TestCreateOrder_TakesCustody(t *testing.T) {
	h := newHarness(t)
	o := h.create(orderParams())

	want, err := ComputeOrderHash(orderParams())
	require.NoError(t, err)
	assert.Equal(t, want, o.OrderHash)
	assert.Equal(t, model.OrderStatusOpen, o.Status)
	assert.Empty(t, o.Hashlock)

	assert.Equal(t, "780000000000000000", h.balance(maker, token))
	assert.Equal(t, escrowTotal, h.balance(o.SourceEscrowAccount(), token))
	assert.Equal(t, []model.OrderEventType{model.OrderEventCreated}, h.events.types())
}

func TestCreateOrder_DuplicateRejected(t *testing.T) {
	h := newHarness(t)
	first := h.create(orderParams())

	hash, err := h.ctrl.ComputeOrderHash(orderParams())
	require.NoError(t, err)
	assert.Equal(t, first.OrderHash, hash)

	_, err = h.ctrl.CreateOrder(context.Background(), orderParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDuplicateOrder))
	assert.Equal(t, model.KindValidation, model.KindOf(err))

	// the maker was charged once
	assert.Equal(t, "780000000000000000", h.balance(maker, token))
	orders, total, err := h.ctrl.ListOrders(context.Background(), model.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, orders, 1)
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *CreateOrderParams)
		want   error
	}{
		{
			name:   "maker is not an address",
			mutate: func(p *CreateOrderParams) { p.Maker = "alice" },
			want:   model.ErrInvalidAddress,
		},
		{
			name:   "zero source amount",
			mutate: func(p *CreateOrderParams) { p.SourceAmount = big.NewInt(0) },
			want:   model.ErrInvalidAmount,
		},
		{
			name:   "negative fee",
			mutate: func(p *CreateOrderParams) { p.ResolverFee = big.NewInt(-1) },
			want:   model.ErrInvalidAmount,
		},
		{
			name:   "expiry in the past",
			mutate: func(p *CreateOrderParams) { p.ExpiryTime = t0.Add(-time.Second) },
			want:   model.ErrExpiryInPast,
		},
		{
			name:   "expiry now",
			mutate: func(p *CreateOrderParams) { p.ExpiryTime = t0 },
			want:   model.ErrExpiryInPast,
		},
		{
			name:   "unknown chain",
			mutate: func(p *CreateOrderParams) { p.DestinationChainID = 9999 },
			want:   model.ErrUnknownChain,
		},
		{
			name:   "malformed near account",
			mutate: func(p *CreateOrderParams) { p.DestinationAddress = "Alice..near" },
			want:   model.ErrInvalidDestinationAddress,
		},
		{
			name:   "bitcoin address on a near chain",
			mutate: func(p *CreateOrderParams) { p.DestinationAddress = "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn" },
			want:   model.ErrInvalidDestinationAddress,
		},
		{
			name:   "gas above the near limit",
			mutate: func(p *CreateOrderParams) { p.ExecutionParams = []byte(`{"contract_id":"wrap.near","method":"ft_transfer","gas":301}`) },
			want:   model.ErrInvalidExecutionParams,
		},
		{
			name:   "missing destination amount",
			mutate: func(p *CreateOrderParams) { p.DestinationAmount = "" },
			want:   model.ErrInvalidOrderParams,
		},
		{
			name:   "maker cannot fund the order",
			mutate: func(p *CreateOrderParams) { p.SourceAmount = amount("990000000000000000") },
			want:   model.ErrInsufficientBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			p := orderParams()
			tt.mutate(&p)

			_, err := h.ctrl.CreateOrder(context.Background(), p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			assert.Equal(t, oneToken, h.balance(maker, token))
			_, total, err := h.ctrl.ListOrders(context.Background(), model.OrderFilter{})
			require.NoError(t, err)
			assert.Zero(t, total)
			assert.Empty(t, h.events.types())
		})
	}
}

func TestCreateOrder_BitcoinDestination(t *testing.T) {
	h := newHarness(t)
	p := orderParams()
	p.DestinationChainID = chain.BitcoinTestnetChainID
	p.DestinationToken = "BTC"
	p.DestinationAmount = "50000"
	p.DestinationAddress = "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn"
	p.ExecutionParams = []byte(`{"fee_rate_sat_vb":5,"timelock":144}`)
	h.create(p)

	p.DestinationAddress = "invalid-address"
	_, err := h.ctrl.CreateOrder(context.Background(), p)
	assert.True(t, errors.Is(err, model.ErrInvalidDestinationAddress))
	assert.Equal(t, "invalid_destination_address", model.ReasonOf(err))

	p.DestinationAddress = "mipcBbFg9gMiCh81Kj8tqqdgoZub1ZJRfn"
	p.DestinationAmount = "546"
	p.ExpiryTime = p.ExpiryTime.Add(time.Minute)
	_, err = h.ctrl.CreateOrder(context.Background(), p)
	assert.True(t, errors.Is(err, model.ErrInvalidExecutionParams), "dust output must be rejected")
}

func TestScenario_CompleteWithPreimage(t *testing.T) {
	h := newHarness(t)
	o := h.create(orderParams())

	deposit, err := h.registry.CalculateMinSafetyDeposit(chain.NEARTestnetChainID, amount(sourceAmount))
	require.NoError(t, err)
	require.Equal(t, minDeposit, deposit.String())

	matched := h.match(o)
	assert.Equal(t, model.OrderStatusMatched, matched.Status)
	assert.Equal(t, HashPreimage(secret), matched.Hashlock)
	assert.Equal(t, "990000000000000000", h.balance(resolver, native))
	assert.Equal(t, minDeposit, h.balance(o.DestinationEscrowAccount(), native))

	h.clock.Set(t0.Add(time.Hour))
	completed, err := h.ctrl.CompleteOrder(context.Background(), CompleteParams{
		OrderHash: o.OrderHash,
		Caller:    resolver,
		Preimage:  secret,
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, completed.Status)
	assert.Equal(t, model.OrderStatusCompleted, h.status(o.OrderHash))

	assert.Equal(t, escrowTotal, h.balance(resolver, token), "resolver receives amount plus fee")
	assert.Equal(t, oneToken, h.balance(resolver, native), "safety deposit returned")
	assert.Equal(t, "0", h.balance(o.SourceEscrowAccount(), token))
	assert.Equal(t, "0", h.balance(o.DestinationEscrowAccount(), native))
	assert.Equal(t, "780000000000000000", h.balance(maker, token))

	got, err := h.ctrl.GetSecret(context.Background(), o.OrderHash)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(secret), got)

	escrows, err := h.ctrl.GetEscrows(context.Background(), o.OrderHash)
	require.NoError(t, err)
	assert.True(t, escrows.Escrows.Source.Claimed)
	assert.True(t, escrows.Escrows.Destination.Claimed)
	assert.False(t, escrows.Escrows.Source.Refunded)

	assert.Equal(t, []model.OrderEventType{
		model.OrderEventCreated,
		model.OrderEventMatched,
		model.OrderEventCompleted,
	}, h.events.types())

	events, err := h.ctrl.GetOrderEvents(context.Background(), o.OrderHash)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, hex.EncodeToString(secret), events[2].Fields["preimage"])
	assert.Equal(t, HashPreimage(secret), events[1].Fields["hashlock"])
}

func TestScenario_WrongPreimage(t *testing.T) {
	h := newHarness(t)
	o := h.match(h.create(orderParams()))
	h.clock.Set(t0.Add(time.Hour))

	for _, preimage := range [][]byte{nil, []byte("wrong"), append([]byte{}, secret[:len(secret)-1]...)} {
		_, err := h.ctrl.CompleteOrder(context.Background(), CompleteParams{
			OrderHash: o.OrderHash,
			Caller:    resolver,
			Preimage:  preimage,
		})
		require.Error(t, err)
		assert.Equal(t, model.ErrHashlockMismatch, err)
		assert.Equal(t, model.KindState, model.KindOf(err))
	}

	assert.Equal(t, model.OrderStatusMatched, h.status(o.OrderHash))
	assert.Equal(t, "0", h.balance(resolver, token))
	assert.Equal(t, escrowTotal, h.balance(o.SourceEscrowAccount(), token))
	assert.Equal(t, minDeposit, h.balance(o.DestinationEscrowAccount(), native))

	_, err := h.ctrl.GetSecret(context.Background(), o.OrderHash)
	assert.True(t, errors.Is(err, model.ErrInvalidOrderStatus))
}

func TestScenario_RefundAfterPublicRefund(t *testing.T) {
	h := newHarness(t)
	o := h.match(h.create(orderParams()))

	h.clock.Set(o.Timelocks.PublicRefund.Add(time.Minute))
	refunded, err := h.ctrl.RefundOrder(context.Background(), RefundParams{OrderHash: o.OrderHash, Caller: stranger})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusRefunded, refunded.Status)

	assert.Equal(t, oneToken, h.balance(maker, token))
	assert.Equal(t, oneToken, h.balance(resolver, native))
	assert.Equal(t, "0", h.balance(stranger, token))
	assert.Equal(t, "0", h.balance(o.SourceEscrowAccount(), token))

	escrows, err := h.ctrl.GetEscrows(context.Background(), o.OrderHash)
	require.NoError(t, err)
	assert.True(t, escrows.Escrows.Source.Refunded)
	assert.Equal(t, maker, escrows.Escrows.Source.ReleasedTo)
	assert.Equal(t, resolver, escrows.Escrows.Destination.ReleasedTo)
}

func TestMatchOrder_UnauthorizedResolverTouchesNothing(t *testing.T) {
	h := newHarness(t)
	o := h.create(orderParams())

	_, err := h.ctrl.MatchOrder(context.Background(), MatchParams{
		OrderHash:     o.OrderHash,
		Resolver:      outsider,
		Hashlock:      HashPreimage(secret),
		SafetyDeposit: amount(minDeposit),
	})
	assert.Equal(t, model.ErrUnauthorizedResolver, err)
	assert.Equal(t, model.KindAuthorization, model.KindOf(err))

	assert.Equal(t, model.OrderStatusOpen, h.status(o.OrderHash))
	assert.Equal(t, oneToken, h.balance(outsider, native))
	assert.Equal(t, escrowTotal, h.balance(o.SourceEscrowAccount(), token))
	escrows, err := h.ctrl.GetEscrows(context.Background(), o.OrderHash)
	require.NoError(t, err)
	assert.Nil(t, escrows.Escrows.Source)
	assert.Nil(t, escrows.Escrows.Destination)
	assert.Nil(t, escrows.Timelocks)
}

func TestMatchOrder_Guards(t *testing.T) {
	tests := []struct {
		name   string
		before func(h *harness, o *model.Order)
		params func(p *MatchParams)
		want   error
	}{
		{
			name:   "deposit below the chain minimum",
			params: func(p *MatchParams) { p.SafetyDeposit = new(big.Int).Sub(amount(minDeposit), big.NewInt(1)) },
			want:   model.ErrInsufficientSafetyDeposit,
		},
		{
			name:   "hashlock is not 32 bytes",
			params: func(p *MatchParams) { p.Hashlock = "abcd" },
			want:   model.ErrInvalidHashlock,
		},
		{
			name:   "order expired",
			before: func(h *harness, o *model.Order) { h.clock.Set(o.ExpiryTime) },
			want:   model.ErrOrderExpired,
		},
		{
			name: "first stage already elapsed",
			params: func(p *MatchParams) {
				p.Timelocks = &model.Timelocks{
					ResolverCompletion: t0.Add(-time.Minute),
					PublicCompletion:   t0.Add(time.Hour),
					ResolverRefund:     t0.Add(2 * time.Hour),
					PublicRefund:       t0.Add(3 * time.Hour),
				}
			},
			want: model.ErrMatchStageElapsed,
		},
		{
			name: "stages out of order",
			params: func(p *MatchParams) {
				p.Timelocks = &model.Timelocks{
					ResolverCompletion: t0.Add(time.Hour),
					PublicCompletion:   t0.Add(3 * time.Hour),
					ResolverRefund:     t0.Add(2 * time.Hour),
					PublicRefund:       t0.Add(4 * time.Hour),
				}
			},
			want: model.ErrInvalidTimelocks,
		},
		{
			name:   "resolver cannot post the deposit",
			params: func(p *MatchParams) { p.SafetyDeposit = amount("2000000000000000000") },
			want:   model.ErrInsufficientBalance,
		},
		{
			name:   "unknown order",
			params: func(p *MatchParams) { p.OrderHash = "0x" + HashPreimage([]byte("missing")) },
			want:   model.ErrOrderNotFound,
		},
		{
			name: "destination chain deactivated",
			before: func(h *harness, o *model.Order) {
				require.NoError(h.t, h.registry.DeactivateChain(owner, chain.NEARTestnetChainID))
			},
			want: model.ErrChainInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			o := h.create(orderParams())
			if tt.before != nil {
				tt.before(h, o)
			}
			p := MatchParams{
				OrderHash:     o.OrderHash,
				Resolver:      resolver,
				Hashlock:      HashPreimage(secret),
				SafetyDeposit: amount(minDeposit),
			}
			if tt.params != nil {
				tt.params(&p)
			}

			_, err := h.ctrl.MatchOrder(context.Background(), p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)

			assert.Equal(t, model.OrderStatusOpen, h.status(o.OrderHash))
			assert.Equal(t, oneToken, h.balance(resolver, native))
			assert.Equal(t, "0", h.balance(o.DestinationEscrowAccount(), native))
		})
	}
}

func TestMatchOrder_ExplicitTimelocksAndPrefixedHashlock(t *testing.T) {
	h := newHarness(t)
	o := h.create(orderParams())

	timelocks := model.Timelocks{
		ResolverCompletion: t0.Add(10 * time.Minute),
		PublicCompletion:   t0.Add(20 * time.Minute),
		ResolverRefund:     t0.Add(30 * time.Minute),
		PublicRefund:       t0.Add(40 * time.Minute),
	}
	matched, err := h.ctrl.MatchOrder(context.Background(), MatchParams{
		OrderHash:     o.OrderHash[2:],
		Resolver:      "0x3333333333333333333333333333333333333333",
		Hashlock:      "0x" + HashPreimage(secret),
		SafetyDeposit: amount("20000000000000000"),
		Timelocks:     &timelocks,
	})
	require.NoError(t, err)
	assert.Equal(t, HashPreimage(secret), matched.Hashlock)
	assert.True(t, matched.Timelocks.PublicRefund.Equal(timelocks.PublicRefund))
	assert.Equal(t, uint16(500), matched.CapturedDepositBps)

	_, err = h.ctrl.MatchOrder(context.Background(), MatchParams{
		OrderHash:     o.OrderHash,
		Resolver:      resolver,
		Hashlock:      HashPreimage([]byte("another secret")),
		SafetyDeposit: amount(minDeposit),
	})
	assert.True(t, errors.Is(err, model.ErrInvalidOrderStatus), "hashlock is set once")

	stored, err := h.ctrl.GetOrder(context.Background(), o.OrderHash)
	require.NoError(t, err)
	assert.Equal(t, HashPreimage(secret), stored.Hashlock)
	assert.True(t, stored.Timelocks.ResolverCompletion.Before(stored.Timelocks.PublicCompletion))
	assert.True(t, stored.Timelocks.PublicCompletion.Before(stored.Timelocks.ResolverRefund))
	assert.True(t, stored.Timelocks.ResolverRefund.Before(stored.Timelocks.PublicRefund))
}

func TestCompleteOrder_Windows(t *testing.T) {
	t.Run("stranger before the public stage", func(t *testing.T) {
		h := newHarness(t)
		o := h.match(h.create(orderParams()))
		h.clock.Set(o.Timelocks.ResolverCompletion.Add(-time.Second))

		_, err := h.ctrl.CompleteOrder(context.Background(), CompleteParams{OrderHash: o.OrderHash, Caller: stranger, Preimage: secret})
		assert.Equal(t, model.ErrCompletionNotOpen, err)
		assert.Equal(t, model.KindTiming, model.KindOf(err))
	})

	t.Run("stranger in the public stage earns the fee", func(t *testing.T) {
		h := newHarness(t)
		o := h.match(h.create(orderParams()))
		h.clock.Set(o.Timelocks.ResolverCompletion)

		completed, err := h.ctrl.CompleteOrder(context.Background(), CompleteParams{OrderHash: o.OrderHash, Caller: stranger, Preimage: secret})
		require.NoError(t, err)
		assert.Equal(t, stranger, completed.Completer)
		assert.Equal(t, resolverFee, h.balance(stranger, token))
		assert.Equal(t, sourceAmount, h.balance(resolver, token))
		assert.Equal(t, oneToken, h.balance(resolver, native))
	})

	t.Run("resolver after the completion stages", func(t *testing.T) {
		h := newHarness(t)
		o := h.match(h.create(orderParams()))
		h.clock.Set(o.Timelocks.PublicCompletion)

		_, err := h.ctrl.CompleteOrder(context.Background(), CompleteParams{OrderHash: o.OrderHash, Caller: resolver, Preimage: secret})
		assert.Equal(t, model.ErrCompletionWindowClosed, err)
		assert.Equal(t, model.OrderStatusMatched, h.status(o.OrderHash))
	})

	t.Run("open order", func(t *testing.T) {
		h := newHarness(t)
		o := h.create(orderParams())
		_, err := h.ctrl.CompleteOrder(context.Background(), CompleteParams{OrderHash: o.OrderHash, Caller: resolver, Preimage: secret})
		assert.True(t, errors.Is(err, model.ErrInvalidOrderStatus))
		assert.Equal(t, model.KindState, model.KindOf(err))
	})
}

func TestRefundOrder_Windows(t *testing.T) {
	h := newHarness(t)
	o := h.match(h.create(orderParams()))

	h.clock.Set(o.Timelocks.ResolverRefund.Add(-time.Second))
	_, err := h.ctrl.RefundOrder(context.Background(), RefundParams{OrderHash: o.OrderHash, Caller: maker})
	assert.Equal(t, model.ErrRefundNotOpen, err)

	h.clock.Set(o.Timelocks.ResolverRefund)
	_, err = h.ctrl.RefundOrder(context.Background(), RefundParams{OrderHash: o.OrderHash, Caller: stranger})
	assert.Equal(t, model.ErrUnauthorizedRefund, err)
	assert.Equal(t, model.KindAuthorization, model.KindOf(err))

	_, err = h.ctrl.RefundOrder(context.Background(), RefundParams{OrderHash: o.OrderHash, Caller: maker})
	require.NoError(t, err)
	assert.Equal(t, oneToken, h.balance(maker, token))
	assert.Equal(t, oneToken, h.balance(resolver, native))
}

func TestNoDoubleRelease(t *testing.T) {
	t.Run("complete then refund", func(t *testing.T) {
		h := newHarness(t)
		o := h.match(h.create(orderParams()))
		h.clock.Set(t0.Add(time.Minute))
		_, err := h.ctrl.CompleteOrder(context.Background(), CompleteParams{OrderHash: o.OrderHash, Caller: resolver, Preimage: secret})
		require.NoError(t, err)

		h.clock.Set(o.Timelocks.PublicRefund)
		_, err = h.ctrl.RefundOrder(context.Background(), RefundParams{OrderHash: o.OrderHash, Caller: maker})
		assert.True(t, errors.Is(err, model.ErrInvalidOrderStatus))

		// a second completion fails harmlessly too
		h.clock.Set(t0.Add(time.Minute))
		_, err = h.ctrl.CompleteOrder(context.Background(), CompleteParams{OrderHash: o.OrderHash, Caller: resolver, Preimage: secret})
		assert.True(t, errors.Is(err, model.ErrInvalidOrderStatus))

		assert.Equal(t, escrowTotal, h.balance(resolver, token))
		assert.Equal(t, "780000000000000000", h.balance(maker, token))
		assert.Equal(t, oneToken, h.balance(resolver, native))
	})

	t.Run("refund then complete", func(t *testing.T) {
		h := newHarness(t)
		o := h.match(h.create(orderParams()))
		h.clock.Set(o.Timelocks.ResolverRefund)
		_, err := h.ctrl.RefundOrder(context.Background(), RefundParams{OrderHash: o.OrderHash, Caller: resolver})
		require.NoError(t, err)

		h.clock.Set(t0.Add(time.Minute))
		_, err = h.ctrl.CompleteOrder(context.Background(), CompleteParams{OrderHash: o.OrderHash, Caller: resolver, Preimage: secret})
		assert.True(t, errors.Is(err, model.ErrInvalidOrderStatus))

		assert.Equal(t, "0", h.balance(resolver, token))
		assert.Equal(t, oneToken, h.balance(maker, token))
		assert.Equal(t, oneToken, h.balance(resolver, native))
	})
}

func TestCompleteOrder_ConcurrentCallsReleaseOnce(t *testing.T) {
	h := newHarness(t)
	o := h.match(h.create(orderParams()))
	h.clock.Set(o.Timelocks.ResolverCompletion)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		caller := resolver
		if i%2 == 1 {
			caller = stranger
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.ctrl.CompleteOrder(context.Background(), CompleteParams{OrderHash: o.OrderHash, Caller: caller, Preimage: secret})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, model.ErrInvalidOrderStatus), "got %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, "0", h.balance(o.SourceEscrowAccount(), token))
	total := new(big.Int).Add(amount(h.balance(resolver, token)), amount(h.balance(stranger, token)))
	assert.Equal(t, escrowTotal, total.String())
}

func TestCompleteOrder_AfterChainDeactivation(t *testing.T) {
	h := newHarness(t)
	o := h.match(h.create(orderParams()))
	require.NoError(t, h.registry.DeactivateChain(owner, chain.NEARTestnetChainID))

	h.clock.Set(t0.Add(time.Minute))
	_, err := h.ctrl.CompleteOrder(context.Background(), CompleteParams{OrderHash: o.OrderHash, Caller: resolver, Preimage: secret})
	require.NoError(t, err)

	costs, err := h.ctrl.EstimateOrderCosts(context.Background(), o.OrderHash)
	assert.True(t, errors.Is(err, model.ErrChainInactive))
	assert.Nil(t, costs)
}

func TestExpireOrder(t *testing.T) {
	h := newHarness(t)
	o := h.create(orderParams())

	_, err := h.ctrl.ExpireOrder(context.Background(), o.OrderHash)
	assert.Equal(t, model.ErrOrderNotExpired, err)

	h.clock.Set(o.ExpiryTime)
	expired, err := h.ctrl.ExpireOrder(context.Background(), o.OrderHash)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusExpired, expired.Status)
	assert.Equal(t, oneToken, h.balance(maker, token))
	assert.Equal(t, "0", h.balance(o.SourceEscrowAccount(), token))

	_, err = h.ctrl.ExpireOrder(context.Background(), o.OrderHash)
	assert.True(t, errors.Is(err, model.ErrInvalidOrderStatus))

	_, err = h.ctrl.MatchOrder(context.Background(), MatchParams{
		OrderHash:     o.OrderHash,
		Resolver:      resolver,
		Hashlock:      HashPreimage(secret),
		SafetyDeposit: amount(minDeposit),
	})
	assert.True(t, errors.Is(err, model.ErrInvalidOrderStatus))
	assert.Equal(t, []model.OrderEventType{model.OrderEventCreated, model.OrderEventExpired}, h.events.types())
}

func TestExpireDueOrders(t *testing.T) {
	h := newHarness(t)

	var orders []*model.Order
	for i := 1; i <= 3; i++ {
		p := orderParams()
		p.SourceAmount = big.NewInt(int64(1000 * i))
		p.ResolverFee = big.NewInt(10)
		p.ExpiryTime = t0.Add(time.Duration(i) * time.Hour)
		orders = append(orders, h.create(p))
	}
	_, err := h.ctrl.MatchOrder(context.Background(), MatchParams{
		OrderHash:     orders[0].OrderHash,
		Resolver:      resolver,
		Hashlock:      HashPreimage(secret),
		SafetyDeposit: big.NewInt(100),
	})
	require.NoError(t, err)

	h.clock.Set(t0.Add(150 * time.Minute))
	n, err := h.ctrl.ExpireDueOrders(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.OrderStatusMatched, h.status(orders[0].OrderHash))
	assert.Equal(t, model.OrderStatusExpired, h.status(orders[1].OrderHash))
	assert.Equal(t, model.OrderStatusOpen, h.status(orders[2].OrderHash))

	n, err = h.ctrl.ExpireDueOrders(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReads(t *testing.T) {
	h := newHarness(t)
	o := h.create(orderParams())

	ok, err := h.ctrl.IsOrderMatchable(context.Background(), o.OrderHash)
	require.NoError(t, err)
	assert.True(t, ok)

	costs, err := h.ctrl.EstimateOrderCosts(context.Background(), o.OrderHash)
	require.NoError(t, err)
	assert.Equal(t, minDeposit, costs.MinSafetyDeposit.String())
	assert.Equal(t, resolverFee, costs.ResolverFee.String())
	assert.Equal(t, escrowTotal, costs.EscrowTotal.String())
	assert.Positive(t, costs.ExecutionCost.Sign())
	assert.True(t, strings.HasSuffix(costs.ExecutionCostFmt, " NEAR"), costs.ExecutionCostFmt)

	state, err := h.ctrl.GetEscrows(context.Background(), o.OrderHash)
	require.NoError(t, err)
	assert.Equal(t, escrowTotal, state.SourceCustody)
	assert.Equal(t, "0", state.DestinationCustody)

	h.match(o)
	ok, err = h.ctrl.IsOrderMatchable(context.Background(), o.OrderHash)
	require.NoError(t, err)
	assert.False(t, ok)

	state, err = h.ctrl.GetEscrows(context.Background(), o.OrderHash)
	require.NoError(t, err)
	require.NotNil(t, state.Timelocks)
	assert.Equal(t, escrowTotal, state.Escrows.Source.Amount)
	assert.Equal(t, minDeposit, state.Escrows.Destination.SafetyDeposit)
	assert.Equal(t, minDeposit, state.DestinationCustody)
	assert.Equal(t, "escrow:"+o.OrderHash+":dst", state.DestinationAccount)

	matched, total, err := h.ctrl.ListOrders(context.Background(), model.OrderFilter{Status: model.OrderStatusMatched})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, o.OrderHash, matched[0].OrderHash)

	_, _, err = h.ctrl.ListOrders(context.Background(), model.OrderFilter{Status: "cancelled"})
	assert.Equal(t, model.KindValidation, model.KindOf(err))

	_, err = h.ctrl.GetOrder(context.Background(), "0x"+HashPreimage([]byte("missing")))
	assert.Equal(t, model.ErrOrderNotFound, err)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}
