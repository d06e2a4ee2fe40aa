package controller

import (
	"context"
	"encoding/hex"
	"math/big"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/authority"
	"github.com/dwarvesf/fusion-bridge/internal/ledger"
	"github.com/dwarvesf/fusion-bridge/internal/locker"
	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/monitoring"
	"github.com/dwarvesf/fusion-bridge/internal/registry"
	"github.com/dwarvesf/fusion-bridge/internal/store"
	"github.com/dwarvesf/fusion-bridge/internal/store/escrow"
	"github.com/dwarvesf/fusion-bridge/internal/utils/config"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

type Controller struct {
	db        *gorm.DB
	store     *store.Store
	registry  *registry.Registry
	authority authority.IAuthority
	ledger    ledger.ILedger
	locker    locker.ILocker
	publisher EventPublisher
	metrics   *monitoring.EngineMetrics
	logger    *logger.Logger
	config    *config.AppConfig

	clock func() time.Time
}

type Option func(*Controller)

// WithClock replaces time.Now, which lets tests walk through the stages.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

func New(
	db *gorm.DB,
	store *store.Store,
	registry *registry.Registry,
	authority authority.IAuthority,
	ledger ledger.ILedger,
	locker locker.ILocker,
	publisher EventPublisher,
	metrics *monitoring.EngineMetrics,
	logger *logger.Logger,
	config *config.AppConfig,
	opts ...Option,
) *Controller {
	c := &Controller{
		db:        db,
		store:     store,
		registry:  registry,
		authority: authority,
		ledger:    ledger,
		locker:    locker,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		config:    config,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) now() time.Time {
	return c.clock().UTC()
}

func (c *Controller) nativeAsset() string {
	return c.config.Chains.NativeAsset
}

func (c *Controller) ComputeOrderHash(params CreateOrderParams) (string, error) {
	return ComputeOrderHash(params)
}

func (c *Controller) CreateOrder(ctx context.Context, p CreateOrderParams) (o *model.Order, err error) {
	defer c.observe("create_order", time.Now(), &err)

	maker, err := normalizeAddress(p.Maker)
	if err != nil {
		return nil, err
	}
	token, err := normalizeAddress(p.SourceToken)
	if err != nil {
		return nil, err
	}
	if p.SourceAmount == nil || p.SourceAmount.Sign() <= 0 {
		return nil, errors.Wrap(model.ErrInvalidAmount, "source amount must be positive")
	}
	fee := p.ResolverFee
	if fee == nil {
		fee = new(big.Int)
	}
	if fee.Sign() < 0 {
		return nil, errors.Wrap(model.ErrInvalidAmount, "resolver fee must be non-negative")
	}
	if p.DestinationToken == "" || p.DestinationAmount == "" {
		return nil, errors.Wrap(model.ErrInvalidOrderParams, "destination token and amount are required")
	}

	now := c.now()
	expiry := p.ExpiryTime.UTC().Truncate(time.Second)
	if !expiry.After(now) {
		return nil, model.ErrExpiryInPast
	}

	if err := c.registry.ValidateDestinationAddress(p.DestinationChainID, []byte(p.DestinationAddress)); err != nil {
		return nil, err
	}
	res, err := c.registry.ValidateOrderParams(p.DestinationChainID, p.ExecutionParams,
		destinationAmountOrSource(p.DestinationAmount, p.SourceAmount))
	if err != nil {
		return nil, err
	}
	if !res.IsValid {
		return nil, errors.Wrap(model.ErrInvalidExecutionParams, res.ErrorMessage)
	}

	p.Maker, p.SourceToken, p.ResolverFee, p.ExpiryTime = maker, token, fee, expiry
	hash, err := ComputeOrderHash(p)
	if err != nil {
		return nil, err
	}

	o = &model.Order{
		OrderHash:          hash,
		Maker:              maker,
		SourceToken:        token,
		SourceAmount:       p.SourceAmount.String(),
		DestinationChainID: p.DestinationChainID,
		DestinationToken:   p.DestinationToken,
		DestinationAmount:  p.DestinationAmount,
		DestinationAddress: p.DestinationAddress,
		ResolverFee:        fee.String(),
		ExpiryTime:         expiry,
		ExecutionParams:    string(p.ExecutionParams),
		Status:             model.OrderStatusOpen,
	}

	err = c.execute(ctx, hash, func(tx *gorm.DB, ev *events) error {
		if _, err := c.store.Order.GetByHash(tx, hash); err == nil {
			return errors.Wrapf(model.ErrDuplicateOrder, "order %s", hash)
		} else if !errors.Is(err, model.ErrOrderNotFound) {
			return err
		}

		// partial funding never reaches the order table
		if err := c.ledger.Transfer(tx, maker, o.SourceEscrowAccount(), token, o.EscrowTotal()); err != nil {
			return err
		}
		if _, err := c.store.Order.Create(tx, o); err != nil {
			return err
		}
		return ev.add(tx, c, o, model.OrderEventCreated, now, map[string]string{
			"maker":                o.Maker,
			"source_token":         o.SourceToken,
			"source_amount":        o.SourceAmount,
			"resolver_fee":         o.ResolverFee,
			"destination_chain_id": formatChainID(o.DestinationChainID),
			"destination_token":    o.DestinationToken,
			"destination_amount":   o.DestinationAmount,
			"destination_address":  o.DestinationAddress,
			"expiry_time":          formatTime(o.ExpiryTime),
			"source_escrow":        o.SourceEscrowAccount(),
			"status":               string(o.Status),
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("[CreateOrder] order created", map[string]string{
		"order_hash":           hash,
		"maker":                maker,
		"destination_chain_id": formatChainID(p.DestinationChainID),
	})
	return o, nil
}

func (c *Controller) MatchOrder(ctx context.Context, p MatchParams) (o *model.Order, err error) {
	defer c.observe("match_order", time.Now(), &err)

	// authorization comes first so an outsider never reaches escrow state
	resolver, err := normalizeAddress(p.Resolver)
	if err != nil {
		return nil, errors.Wrap(model.ErrUnauthorizedResolver, err.Error())
	}
	ok, err := c.authority.IsAuthorized(ctx, resolver)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrUnauthorizedResolver
	}

	hashlock, err := parseHashlock(p.Hashlock)
	if err != nil {
		return nil, err
	}
	if p.SafetyDeposit == nil || p.SafetyDeposit.Sign() < 0 {
		return nil, errors.Wrap(model.ErrInvalidAmount, "safety deposit must be non-negative")
	}
	if p.Timelocks != nil {
		if err := p.Timelocks.Validate(); err != nil {
			return nil, err
		}
	}

	hash := normalizeOrderHash(p.OrderHash)
	now := c.now()
	err = c.execute(ctx, hash, func(tx *gorm.DB, ev *events) error {
		var err error
		o, err = c.store.Order.GetByHashForUpdate(tx, hash)
		if err != nil {
			return err
		}
		if err := requireStatus(o, model.OrderStatusOpen); err != nil {
			return err
		}
		if !now.Before(o.ExpiryTime) {
			return model.ErrOrderExpired
		}

		info, err := c.registry.Snapshot(o.DestinationChainID)
		if err != nil {
			return err
		}
		if err := c.registry.ValidateDestinationAddress(o.DestinationChainID, []byte(o.DestinationAddress)); err != nil {
			return err
		}

		amount := model.MustBigInt(o.SourceAmount)
		minDeposit, err := c.registry.CalculateMinSafetyDeposit(o.DestinationChainID, amount)
		if err != nil {
			return err
		}
		if p.SafetyDeposit.Cmp(minDeposit) < 0 {
			return errors.Wrapf(model.ErrInsufficientSafetyDeposit, "got %s, need %s", p.SafetyDeposit, minDeposit)
		}

		custody, err := c.ledger.Balance(tx, o.SourceEscrowAccount(), o.SourceToken)
		if err != nil {
			return err
		}
		if custody.Cmp(o.EscrowTotal()) != 0 {
			return errors.Wrapf(model.ErrEscrowAmountMismatch, "custody holds %s, order commits %s", custody, o.EscrowTotal())
		}

		var timelocks model.Timelocks
		if p.Timelocks != nil {
			timelocks, err = model.NewTimelocks(p.Timelocks.ResolverCompletion, p.Timelocks.PublicCompletion,
				p.Timelocks.ResolverRefund, p.Timelocks.PublicRefund)
		} else {
			timelocks, err = model.DefaultTimelocks(now, info.DefaultTimelock)
		}
		if err != nil {
			return err
		}
		if !now.Before(timelocks.ResolverCompletion) {
			return model.ErrMatchStageElapsed
		}

		if err := c.ledger.Transfer(tx, resolver, o.DestinationEscrowAccount(), c.nativeAsset(), p.SafetyDeposit); err != nil {
			return errors.Wrap(err, "post safety deposit")
		}

		source := &model.Escrow{
			OrderHash:     o.OrderHash,
			Side:          model.EscrowSideSource,
			Account:       o.SourceEscrowAccount(),
			Asset:         o.SourceToken,
			Amount:        o.EscrowTotal().String(),
			SafetyDeposit: "0",
			Hashlock:      hashlock,
			Timelocks:     timelocks,
		}
		destination := &model.Escrow{
			OrderHash:     o.OrderHash,
			Side:          model.EscrowSideDestination,
			Account:       o.DestinationEscrowAccount(),
			Asset:         o.DestinationToken,
			Amount:        o.DestinationAmount,
			SafetyDeposit: p.SafetyDeposit.String(),
			DepositAsset:  c.nativeAsset(),
			Hashlock:      hashlock,
			Timelocks:     timelocks,
		}
		for _, e := range []*model.Escrow{source, destination} {
			if _, err := c.store.Escrow.Create(tx, e); err != nil {
				return err
			}
		}

		updates := timelockColumns(timelocks)
		updates["resolver"] = resolver
		updates["hashlock"] = hashlock
		updates["safety_deposit"] = p.SafetyDeposit.String()
		updates["captured_deposit_bps"] = info.SafetyDepositBps
		updates["captured_deposit_floor"] = info.SafetyDepositFloor.String()
		updates["matched_at"] = now
		if err := c.transition(tx, o, model.OrderStatusMatched, updates); err != nil {
			return err
		}
		o.Resolver, o.Hashlock, o.Timelocks = resolver, hashlock, timelocks
		o.SafetyDeposit = p.SafetyDeposit.String()
		o.CapturedDepositBps, o.CapturedDepositFloor = info.SafetyDepositBps, info.SafetyDepositFloor.String()
		o.MatchedAt = &now

		fields := timelockFields(timelocks)
		fields["resolver"] = resolver
		fields["hashlock"] = hashlock
		fields["safety_deposit"] = o.SafetyDeposit
		fields["deposit_asset"] = c.nativeAsset()
		fields["captured_deposit_bps"] = strconv.Itoa(int(info.SafetyDepositBps))
		fields["captured_deposit_floor"] = o.CapturedDepositFloor
		fields["source_escrow"] = source.Account
		fields["destination_escrow"] = destination.Account
		fields["status"] = string(o.Status)
		return ev.add(tx, c, o, model.OrderEventMatched, now, fields)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("[MatchOrder] order matched", map[string]string{
		"order_hash":     hash,
		"resolver":       resolver,
		"safety_deposit": o.SafetyDeposit,
	})
	return o, nil
}

func (c *Controller) CompleteOrder(ctx context.Context, p CompleteParams) (o *model.Order, err error) {
	defer c.observe("complete_order", time.Now(), &err)

	caller, err := normalizeAddress(p.Caller)
	if err != nil {
		return nil, err
	}

	hash := normalizeOrderHash(p.OrderHash)
	now := c.now()
	err = c.execute(ctx, hash, func(tx *gorm.DB, ev *events) error {
		var err error
		o, err = c.store.Order.GetByHashForUpdate(tx, hash)
		if err != nil {
			return err
		}
		if err := requireStatus(o, model.OrderStatusMatched); err != nil {
			return err
		}
		if err := o.Timelocks.CanComplete(now, sameAddress(caller, o.Resolver)); err != nil {
			return err
		}
		if HashPreimage(p.Preimage) != o.Hashlock {
			return model.ErrHashlockMismatch
		}

		pair, err := c.store.Escrow.GetByOrderHash(tx, o.OrderHash)
		if err != nil {
			return err
		}
		if err := c.release(tx, pair, true, o.Resolver, o.Resolver, now); err != nil {
			return err
		}

		fee := model.MustBigInt(o.ResolverFee)
		if err := c.ledger.Transfer(tx, o.SourceEscrowAccount(), o.Resolver, o.SourceToken, model.MustBigInt(o.SourceAmount)); err != nil {
			return err
		}
		if err := c.ledger.Transfer(tx, o.SourceEscrowAccount(), caller, o.SourceToken, fee); err != nil {
			return err
		}
		if err := c.returnDeposit(tx, o, pair); err != nil {
			return err
		}

		preimage := hex.EncodeToString(p.Preimage)
		err = c.transition(tx, o, model.OrderStatusCompleted, map[string]interface{}{
			"preimage":     preimage,
			"completer":    caller,
			"completed_at": now,
		})
		if err != nil {
			return err
		}
		o.Preimage, o.Completer, o.CompletedAt = preimage, caller, &now

		return ev.add(tx, c, o, model.OrderEventCompleted, now, map[string]string{
			"preimage":          preimage,
			"completer":         caller,
			"resolver":          o.Resolver,
			"released_amount":   o.SourceAmount,
			"resolver_fee":      o.ResolverFee,
			"fee_recipient":     caller,
			"safety_deposit":    o.SafetyDeposit,
			"deposit_recipient": o.Resolver,
			"status":            string(o.Status),
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("[CompleteOrder] order completed", map[string]string{
		"order_hash": hash,
		"completer":  caller,
	})
	return o, nil
}

func (c *Controller) RefundOrder(ctx context.Context, p RefundParams) (o *model.Order, err error) {
	defer c.observe("refund_order", time.Now(), &err)

	caller, err := normalizeAddress(p.Caller)
	if err != nil {
		return nil, err
	}

	hash := normalizeOrderHash(p.OrderHash)
	now := c.now()
	err = c.execute(ctx, hash, func(tx *gorm.DB, ev *events) error {
		var err error
		o, err = c.store.Order.GetByHashForUpdate(tx, hash)
		if err != nil {
			return err
		}
		if err := requireStatus(o, model.OrderStatusMatched); err != nil {
			return err
		}
		privileged := sameAddress(caller, o.Maker) || sameAddress(caller, o.Resolver)
		if err := o.Timelocks.CanRefund(now, privileged); err != nil {
			return err
		}

		pair, err := c.store.Escrow.GetByOrderHash(tx, o.OrderHash)
		if err != nil {
			return err
		}
		if err := c.release(tx, pair, false, o.Maker, o.Resolver, now); err != nil {
			return err
		}
		if err := c.ledger.Transfer(tx, o.SourceEscrowAccount(), o.Maker, o.SourceToken, o.EscrowTotal()); err != nil {
			return err
		}
		if err := c.returnDeposit(tx, o, pair); err != nil {
			return err
		}

		if err := c.transition(tx, o, model.OrderStatusRefunded, map[string]interface{}{"refunded_at": now}); err != nil {
			return err
		}
		o.RefundedAt = &now

		return ev.add(tx, c, o, model.OrderEventRefunded, now, map[string]string{
			"caller":            caller,
			"refund_recipient":  o.Maker,
			"refunded_amount":   o.EscrowTotal().String(),
			"safety_deposit":    o.SafetyDeposit,
			"deposit_recipient": o.Resolver,
			"status":            string(o.Status),
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("[RefundOrder] order refunded", map[string]string{
		"order_hash": hash,
		"caller":     caller,
	})
	return o, nil
}

func (c *Controller) ExpireOrder(ctx context.Context, orderHash string) (o *model.Order, err error) {
	defer c.observe("expire_order", time.Now(), &err)

	hash := normalizeOrderHash(orderHash)
	now := c.now()
	err = c.execute(ctx, hash, func(tx *gorm.DB, ev *events) error {
		var err error
		o, err = c.store.Order.GetByHashForUpdate(tx, hash)
		if err != nil {
			return err
		}
		if err := requireStatus(o, model.OrderStatusOpen); err != nil {
			return err
		}
		if now.Before(o.ExpiryTime) {
			return model.ErrOrderNotExpired
		}

		if err := c.ledger.Transfer(tx, o.SourceEscrowAccount(), o.Maker, o.SourceToken, o.EscrowTotal()); err != nil {
			return err
		}
		if err := c.transition(tx, o, model.OrderStatusExpired, map[string]interface{}{"expired_at": now}); err != nil {
			return err
		}
		o.ExpiredAt = &now

		return ev.add(tx, c, o, model.OrderEventExpired, now, map[string]string{
			"refund_recipient": o.Maker,
			"refunded_amount":  o.EscrowTotal().String(),
			"status":           string(o.Status),
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("[ExpireOrder] order expired", map[string]string{
		"order_hash": hash,
		"maker":      o.Maker,
	})
	return o, nil
}

func (c *Controller) ExpireDueOrders(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	due, err := c.store.Order.FindExpiredOpen(c.db.WithContext(ctx), c.now(), limit)
	if err != nil {
		c.logger.Error("[ExpireDueOrders][FindExpiredOpen]", map[string]string{
			"error": err.Error(),
		})
		return 0, err
	}

	expired := 0
	for _, o := range due {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if _, err := c.ExpireOrder(ctx, o.OrderHash); err != nil {
			// another caller got there first
			if errors.Is(err, model.ErrInvalidOrderStatus) {
				continue
			}
			c.logger.Error("[ExpireDueOrders][ExpireOrder]", map[string]string{
				"order_hash": o.OrderHash,
				"error":      err.Error(),
			})
			continue
		}
		expired++
	}
	return expired, nil
}

// release marks both sides of the pair exactly once. The source side goes
// to sourceTo, the destination side (the deposit) to depositTo.
func (c *Controller) release(tx *gorm.DB, pair *model.EscrowPair, claimed bool, sourceTo, depositTo string, now time.Time) error {
	if pair.Source == nil || pair.Destination == nil {
		return errors.New("escrow pair is incomplete")
	}
	if err := c.store.Escrow.MarkReleased(tx, pair.Source.ID, escrow.Release{Claimed: claimed, To: sourceTo, At: now}); err != nil {
		return err
	}
	if err := c.store.Escrow.MarkReleased(tx, pair.Destination.ID, escrow.Release{Claimed: claimed, To: depositTo, At: now}); err != nil {
		return err
	}
	c.metrics.RecordRelease(model.EscrowSideSource, claimed)
	c.metrics.RecordRelease(model.EscrowSideDestination, claimed)
	return nil
}

// returnDeposit is the only path out of the destination custody account.
func (c *Controller) returnDeposit(tx *gorm.DB, o *model.Order, pair *model.EscrowPair) error {
	return c.ledger.Transfer(tx, o.DestinationEscrowAccount(), o.Resolver, pair.Destination.DepositAsset,
		model.MustBigInt(pair.Destination.SafetyDeposit))
}

// events collects what a transaction emitted so it can be published once
// the transaction commits.
type events struct {
	list []*model.OrderEvent
}

func (e *events) add(tx *gorm.DB, c *Controller, o *model.Order, typ model.OrderEventType, at time.Time, fields map[string]string) error {
	event := &model.OrderEvent{
		OrderHash: o.OrderHash,
		Type:      typ,
		Fields:    fields,
		CreatedAt: at,
	}
	if _, err := c.store.OrderEvent.Create(tx, event); err != nil {
		return err
	}
	e.list = append(e.list, event)
	return nil
}

// execute runs fn under the order's lock inside one transaction and then
// publishes what fn emitted.
func (c *Controller) execute(ctx context.Context, orderHash string, fn func(tx *gorm.DB, ev *events) error) error {
	unlock, err := c.locker.Lock(ctx, orderHash)
	if err != nil {
		c.logger.Error("[execute][Lock]", map[string]string{
			"order_hash": orderHash,
			"error":      err.Error(),
		})
		return errors.Wrap(err, "lock order")
	}
	defer unlock()

	ev := &events{}
	err = store.DoInTx(c.db.WithContext(ctx), func(tx *gorm.DB) error {
		return fn(tx, ev)
	})
	if err != nil {
		if model.KindOf(err) == model.KindInternal {
			c.logger.Error("[execute][DoInTx]", map[string]string{
				"order_hash": orderHash,
				"error":      err.Error(),
			})
		}
		return err
	}

	if c.publisher != nil {
		for _, e := range ev.list {
			c.publisher.Publish(ctx, e)
		}
	}
	return nil
}

func (c *Controller) observe(operation string, start time.Time, err *error) {
	c.metrics.ObserveOperation(operation, *err, time.Since(start))
}
