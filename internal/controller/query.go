package controller

import (
	"context"
	"math/big"

	"github.com/pkg/errors"

	"github.com/dwarvesf/fusion-bridge/internal/chain"
	"github.com/dwarvesf/fusion-bridge/internal/model"
)

func (c *Controller) GetOrder(ctx context.Context, orderHash string) (*model.Order, error) {
	return c.store.Order.GetByHash(c.db.WithContext(ctx), normalizeOrderHash(orderHash))
}

func (c *Controller) ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, int64, error) {
	if filter.Status != "" {
		switch filter.Status {
		case model.OrderStatusOpen, model.OrderStatusMatched, model.OrderStatusCompleted,
			model.OrderStatusExpired, model.OrderStatusRefunded:
		default:
			return nil, 0, errors.Wrapf(model.ErrInvalidOrderParams, "unknown status %q", filter.Status)
		}
	}
	return c.store.Order.List(c.db.WithContext(ctx), filter)
}

func (c *Controller) GetEscrows(ctx context.Context, orderHash string) (*EscrowState, error) {
	db := c.db.WithContext(ctx)
	o, err := c.store.Order.GetByHash(db, normalizeOrderHash(orderHash))
	if err != nil {
		return nil, err
	}
	pair, err := c.store.Escrow.GetByOrderHash(db, o.OrderHash)
	if err != nil {
		return nil, err
	}
	srcCustody, err := c.ledger.Balance(db, o.SourceEscrowAccount(), o.SourceToken)
	if err != nil {
		return nil, err
	}
	depositAsset := c.nativeAsset()
	if pair.Destination != nil && pair.Destination.DepositAsset != "" {
		depositAsset = pair.Destination.DepositAsset
	}
	dstCustody, err := c.ledger.Balance(db, o.DestinationEscrowAccount(), depositAsset)
	if err != nil {
		return nil, err
	}

	state := &EscrowState{
		OrderHash:          o.OrderHash,
		Status:             o.Status,
		Hashlock:           o.Hashlock,
		SourceAccount:      o.SourceEscrowAccount(),
		DestinationAccount: o.DestinationEscrowAccount(),
		SourceCustody:      srcCustody.String(),
		DestinationCustody: dstCustody.String(),
		Escrows:            pair,
	}
	if !o.Timelocks.IsZero() {
		timelocks := o.Timelocks
		state.Timelocks = &timelocks
	}
	return state, nil
}

// IsOrderMatchable reports whether a match could succeed now, leaving out
// the resolver specific checks.
func (c *Controller) IsOrderMatchable(ctx context.Context, orderHash string) (bool, error) {
	o, err := c.GetOrder(ctx, orderHash)
	if err != nil {
		return false, err
	}
	if o.Status != model.OrderStatusOpen || !c.now().Before(o.ExpiryTime) {
		return false, nil
	}
	return c.registry.IsChainSupported(o.DestinationChainID), nil
}

func (c *Controller) EstimateOrderCosts(ctx context.Context, orderHash string) (*CostEstimate, error) {
	o, err := c.GetOrder(ctx, orderHash)
	if err != nil {
		return nil, err
	}
	amount := model.MustBigInt(o.SourceAmount)

	var params []byte
	if o.ExecutionParams != "" {
		params = []byte(o.ExecutionParams)
	}
	cost, err := c.registry.EstimateExecutionCost(o.DestinationChainID, params,
		destinationAmountOrSource(o.DestinationAmount, amount))
	if err != nil {
		return nil, err
	}

	// matched orders keep the parameters captured at match time
	var minDeposit *big.Int
	if o.CapturedDepositBps > 0 {
		minDeposit = chain.MinSafetyDeposit(amount, o.CapturedDepositBps, model.MustBigInt(o.CapturedDepositFloor))
	} else {
		minDeposit, err = c.registry.CalculateMinSafetyDeposit(o.DestinationChainID, amount)
		if err != nil {
			return nil, err
		}
	}

	info, err := c.registry.GetChainInfo(o.DestinationChainID)
	if err != nil {
		return nil, err
	}

	return &CostEstimate{
		OrderHash:        o.OrderHash,
		ExecutionCost:    cost,
		ExecutionCostFmt: model.FormatUnits(cost.String(), int(info.Decimals)) + " " + info.Symbol,
		MinSafetyDeposit: minDeposit,
		ResolverFee:      model.MustBigInt(o.ResolverFee),
		EscrowTotal:      o.EscrowTotal(),
	}, nil
}

func (c *Controller) GetOrderEvents(ctx context.Context, orderHash string) ([]*model.OrderEvent, error) {
	db := c.db.WithContext(ctx)
	o, err := c.store.Order.GetByHash(db, normalizeOrderHash(orderHash))
	if err != nil {
		return nil, err
	}
	return c.store.OrderEvent.ListByOrderHash(db, o.OrderHash)
}

func (c *Controller) GetSecret(ctx context.Context, orderHash string) (string, error) {
	o, err := c.GetOrder(ctx, orderHash)
	if err != nil {
		return "", err
	}
	if o.Status != model.OrderStatusCompleted {
		return "", errors.Wrapf(model.ErrInvalidOrderStatus, "secret is published on completion, order is %s", o.Status)
	}
	return o.Preimage, nil
}
