package controller

import (
	"context"
	"math/big"
	"time"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

type IController interface {
	// ComputeOrderHash lets a maker precompute the id of an order.
	ComputeOrderHash(params CreateOrderParams) (string, error)

	// CreateOrder admits an Open order and moves sourceAmount + resolverFee
	// from the maker into the order's source custody account.
	CreateOrder(ctx context.Context, params CreateOrderParams) (*model.Order, error)

	// MatchOrder binds an authorized resolver, a hashlock and a safety
	// deposit to an Open order and creates its escrow pair.
	MatchOrder(ctx context.Context, params MatchParams) (*model.Order, error)

	// CompleteOrder releases both escrows against the preimage of the
	// order's hashlock.
	CompleteOrder(ctx context.Context, params CompleteParams) (*model.Order, error)

	// RefundOrder returns escrowed funds to the maker and the safety
	// deposit to the resolver once the refund stage is reached.
	RefundOrder(ctx context.Context, params RefundParams) (*model.Order, error)

	// ExpireOrder returns an unmatched order's custody to its maker once
	// its expiry time has passed.
	ExpireOrder(ctx context.Context, orderHash string) (*model.Order, error)

	// ExpireDueOrders expires up to limit overdue Open orders.
	ExpireDueOrders(ctx context.Context, limit int) (int, error)

	GetOrder(ctx context.Context, orderHash string) (*model.Order, error)
	ListOrders(ctx context.Context, filter model.OrderFilter) ([]*model.Order, int64, error)
	GetEscrows(ctx context.Context, orderHash string) (*EscrowState, error)
	IsOrderMatchable(ctx context.Context, orderHash string) (bool, error)
	EstimateOrderCosts(ctx context.Context, orderHash string) (*CostEstimate, error)
	GetOrderEvents(ctx context.Context, orderHash string) ([]*model.OrderEvent, error)

	// GetSecret returns the preimage of a completed order.
	GetSecret(ctx context.Context, orderHash string) (string, error)
}

// EventPublisher receives events after the transaction that produced them
// has committed.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.OrderEvent)
}

type CreateOrderParams struct {
	Maker              string
	SourceToken        string
	SourceAmount       *big.Int
	DestinationChainID uint64
	DestinationToken   string
	DestinationAmount  string
	DestinationAddress string
	ResolverFee        *big.Int
	ExpiryTime         time.Time
	ExecutionParams    []byte
}

type MatchParams struct {
	OrderHash     string
	Resolver      string
	Hashlock      string
	SafetyDeposit *big.Int
	// Timelocks is optional; the chain's default timelock is spread over
	// the four stages when nil.
	Timelocks *model.Timelocks
}

type CompleteParams struct {
	OrderHash string
	Caller    string
	Preimage  []byte
}

type RefundParams struct {
	OrderHash string
	Caller    string
}

// EscrowState is the verifier view of an order's custody.
type EscrowState struct {
	OrderHash          string            `json:"order_hash"`
	Status             model.OrderStatus `json:"status"`
	Hashlock           string            `json:"hashlock,omitempty"`
	Timelocks          *model.Timelocks  `json:"timelocks,omitempty"`
	SourceAccount      string            `json:"source_account"`
	DestinationAccount string            `json:"destination_account"`
	SourceCustody      string            `json:"source_custody"`
	DestinationCustody string            `json:"destination_custody"`
	Escrows            *model.EscrowPair `json:"escrows"`
}

// CostEstimate is for resolver profitability display only.
type CostEstimate struct {
	OrderHash        string   `json:"order_hash"`
	ExecutionCost    *big.Int `json:"execution_cost"`
	ExecutionCostFmt string   `json:"execution_cost_formatted"`
	MinSafetyDeposit *big.Int `json:"min_safety_deposit"`
	ResolverFee      *big.Int `json:"resolver_fee"`
	EscrowTotal      *big.Int `json:"escrow_total"`
}
