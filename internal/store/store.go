package store

import (
	"github.com/dwarvesf/fusion-bridge/internal/store/balance"
	"github.com/dwarvesf/fusion-bridge/internal/store/escrow"
	"github.com/dwarvesf/fusion-bridge/internal/store/order"
	"github.com/dwarvesf/fusion-bridge/internal/store/orderevent"
	"github.com/dwarvesf/fusion-bridge/internal/store/resolver"
)

type Store struct {
	Order      order.IStore
	Escrow     escrow.IStore
	OrderEvent orderevent.IStore
	Resolver   resolver.IStore
	Balance    balance.IStore
}

func New() *Store {
	return &Store{
		Order:      order.New(),
		Escrow:     escrow.New(),
		OrderEvent: orderevent.New(),
		Resolver:   resolver.New(),
		Balance:    balance.New(),
	}
}
