package registry

import (
	"math/big"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/dwarvesf/fusion-bridge/internal/authority"
	"github.com/dwarvesf/fusion-bridge/internal/chain"
	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

type entry struct {
	adapter chain.Adapter
	active  bool
}

// Registry maps destination chain ids to adapters. It never interprets
// destination bytes itself.
type Registry struct {
	auth   authority.IAuthority
	logger *logger.Logger

	mu      sync.RWMutex
	entries map[uint64]*entry
}

func New(auth authority.IAuthority, logger *logger.Logger) *Registry {
	return &Registry{
		auth:    auth,
		logger:  logger,
		entries: make(map[uint64]*entry),
	}
}

// RegisterChainAdapter adds or replaces an inactive chain. An active chain
// cannot be replaced.
func (r *Registry) RegisterChainAdapter(caller string, adapter chain.Adapter) error {
	if !r.auth.IsOwner(caller) {
		return model.ErrNotOwner
	}
	id := adapter.ChainID()
	if id == 0 {
		return errors.Wrap(model.ErrInvalidChainInfo, "adapter has no chain id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok && e.active {
		return errors.Wrapf(model.ErrChainAlreadyActive, "chain %d", id)
	}
	r.entries[id] = &entry{adapter: adapter, active: true}

	info := adapter.Info()
	r.logger.Info("[RegisterChainAdapter] chain registered", map[string]string{
		"chain_id": strconv.FormatUint(id, 10),
		"name":     info.Name,
		"family":   string(info.Family),
		"network":  info.Network,
	})
	return nil
}

// RegisterAll registers a catalogue of adapters on behalf of caller.
func (r *Registry) RegisterAll(caller string, adapters []chain.Adapter) error {
	for _, a := range adapters {
		if err := r.RegisterChainAdapter(caller, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) DeactivateChain(caller string, chainID uint64) error {
	return r.setActive(caller, chainID, false)
}

func (r *Registry) ActivateChain(caller string, chainID uint64) error {
	return r.setActive(caller, chainID, true)
}

func (r *Registry) setActive(caller string, chainID uint64, active bool) error {
	if !r.auth.IsOwner(caller) {
		return model.ErrNotOwner
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[chainID]
	if !ok {
		return errors.Wrapf(model.ErrUnknownChain, "chain %d", chainID)
	}
	e.active = active
	return nil
}

// UpdateChainMetadata changes display fields only. Financial parameters
// are fixed at registration.
func (r *Registry) UpdateChainMetadata(caller string, chainID uint64, name, symbol string) error {
	if !r.auth.IsOwner(caller) {
		return model.ErrNotOwner
	}
	if name == "" || symbol == "" {
		return errors.Wrap(model.ErrInvalidChainInfo, "name and symbol are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[chainID]
	if !ok {
		return errors.Wrapf(model.ErrUnknownChain, "chain %d", chainID)
	}
	updated, err := e.adapter.WithMetadata(name, symbol)
	if err != nil {
		return err
	}
	e.adapter = updated
	return nil
}

// GetSupportedChainIds returns the active chain ids in ascending order.
func (r *Registry) GetSupportedChainIds() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.entries))
	for id, e := range r.entries {
		if e.active {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) IsChainSupported(chainID uint64) bool {
	_, err := r.Adapter(chainID)
	return err == nil
}

// GetChainInfo returns the info of a registered chain, active or not.
func (r *Registry) GetChainInfo(chainID uint64) (chain.Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[chainID]
	if !ok {
		return chain.Info{}, errors.Wrapf(model.ErrUnknownChain, "chain %d", chainID)
	}
	info := e.adapter.Info()
	info.Active = e.active
	return info, nil
}

func (r *Registry) ListChains() []chain.Info {
	r.mu.RLock()
	ids := make([]uint64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	infos := make([]chain.Info, 0, len(ids))
	for _, id := range ids {
		if info, err := r.GetChainInfo(id); err == nil {
			infos = append(infos, info)
		}
	}
	return infos
}

// Adapter resolves an active chain. Unknown and inactive chains fail with
// distinct errors.
func (r *Registry) Adapter(chainID uint64) (chain.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[chainID]
	if !ok {
		return chain.Adapter{}, errors.Wrapf(model.ErrUnknownChain, "chain %d", chainID)
	}
	if !e.active {
		return chain.Adapter{}, errors.Wrapf(model.ErrChainInactive, "chain %d", chainID)
	}
	return e.adapter, nil
}

// Snapshot is the info an order captures at match time.
func (r *Registry) Snapshot(chainID uint64) (chain.Info, error) {
	a, err := r.Adapter(chainID)
	if err != nil {
		return chain.Info{}, err
	}
	return a.Info(), nil
}

func (r *Registry) ValidateDestinationAddress(chainID uint64, addr []byte) error {
	a, err := r.Adapter(chainID)
	if err != nil {
		return err
	}
	return a.ValidateDestinationAddress(addr)
}

func (r *Registry) ValidateOrderParams(chainID uint64, params []byte, amount *big.Int) (chain.ValidationResult, error) {
	a, err := r.Adapter(chainID)
	if err != nil {
		return chain.ValidationResult{}, err
	}
	return a.ValidateOrderParams(params, amount), nil
}

func (r *Registry) EstimateExecutionCost(chainID uint64, params []byte, amount *big.Int) (*big.Int, error) {
	a, err := r.Adapter(chainID)
	if err != nil {
		return nil, err
	}
	return a.EstimateExecutionCost(params, amount)
}

func (r *Registry) CalculateMinSafetyDeposit(chainID uint64, amount *big.Int) (*big.Int, error) {
	a, err := r.Adapter(chainID)
	if err != nil {
		return nil, err
	}
	return a.CalculateMinSafetyDeposit(amount), nil
}

func (r *Registry) SupportsFeature(chainID uint64, name string) (bool, error) {
	a, err := r.Adapter(chainID)
	if err != nil {
		return false, err
	}
	return a.SupportsFeature(name), nil
}

func (r *Registry) GenerateHTLCScript(chainID uint64, hashlock []byte, timelock int64, recipientHash, refundHash []byte, useRelativeTimelock bool) ([]byte, string, error) {
	a, err := r.Adapter(chainID)
	if err != nil {
		return nil, "", err
	}
	script, err := a.GenerateHTLCScript(hashlock, timelock, recipientHash, refundHash, useRelativeTimelock)
	if err != nil {
		return nil, "", err
	}
	addr, err := a.HTLCAddress(script)
	if err != nil {
		return nil, "", err
	}
	return script, addr, nil
}
