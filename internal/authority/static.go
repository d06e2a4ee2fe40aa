package authority

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

// Static is an in-memory IAuthority for tests and single-node tooling.
type Static struct {
	mu        sync.RWMutex
	owner     string
	resolvers map[string]time.Time
}

func NewStatic(owner string, resolvers ...string) *Static {
	s := &Static{owner: normalize(owner), resolvers: make(map[string]time.Time)}
	for _, r := range resolvers {
		s.resolvers[normalize(r)] = time.Time{}
	}
	return s
}

func (s *Static) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

func (s *Static) IsOwner(addr string) bool {
	return normalize(addr) == s.Owner()
}

func (s *Static) TransferOwnership(_ context.Context, caller, newOwner string) error {
	if !common.IsHexAddress(newOwner) {
		return errors.Wrapf(model.ErrInvalidAddress, "new owner %q", newOwner)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if normalize(caller) != s.owner {
		return model.ErrNotOwner
	}
	s.owner = normalize(newOwner)
	return nil
}

func (s *Static) IsAuthorized(_ context.Context, addr string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.resolvers[normalize(addr)]
	return ok, nil
}

func (s *Static) AuthorizeResolver(_ context.Context, caller, addr string) error {
	if !s.IsOwner(caller) {
		return model.ErrNotOwner
	}
	if !common.IsHexAddress(addr) {
		return errors.Wrapf(model.ErrInvalidAddress, "resolver %q", addr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvers[normalize(addr)] = time.Now()
	return nil
}

func (s *Static) DeauthorizeResolver(_ context.Context, caller, addr string) error {
	if !s.IsOwner(caller) {
		return model.ErrNotOwner
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resolvers, normalize(addr))
	return nil
}

func (s *Static) ResolverCount(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.resolvers)), nil
}

func (s *Static) ListResolvers(context.Context) ([]*model.Resolver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Resolver, 0, len(s.resolvers))
	for addr, at := range s.resolvers {
		out = append(out, &model.Resolver{Address: addr, Authorized: true, AuthorizedBy: s.owner, CreatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
