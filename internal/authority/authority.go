package authority

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/fusion-bridge/internal/model"
	"github.com/dwarvesf/fusion-bridge/internal/store/resolver"
	"github.com/dwarvesf/fusion-bridge/internal/utils/logger"
)

// Authority keeps the allow-list in the resolvers table and the owner in
// memory.
type Authority struct {
	db     *gorm.DB
	store  resolver.IStore
	logger *logger.Logger

	mu    sync.RWMutex
	owner string
}

func New(db *gorm.DB, store resolver.IStore, owner string, logger *logger.Logger) (*Authority, error) {
	if !common.IsHexAddress(owner) {
		return nil, errors.Wrapf(model.ErrInvalidAddress, "registry owner %q", owner)
	}
	return &Authority{
		db:     db,
		store:  store,
		logger: logger,
		owner:  normalize(owner),
	}, nil
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func (a *Authority) Owner() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.owner
}

func (a *Authority) IsOwner(addr string) bool {
	return normalize(addr) == a.Owner()
}

func (a *Authority) TransferOwnership(ctx context.Context, caller, newOwner string) error {
	if !common.IsHexAddress(newOwner) {
		return errors.Wrapf(model.ErrInvalidAddress, "new owner %q", newOwner)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if normalize(caller) != a.owner {
		return model.ErrNotOwner
	}
	a.logger.Info("[TransferOwnership] registry owner changed", map[string]string{
		"from": a.owner,
		"to":   normalize(newOwner),
	})
	a.owner = normalize(newOwner)
	return nil
}

func (a *Authority) IsAuthorized(ctx context.Context, addr string) (bool, error) {
	if !common.IsHexAddress(addr) {
		return false, nil
	}
	return a.store.IsAuthorized(a.db.WithContext(ctx), addr)
}

func (a *Authority) AuthorizeResolver(ctx context.Context, caller, addr string) error {
	if !a.IsOwner(caller) {
		return model.ErrNotOwner
	}
	if !common.IsHexAddress(addr) {
		return errors.Wrapf(model.ErrInvalidAddress, "resolver %q", addr)
	}
	if err := a.store.Upsert(a.db.WithContext(ctx), addr, caller); err != nil {
		a.logger.Error("[AuthorizeResolver][Upsert] failed to authorize resolver", map[string]string{
			"resolver": addr,
			"error":    err.Error(),
		})
		return err
	}
	a.logger.Info("[AuthorizeResolver] resolver authorized", map[string]string{"resolver": normalize(addr)})
	return nil
}

func (a *Authority) DeauthorizeResolver(ctx context.Context, caller, addr string) error {
	if !a.IsOwner(caller) {
		return model.ErrNotOwner
	}
	revoked, err := a.store.Deactivate(a.db.WithContext(ctx), addr)
	if err != nil {
		a.logger.Error("[DeauthorizeResolver][Deactivate] failed to revoke resolver", map[string]string{
			"resolver": addr,
			"error":    err.Error(),
		})
		return err
	}
	if revoked {
		a.logger.Info("[DeauthorizeResolver] resolver revoked", map[string]string{"resolver": normalize(addr)})
	}
	return nil
}

func (a *Authority) ResolverCount(ctx context.Context) (int64, error) {
	return a.store.Count(a.db.WithContext(ctx))
}

func (a *Authority) ListResolvers(ctx context.Context) ([]*model.Resolver, error) {
	return a.store.List(a.db.WithContext(ctx))
}

// Seed authorizes the configured resolvers on behalf of the owner.
func Seed(ctx context.Context, a IAuthority, resolvers []string) error {
	for _, r := range resolvers {
		if err := a.AuthorizeResolver(ctx, a.Owner(), r); err != nil {
			return errors.Wrapf(err, "seed resolver %s", r)
		}
	}
	return nil
}
