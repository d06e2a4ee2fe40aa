package authority

import (
	"context"

	"github.com/dwarvesf/fusion-bridge/internal/model"
)

// IAuthority owns the registry owner and the resolver allow-list. Every
// mutation is owner-only.
type IAuthority interface {
	Owner() string
	IsOwner(addr string) bool
	TransferOwnership(ctx context.Context, caller, newOwner string) error

	IsAuthorized(ctx context.Context, addr string) (bool, error)
	AuthorizeResolver(ctx context.Context, caller, addr string) error
	DeauthorizeResolver(ctx context.Context, caller, addr string) error
	ResolverCount(ctx context.Context) (int64, error)
	ListResolvers(ctx context.Context) ([]*model.Resolver, error)
}
