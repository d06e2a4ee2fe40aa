package locker

import "context"

// ILocker serializes work on a key. The returned func releases the lock and
// is safe to call more than once.
type ILocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
