// Package lock serializes read-modify-write sequences per key.
package lock

import "context"

// Locker hands out exclusive access to a key. The returned unlock func is
// safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}
