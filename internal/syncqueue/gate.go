package syncqueue

import (
	"context"

	"github.com/fekuna/omnipos-offline-sync/internal/remote"
)

// Gate decides whether a local mutation must also be queued for the remote.
type Gate struct {
	oracle remote.Oracle
	always bool
}

// NewGate queues every mutation when always is set, otherwise only while the
// oracle reports the remote unreachable.
func NewGate(oracle remote.Oracle, always bool) *Gate {
	return &Gate{oracle: oracle, always: always}
}

func (g *Gate) ShouldQueue(ctx context.Context) bool {
	if g == nil {
		return false
	}
	if g.always {
		return true
	}
	return !g.oracle.IsOnline(ctx)
}
