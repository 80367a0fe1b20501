package smart

import (
	"context"
	"fmt"

	"github.com/gokasa/kasa-core/common"
	"github.com/gokasa/kasa-core/utils"
)

// Queue is the per-device single slot the spec assigns to C5: it
// guarantees at most one in-flight send per device, so handshake/login
// happens at most once under concurrent load and sequence numbers advance
// monotonically. Callers waiting for the slot are not served in arrival
// order: whichever waiter wakes first takes it, so concurrent sends may
// complete in a different order than they were submitted. It is built on
// utils.Deque, seeded with exactly one
// token, rather than a bare sync.Mutex, so a caller's own ctx deadline can
// end its wait for the slot instead of only the eventual slot holder's own
// timeout mattering.
type Queue struct {
	slot *utils.Deque
}

// NewQueue returns a ready-to-use, unlocked Queue.
func NewQueue() *Queue {
	q := &Queue{slot: utils.NewDeque()}
	q.slot.Put(struct{}{})
	return q
}

// Do runs fn with the device's single slot held, waiting on ctx if another
// send is in flight. If ctx expires first, fn never runs and Do returns
// common.ErrTimeout.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	if _, err := q.slot.GetContext(ctx); err != nil {
		return "", fmt.Errorf("%w: waiting for device queue slot: %v", common.ErrTimeout, err)
	}
	defer q.slot.Put(struct{}{})
	return fn(ctx)
}
