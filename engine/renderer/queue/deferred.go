package queue

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
)

// deferredQueue records into a deferred context and hands the finished list to the Submitter.
type deferredQueue struct {
	commandBuffer
	ctx       backend.Context
	slot      int
	submitter *Submitter
}

var _ Queue = &deferredQueue{}

// NewDeferred creates a worker queue.
//
// Parameters:
//   - ctx: a deferred context owned by the worker
//   - slot: the worker slot, attached to every replay request for diagnostics
//   - submitter: the master-owned submitter that replays finished lists
//
// Returns:
//   - Queue: the deferred queue
func NewDeferred(ctx backend.Context, slot int, submitter *Submitter) Queue {
	if ctx == nil || !ctx.Deferred() {
		panic("queue: NewDeferred requires a deferred Context")
	}
	if submitter == nil {
		panic("queue: NewDeferred requires a non-nil Submitter")
	}
	return &deferredQueue{commandBuffer: newCommandBuffer(), ctx: ctx, slot: slot, submitter: submitter}
}

func (q *deferredQueue) Flush() error {
	defer q.reset()
	if len(q.commands) == 0 && len(q.actions) == 0 {
		return nil
	}

	if err := q.submit(q.ctx); err != nil {
		// Drop whatever was recorded before the failure.
		if list, ferr := q.ctx.Finish(); ferr == nil {
			list.Release()
		}
		return err
	}

	list, err := q.ctx.Finish()
	if err != nil {
		return fmt.Errorf("finish command list for worker %d: %w", q.slot, err)
	}
	if list.Len() == 0 {
		list.Release()
		return nil
	}
	if err := q.submitter.Enqueue(ReplayRequest{Slot: q.slot, List: list}); err != nil {
		return errors.Join(fmt.Errorf("worker %d", q.slot), err)
	}
	return nil
}

func (q *deferredQueue) Deferred() bool {
	return true
}
