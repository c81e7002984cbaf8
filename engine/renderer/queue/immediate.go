package queue

import (
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
)

// immediateQueue submits straight to the device's immediate context. It belongs to the master.
type immediateQueue struct {
	commandBuffer
	ctx backend.Context
}

var _ Queue = &immediateQueue{}

// NewImmediate creates the master queue over the device's immediate context.
//
// Parameters:
//   - device: the backend device
//
// Returns:
//   - Queue: the immediate queue
func NewImmediate(device backend.Device) Queue {
	if device == nil {
		panic("queue: NewImmediate requires a non-nil Device")
	}
	return &immediateQueue{commandBuffer: newCommandBuffer(), ctx: device.Immediate()}
}

func (q *immediateQueue) Flush() error {
	defer q.reset()
	return q.submit(q.ctx)
}

func (q *immediateQueue) Deferred() bool {
	return false
}
