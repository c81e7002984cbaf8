package queue

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
)

// DefaultReplayBacklog is the default number of finished command lists that may wait for replay.
const DefaultReplayBacklog = 256

// ErrReplayBacklog is returned when a worker finishes a command list while the replay backlog is full.
var ErrReplayBacklog = errors.New("queue: replay backlog full")

// ReplayRequest carries a finished command list from a worker to the master.
type ReplayRequest struct {
	Slot int
	List backend.CommandList
}

// Submitter is the single owner of command-list execution. Workers Enqueue finished lists from any
// goroutine; the master calls Drain at synchronization points to execute them in arrival order.
type Submitter struct {
	device   backend.Device
	requests chan ReplayRequest
	log      logger.Logger
}

// NewSubmitter creates a Submitter.
//
// Parameters:
//   - device: the device whose ExecuteCommandList runs the lists
//   - backlog: the channel capacity; values below 1 select DefaultReplayBacklog
//   - log: logger for replay failures; nil selects a no-op logger
//
// Returns:
//   - *Submitter: the new submitter
func NewSubmitter(device backend.Device, backlog int, log logger.Logger) *Submitter {
	if device == nil {
		panic("queue: NewSubmitter requires a non-nil Device")
	}
	if backlog < 1 {
		backlog = DefaultReplayBacklog
	}
	return &Submitter{
		device:   device,
		requests: make(chan ReplayRequest, backlog),
		log:      logger.OrNop(log),
	}
}

// Enqueue hands a finished list to the master. It never blocks: when the backlog is full the list
// is released and ErrReplayBacklog is returned.
func (s *Submitter) Enqueue(r ReplayRequest) error {
	select {
	case s.requests <- r:
		return nil
	default:
		r.List.Release()
		return ErrReplayBacklog
	}
}

// Drain executes every pending list in arrival order. Every list is consumed even if an earlier
// one fails; all failures are returned joined.
//
// Returns:
//   - error: the joined execution errors, or nil
func (s *Submitter) Drain() error {
	var errs []error
	for {
		select {
		case r := <-s.requests:
			if err := s.device.ExecuteCommandList(r.List); err != nil {
				s.log.Errorf("replay of worker %d command list failed: %v", r.Slot, err)
				errs = append(errs, fmt.Errorf("replay worker %d: %w", r.Slot, err))
			}
		default:
			return errors.Join(errs...)
		}
	}
}

// Pending returns the number of lists waiting for replay.
func (s *Submitter) Pending() int {
	return len(s.requests)
}
