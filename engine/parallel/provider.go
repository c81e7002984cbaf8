package parallel

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/queue"
)

// MasterSlot is the slot of the master context, which owns the immediate queue.
const MasterSlot = 0

// WorkerContext is the per-slot state handed to parallel work: its slot index and its command queue.
// A context is used by at most one goroutine at a time.
type WorkerContext struct {
	Slot  int
	Queue queue.Queue
}

// IsMaster reports whether the context is the master's.
func (c *WorkerContext) IsMaster() bool {
	return c.Slot == MasterSlot
}

// Provider fans render work out over a fixed set of worker contexts plus the master.
type Provider interface {
	// Execute runs action for every index in [0, count). Indexes are handed out in blocks of
	// blockSize to the workers and the calling goroutine, which acts as the master. Execute returns
	// once every index has been processed.
	//
	// Parameters:
	//   - count: the number of indexes
	//   - blockSize: indexes claimed per grab; values below 1 are treated as 1
	//   - action: the work for one index
	//
	// Returns:
	//   - error: the joined errors returned by action
	Execute(count, blockSize int, action func(ctx *WorkerContext, index int) error) error

	// InvokeOnAll runs action once on every worker context, and on the master context when
	// includeMaster is set. It returns after every invocation has completed and every command list
	// the workers finished has been replayed on the master, making it a full barrier.
	//
	// Parameters:
	//   - action: the work for one context
	//   - includeMaster: whether to also run action on the master context
	//
	// Returns:
	//   - error: the joined errors of the invocations and the replay
	InvokeOnAll(action func(ctx *WorkerContext) error, includeMaster bool) error

	// Master returns the master context.
	Master() *WorkerContext

	// Contexts returns every context indexed by slot; index 0 is the master.
	Contexts() []*WorkerContext

	// Workers returns the number of worker contexts, excluding the master.
	Workers() int

	// Submitter returns the master-owned command list submitter.
	Submitter() *queue.Submitter

	// Close stops the worker pool.
	Close() error
}

type provider struct {
	log       logger.Logger
	device    backend.Device
	workers   int
	backlog   int
	pool      worker.DynamicWorkerPool
	contexts  []*WorkerContext
	submitter *queue.Submitter
	taskID    atomic.Int64
	closed    bool
}

var _ Provider = &provider{}

// NewProvider creates a provider with one immediate master context and a deferred context per worker.
// The default worker count is one less than the number of CPUs, and at least one.
//
// Parameters:
//   - device: the backend device used to create the queues
//   - options: functional options
//
// Returns:
//   - Provider: the new provider
//   - error: an error if a deferred context could not be created
func NewProvider(device backend.Device, options ...ProviderBuilderOption) (Provider, error) {
	if device == nil {
		panic("parallel: NewProvider requires a non-nil Device")
	}
	p := &provider{
		log:     logger.NewNopLogger(),
		device:  device,
		workers: max(runtime.NumCPU()-1, 1),
		backlog: queue.DefaultReplayBacklog,
	}
	for _, opt := range options {
		opt(p)
	}

	p.submitter = queue.NewSubmitter(device, p.backlog, p.log)
	p.contexts = make([]*WorkerContext, 0, p.workers+1)
	p.contexts = append(p.contexts, &WorkerContext{Slot: MasterSlot, Queue: queue.NewImmediate(device)})
	for slot := 1; slot <= p.workers; slot++ {
		ctx, err := device.NewDeferredContext()
		if err != nil {
			return nil, fmt.Errorf("create deferred context for worker %d: %w", slot, err)
		}
		p.contexts = append(p.contexts, &WorkerContext{Slot: slot, Queue: queue.NewDeferred(ctx, slot, p.submitter)})
	}

	if p.workers > 0 {
		// Queue size of 256 leaves headroom over one task per worker per barrier.
		p.pool = worker.NewDynamicWorkerPool(p.workers, 256, time.Second)
	}
	p.log.Debugf("parallel provider started with %d workers", p.workers)
	return p, nil
}

// taskResult collects the outcome of tasks running on pool goroutines.
type taskResult struct {
	mu     sync.Mutex
	errs   []error
	panics []any
}

func (r *taskResult) add(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *taskResult) recover() {
	if v := recover(); v != nil {
		r.mu.Lock()
		r.panics = append(r.panics, v)
		r.mu.Unlock()
	}
}

// settle re-raises the first worker panic on the calling goroutine, otherwise returns the joined errors.
func (r *taskResult) settle() error {
	if len(r.panics) > 0 {
		panic(r.panics[0])
	}
	return errors.Join(r.errs...)
}

// dispatch runs fn on the given worker contexts through the pool and on the master inline when
// runMaster is set, then waits for all of them.
func (p *provider) dispatch(workerSlots int, runMaster bool, fn func(ctx *WorkerContext) error) error {
	var wg sync.WaitGroup
	var result taskResult

	for slot := 1; slot <= workerSlots; slot++ {
		ctx := p.contexts[slot]
		wg.Add(1)
		p.pool.SubmitTask(worker.Task{
			ID: int(p.taskID.Add(1)),
			Do: func() (any, error) {
				defer wg.Done()
				defer result.recover()
				result.add(fn(ctx))
				return nil, nil
			},
		})
	}

	if runMaster {
		func() {
			defer result.recover()
			result.add(fn(p.contexts[MasterSlot]))
		}()
	}

	wg.Wait()
	return result.settle()
}

func (p *provider) Execute(count, blockSize int, action func(ctx *WorkerContext, index int) error) error {
	if count <= 0 {
		return nil
	}
	blockSize = max(blockSize, 1)
	blocks := (count + blockSize - 1) / blockSize

	var next atomic.Int64
	run := func(ctx *WorkerContext) error {
		for {
			start := int(next.Add(int64(blockSize))) - blockSize
			if start >= count {
				return nil
			}
			end := min(start+blockSize, count)
			for i := start; i < end; i++ {
				if err := action(ctx, i); err != nil {
					return fmt.Errorf("index %d: %w", i, err)
				}
			}
		}
	}

	// The master always participates; spare workers beyond the block count would find nothing.
	return p.dispatch(min(p.workers, blocks-1), true, run)
}

func (p *provider) InvokeOnAll(action func(ctx *WorkerContext) error, includeMaster bool) error {
	err := p.dispatch(p.workers, includeMaster, action)
	return errors.Join(err, p.submitter.Drain())
}

func (p *provider) Master() *WorkerContext {
	return p.contexts[MasterSlot]
}

func (p *provider) Contexts() []*WorkerContext {
	return p.contexts
}

func (p *provider) Workers() int {
	return p.workers
}

func (p *provider) Submitter() *queue.Submitter {
	return p.submitter
}

func (p *provider) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.pool != nil {
		p.pool.Stop()
	}
	return p.submitter.Drain()
}
