package pass

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
	"github.com/Carmen-Shannon/oxy-deferred/engine/parallel"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/queue"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/google/uuid"
)

// ErrPassDisposed is returned when a disposed pass is executed.
var ErrPassDisposed = errors.New("pass: pass is disposed")

// RenderPass is one stage of a frame. The orchestrator calls Execute once per frame, and only when
// the pass is both enabled and valid (see Run). Implementations embed *Base.
type RenderPass interface {
	// ID returns the unique identity of the pass.
	//
	// Returns:
	//   - uuid.UUID: the pass id
	ID() uuid.UUID

	// Name returns the pass name used in logs and profiler output.
	//
	// Returns:
	//   - string: the pass name
	Name() string

	// IsEnabled reports whether the pass should run.
	//
	// Returns:
	//   - bool: true if enabled
	IsEnabled() bool

	// SetEnabled enables or disables the pass.
	//
	// Parameters:
	//   - enabled: the new state
	SetEnabled(enabled bool)

	// IsValid reports whether the pass has everything it needs to run this frame, e.g. its shaders
	// are set and not disposed.
	//
	// Returns:
	//   - bool: true if the pass can run
	IsValid() bool

	// OnPrePass registers a hook invoked on the orchestrator goroutine right before Execute.
	//
	// Parameters:
	//   - fn: the hook
	OnPrePass(fn func(p RenderPass))

	// OnPostPass registers a hook invoked on the orchestrator goroutine right after Execute returns.
	//
	// Parameters:
	//   - fn: the hook
	OnPostPass(fn func(p RenderPass))

	// SetLogger replaces the pass logger. A nil logger discards output.
	//
	// Parameters:
	//   - l: the logger
	SetLogger(l logger.Logger)

	// Execute generates and submits the pass's commands for one frame.
	//
	// Parameters:
	//   - pp: the parallelization provider whose contexts the pass queues into
	//
	// Returns:
	//   - error: a *backend.SubmissionError if the backend rejected a flush
	Execute(pp parallel.Provider) error

	// IsDisposed reports whether Dispose has been called.
	IsDisposed() bool

	// Dispose releases the GPU resources owned by the pass. Disposing twice is a no-op.
	Dispose()

	base() *Base
}

// Base carries the state shared by every pass: identity, enabled flag, hooks, logger and the
// device the pass creates its resources on.
type Base struct {
	id     uuid.UUID
	name   string
	device backend.Device

	enabled  atomic.Bool
	disposed atomic.Bool

	mu   sync.Mutex
	log  logger.Logger
	pre  []func(p RenderPass)
	post []func(p RenderPass)
}

// NewBase creates the shared pass state. Passes are enabled on creation.
//
// Parameters:
//   - name: the pass name
//   - device: the backend device
//
// Returns:
//   - *Base: the base state
func NewBase(name string, device backend.Device) *Base {
	if device == nil {
		panic("pass: NewBase requires a non-nil Device")
	}
	b := &Base{id: uuid.New(), name: name, device: device, log: logger.NewNopLogger()}
	b.enabled.Store(true)
	return b
}

func (b *Base) base() *Base { return b }

func (b *Base) ID() uuid.UUID { return b.id }

func (b *Base) Name() string { return b.name }

func (b *Base) Device() backend.Device { return b.device }

func (b *Base) IsEnabled() bool { return b.enabled.Load() }

func (b *Base) SetEnabled(enabled bool) { b.enabled.Store(enabled) }

func (b *Base) IsDisposed() bool { return b.disposed.Load() }

func (b *Base) OnPrePass(fn func(p RenderPass)) {
	b.mu.Lock()
	b.pre = append(b.pre, fn)
	b.mu.Unlock()
}

func (b *Base) OnPostPass(fn func(p RenderPass)) {
	b.mu.Lock()
	b.post = append(b.post, fn)
	b.mu.Unlock()
}

func (b *Base) SetLogger(l logger.Logger) {
	b.mu.Lock()
	b.log = logger.OrNop(l)
	b.mu.Unlock()
}

// Logger returns the pass logger, never nil.
func (b *Base) Logger() logger.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.log
}

// markDisposed flips the disposed flag and reports whether this call did it.
func (b *Base) markDisposed() bool {
	return !b.disposed.Swap(true)
}

func (b *Base) hooks() (pre, post []func(p RenderPass)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pre, b.post
}

// Run executes p for one frame if it is enabled and valid, invoking its hooks around Execute.
// Invalid passes are skipped and logged at debug level.
//
// Parameters:
//   - p: the pass
//   - pp: the parallelization provider
//
// Returns:
//   - bool: whether the pass ran
//   - error: the error returned by Execute
func Run(p RenderPass, pp parallel.Provider) (bool, error) {
	if !p.IsEnabled() {
		return false, nil
	}
	if p.IsDisposed() {
		return false, ErrPassDisposed
	}
	b := p.base()
	if !p.IsValid() {
		if log := b.Logger(); log.DebugEnabled() {
			log.Debugf("pass %q skipped: not valid", p.Name())
		}
		return false, nil
	}

	pre, post := b.hooks()
	for _, fn := range pre {
		fn(p)
	}
	err := p.Execute(pp)
	for _, fn := range post {
		fn(p)
	}
	return true, err
}

// queueShaderSwitch makes s current on q.
func queueShaderSwitch(q queue.Queue, s shader.Shader) {
	s.QueueSwitch(q)
}

// queueShaderResourceUpdate writes and binds the resources of s, with pkg overriding the defaults.
func queueShaderResourceUpdate(q queue.Queue, s shader.Shader, pkg *shader.ResourcePackage) {
	s.QueueResourceUpdate(q, pkg)
}

// presentBackBuffer queues a present of the window back buffer.
func presentBackBuffer(q queue.Queue) {
	q.QueueCommand(command.NewPresent())
}

// flush submits the master queue, then every worker queue, and waits for the replays. fill, when
// set, runs on each context right before its queue is submitted. When the master submission fails
// the worker queues are discarded unsubmitted.
func flush(pp parallel.Provider, fill func(ctx *parallel.WorkerContext)) error {
	master := pp.Master()
	if fill != nil {
		fill(master)
	}
	if err := master.Queue.Flush(); err != nil {
		return errors.Join(err, discard(pp, false))
	}
	return pp.InvokeOnAll(func(ctx *parallel.WorkerContext) error {
		if fill != nil {
			fill(ctx)
		}
		return ctx.Queue.Flush()
	}, false)
}

// discard drops everything queued on the workers, and on the master when includeMaster is set.
func discard(pp parallel.Provider, includeMaster bool) error {
	return pp.InvokeOnAll(func(ctx *parallel.WorkerContext) error {
		ctx.Queue.Discard()
		return nil
	}, includeMaster)
}

// usable reports whether s is set and not disposed.
func usable(s shader.Shader) bool {
	return s != nil && !s.IsDisposed()
}

// fullScreenQuad queues the two triangles of the light plane.
func fullScreenQuad(q queue.Queue) {
	q.QueueCommand(command.NewDraw(0, 3))
	q.QueueCommand(command.NewDraw(3, 3))
}
