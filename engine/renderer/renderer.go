package renderer

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
	"github.com/Carmen-Shannon/oxy-deferred/engine/parallel"
	"github.com/Carmen-Shannon/oxy-deferred/engine/profiler"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
)

var (
	// ErrPassAlreadyAdded is returned when a pass is added to the renderer twice.
	ErrPassAlreadyAdded = errors.New("renderer: pass has already been added")
	// ErrPassNotAdded is returned when removing a pass the renderer does not hold.
	ErrPassNotAdded = errors.New("renderer: pass is not added")
	// ErrRendererDisposed is returned by RenderFrame after Dispose.
	ErrRendererDisposed = errors.New("renderer: disposed")
)

// PassTiming is the CPU time one pass took in the last frame.
type PassTiming struct {
	Name     string
	Ran      bool
	Duration time.Duration
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu sync.Mutex

	device   backend.Device
	provider parallel.Provider
	scene    scene.Scene
	passes   []pass.RenderPass
	timings  []PassTiming

	log             logger.Logger
	profiler        *profiler.Profiler
	providerOptions []parallel.ProviderBuilderOption

	frame    atomic.Uint64
	disposed atomic.Bool
}

// Renderer defines the interface for the frame orchestrator.
//
// The Renderer owns the Parallelization Provider and an ordered list of render passes. Each
// frame it freezes the scene, runs every enabled and valid pass in order on the provider, and
// records how long each pass took.
type Renderer interface {
	// Device returns the backend device the renderer records for.
	//
	// Returns:
	//   - backend.Device: the device
	Device() backend.Device

	// Provider returns the parallelization provider shared by the passes.
	//
	// Returns:
	//   - parallel.Provider: the provider
	Provider() parallel.Provider

	// Scene returns the scene frozen around each frame, or nil.
	//
	// Returns:
	//   - scene.Scene: the scene
	Scene() scene.Scene

	// SetScene replaces the scene frozen around each frame.
	//
	// Parameters:
	//   - s: the scene, nil to disable freezing
	SetScene(s scene.Scene)

	// AddPass appends a pass to the frame.
	//
	// Parameters:
	//   - p: the pass
	//
	// Returns:
	//   - error: ErrPassAlreadyAdded if p is already part of the frame
	AddPass(p pass.RenderPass) error

	// RemovePass removes a pass from the frame without disposing it.
	//
	// Parameters:
	//   - p: the pass
	//
	// Returns:
	//   - error: ErrPassNotAdded if p is not part of the frame
	RemovePass(p pass.RenderPass) error

	// Passes returns the passes in execution order.
	//
	// Returns:
	//   - []pass.RenderPass: a copy of the pass list
	Passes() []pass.RenderPass

	// RenderFrame runs every pass in order. The frame stops at the first pass error.
	//
	// Returns:
	//   - error: the pass error, wrapped with the pass name
	RenderFrame() error

	// Resize resizes the window back buffer.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - error: an error if the backend could not resize
	Resize(width, height int) error

	// Timings returns the per-pass timings of the last frame.
	//
	// Returns:
	//   - []PassTiming: one entry per pass that was visited
	Timings() []PassTiming

	// FrameNumber returns how many frames have been rendered.
	//
	// Returns:
	//   - uint64: the frame count
	FrameNumber() uint64

	// Dispose disposes every pass and stops the provider. The device is left open.
	//
	// Returns:
	//   - error: an error if the provider could not be closed
	Dispose() error
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer over a device and starts its provider.
//
// Parameters:
//   - device: the backend device
//   - options: functional options
//
// Returns:
//   - Renderer: the renderer
//   - error: an error if the provider could not be created
func NewRenderer(device backend.Device, options ...RendererBuilderOption) (Renderer, error) {
	if device == nil {
		panic("renderer: NewRenderer requires a non-nil Device")
	}
	r := &renderer{device: device}
	for _, opt := range options {
		opt(r)
	}
	r.log = logger.OrNop(r.log)

	provider, err := parallel.NewProvider(device, append(r.providerOptions, parallel.WithLogger(r.log))...)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	r.provider = provider
	for _, p := range r.passes {
		p.SetLogger(r.log)
	}
	return r, nil
}

func (r *renderer) Device() backend.Device {
	return r.device
}

func (r *renderer) Provider() parallel.Provider {
	return r.provider
}

func (r *renderer) Scene() scene.Scene {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scene
}

func (r *renderer) SetScene(s scene.Scene) {
	r.mu.Lock()
	r.scene = s
	r.mu.Unlock()
}

func (r *renderer) AddPass(p pass.RenderPass) error {
	if p == nil {
		panic("renderer: AddPass requires a non-nil RenderPass")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.passes, p) {
		return ErrPassAlreadyAdded
	}
	p.SetLogger(r.log)
	r.passes = append(r.passes, p)
	return nil
}

func (r *renderer) RemovePass(p pass.RenderPass) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.Index(r.passes, p)
	if i < 0 {
		return ErrPassNotAdded
	}
	r.passes = slices.Delete(r.passes, i, i+1)
	return nil
}

func (r *renderer) Passes() []pass.RenderPass {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.passes)
}

func (r *renderer) RenderFrame() error {
	if r.disposed.Load() {
		return ErrRendererDisposed
	}
	r.mu.Lock()
	passes := slices.Clone(r.passes)
	scn := r.scene
	r.mu.Unlock()

	if scn != nil {
		scn.Freeze()
		defer scn.Thaw()
	}

	timings := make([]PassTiming, 0, len(passes))
	var frameErr error
	for _, p := range passes {
		start := time.Now()
		ran, err := pass.Run(p, r.provider)
		elapsed := time.Since(start)
		timings = append(timings, PassTiming{Name: p.Name(), Ran: ran, Duration: elapsed})
		if ran && r.profiler != nil {
			r.profiler.RecordPass(p.Name(), elapsed)
		}
		if err != nil {
			r.log.Errorf("pass %s failed: %v", p.Name(), err)
			frameErr = fmt.Errorf("pass %s: %w", p.Name(), err)
			break
		}
	}
	if err := r.provider.Submitter().Drain(); err != nil && frameErr == nil {
		frameErr = err
	}

	r.mu.Lock()
	r.timings = timings
	r.mu.Unlock()
	r.frame.Add(1)
	return frameErr
}

func (r *renderer) Resize(width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("renderer: invalid size %dx%d", width, height)
	}
	r.log.Debugf("resize to %dx%d", width, height)
	return r.device.Resize(width, height)
}

func (r *renderer) Timings() []PassTiming {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.timings)
}

func (r *renderer) FrameNumber() uint64 {
	return r.frame.Load()
}

func (r *renderer) Dispose() error {
	if r.disposed.Swap(true) {
		return nil
	}
	r.mu.Lock()
	passes := r.passes
	r.passes = nil
	r.mu.Unlock()
	for _, p := range slices.Backward(passes) {
		p.Dispose()
	}
	return r.provider.Close()
}
