package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
	"github.com/Carmen-Shannon/oxy-deferred/engine/profiler"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/window"
)

// ErrAlreadyRunning is returned when Run is called on an engine that is already running or has stopped.
var ErrAlreadyRunning = errors.New("engine: already started")

// engine implements the Engine interface.
// Coordinates the tick, render and window threads.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window window.Window

	renderer        renderer.Renderer
	deviceConfig    *renderer.DeviceConfig
	rendererOptions []renderer.RendererBuilderOption
	ownedDevice     backend.Device // created by NewEngine, closed on shutdown

	// pendingSize holds a resize reported by the window until the render goroutine applies it.
	resizeMu    sync.Mutex
	pendingSize *[2]int

	camerasMu sync.Mutex
	cameras   []camera.Camera

	log              logger.Logger
	profiler         *profiler.Profiler
	profilerInterval time.Duration
	profilingEnabled atomic.Bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	renderFrameLimit atomic.Int64 // minimum frame duration in nanoseconds; 0 = uncapped

	errMu     sync.Mutex
	renderErr error
}

// Engine is the main entry point for the engine.
// It composes the window, the backend device and the Renderer, and runs the tick and render loops.
type Engine interface {
	// Window returns the underlying window, or nil when the engine runs headless.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the frame orchestrator.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// Profiler returns the frame profiler. It receives pass timings when NewEngine created the renderer.
	//
	// Returns:
	//   - *profiler.Profiler: the profiler
	Profiler() *profiler.Profiler

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for game logic, input processing and scene edits.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each rendered frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// AddCamera registers a camera whose aspect ratio follows the window size.
	//
	// Parameters:
	//   - c: the camera
	AddCamera(c camera.Camera)

	// Run starts the tick and render loops and blocks until the window closes or Quit is called.
	// On return the renderer is disposed, the window is closed and a device created by NewEngine is closed.
	//
	// Returns:
	//   - error: the first frame error, joined with any shutdown error
	Run() error

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// When no renderer is supplied one is created: on a WebGPU device bound to the window surface when a
// window is configured, otherwise on a headless device.
//
// Parameters:
//   - options: functional options for engine configuration (window, renderer, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: error if the device or renderer cannot be created
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		engineTickRate:   time.Second / 60,
		profilerInterval: time.Second,
	}

	for _, opt := range options {
		opt(e)
	}
	e.log = logger.OrNop(e.log)
	e.profiler = profiler.NewProfiler(profiler.WithLogger(e.log), profiler.WithInterval(e.profilerInterval))

	if e.renderer == nil {
		if err := e.createRenderer(); err != nil {
			return nil, err
		}
	}

	if e.window != nil {
		e.window.SetResizeCallback(e.queueResize)
		e.window.SetCloseCallback(e.signalQuit)
		e.window.SetUpdateCallback(func() {
			select {
			case <-e.quitChannel:
				e.window.RequestClose()
			default:
			}
		})
	}

	return e, nil
}

// createRenderer opens the device described by the engine configuration and builds a renderer on it.
func (e *engine) createRenderer() error {
	cfg := renderer.DeviceConfig{Backend: renderer.BackendTypeHeadless, Width: 1280, Height: 720}
	if e.window != nil {
		cfg = renderer.DeviceConfig{
			Backend:     renderer.BackendTypeWGPU,
			Surface:     e.window.SurfaceDescriptor(),
			Width:       e.window.Width(),
			Height:      e.window.Height(),
			PresentMode: renderer.PresentModeVSync,
		}
	}
	if e.deviceConfig != nil {
		cfg = cfg.Override(*e.deviceConfig)
	}
	cfg.Logger = e.log

	dev, err := renderer.NewDevice(cfg)
	if err != nil {
		return fmt.Errorf("engine: create device: %w", err)
	}
	opts := append([]renderer.RendererBuilderOption{
		renderer.WithLogger(e.log),
		renderer.WithProfiler(e.profiler),
	}, e.rendererOptions...)
	r, err := renderer.NewRenderer(dev, opts...)
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("engine: create renderer: %w", err)
	}
	e.renderer = r
	e.ownedDevice = dev
	return nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) Run() error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.handle()
	if e.window != nil {
		// GLFW requires event processing on the thread that created the window.
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()
	return e.shutdown()
}

// Quit signals all engine goroutines to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// shutdown releases the renderer and whatever the engine created itself.
func (e *engine) shutdown() error {
	e.errMu.Lock()
	errs := []error{e.renderErr}
	e.errMu.Unlock()

	errs = append(errs, e.renderer.Dispose())
	if e.ownedDevice != nil {
		errs = append(errs, e.ownedDevice.Close())
	}
	if e.window != nil {
		errs = append(errs, e.window.Close())
	}
	e.log.Infof("engine stopped after %d frames", e.renderer.FrameNumber())
	return errors.Join(errs...)
}

// handle launches the tick, render and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Each iteration applies a pending resize, renders one frame and fires the render callback.
// A frame error or a panic stops the engine.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.recordErr(fmt.Errorf("engine: render goroutine panic: %v", r))
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		if err := e.applyPendingResize(); err != nil {
			e.recordErr(err)
			e.signalQuit()
			return
		}
		if err := e.renderer.RenderFrame(); err != nil {
			e.recordErr(err)
			e.signalQuit()
			return
		}

		if e.renderCallback != nil {
			e.renderCallback(dt)
		}

		if e.profilingEnabled.Load() {
			e.profiler.Tick()
		}

		// Frame rate limiting
		if limit := time.Duration(e.renderFrameLimit.Load()); limit > 0 {
			if remaining := limit - time.Since(lastRender); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

func (e *engine) recordErr(err error) {
	e.log.Errorf("%v", err)
	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.renderErr == nil {
		e.renderErr = err
	}
}

// queueResize runs on the window thread. Cameras follow immediately; the back buffer is resized by
// the render goroutine between frames.
func (e *engine) queueResize(width, height int) {
	if width > 0 && height > 0 {
		aspect := float32(width) / float32(height)
		e.camerasMu.Lock()
		for _, c := range e.cameras {
			c.SetAspect(aspect)
		}
		e.camerasMu.Unlock()
	}
	e.resizeMu.Lock()
	e.pendingSize = &[2]int{width, height}
	e.resizeMu.Unlock()
}

func (e *engine) applyPendingResize() error {
	e.resizeMu.Lock()
	size := e.pendingSize
	e.pendingSize = nil
	e.resizeMu.Unlock()
	if size == nil {
		return nil
	}
	if err := e.renderer.Resize(size[0], size[1]); err != nil {
		return fmt.Errorf("engine: resize to %dx%d: %w", size[0], size[1], err)
	}
	return nil
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running.Load() {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit.Store(int64(frameDuration(fps)))
}

func (e *engine) AddCamera(c camera.Camera) {
	if c == nil {
		panic("engine: AddCamera requires a non-nil Camera")
	}
	e.camerasMu.Lock()
	defer e.camerasMu.Unlock()
	e.cameras = append(e.cameras, c)
}

// frameDuration converts a frame rate into a frame period; rates <= 0 mean uncapped.
func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
