package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
	"github.com/Carmen-Shannon/oxy-deferred/engine/parallel"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPass struct {
	*pass.Base
}

func (p *failingPass) IsValid() bool { return true }

func (p *failingPass) Execute(parallel.Provider) error { return errors.New("device lost") }

func (p *failingPass) Dispose() {}

func TestEngineRunsHeadlessUntilQuit(t *testing.T) {
	e, err := NewEngine(WithLogger(logger.NewNopLogger()), WithRendererOptions(renderer.WithWorkers(1)))
	require.NoError(t, err)
	assert.Nil(t, e.Window())

	frames := 0
	e.SetRenderCallback(func(float32) {
		frames++
		if frames == 3 {
			e.Quit()
		}
	})

	require.NoError(t, e.Run())
	assert.Equal(t, 3, frames)
	assert.Equal(t, uint64(3), e.Renderer().FrameNumber())
	assert.ErrorIs(t, e.Run(), ErrAlreadyRunning)
	assert.ErrorIs(t, e.Renderer().RenderFrame(), renderer.ErrRendererDisposed)
}

func TestEngineStopsOnFrameError(t *testing.T) {
	dev := backend.NewRecordingDevice(32, 32)
	r, err := renderer.NewRenderer(dev, renderer.WithWorkers(0),
		renderer.WithPasses(&failingPass{Base: pass.NewBase("failing", dev)}))
	require.NoError(t, err)

	e, err := NewEngine(WithRenderer(r))
	require.NoError(t, err)

	err = e.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass failing: device lost")
	assert.Equal(t, uint64(1), r.FrameNumber())
}

func TestEngineResizeFollowsWindow(t *testing.T) {
	cam := camera.NewCamera()
	e, err := NewEngine(
		WithBackend(renderer.DeviceConfig{Backend: renderer.BackendTypeHeadless, Width: 64, Height: 48}),
		WithCamera(cam),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Renderer().Dispose() })
	impl := e.(*engine)

	tex, ok := e.Renderer().Device().WindowTargets()
	require.True(t, ok)
	assert.Equal(t, uint32(64), tex.Width)

	impl.queueResize(200, 100)
	assert.Equal(t, float32(2), cam.Aspect())
	require.NoError(t, impl.applyPendingResize())

	tex, ok = e.Renderer().Device().WindowTargets()
	require.True(t, ok)
	assert.Equal(t, uint32(200), tex.Width)
	assert.Equal(t, uint32(100), tex.Height)

	// A minimized window keeps the camera aspect.
	impl.queueResize(0, 0)
	assert.Equal(t, float32(2), cam.Aspect())
}

func TestFrameRates(t *testing.T) {
	assert.Zero(t, frameDuration(0))
	assert.Equal(t, 20*time.Millisecond, frameDuration(50))

	e, err := NewEngine(WithTickRate(30), WithRenderFrameLimit(100))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Renderer().Dispose() })
	impl := e.(*engine)

	assert.Equal(t, frameDuration(30), impl.engineTickRate)
	assert.Equal(t, int64(10*time.Millisecond), impl.renderFrameLimit.Load())

	e.SetTickRate(0)
	assert.Equal(t, frameDuration(60), impl.engineTickRate)
	e.SetRenderFrameLimit(0)
	assert.Zero(t, impl.renderFrameLimit.Load())
}
