package renderer

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/engine/parallel"
	"github.com/Carmen-Shannon/oxy-deferred/engine/profiler"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// markerPass queues one marker on the master and records whether the scene was frozen.
type markerPass struct {
	*pass.Base
	scene       scene.Scene
	marker      uint64
	sawFrozen   bool
	err         error
	disposeHits int
}

func newMarkerPass(dev backend.Device, name string, scn scene.Scene, marker uint64) *markerPass {
	return &markerPass{Base: pass.NewBase(name, dev), scene: scn, marker: marker}
}

func (p *markerPass) IsValid() bool { return true }

func (p *markerPass) Execute(pp parallel.Provider) error {
	p.sawFrozen = p.scene.Frozen()
	q := pp.Master().Queue
	q.QueueCommand(command.NewNoOperation(p.marker))
	if err := q.Flush(); err != nil {
		return err
	}
	return p.err
}

func (p *markerPass) Dispose() { p.disposeHits++ }

func TestRenderFrameRunsPassesInOrder(t *testing.T) {
	dev := backend.NewRecordingDevice(32, 32)
	scn := scene.NewScene("frame", dev)
	prof := profiler.NewProfiler()

	first := newMarkerPass(dev, "first", scn, 1)
	second := newMarkerPass(dev, "second", scn, 2)
	r, err := NewRenderer(dev, WithWorkers(1), WithScene(scn), WithPasses(first, second), WithProfiler(prof))
	require.NoError(t, err)

	require.NoError(t, r.RenderFrame())
	assert.True(t, first.sawFrozen)
	assert.False(t, scn.Frozen())

	noops := dev.Commands(command.NoOperation)
	require.Len(t, noops, 2)
	assert.Equal(t, uint64(1), noops[0].Command.Arg0)
	assert.Equal(t, uint64(2), noops[1].Command.Arg0)

	timings := r.Timings()
	require.Len(t, timings, 2)
	assert.Equal(t, "first", timings[0].Name)
	assert.True(t, timings[1].Ran)
	assert.Equal(t, uint64(1), r.FrameNumber())

	assert.ErrorIs(t, r.AddPass(first), ErrPassAlreadyAdded)
	require.NoError(t, r.RemovePass(first))
	assert.ErrorIs(t, r.RemovePass(first), ErrPassNotAdded)
	assert.Len(t, r.Passes(), 1)

	require.NoError(t, r.Dispose())
	require.NoError(t, r.Dispose())
	assert.Equal(t, 1, second.disposeHits)
	assert.Zero(t, first.disposeHits)
	assert.ErrorIs(t, r.RenderFrame(), ErrRendererDisposed)
}

func TestRenderFrameStopsAtFailingPass(t *testing.T) {
	dev := backend.NewRecordingDevice(32, 32)
	scn := scene.NewScene("frame", dev)
	failing := newMarkerPass(dev, "failing", scn, 1)
	failing.err = errors.New("boom")
	after := newMarkerPass(dev, "after", scn, 2)

	r, err := NewRenderer(dev, WithWorkers(0), WithScene(scn), WithPasses(failing, after))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Dispose() })

	err = r.RenderFrame()
	assert.EqualError(t, err, "pass failing: boom")
	assert.False(t, scn.Frozen())
	assert.Len(t, r.Timings(), 1)
	assert.Equal(t, 1, dev.Count(command.NoOperation))
}

func TestRenderFrameSkipsDisabledPasses(t *testing.T) {
	dev := backend.NewRecordingDevice(32, 32)
	scn := scene.NewScene("frame", dev)
	p := newMarkerPass(dev, "off", scn, 1)
	p.SetEnabled(false)

	r, err := NewRenderer(dev, WithWorkers(0), WithPasses(p))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Dispose() })

	require.NoError(t, r.RenderFrame())
	assert.False(t, r.Timings()[0].Ran)
	assert.Zero(t, dev.Count(command.NoOperation))
}

func TestNewDevice(t *testing.T) {
	dev, err := NewDevice(DeviceConfig{Backend: BackendTypeHeadless, Width: 8, Height: 4})
	require.NoError(t, err)
	tex, ok := dev.WindowTargets()
	require.True(t, ok)
	assert.Equal(t, uint32(8), tex.Width)

	_, err = NewDevice(DeviceConfig{Backend: BackendTypeWGPU})
	assert.Error(t, err)
	_, err = NewDevice(DeviceConfig{Backend: RendererBackendType(9)})
	assert.Error(t, err)
}

func TestDeviceConfigOverride(t *testing.T) {
	surface := &wgpu.SurfaceDescriptor{Label: "main"}
	base := DeviceConfig{Backend: BackendTypeWGPU, Surface: surface, Width: 1280, Height: 720, PresentMode: PresentModeVSync}

	merged := base.Override(DeviceConfig{Backend: BackendTypeHeadless, Height: 360, PresentMode: PresentModeUncapped})
	assert.Equal(t, BackendTypeHeadless, merged.Backend)
	assert.Same(t, surface, merged.Surface)
	assert.Equal(t, 1280, merged.Width)
	assert.Equal(t, 360, merged.Height)
	assert.Equal(t, PresentModeUncapped, merged.PresentMode)
	assert.Equal(t, 720, base.Height, "the receiver is not modified")
}
