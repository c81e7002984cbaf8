package pass

import (
	"encoding/binary"
	"math"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceBufferReserveConcat(t *testing.T) {
	f := newFixture(t, 0)
	b := NewInstanceBuffer(f.dev, "test.instances")

	local := make([]model.GPUInstance, 4)
	for i := range local {
		local[i] = model.NewGPUInstance(mgl32.Translate3D(float32(i), 0, 0))
	}

	first := b.Reserve(3)
	second := b.Reserve(1)
	assert.Equal(t, uint32(0), first)
	assert.Equal(t, uint32(3), second)
	assert.Equal(t, uint32(4), b.Len())

	b.Concat(local[3:], second, 1)
	b.Concat(local[:3], first, 3)
	assert.Equal(t, local, b.Entries())
	assert.GreaterOrEqual(t, b.Capacity(), 4)

	h, data, err := b.prepareUpload()
	require.NoError(t, err)
	assert.Equal(t, "buffer", f.dev.ResourceKind(h))
	assert.Len(t, data, b.Capacity()*model.GPUInstanceStride)

	b.Reset()
	assert.Equal(t, uint32(0), b.Len())
	assert.Equal(t, uint32(0), b.Reserve(2))

	b.Dispose()
	assert.Equal(t, "", f.dev.ResourceKind(h))
}

func TestGeometryPassDrawsEveryInstanceOnce(t *testing.T) {
	f := newFixture(t, 4)
	models := []model.Model{model.NewCube("a", 1), model.NewQuad("b", 1), model.NewCube("c", 2)}
	gc, err := f.scene.CreateGeometryCache(models)
	require.NoError(t, err)
	mat := f.material(t)

	const total = 50
	for i := range total {
		_, err := gc.AddInstance(mat, i%len(models), f.scene.Layer(0), mgl32.Translate3D(float32(i), 0, 0))
		require.NoError(t, err)
	}

	p, err := NewGeometryPass(f.dev, f.scene, f.cam, f.vs)
	require.NoError(t, err)
	require.NoError(t, p.AddLayer(f.scene.Layer(0)))

	ran, err := Run(p, f.pp)
	require.NoError(t, err)
	require.True(t, ran)

	draws := f.dev.Commands(command.DrawIndexedInstanced)
	require.Len(t, draws, len(models))

	type span struct{ start, count uint32 }
	var spans []span
	for _, d := range draws {
		_, _, _, start, count := d.Command.IndexedDraw()
		spans = append(spans, span{start, count})
	}
	slices.SortFunc(spans, func(a, b span) int { return int(a.start) - int(b.start) })
	var next uint32
	for _, s := range spans {
		assert.Equal(t, next, s.start, "instance ranges must be contiguous")
		next += s.count
	}
	assert.Equal(t, uint32(total), next)

	writes := f.dev.Commands(command.BufferWrite)
	var upload []byte
	for _, w := range writes {
		if command.Handle(w.Command.Arg0) == p.buffer.Handle() {
			upload = w.Payload
		}
	}
	require.GreaterOrEqual(t, len(upload), total*model.GPUInstanceStride)

	seen := make(map[float32]bool)
	for i := range total {
		entry := upload[i*model.GPUInstanceStride:]
		seen[math.Float32frombits(binary.LittleEndian.Uint32(entry[3*4:]))] = true
	}
	for i := range total {
		assert.True(t, seen[float32(i)], "instance %d missing from upload", i)
	}

	// The upload precedes every draw in execution order.
	ops := f.dev.Operations()
	uploadAt := slices.IndexFunc(ops, func(o backend.Operation) bool {
		return o.Command.Instruction == command.BufferWrite && command.Handle(o.Command.Arg0) == p.buffer.Handle()
	})
	firstDraw := slices.IndexFunc(ops, func(o backend.Operation) bool {
		return o.Command.Instruction == command.DrawIndexedInstanced
	})
	require.GreaterOrEqual(t, uploadAt, 0)
	assert.Less(t, uploadAt, firstDraw)
	assert.Equal(t, uint64(1), p.FrameNumber())
}

func TestGeometryPassFiltersLayers(t *testing.T) {
	f := newFixture(t, 2)
	gc, err := f.scene.CreateGeometryCache([]model.Model{model.NewCube("a", 1)})
	require.NoError(t, err)
	mat := f.material(t)

	_, err = gc.AddInstance(mat, 0, f.scene.Layer(0), mgl32.Ident4())
	require.NoError(t, err)
	_, err = gc.AddInstance(mat, 0, f.scene.Layer(1), mgl32.Ident4())
	require.NoError(t, err)

	p, err := NewGeometryPass(f.dev, f.scene, f.cam, f.vs)
	require.NoError(t, err)
	require.NoError(t, p.AddLayer(f.scene.Layer(0)))
	require.NoError(t, p.AddLayer(f.scene.Layer(1)))
	f.scene.Layer(1).SetRenderingEnabled(false)

	_, err = Run(p, f.pp)
	require.NoError(t, err)

	draws := f.dev.Commands(command.DrawIndexedInstanced)
	require.Len(t, draws, 1)
	_, _, _, _, count := draws[0].Command.IndexedDraw()
	assert.Equal(t, uint32(1), count)
	assert.Len(t, p.GBuffer(), GBufferCount)
	assert.True(t, p.DepthBuffer().Valid())
}

func TestGeometryPassSkipsWithoutBackBuffer(t *testing.T) {
	f := newFixture(t, 1)
	p, err := NewGeometryPass(f.dev, f.scene, f.cam, f.vs)
	require.NoError(t, err)

	f.dev.SetWindowAvailable(false)
	f.dev.ResetLog()
	_, err = Run(p, f.pp)
	require.NoError(t, err)
	assert.Empty(t, f.dev.Operations())
	assert.False(t, p.DepthBuffer().Valid())
}

func TestShadowPassRendersDepthOnly(t *testing.T) {
	f := newFixture(t, 2)
	gc, err := f.scene.CreateGeometryCache([]model.Model{model.NewCube("a", 1)})
	require.NoError(t, err)
	_, err = gc.AddInstance(f.material(t), 0, f.scene.Layer(0), mgl32.Ident4())
	require.NoError(t, err)

	sp, err := NewShadowPass(f.dev, f.scene, f.cam, f.vs, WithShadowMapResolution(256))
	require.NoError(t, err)
	require.NoError(t, sp.AddLayer(f.scene.Layer(0)))

	_, err = Run(sp, f.pp)
	require.NoError(t, err)
	assert.Equal(t, uint32(256), sp.ShadowMap().Width)
	assert.Equal(t, 1, f.dev.Count(command.DrawIndexedInstanced))

	clears := f.dev.Commands(command.ClearDepthStencil)
	require.NotEmpty(t, clears)
	target, depth, _ := clears[0].Command.DepthStencilClear()
	assert.Equal(t, sp.ShadowMap().DepthStencil, target)
	assert.Equal(t, float32(1), depth)

	raster := f.dev.Commands(command.SetRasterizerState)
	require.NotEmpty(t, raster)
	assert.Equal(t, uint64(command.CullFront), raster[0].Command.Arg0)

	gp, err := NewGeometryPass(f.dev, f.scene, f.cam, f.vs, WithShadowPass(sp))
	require.NoError(t, err)
	require.NoError(t, gp.AddLayer(f.scene.Layer(0)))
	f.dev.ResetLog()
	_, err = Run(gp, f.pp)
	require.NoError(t, err)
	assert.Equal(t, 1, f.dev.Count(command.DrawIndexedInstanced))

	sp.Dispose()
	assert.False(t, sp.IsValid())
}

// uploadedX returns the x translation of the first n entries of the last upload to buffer h.
func uploadedX(t *testing.T, dev *backend.RecordingDevice, h command.Handle, n int) []float32 {
	t.Helper()
	var upload []byte
	for _, w := range dev.Commands(command.BufferWrite) {
		if command.Handle(w.Command.Arg0) == h {
			upload = w.Payload
		}
	}
	require.GreaterOrEqual(t, len(upload), n*model.GPUInstanceStride)
	xs := make([]float32, n)
	for i := range xs {
		entry := upload[i*model.GPUInstanceStride:]
		xs[i] = math.Float32frombits(binary.LittleEndian.Uint32(entry[3*4:]))
	}
	return xs
}

func TestGeometryPassPartitionsBucketsAcrossWorkers(t *testing.T) {
	f := newFixture(t, 4)
	models := []model.Model{model.NewCube("a", 1), model.NewQuad("b", 1), model.NewCube("c", 2)}
	gc, err := f.scene.CreateGeometryCache(models)
	require.NoError(t, err)

	const materials, perMaterial = 512, 4
	for m := range materials {
		mat := f.material(t)
		for i := range perMaterial {
			x := float32(m*perMaterial + i)
			_, err := gc.AddInstance(mat, i%len(models), f.scene.Layer(0), mgl32.Translate3D(x, 0, 0))
			require.NoError(t, err)
		}
	}

	p, err := NewGeometryPass(f.dev, f.scene, f.cam, f.vs)
	require.NoError(t, err)
	require.NoError(t, p.AddLayer(f.scene.Layer(0)))
	_, err = Run(p, f.pp)
	require.NoError(t, err)

	type span struct{ start, count uint32 }
	var spans []span
	contexts := make(map[int]bool)
	for _, d := range f.dev.Commands(command.DrawIndexedInstanced) {
		_, _, _, start, count := d.Command.IndexedDraw()
		spans = append(spans, span{start, count})
		contexts[d.Context] = true
	}
	assert.Greater(t, len(contexts), 1, "draws should come from more than one context")

	slices.SortFunc(spans, func(a, b span) int { return int(a.start) - int(b.start) })
	var next uint32
	for _, s := range spans {
		require.Equal(t, next, s.start, "instance ranges must be contiguous")
		next += s.count
	}
	const total = materials * perMaterial
	assert.Equal(t, uint32(total), next)

	seen := make(map[float32]bool, total)
	for _, x := range uploadedX(t, f.dev, p.buffer.Handle(), total) {
		assert.False(t, seen[x], "instance at x=%v uploaded twice", x)
		seen[x] = true
	}
	assert.Len(t, seen, total)
}

func TestGeometryPassSortsNearestFirst(t *testing.T) {
	f := newFixture(t, 0)
	gc, err := f.scene.CreateGeometryCache([]model.Model{model.NewCube("a", 1)})
	require.NoError(t, err)
	mat := f.material(t)
	for _, x := range []float32{20, 0, 10} {
		_, err := gc.AddInstance(mat, 0, f.scene.Layer(0), mgl32.Translate3D(x, 0, 0))
		require.NoError(t, err)
	}

	p, err := NewGeometryPass(f.dev, f.scene, f.cam, f.vs)
	require.NoError(t, err)
	require.NoError(t, p.AddLayer(f.scene.Layer(0)))
	_, err = Run(p, f.pp)
	require.NoError(t, err)

	assert.Equal(t, []float32{0, 10, 20}, uploadedX(t, f.dev, p.buffer.Handle(), 3))
}

func TestFailedFlushLeavesNoQueuedWork(t *testing.T) {
	f := newFixture(t, 2)
	gc, err := f.scene.CreateGeometryCache([]model.Model{model.NewCube("a", 1)})
	require.NoError(t, err)
	for i := range 8 {
		_, err := gc.AddInstance(f.material(t), 0, f.scene.Layer(0), mgl32.Translate3D(float32(i), 0, 0))
		require.NoError(t, err)
	}

	p, err := NewGeometryPass(f.dev, f.scene, f.cam, f.vs)
	require.NoError(t, err)
	require.NoError(t, p.AddLayer(f.scene.Layer(0)))

	f.dev.FailNextSubmit("device lost")
	_, err = Run(p, f.pp)
	assert.Equal(t, "device lost", backend.Diagnostic(err))
	for _, ctx := range f.pp.Contexts() {
		assert.Zero(t, ctx.Queue.Len(), "context %d kept queued commands", ctx.Slot)
	}

	f.dev.ResetLog()
	require.NotPanics(t, func() {
		_, err = Run(p, f.pp)
	})
	require.NoError(t, err)
	var drawn uint32
	for _, d := range f.dev.Commands(command.DrawIndexedInstanced) {
		_, _, _, _, count := d.Command.IndexedDraw()
		drawn += count
	}
	assert.Equal(t, uint32(8), drawn)
}

func TestHUDPassDrawsInZOrder(t *testing.T) {
	f := newFixture(t, 2)
	gc, err := f.scene.CreateGeometryCache([]model.Model{model.NewQuad("panel", 1)})
	require.NoError(t, err)
	for _, z := range []int{5, 1, 3} {
		mat := f.material(t, material.WithZIndex(z))
		_, err := gc.AddInstance(mat, 0, f.scene.Layer(0), mgl32.Translate3D(float32(z), 0, 0))
		require.NoError(t, err)
	}

	p, err := NewHUDPass(f.dev, f.scene, f.cam, f.vs)
	require.NoError(t, err)
	require.NoError(t, p.AddLayer(f.scene.Layer(0)))
	p.SetPresentAfterPass(true)
	_, err = Run(p, f.pp)
	require.NoError(t, err)

	assert.Equal(t, []float32{1, 3, 5}, uploadedX(t, f.dev, p.buffer.Handle(), 3))
	draws := f.dev.Commands(command.DrawIndexedInstanced)
	require.Len(t, draws, 3)
	for i, d := range draws {
		_, _, _, start, _ := d.Command.IndexedDraw()
		assert.Equal(t, uint32(i), start)
		assert.Equal(t, 0, d.Context, "HUD buckets are drawn on the master")
	}
	assert.Equal(t, 1, f.dev.Count(command.Present))
}

func TestRepeatedShaderSwitchSkippedWithinFrame(t *testing.T) {
	f := newFixture(t, 0)
	gc, err := f.scene.CreateGeometryCache([]model.Model{model.NewQuad("panel", 1)})
	require.NoError(t, err)
	for z := range 3 {
		_, err := gc.AddInstance(f.material(t, material.WithZIndex(z)), 0, f.scene.Layer(0), mgl32.Ident4())
		require.NoError(t, err)
	}

	p, err := NewHUDPass(f.dev, f.scene, f.cam, f.vs)
	require.NoError(t, err)
	require.NoError(t, p.AddLayer(f.scene.Layer(0)))

	fragmentSwitches := func() int {
		n := 0
		for _, op := range f.dev.Commands(command.SetShader) {
			if command.Handle(op.Command.Arg1) == f.fs.Handle() {
				n++
			}
		}
		return n
	}

	_, err = Run(p, f.pp)
	require.NoError(t, err)
	assert.Equal(t, 3, f.dev.Count(command.DrawIndexedInstanced))
	assert.Equal(t, 1, fragmentSwitches())

	// A new frame switches again.
	_, err = Run(p, f.pp)
	require.NoError(t, err)
	assert.Equal(t, 2, fragmentSwitches())
	assert.Equal(t, uint64(2), p.FrameNumber())
}

func TestAlphaPassBlendsOverGeometryDepth(t *testing.T) {
	f := newFixture(t, 2)
	gc, err := f.scene.CreateGeometryCache([]model.Model{model.NewCube("a", 1)})
	require.NoError(t, err)
	solid, glass := f.material(t), f.material(t)
	for i := range 2 {
		_, err := gc.AddInstance(solid, 0, f.scene.Layer(0), mgl32.Translate3D(float32(i), 0, 0))
		require.NoError(t, err)
	}
	for i := range 3 {
		_, err := gc.AddInstance(glass, 0, f.scene.Layer(1), mgl32.Translate3D(float32(i), 1, 0))
		require.NoError(t, err)
	}

	gp, err := NewGeometryPass(f.dev, f.scene, f.cam, f.vs)
	require.NoError(t, err)
	require.NoError(t, gp.AddLayer(f.scene.Layer(0)))
	ap, err := NewAlphaPass(f.dev, f.scene, f.cam, f.vs, gp)
	require.NoError(t, err)
	require.NoError(t, ap.AddLayer(f.scene.Layer(1)))

	// Without a geometry depth buffer there is nothing to test against.
	ran, err := Run(ap, f.pp)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Empty(t, f.dev.Operations())

	_, err = Run(gp, f.pp)
	require.NoError(t, err)
	f.dev.ResetLog()
	_, err = Run(ap, f.pp)
	require.NoError(t, err)

	var drawn uint32
	for _, d := range f.dev.Commands(command.DrawIndexedInstanced) {
		_, _, _, _, count := d.Command.IndexedDraw()
		drawn += count
	}
	assert.Equal(t, uint32(3), drawn)

	for _, op := range f.dev.Commands(command.SetDepthStencilState) {
		assert.Equal(t, uint64(command.DepthReadOnly), op.Command.Arg0)
	}
	for _, op := range f.dev.Commands(command.SetBlendState) {
		assert.Equal(t, uint64(command.BlendAlpha), op.Command.Arg0)
	}

	window, ok := f.dev.WindowTargets()
	require.True(t, ok)
	targets := f.dev.Commands(command.SetRenderTargets)
	require.NotEmpty(t, targets)
	for _, op := range targets {
		assert.Equal(t, uint64(gp.DepthBuffer().DepthStencil), op.Command.Arg0)
		assert.Equal(t, []command.Handle{window.RenderTarget}, command.DecodeHandles(nil, op.Payload))
	}

	ap.Dispose()
	assert.True(t, ap.IsDisposed())
}
