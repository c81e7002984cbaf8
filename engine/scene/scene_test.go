package scene

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFragmentSource = `
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0);
}
`

const testVertexSource = model.GPUVertexSource + model.GPUInstanceSource + `
@vertex
fn vs_main(v: VertexInput, i: InstanceInput) -> @builtin(position) vec4<f32> {
    return vec4<f32>(v.position, 1.0);
}
`

func newTestMaterial(t *testing.T, dev backend.Device) material.Material {
	t.Helper()
	fs, err := shader.NewShader(dev, "flat", command.StageFragment, testFragmentSource)
	require.NoError(t, err)
	m, err := material.NewMaterial(fs)
	require.NoError(t, err)
	return m
}

func newTestScene(t *testing.T) (Scene, *backend.RecordingDevice, GeometryCache) {
	t.Helper()
	dev := backend.NewRecordingDevice(64, 64)
	s := NewScene("test", dev, WithLayers("world"))
	gc, err := s.CreateGeometryCache([]model.Model{model.NewCube("cube", 1), model.NewQuad("quad", 1)})
	require.NoError(t, err)
	return s, dev, gc
}

func TestGeometryCacheRanges(t *testing.T) {
	_, dev, gc := newTestScene(t)

	models := gc.Models()
	require.Len(t, models, 2)
	assert.Equal(t, ModelRange{BaseVertex: 0, IndexStart: 0, IndexCount: 36, BoundingRadius: models[0].BoundingRadius}, models[0])
	assert.Equal(t, uint32(24), models[1].BaseVertex)
	assert.Equal(t, uint32(36), models[1].IndexStart)
	assert.Equal(t, uint32(6), models[1].IndexCount)

	assert.Len(t, dev.BufferData(gc.VertexBuffer()), 28*model.GPUVertexStride)
	indices := dev.BufferData(gc.IndexBuffer())
	require.Len(t, indices, 42*4)
	// quad indices stay relative to the quad's first vertex
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(indices[38*4:]))
}

func TestGeometryCacheInputLayoutIsCached(t *testing.T) {
	_, dev, gc := newTestScene(t)
	vs, err := shader.NewShader(dev, "instanced", command.StageVertex, testVertexSource)
	require.NoError(t, err)

	a, err := gc.InputLayout(vs)
	require.NoError(t, err)
	b, err := gc.InputLayout(vs)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "input layout", dev.ResourceKind(a))

	live := dev.LiveResources()
	gc.Dispose()
	gc.Dispose()
	assert.Equal(t, live-3, dev.LiveResources())
	assert.True(t, gc.IsDisposed())
}

func TestInstanceAllocationPolicy(t *testing.T) {
	s, dev, gc := newTestScene(t)
	mat := newTestMaterial(t, dev)
	layer := s.Layer(0)

	var handles []InstanceHandle
	for i := range 4 {
		h, err := gc.AddInstance(mat, 0, layer, mgl32.Translate3D(float32(i), 0, 0))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	// the initial allocation of four is filled from the end
	assert.Equal(t, []int{3, 2, 1, 0}, []int{handles[0].slot, handles[1].slot, handles[2].slot, handles[3].slot})
	require.Len(t, gc.Buckets(), 1)
	assert.Len(t, gc.Buckets()[0].Instances, 4)

	h, err := gc.AddInstance(mat, 1, layer, mgl32.Ident4())
	require.NoError(t, err)
	assert.Equal(t, 4, h.slot, "the first record after growth is used")
	assert.Len(t, gc.Buckets()[0].Instances, 8)

	require.NoError(t, gc.DisposeInstance(handles[1]))
	assert.ErrorIs(t, gc.DisposeInstance(handles[1]), ErrInvalidInstance)
	_, err = gc.Transform(handles[1])
	assert.ErrorIs(t, err, ErrInvalidInstance)

	// free records at the tail are preferred over the disposed one
	h, err = gc.AddInstance(mat, 1, layer, mgl32.Ident4())
	require.NoError(t, err)
	assert.Equal(t, 7, h.slot)
	assert.Equal(t, 6, gc.InstanceCount())
}

func TestInstanceGrowthBecomesLinear(t *testing.T) {
	b := newMaterialBucket(nil)
	sizes := []int{len(b.Instances)}
	for range 200 {
		slot := b.allocate()
		b.Instances[slot].InUse = true
		if n := len(b.Instances); n != sizes[len(sizes)-1] {
			sizes = append(sizes, n)
		}
	}
	assert.Equal(t, []int{4, 8, 16, 32, 64, 128, 192, 256}, sizes)
}

func TestInstanceTransformAndErrors(t *testing.T) {
	s, dev, gc := newTestScene(t)
	mat := newTestMaterial(t, dev)

	_, err := gc.AddInstance(mat, 2, s.Layer(0), mgl32.Ident4())
	assert.ErrorIs(t, err, ErrModelIndex)

	h, err := gc.AddInstance(mat, 0, s.Layer(0), mgl32.Ident4())
	require.NoError(t, err)
	require.NoError(t, gc.SetTransform(h, mgl32.Translate3D(1, 2, 3)))
	m, err := gc.Transform(h)
	require.NoError(t, err)
	assert.Equal(t, float32(2), m.At(1, 3))

	mat.Dispose()
	_, err = gc.AddInstance(mat, 0, s.Layer(0), mgl32.Ident4())
	assert.ErrorIs(t, err, ErrMaterialDisposed)
}

func TestLayers(t *testing.T) {
	s, _, _ := newTestScene(t)
	hud := s.CreateLayer("hud")
	assert.Equal(t, 1, hud.Index())
	assert.True(t, hud.RenderingEnabled())

	snapshot := s.Layers()
	s.RemoveLayer(hud)
	assert.Nil(t, s.Layer(1))
	assert.Same(t, hud, snapshot[1], "published snapshots are never modified")

	next := s.CreateLayer("overlay")
	assert.Equal(t, 2, next.Index())
	assert.Nil(t, s.Layer(-1))
}

func TestFreezeBlocksMutation(t *testing.T) {
	s, dev, gc := newTestScene(t)
	mat := newTestMaterial(t, dev)

	s.Freeze()
	assert.True(t, s.Frozen())

	var wg sync.WaitGroup
	added := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := gc.AddInstance(mat, 0, s.Layer(0), mgl32.Ident4())
		assert.NoError(t, err)
		close(added)
	}()

	select {
	case <-added:
		t.Fatal("instance was added while the scene was frozen")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Empty(t, gc.Buckets())

	s.Thaw()
	wg.Wait()
	assert.False(t, s.Frozen())
	assert.Equal(t, 1, gc.InstanceCount())
	assert.Panics(t, s.Thaw)
}

func TestRemoveGeometryCache(t *testing.T) {
	s, _, gc := newTestScene(t)
	s.RemoveGeometryCache(gc)
	assert.Empty(t, s.GeometryCaches())
	assert.True(t, gc.IsDisposed())
	s.Dispose()
	s.Dispose()
}
