package game_object

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flatSource = `
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0);
}
`

func setup(t *testing.T) (scene.Scene, scene.GeometryCache, material.Material) {
	t.Helper()
	dev := backend.NewRecordingDevice(32, 32)
	s := scene.NewScene("objects", dev, scene.WithLayers("world", "props"))
	gc, err := s.CreateGeometryCache([]model.Model{model.NewCube("cube", 1)})
	require.NoError(t, err)
	fs, err := shader.NewShader(dev, "flat", command.StageFragment, flatSource)
	require.NoError(t, err)
	mat, err := material.NewMaterial(fs)
	require.NoError(t, err)
	return s, gc, mat
}

func TestGameObjectWritesTransform(t *testing.T) {
	s, gc, mat := setup(t)
	l := light.NewLight(light.WithRadius(3))

	obj, err := NewGameObject(gc, mat, 0,
		WithLayer(s.Layer(1)),
		WithPosition(mgl32.Vec3{1, 2, 3}),
		WithScale(mgl32.Vec3{2, 2, 2}),
		WithLight(l),
	)
	require.NoError(t, err)
	assert.True(t, l.Position().ApproxEqual(mgl32.Vec3{1, 2, 3}))

	m, err := gc.Transform(obj.Instance())
	require.NoError(t, err)
	assert.Equal(t, float32(2), m.At(0, 0))
	assert.Equal(t, float32(3), m.At(2, 3))

	require.NoError(t, obj.SetPosition(mgl32.Vec3{5, 0, 0}))
	m, err = gc.Transform(obj.Instance())
	require.NoError(t, err)
	assert.Equal(t, float32(5), m.At(0, 3))
	assert.Equal(t, float32(2), obj.Transform().Scale.X())
	assert.True(t, l.Position().ApproxEqual(mgl32.Vec3{5, 0, 0}))

	require.NoError(t, obj.SetRotation(mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0})))
	m, err = gc.Transform(obj.Instance())
	require.NoError(t, err)
	assert.InDelta(t, 0, m.At(0, 0), 1e-5)
}

func TestGameObjectDispose(t *testing.T) {
	_, gc, mat := setup(t)
	obj, err := NewGameObject(gc, mat, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, gc.InstanceCount())

	require.NoError(t, obj.Dispose())
	require.NoError(t, obj.Dispose())
	assert.Equal(t, 0, gc.InstanceCount())
	assert.ErrorIs(t, obj.SetPosition(mgl32.Vec3{}), scene.ErrInvalidInstance)

	_, err = NewGameObject(gc, mat, 3)
	assert.ErrorIs(t, err, scene.ErrModelIndex)
}
