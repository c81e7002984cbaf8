package pass

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/parallel"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const instancedVertexSource = model.GPUVertexSource + model.GPUInstanceSource + camera.GPUViewProjSource + `
struct VertexOutput {
    @builtin(position) clip: vec4<f32>,
};

@group(0) @binding(0) var<uniform> ViewProj: ViewProjUniform;

@vertex
fn vs_main(v: VertexInput, i: InstanceInput) -> VertexOutput {
    var out: VertexOutput;
    let m = mat4x4<f32>(i.model_0, i.model_1, i.model_2, i.model_3);
    out.clip = ViewProj.view_proj * m * vec4<f32>(v.position, 1.0);
    return out;
}
`

const surfaceFragmentSource = `
@group(1) @binding(0) var ShadowMap: texture_depth_2d;

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0);
}
`

type fixture struct {
	dev   *backend.RecordingDevice
	pp    parallel.Provider
	scene scene.Scene
	cam   camera.Camera
	vs    shader.Shader
	fs    shader.Shader
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	dev := backend.NewRecordingDevice(64, 48)
	pp, err := parallel.NewProvider(dev, parallel.WithWorkers(workers))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pp.Close() })

	vs, err := shader.NewShader(dev, "instanced", command.StageVertex, instancedVertexSource)
	require.NoError(t, err)
	fs, err := shader.NewShader(dev, "surface", command.StageFragment, surfaceFragmentSource)
	require.NoError(t, err)

	return &fixture{
		dev:   dev,
		pp:    pp,
		scene: scene.NewScene("test", dev, scene.WithLayers("world", "hidden")),
		cam:   camera.NewCamera(camera.WithPosition(mgl32.Vec3{0, 0, -10})),
		vs:    vs,
		fs:    fs,
	}
}

func (f *fixture) material(t *testing.T, options ...material.MaterialBuilderOption) material.Material {
	t.Helper()
	m, err := material.NewMaterial(f.fs, options...)
	require.NoError(t, err)
	return m
}

type stubPass struct {
	*Base
	valid    bool
	executed int
	err      error
}

func (p *stubPass) IsValid() bool { return p.valid }

func (p *stubPass) Execute(parallel.Provider) error {
	p.executed++
	return p.err
}

func (p *stubPass) Dispose() { p.markDisposed() }

func TestRunSkipsDisabledAndInvalidPasses(t *testing.T) {
	f := newFixture(t, 0)
	p := &stubPass{Base: NewBase("stub", f.dev), valid: true}

	var order []string
	p.OnPrePass(func(RenderPass) { order = append(order, "pre") })
	p.OnPostPass(func(RenderPass) { order = append(order, "post") })

	ran, err := Run(p, f.pp)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{"pre", "post"}, order)
	assert.Equal(t, 1, p.executed)

	p.SetEnabled(false)
	ran, err = Run(p, f.pp)
	require.NoError(t, err)
	assert.False(t, ran)

	p.SetEnabled(true)
	p.valid = false
	ran, err = Run(p, f.pp)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, p.executed)

	p.valid = true
	p.err = errors.New("boom")
	_, err = Run(p, f.pp)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"pre", "post", "pre", "post"}, order)

	p.Dispose()
	_, err = Run(p, f.pp)
	assert.ErrorIs(t, err, ErrPassDisposed)
}

func TestLayerSet(t *testing.T) {
	f := newFixture(t, 0)
	world, hidden := f.scene.Layer(0), f.scene.Layer(1)

	s := newLayerSet()
	require.NoError(t, s.AddLayer(world))
	assert.ErrorIs(t, s.AddLayer(world), ErrLayerAlreadyAdded)
	assert.ErrorIs(t, s.RemoveLayer(hidden), ErrLayerNotAdded)
	assert.True(t, s.HasLayer(world))
	assert.False(t, s.HasLayer(hidden))

	require.NoError(t, s.AddLayer(hidden))
	hidden.SetRenderingEnabled(false)
	assert.Equal(t, []bool{true, false}, s.table(nil, f.scene.Layers()))

	f.scene.RemoveLayer(world)
	assert.Equal(t, []bool{false, false}, s.table(nil, f.scene.Layers()))

	s.ClearLayers()
	assert.False(t, s.HasLayer(hidden))
}
