package material

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/queue"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const texturedSource = GPUPropertiesSource + `
@group(1) @binding(0) var<uniform> MaterialProperties: MaterialPropertiesUniform;
@group(1) @binding(1) var DiffuseMap: texture_2d<f32>;
@group(1) @binding(2) var ShadowMap: texture_depth_2d;

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return MaterialProperties.base_color;
}
`

func newTestShader(t *testing.T, dev backend.Device) shader.Shader {
	t.Helper()
	fs, err := shader.NewShader(dev, "textured", command.StageFragment, texturedSource)
	require.NoError(t, err)
	return fs
}

func TestNewMaterialWritesProperties(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	fs := newTestShader(t, dev)

	m, err := NewMaterial(fs, WithBaseColor([4]float32{0.5, 0.25, 1, 1}), WithRoughness(0.3))
	require.NoError(t, err)
	assert.Equal(t, "textured", m.Name())

	value := m.Resources().Value(fs.Binding(PropertiesBindingName))
	require.Len(t, value, 32)
	assert.Equal(t, float32(0.25), math.Float32frombits(binary.LittleEndian.Uint32(value[4:])))
	assert.Equal(t, float32(0.3), math.Float32frombits(binary.LittleEndian.Uint32(value[20:])))

	m.SetSurface(1, 0)
	value = m.Resources().Value(fs.Binding(PropertiesBindingName))
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(value[16:])))
}

func TestMaterialTextures(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	fs := newTestShader(t, dev)

	_, err := NewMaterial(fs, WithTexture("Missing", 3))
	assert.ErrorIs(t, err, shader.ErrNoBinding)

	_, err = NewMaterial(fs, WithTexture(PropertiesBindingName, 3))
	assert.ErrorContains(t, err, "is a constant buffer")

	m, err := NewMaterial(fs, WithName("crate"), WithTexture("DiffuseMap", 11), WithZIndex(4))
	require.NoError(t, err)
	assert.Equal(t, "crate", m.Name())
	assert.Equal(t, 4, m.ZIndex())
	assert.Equal(t, command.Handle(11), m.Resources().Resource(fs.Binding("DiffuseMap")))
}

func TestQueueResourceUpdateAppliesExtraWithoutMutating(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	fs := newTestShader(t, dev)
	m, err := NewMaterial(fs, WithTexture("DiffuseMap", 11))
	require.NoError(t, err)

	extra := shader.NewResourcePackage()
	extra.SetResource(fs.Binding("ShadowMap"), 21)

	q := queue.NewImmediate(dev)
	m.QueueResourceUpdate(q, extra, nil)
	m.QueueResourceUpdate(q, nil, nil)
	require.NoError(t, q.Flush())

	updates := dev.Commands(command.SetShaderResources)
	require.Len(t, updates, 2)
	first := command.DecodeBindings(nil, updates[0].Payload)
	second := command.DecodeBindings(nil, updates[1].Payload)
	assert.Equal(t, command.Handle(11), first[1].Handle)
	assert.Equal(t, command.Handle(21), first[2].Handle)
	assert.Equal(t, command.Handle(0), second[2].Handle)

	assert.Equal(t, 2, dev.Count(command.BufferWrite))
	assert.Equal(t, command.Handle(0), m.Resources().Resource(fs.Binding("ShadowMap")))
}

func TestQueueResourceUpdateReusesScratch(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	fs := newTestShader(t, dev)
	crate, err := NewMaterial(fs, WithTexture("DiffuseMap", 11))
	require.NoError(t, err)
	barrel, err := NewMaterial(fs, WithTexture("DiffuseMap", 12))
	require.NoError(t, err)

	extra := shader.NewResourcePackage()
	extra.SetResource(fs.Binding("ShadowMap"), 21)
	scratch := shader.NewResourcePackage()

	q := queue.NewImmediate(dev)
	crate.QueueResourceUpdate(q, extra, scratch)
	barrel.QueueResourceUpdate(q, extra, scratch)
	require.NoError(t, q.Flush())

	updates := dev.Commands(command.SetShaderResources)
	require.Len(t, updates, 2)
	first := command.DecodeBindings(nil, updates[0].Payload)
	second := command.DecodeBindings(nil, updates[1].Payload)
	assert.Equal(t, command.Handle(11), first[1].Handle)
	assert.Equal(t, command.Handle(12), second[1].Handle)
	assert.Equal(t, command.Handle(21), second[2].Handle)
	assert.Equal(t, command.Handle(12), scratch.Resource(fs.Binding("DiffuseMap")))
}

func TestNewMaterialRejectsVertexShader(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	vs, err := shader.NewShader(dev, "vs", command.StageVertex, "@vertex fn main() -> @builtin(position) vec4<f32> { return vec4<f32>(0.0); }")
	require.NoError(t, err)
	assert.PanicsWithValue(t, `material: shader "vs" is not a fragment shader`, func() { _, _ = NewMaterial(vs) })

	m, err := NewMaterial(newTestShader(t, dev))
	require.NoError(t, err)
	m.Dispose()
	m.Dispose()
	assert.True(t, m.IsDisposed())
	assert.False(t, m.Shader().IsDisposed())
}
