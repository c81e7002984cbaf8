package shader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVertexSource = `
struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) normal: vec3<f32>,
    @location(2) uv: vec2<f32>,
};

struct InstanceInput {
    @location(3) row0: vec4<f32>,
    @location(4) row1: vec4<f32>,
    @location(5) row2: vec4<f32>,
    @location(6) row3: vec4<f32>,
};

struct VertexOutput {
    @builtin(position) clip: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

struct ViewProjUniform {
    view_proj: mat4x4<f32>,
    shadow_view_proj: mat4x4<f32>,
};

@group(0) @binding(0) var<uniform> ViewProj: ViewProjUniform;

@vertex
fn vs_main(v: VertexInput, i: InstanceInput) -> VertexOutput {
    var out: VertexOutput;
    out.clip = ViewProj.view_proj * vec4<f32>(v.position, 1.0);
    out.uv = v.uv;
    return out;
}
`

const testFragmentSource = `
struct MaterialUniform {
    tint: vec3<f32>,
    roughness: f32,
    emissive: f32,
};

// @group(1) @binding(9) var Ignored: texture_2d<f32>;
@group(1) @binding(2) var DiffuseSampler: sampler;
@group(1) @binding(0) var<uniform> Material: MaterialUniform;
@group(1) @binding(1) var DiffuseMap: texture_2d<f32>;
@group(0) @binding(0) var<uniform> NotThisStage: vec4<f32>;

@fragment
fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    return textureSample(DiffuseMap, DiffuseSampler, uv) * vec4<f32>(Material.tint, 1.0);
}
`

func TestParseBindingsCollectsStageGroupOnly(t *testing.T) {
	bindings := parseBindings(testFragmentSource, StageGroup(command.StageFragment))
	require.Len(t, bindings, 3)

	assert.Equal(t, "Material", bindings[0].name)
	assert.Equal(t, uint32(0), bindings[0].slot)
	assert.Equal(t, command.BindConstantBuffer, bindings[0].kind)
	// vec3 + f32 packs into 16 bytes, the trailing f32 pads the struct to its 16 byte alignment.
	assert.Equal(t, uint64(32), bindings[0].size)

	assert.Equal(t, "DiffuseMap", bindings[1].name)
	assert.Equal(t, command.BindShaderResource, bindings[1].kind)
	assert.Equal(t, "DiffuseSampler", bindings[2].name)
	assert.Equal(t, command.BindSampler, bindings[2].kind)
}

func TestParseBindingsSizesFixedArrays(t *testing.T) {
	src := `
struct LightProperties {
    position: vec3<f32>,
    radius: f32,
    color: vec3<f32>,
    intensity: f32,
};
@group(1) @binding(0) var<uniform> LightBuffer: array<LightProperties, 128>;
@group(1) @binding(1) var<storage, read> Extra: array<vec4<f32>>;
`
	bindings := parseBindings(src, 1)
	require.Len(t, bindings, 2)
	assert.Equal(t, uint64(128*32), bindings[0].size)
	assert.False(t, bindings[0].storage)
	assert.True(t, bindings[1].storage)
	assert.Equal(t, uint64(16), bindings[1].size)
}

func TestParseVertexLayout(t *testing.T) {
	desc, instanceSlot := parseVertexLayout(testVertexSource)
	require.Len(t, desc.Slots, 2)
	assert.Equal(t, backend.VertexSlot{Stride: 32, PerInstance: false}, desc.Slots[0])
	assert.Equal(t, backend.VertexSlot{Stride: 64, PerInstance: true}, desc.Slots[1])
	assert.Equal(t, 1, instanceSlot)

	require.Len(t, desc.Attributes, 7)
	assert.Equal(t, backend.VertexAttribute{Name: "uv", Format: backend.VertexFloat32x2, Slot: 0, Offset: 24, Location: 2}, desc.Attributes[2])
	assert.Equal(t, backend.VertexAttribute{Name: "row3", Format: backend.VertexFloat32x4, Slot: 1, Offset: 48, Location: 6}, desc.Attributes[6])
}

func TestParseEntryPoint(t *testing.T) {
	assert.Equal(t, "vs_main", parseEntryPoint(testVertexSource, command.StageVertex))
	assert.Equal(t, "fs_main", parseEntryPoint(testFragmentSource, command.StageFragment))
	assert.Equal(t, "", parseEntryPoint(testFragmentSource, command.StageVertex))
}

func TestPreProcessor(t *testing.T) {
	pp := NewPreProcessor()
	pp.RegisterInclude("light", "struct Light { color: vec4<f32>, };")
	pp.RegisterConstant("MAX_LIGHTS", 128)

	out, err := pp.Process("// @oxy:include light\n// @oxy:const MAX_LIGHTS\nfn f() {}")
	require.NoError(t, err)
	assert.Equal(t, "struct Light { color: vec4<f32>, };\nconst MAX_LIGHTS: u32 = 128u;\nfn f() {}", out)

	_, err = pp.Process("fn f() {}\n// @oxy:include missing")
	assert.EqualError(t, err, `line 2: unknown @oxy:include key "missing"`)

	_, err = pp.Process("// @oxy:const NOPE")
	assert.EqualError(t, err, `line 1: unknown @oxy:const name "NOPE"`)
}

func TestNewShaderCreatesBindings(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	fs, err := NewShader(dev, "material", command.StageFragment, testFragmentSource)
	require.NoError(t, err)

	assert.Equal(t, "fs_main", fs.EntryPoint())
	assert.Equal(t, "shader:fragment", dev.ResourceKind(fs.Handle()))
	require.Len(t, fs.Bindings(), 3)

	mat := fs.Binding("Material")
	require.NotNil(t, mat)
	assert.True(t, mat.IsConstantBuffer())
	assert.Equal(t, uint64(32), mat.Size)
	assert.Equal(t, "buffer", dev.ResourceKind(mat.Buffer()))

	assert.Nil(t, fs.Binding("NotThisStage"))
	_, err = Lookup(fs, "NotThisStage")
	assert.ErrorIs(t, err, ErrNoBinding)

	_, ok := fs.InstanceSlot()
	assert.False(t, ok)
}

func TestNewShaderVertexLayout(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	vs, err := NewShader(dev, "geometry", command.StageVertex, testVertexSource)
	require.NoError(t, err)

	slot, ok := vs.InstanceSlot()
	require.True(t, ok)
	assert.Equal(t, uint32(1), slot)
	assert.Equal(t, "geometry", vs.InputLayout().Label)
	assert.Equal(t, uint64(128), vs.Binding("ViewProj").Size)
}

func TestNewShaderErrors(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)

	_, err := NewShader(dev, "none", command.StageVertex, testFragmentSource)
	assert.ErrorContains(t, err, `shader "none" has no vertex entry point`)

	runtime := `
@group(1) @binding(0) var<storage, read> Items: array<Unknown>;
@fragment fn main() -> @location(0) vec4<f32> { return vec4<f32>(0.0); }
`
	_, err = NewShader(dev, "runtime", command.StageFragment, runtime)
	assert.ErrorContains(t, err, `cannot size buffer binding "Items"`)

	s, err := NewShader(dev, "runtime", command.StageFragment, runtime, WithBindingSize("Items", 100))
	require.NoError(t, err)
	assert.Equal(t, uint64(112), s.Binding("Items").Size)

	_, err = NewShaderFromFile(dev, "missing", command.StageFragment, filepath.Join(t.TempDir(), "missing.wgsl"))
	assert.ErrorContains(t, err, "read shader source")
}

func TestNewShaderFromFileWithPreProcessor(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	path := filepath.Join(t.TempDir(), "tinted.wgsl")
	require.NoError(t, os.WriteFile(path, []byte("// @oxy:include material\n@fragment\nfn tinted() -> @location(0) vec4<f32> { return Tint.color; }\n"), 0o644))

	pp := NewPreProcessor()
	pp.RegisterInclude("material", "struct TintUniform { color: vec4<f32>, };\n@group(1) @binding(0) var<uniform> Tint: TintUniform;")

	s, err := NewShaderFromFile(dev, "tinted", command.StageFragment, path, WithPreProcessor(pp))
	require.NoError(t, err)
	assert.Equal(t, "tinted", s.EntryPoint())
	assert.Equal(t, uint64(16), s.Binding("Tint").Size)

	s, err = NewShaderFromFile(dev, "tinted", command.StageFragment, path, WithPreProcessor(pp), WithEntryPoint("other"))
	require.NoError(t, err)
	assert.Equal(t, "other", s.EntryPoint())
}

func TestBindingValues(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	fs, err := NewShader(dev, "material", command.StageFragment, testFragmentSource)
	require.NoError(t, err)

	mat := fs.Binding("Material")
	assert.NoError(t, mat.SetValue(make([]byte, 32)))
	assert.EqualError(t, mat.SetValue(make([]byte, 33)), `shader: value of 33 bytes exceeds binding "Material" of 32 bytes`)
	assert.EqualError(t, fs.Binding("DiffuseMap").SetValue([]byte{1}), `shader: binding "DiffuseMap" is not a constant buffer`)
	assert.PanicsWithValue(t, `shader: Bind on constant buffer binding "Material"`, func() { mat.Bind(7) })

	data := []byte{1, 2, 3}
	require.NoError(t, mat.SetValue(data))
	data[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, mat.Value())
}

func TestResourcePackageFallsBackToDefaults(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	fs, err := NewShader(dev, "material", command.StageFragment, testFragmentSource)
	require.NoError(t, err)
	mat, view := fs.Binding("Material"), fs.Binding("DiffuseMap")

	require.NoError(t, mat.SetValue([]byte{1}))
	view.Bind(5)

	pkg := NewResourcePackage()
	assert.Equal(t, []byte{1}, pkg.Value(mat))
	assert.Equal(t, command.Handle(5), pkg.Resource(view))

	require.NoError(t, pkg.SetValue(mat, []byte{2}))
	pkg.SetResource(view, 0)
	assert.Equal(t, []byte{2}, pkg.Value(mat))
	assert.Equal(t, command.Handle(0), pkg.Resource(view))

	clone := pkg.Clone()
	require.NoError(t, pkg.SetValue(mat, []byte{3}))
	assert.Equal(t, []byte{2}, clone.Value(mat))

	assert.Panics(t, func() { pkg.SetResource(mat, 1) })
	assert.Panics(t, func() { pkg.SetResource(nil, 1) })
}

func TestResourcePackageMergeReusesStorage(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	fs, err := NewShader(dev, "material", command.StageFragment, testFragmentSource)
	require.NoError(t, err)
	mat, view := fs.Binding("Material"), fs.Binding("DiffuseMap")

	base := NewResourcePackage()
	require.NoError(t, base.SetValue(mat, []byte{1, 2}))
	base.SetResource(view, 4)
	top := NewResourcePackage()
	top.SetResource(view, 8)

	scratch := NewResourcePackage()
	scratch.Merge(base, top)
	assert.Equal(t, []byte{1, 2}, scratch.Value(mat))
	assert.Equal(t, command.Handle(8), scratch.Resource(view))

	// Overrides absent from both sources do not survive the next merge.
	scratch.Merge(nil, top)
	assert.Equal(t, mat.Value(), scratch.Value(mat))
	assert.Equal(t, command.Handle(8), scratch.Resource(view))
	scratch.Merge(base, nil)
	assert.Equal(t, command.Handle(4), scratch.Resource(view))

	allocs := testing.AllocsPerRun(50, func() { scratch.Merge(base, top) })
	assert.Zero(t, allocs)
	assert.Equal(t, []byte{1, 2}, base.Value(mat), "sources are left untouched")

	assert.Panics(t, func() { scratch.Merge(scratch, top) })
}

func TestQueueResourceUpdate(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	fs, err := NewShader(dev, "material", command.StageFragment, testFragmentSource)
	require.NoError(t, err)
	mat, view, sampler := fs.Binding("Material"), fs.Binding("DiffuseMap"), fs.Binding("DiffuseSampler")
	view.Bind(40)
	sampler.Bind(41)

	q := queue.NewImmediate(dev)

	// An empty value writes nothing but still binds the buffer.
	fs.QueueResourceUpdate(q, nil)
	require.NoError(t, q.Flush())
	assert.Equal(t, 0, dev.Count(command.BufferWrite))
	updates := dev.Commands(command.SetShaderResources)
	require.Len(t, updates, 1)
	assert.Equal(t, []command.ResourceBinding{
		{Slot: 0, Kind: command.BindConstantBuffer, Handle: mat.Buffer()},
		{Slot: 1, Kind: command.BindShaderResource, Handle: 40},
		{Slot: 2, Kind: command.BindSampler, Handle: 41},
	}, command.DecodeBindings(nil, updates[0].Payload))

	dev.ResetLog()
	pkg := NewResourcePackage()
	require.NoError(t, pkg.SetValue(mat, []byte{7, 7, 7, 7}))
	pkg.SetResource(view, 99)
	fs.QueueSwitch(q)
	fs.QueueResourceUpdate(q, pkg)
	require.NoError(t, q.Flush())

	ops := dev.Operations()
	require.Len(t, ops, 3)
	assert.Equal(t, command.NewSetShader(command.StageFragment, fs.Handle()), ops[0].Command)
	assert.Equal(t, command.BufferWrite, ops[1].Command.Instruction)
	assert.Equal(t, []byte{7, 7, 7, 7}, ops[1].Payload)
	assert.Equal(t, command.Handle(99), command.DecodeBindings(nil, ops[2].Payload)[1].Handle)
	assert.Equal(t, []byte{7, 7, 7, 7}, dev.BufferData(mat.Buffer())[:4])
}

func TestDisposeReleasesOnce(t *testing.T) {
	dev := backend.NewRecordingDevice(64, 64)
	before := dev.LiveResources()
	fs, err := NewShader(dev, "material", command.StageFragment, testFragmentSource)
	require.NoError(t, err)
	assert.Equal(t, before+2, dev.LiveResources())

	fs.Dispose()
	fs.Dispose()
	assert.True(t, fs.IsDisposed())
	assert.Equal(t, before, dev.LiveResources())
	assert.Panics(t, func() { fs.QueueSwitch(queue.NewImmediate(dev)) })
}
