package material

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/queue"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/google/uuid"
)

// material is the implementation of the Material interface.
type material struct {
	id        uuid.UUID
	name      string
	shader    shader.Shader
	resources *shader.ResourcePackage
	textures  map[string]command.Handle

	mu        sync.RWMutex
	baseColor [4]float32
	metallic  float32
	roughness float32
	zIndex    int

	disposed atomic.Bool
}

// Material pairs a fragment shader with the resource values it is drawn with.
//
// Instances in a geometry cache are bucketed by material, and every bucket costs one resource
// update per frame. Surface properties are written into the shader's MaterialProperties binding
// when the shader declares one; textures and samplers are bound by binding name.
type Material interface {
	// ID retrieves the unique identity of the material, used as the bucket key of a geometry cache.
	//
	// Returns:
	//   - uuid.UUID: the material id
	ID() uuid.UUID

	// Name retrieves the material identifier.
	//
	// Returns:
	//   - string: the name of the material
	Name() string

	// Shader retrieves the fragment shader the material draws with.
	//
	// Returns:
	//   - shader.Shader: the fragment shader
	Shader() shader.Shader

	// Resources retrieves the resource package applied on every resource update.
	//
	// Returns:
	//   - *shader.ResourcePackage: the material's resource overrides
	Resources() *shader.ResourcePackage

	// BaseColor retrieves the albedo/diffuse RGBA color of the material.
	//
	// Returns:
	//   - [4]float32: the base color as RGBA values
	BaseColor() [4]float32

	// Metallic retrieves the metallic factor of the material.
	//
	// Returns:
	//   - float32: the metallic factor
	Metallic() float32

	// Roughness retrieves the roughness factor of the material.
	//
	// Returns:
	//   - float32: the roughness factor
	Roughness() float32

	// ZIndex retrieves the draw order of the material in the HUD pass. Lower values draw first.
	//
	// Returns:
	//   - int: the z-index
	ZIndex() int

	// SetBaseColor sets the albedo color and rewrites the properties binding.
	//
	// Parameters:
	//   - color: the base color as RGBA values
	SetBaseColor(color [4]float32)

	// SetSurface sets the metallic and roughness factors and rewrites the properties binding.
	//
	// Parameters:
	//   - metallic: the metallic factor (0.0 = dielectric, 1.0 = metal)
	//   - roughness: the roughness factor (0.0 = smooth, 1.0 = rough)
	SetSurface(metallic, roughness float32)

	// SetZIndex sets the HUD draw order of the material.
	//
	// Parameters:
	//   - z: the z-index
	SetZIndex(z int)

	// SetTexture binds a view or sampler to a named binding of the material's shader.
	//
	// Parameters:
	//   - binding: the WGSL variable name
	//   - h: the view or sampler handle; zero unbinds
	//
	// Returns:
	//   - error: an error if the shader does not declare the binding or it is a constant buffer
	SetTexture(binding string, h command.Handle) error

	// QueueResourceUpdate queues the shader resource update for this material.
	//
	// Parameters:
	//   - q: the queue to append to
	//   - extra: per-pass overrides applied on top of the material's resources, may be nil
	//   - scratch: a caller-owned package that receives the merged overrides when extra is set;
	//     nil allocates a fresh one
	QueueResourceUpdate(q queue.Queue, extra, scratch *shader.ResourcePackage)

	// IsDisposed reports whether Dispose has been called.
	//
	// Returns:
	//   - bool: true once disposed
	IsDisposed() bool

	// Dispose marks the material unusable. The shader is shared between materials and is not disposed.
	Dispose()
}

var _ Material = &material{}

// NewMaterial creates a new Material instance drawing with the given fragment shader.
//
// Parameters:
//   - fs: the fragment shader
//   - options: variadic list of MaterialBuilderOption functions to configure the material
//
// Returns:
//   - Material: a new Material instance
//   - error: an error if a texture option names a binding the shader does not declare
func NewMaterial(fs shader.Shader, options ...MaterialBuilderOption) (Material, error) {
	if fs == nil {
		panic("material: NewMaterial requires a non-nil Shader")
	}
	if fs.Stage() != command.StageFragment {
		panic(fmt.Sprintf("material: shader %q is not a fragment shader", fs.Key()))
	}
	m := &material{
		id:        uuid.New(),
		shader:    fs,
		resources: shader.NewResourcePackage(),
		textures:  make(map[string]command.Handle),
		baseColor: [4]float32{1, 1, 1, 1},
		metallic:  0.0,
		roughness: 1.0,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.name == "" {
		m.name = fs.Key()
	}

	for name, h := range m.textures {
		if err := m.SetTexture(name, h); err != nil {
			return nil, err
		}
	}
	m.writeProperties()
	return m, nil
}

func (m *material) ID() uuid.UUID {
	return m.id
}

func (m *material) Name() string {
	return m.name
}

func (m *material) Shader() shader.Shader {
	return m.shader
}

func (m *material) Resources() *shader.ResourcePackage {
	return m.resources
}

func (m *material) BaseColor() [4]float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baseColor
}

func (m *material) Metallic() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metallic
}

func (m *material) Roughness() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roughness
}

func (m *material) ZIndex() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.zIndex
}

func (m *material) SetBaseColor(color [4]float32) {
	m.mu.Lock()
	m.baseColor = color
	m.mu.Unlock()
	m.writeProperties()
}

func (m *material) SetSurface(metallic, roughness float32) {
	m.mu.Lock()
	m.metallic = metallic
	m.roughness = roughness
	m.mu.Unlock()
	m.writeProperties()
}

func (m *material) SetZIndex(z int) {
	m.mu.Lock()
	m.zIndex = z
	m.mu.Unlock()
}

func (m *material) SetTexture(binding string, h command.Handle) error {
	b, err := shader.Lookup(m.shader, binding)
	if err != nil {
		return fmt.Errorf("material %q: %w", m.name, err)
	}
	if b.IsConstantBuffer() {
		return fmt.Errorf("material %q: binding %q is a constant buffer", m.name, binding)
	}
	m.resources.SetResource(b, h)
	return nil
}

// writeProperties packs the surface properties into the shader's properties binding, if any.
func (m *material) writeProperties() {
	b := m.shader.Binding(PropertiesBindingName)
	if b == nil || !b.IsConstantBuffer() {
		return
	}
	m.mu.RLock()
	props := GPUProperties{BaseColor: m.baseColor, Metallic: m.metallic, Roughness: m.roughness}
	m.mu.RUnlock()

	data := props.Marshal()
	if uint64(len(data)) > b.Size {
		data = data[:b.Size]
	}
	// Size is checked above, so the only failure left is a non-buffer binding.
	_ = m.resources.SetValue(b, data)
}

func (m *material) QueueResourceUpdate(q queue.Queue, extra, scratch *shader.ResourcePackage) {
	pkg := m.resources
	if extra != nil {
		if scratch == nil {
			scratch = shader.NewResourcePackage()
		}
		scratch.Merge(m.resources, extra)
		pkg = scratch
	}
	m.shader.QueueResourceUpdate(q, pkg)
}

func (m *material) IsDisposed() bool {
	return m.disposed.Load()
}

func (m *material) Dispose() {
	m.disposed.Store(true)
}
