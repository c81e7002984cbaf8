package shader

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/queue"
	"github.com/google/uuid"
)

// minConstantBufferSize is the smallest backing buffer created for a constant buffer binding.
const minConstantBufferSize = 16

// shader is the implementation of the Shader interface.
// It holds the compiled stage handle and the reflected resource bindings.
type shader struct {
	id           uuid.UUID
	key          string
	stage        command.ShaderStage
	source       string
	entryPoint   string
	handle       command.Handle
	device       backend.Device
	bindings     []*Binding
	byName       map[string]*Binding
	inputLayout  backend.InputLayoutDescriptor
	instanceSlot int
	disposed     atomic.Bool

	pp            PreProcessor
	bindingSizes  map[string]uint64
	entryOverride string
}

// Shader is one compiled WGSL stage together with its named resource bindings, reflected from
// the declarations of the stage's bind group (see StageGroup).
type Shader interface {
	// ID retrieves the unique identity of this shader.
	//
	// Returns:
	//   - uuid.UUID: the shader id
	ID() uuid.UUID

	// Key retrieves the name the shader was created with, used in logs and labels.
	//
	// Returns:
	//   - string: the shader's key
	Key() string

	// Stage retrieves the pipeline stage of the shader.
	//
	// Returns:
	//   - command.ShaderStage: the stage
	Stage() command.ShaderStage

	// Handle retrieves the backend handle of the compiled stage.
	//
	// Returns:
	//   - command.Handle: the shader handle
	Handle() command.Handle

	// Source retrieves the WGSL source after pre-processing.
	//
	// Returns:
	//   - string: the compiled source
	Source() string

	// EntryPoint retrieves the name of the stage's entry function.
	//
	// Returns:
	//   - string: the entry point
	EntryPoint() string

	// Binding retrieves a binding by its WGSL variable name.
	//
	// Parameters:
	//   - name: the variable name of the declaration
	//
	// Returns:
	//   - *Binding: the binding, or nil if the stage declares no such variable
	Binding(name string) *Binding

	// Bindings retrieves every binding of the stage ordered by slot.
	//
	// Returns:
	//   - []*Binding: the bindings
	Bindings() []*Binding

	// InputLayout retrieves the vertex input layout reflected from a vertex shader.
	// Fragment shaders return an empty descriptor.
	//
	// Returns:
	//   - backend.InputLayoutDescriptor: the vertex slots and attributes
	InputLayout() backend.InputLayoutDescriptor

	// InstanceSlot retrieves the vertex buffer slot that steps per instance.
	//
	// Returns:
	//   - uint32: the slot
	//   - bool: false if the shader has no per-instance input
	InstanceSlot() (uint32, bool)

	// QueueSwitch queues the commands that make this shader current for its stage.
	//
	// Parameters:
	//   - q: the queue to append to
	QueueSwitch(q queue.Queue)

	// QueueResourceUpdate queues a write of every constant buffer followed by a binding update
	// covering every slot of the stage.
	//
	// Parameters:
	//   - q: the queue to append to
	//   - pkg: overrides for this update; nil uses the binding defaults
	QueueResourceUpdate(q queue.Queue, pkg *ResourcePackage)

	// IsDisposed reports whether Dispose has been called.
	//
	// Returns:
	//   - bool: true once disposed
	IsDisposed() bool

	// Dispose releases the compiled stage and the constant buffers. Disposing twice is a no-op.
	Dispose()
}

var _ Shader = &shader{}

// NewShader compiles a WGSL stage and creates the backing buffers of its constant buffer bindings.
//
// Parameters:
//   - device: the backend device
//   - key: a name used in logs and resource labels
//   - stage: the pipeline stage
//   - source: the WGSL source
//   - options: functional options
//
// Returns:
//   - Shader: the compiled shader
//   - error: an error if pre-processing, reflection or compilation failed
func NewShader(device backend.Device, key string, stage command.ShaderStage, source string, options ...ShaderBuilderOption) (Shader, error) {
	if device == nil {
		panic("shader: NewShader requires a non-nil Device")
	}
	s := &shader{
		id:           uuid.New(),
		key:          key,
		stage:        stage,
		device:       device,
		byName:       make(map[string]*Binding),
		instanceSlot: -1,
		bindingSizes: make(map[string]uint64),
	}
	for _, opt := range options {
		opt(s)
	}

	if s.pp != nil {
		processed, err := s.pp.Process(source)
		if err != nil {
			return nil, fmt.Errorf("pre-process shader %q: %w", key, err)
		}
		source = processed
	}
	s.source = source

	s.entryPoint = s.entryOverride
	if s.entryPoint == "" {
		s.entryPoint = parseEntryPoint(source, stage)
	}
	if s.entryPoint == "" {
		return nil, fmt.Errorf("shader %q has no %s entry point", key, stage)
	}

	if stage == command.StageVertex {
		s.inputLayout, s.instanceSlot = parseVertexLayout(source)
		s.inputLayout.Label = key
	}

	handle, err := device.CreateShader(backend.ShaderDescriptor{
		Label:      key,
		Stage:      stage,
		Source:     source,
		EntryPoint: s.entryPoint,
	})
	if err != nil {
		return nil, fmt.Errorf("compile shader %q: %w", key, err)
	}
	s.handle = handle

	if err := s.createBindings(); err != nil {
		s.Dispose()
		return nil, err
	}
	return s, nil
}

// NewShaderFromFile reads a WGSL file and compiles it with NewShader.
//
// Parameters:
//   - device: the backend device
//   - key: a name used in logs and resource labels
//   - stage: the pipeline stage
//   - path: the file path of the WGSL source
//   - options: functional options
//
// Returns:
//   - Shader: the compiled shader
//   - error: an error if the file could not be read or the shader could not be compiled
func NewShaderFromFile(device backend.Device, key string, stage command.ShaderStage, path string, options ...ShaderBuilderOption) (Shader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shader source %q: %w", path, err)
	}
	return NewShader(device, key, stage, string(data), options...)
}

func (s *shader) createBindings() error {
	for _, pb := range parseBindings(s.source, StageGroup(s.stage)) {
		b := &Binding{Name: pb.name, Slot: pb.slot, Kind: pb.kind}
		if pb.kind == command.BindConstantBuffer {
			size := pb.size
			if override, ok := s.bindingSizes[pb.name]; ok {
				size = override
			}
			if size == 0 {
				return fmt.Errorf("shader %q: cannot size buffer binding %q", s.key, pb.name)
			}
			size = max(roundUpAlign(16, size), minConstantBufferSize)

			usage := backend.BufferUsageConstant
			if pb.storage {
				usage = backend.BufferUsageStorage
			}
			buf, err := s.device.CreateBuffer(backend.BufferDescriptor{
				Label: s.key + "." + pb.name,
				Size:  size,
				Usage: usage,
			})
			if err != nil {
				return fmt.Errorf("shader %q: create buffer for %q: %w", s.key, pb.name, err)
			}
			b.Size = size
			b.buffer = buf
		}
		s.bindings = append(s.bindings, b)
		s.byName[b.Name] = b
	}
	return nil
}

func (s *shader) ID() uuid.UUID {
	return s.id
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Stage() command.ShaderStage {
	return s.stage
}

func (s *shader) Handle() command.Handle {
	return s.handle
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) Binding(name string) *Binding {
	return s.byName[name]
}

func (s *shader) Bindings() []*Binding {
	return s.bindings
}

func (s *shader) InputLayout() backend.InputLayoutDescriptor {
	return s.inputLayout
}

func (s *shader) InstanceSlot() (uint32, bool) {
	if s.instanceSlot < 0 {
		return 0, false
	}
	return uint32(s.instanceSlot), true
}

func (s *shader) QueueSwitch(q queue.Queue) {
	if s.IsDisposed() {
		panic(fmt.Sprintf("shader: switch to disposed shader %q", s.key))
	}
	q.QueueCommand(command.NewSetShader(s.stage, s.handle))
}

func (s *shader) QueueResourceUpdate(q queue.Queue, pkg *ResourcePackage) {
	if s.IsDisposed() {
		panic(fmt.Sprintf("shader: resource update on disposed shader %q", s.key))
	}
	if len(s.bindings) == 0 {
		return
	}

	bindings := make([]command.ResourceBinding, 0, len(s.bindings))
	for _, b := range s.bindings {
		rb := command.ResourceBinding{Slot: b.Slot, Kind: b.Kind}
		if b.IsConstantBuffer() {
			var value []byte
			if pkg != nil {
				value = pkg.Value(b)
			} else {
				value = b.Value()
			}
			if len(value) > 0 {
				queue.BufferWrite(q, b.buffer, value)
			}
			rb.Handle = b.buffer
		} else if pkg != nil {
			rb.Handle = pkg.Resource(b)
		} else {
			rb.Handle = b.Bound()
		}
		bindings = append(bindings, rb)
	}
	queue.SetShaderResources(q, s.stage, s.handle, bindings)
}

func (s *shader) IsDisposed() bool {
	return s.disposed.Load()
}

func (s *shader) Dispose() {
	if s.disposed.Swap(true) {
		return
	}
	for _, b := range s.bindings {
		if b.buffer != 0 {
			s.device.Release(b.buffer)
		}
	}
	if s.handle != 0 {
		s.device.Release(s.handle)
	}
}

// ErrNoBinding is returned by Lookup when a shader does not declare a required binding.
var ErrNoBinding = errors.New("shader: binding not declared")

// Lookup returns the named binding of s or an error wrapping ErrNoBinding.
//
// Parameters:
//   - s: the shader to search
//   - name: the WGSL variable name
//
// Returns:
//   - *Binding: the binding
//   - error: an error wrapping ErrNoBinding if s does not declare name
func Lookup(s Shader, name string) (*Binding, error) {
	if b := s.Binding(name); b != nil {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %q in shader %q", ErrNoBinding, name, s.Key())
}
