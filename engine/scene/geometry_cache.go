package scene

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// ModelRange locates the mesh of one model inside the shared buffers of a geometry cache.
type ModelRange struct {
	BaseVertex     uint32
	IndexStart     uint32
	IndexCount     uint32
	BoundingRadius float32
}

// geometryCache is the implementation of the GeometryCache interface.
type geometryCache struct {
	id     uuid.UUID
	label  string
	device backend.Device

	vertexBuffer command.Handle
	indexBuffer  command.Handle
	models       []ModelRange

	// guard is shared with the owning scene: mutations take the write lock, frozen frames hold the read lock.
	guard      *sync.RWMutex
	buckets    []*MaterialBucket
	bucketByID map[uuid.UUID]int

	layoutMu sync.Mutex
	layouts  map[command.Handle]command.Handle

	disposed atomic.Bool
}

// GeometryCache packs the meshes of a fixed set of models into one vertex buffer and one index
// buffer and holds the per-material instance records drawn from them.
//
// The model set is immutable after construction. Instance records are mutated through
// AddInstance, SetTransform and DisposeInstance, which block while the owning scene is frozen.
// Buckets returns the live records without locking and must only be read while the scene is frozen.
type GeometryCache interface {
	// ID retrieves the unique identity of the cache.
	//
	// Returns:
	//   - uuid.UUID: the cache id
	ID() uuid.UUID

	// Label retrieves the debug label of the cache.
	//
	// Returns:
	//   - string: the label
	Label() string

	// VertexBuffer retrieves the handle of the shared vertex buffer.
	//
	// Returns:
	//   - command.Handle: the vertex buffer
	VertexBuffer() command.Handle

	// IndexBuffer retrieves the handle of the shared 32-bit index buffer.
	//
	// Returns:
	//   - command.Handle: the index buffer
	IndexBuffer() command.Handle

	// VertexStride retrieves the byte size of one vertex.
	//
	// Returns:
	//   - uint32: the vertex stride
	VertexStride() uint32

	// Models retrieves the buffer ranges of every model, indexed by model index.
	//
	// Returns:
	//   - []ModelRange: the model ranges
	Models() []ModelRange

	// InputLayout retrieves the input layout matching a vertex shader, creating it on first use.
	// Safe for concurrent use.
	//
	// Parameters:
	//   - vs: the vertex shader
	//
	// Returns:
	//   - command.Handle: the input layout handle
	//   - error: an error if the backend rejected the layout
	InputLayout(vs shader.Shader) (command.Handle, error)

	// AddInstance allocates an instance record in the bucket of a material.
	//
	// Parameters:
	//   - mat: the material the instance is drawn with
	//   - modelIndex: index into Models
	//   - layer: the scene layer of the instance
	//   - transform: the model-to-world matrix
	//
	// Returns:
	//   - InstanceHandle: the handle of the new instance
	//   - error: ErrModelIndex or ErrMaterialDisposed
	AddInstance(mat material.Material, modelIndex int, layer *Layer, transform mgl32.Mat4) (InstanceHandle, error)

	// Transform retrieves the model-to-world matrix of an instance.
	//
	// Parameters:
	//   - h: the instance handle
	//
	// Returns:
	//   - mgl32.Mat4: the transform
	//   - error: ErrInvalidInstance if the handle does not reference a live instance
	Transform(h InstanceHandle) (mgl32.Mat4, error)

	// SetTransform replaces the model-to-world matrix of an instance.
	//
	// Parameters:
	//   - h: the instance handle
	//   - transform: the new matrix
	//
	// Returns:
	//   - error: ErrInvalidInstance if the handle does not reference a live instance
	SetTransform(h InstanceHandle, transform mgl32.Mat4) error

	// DisposeInstance releases an instance record. Its slot is reused by a later AddInstance.
	//
	// Parameters:
	//   - h: the instance handle
	//
	// Returns:
	//   - error: ErrInvalidInstance if the handle does not reference a live instance
	DisposeInstance(h InstanceHandle) error

	// InstanceCount retrieves the number of live instances across every bucket.
	//
	// Returns:
	//   - int: the live instance count
	InstanceCount() int

	// Buckets retrieves the material buckets in creation order. The slice and the records are
	// owned by the cache; read them only while the scene is frozen.
	//
	// Returns:
	//   - []*MaterialBucket: the buckets
	Buckets() []*MaterialBucket

	// IsDisposed reports whether Dispose has been called.
	IsDisposed() bool

	// Dispose releases the vertex and index buffers and every cached input layout.
	// Disposing twice is a no-op.
	Dispose()
}

var _ GeometryCache = &geometryCache{}

// NewGeometryCache uploads the meshes of models into shared buffers.
// Panics if device is nil or no model is given.
//
// Parameters:
//   - device: the backend that owns the buffers
//   - models: the models, addressed by their index in this slice
//   - options: variadic list of GeometryCacheBuilderOption functions
//
// Returns:
//   - GeometryCache: the new cache
//   - error: an error if a buffer could not be created or written
func NewGeometryCache(device backend.Device, models []model.Model, options ...GeometryCacheBuilderOption) (GeometryCache, error) {
	if device == nil {
		panic("scene: NewGeometryCache requires a device")
	}
	if len(models) == 0 {
		panic("scene: NewGeometryCache requires at least one model")
	}

	gc := &geometryCache{
		id:         uuid.New(),
		device:     device,
		models:     make([]ModelRange, 0, len(models)),
		bucketByID: make(map[uuid.UUID]int),
		layouts:    make(map[command.Handle]command.Handle),
	}
	for _, opt := range options {
		opt(gc)
	}
	if gc.guard == nil {
		gc.guard = &sync.RWMutex{}
	}
	if gc.label == "" {
		gc.label = "geometry_cache_" + gc.id.String()[:8]
	}

	var vertexData []byte
	var indexData []byte
	var baseVertex, indexStart uint32
	for _, m := range models {
		gc.models = append(gc.models, ModelRange{
			BaseVertex:     baseVertex,
			IndexStart:     indexStart,
			IndexCount:     uint32(m.IndexCount()),
			BoundingRadius: m.BoundingRadius(),
		})
		vertexData = append(vertexData, m.VertexData()...)
		for _, idx := range m.Indices() {
			indexData = appendUint32(indexData, idx)
		}
		baseVertex += uint32(len(m.Vertices()))
		indexStart += uint32(m.IndexCount())
	}

	var err error
	if gc.vertexBuffer, err = gc.upload(".vertices", vertexData, backend.BufferUsageVertex); err != nil {
		return nil, err
	}
	if gc.indexBuffer, err = gc.upload(".indices", indexData, backend.BufferUsageIndex); err != nil {
		device.Release(gc.vertexBuffer)
		return nil, err
	}
	return gc, nil
}

func appendUint32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (gc *geometryCache) upload(suffix string, data []byte, usage backend.BufferUsage) (command.Handle, error) {
	size := max(uint64(len(data)), 4)
	h, err := gc.device.CreateBuffer(backend.BufferDescriptor{Label: gc.label + suffix, Size: size, Usage: usage})
	if err != nil {
		return 0, fmt.Errorf("create %s buffer: %w", gc.label+suffix, err)
	}
	if len(data) > 0 {
		if err := gc.device.WriteBuffer(h, 0, data); err != nil {
			gc.device.Release(h)
			return 0, fmt.Errorf("write %s buffer: %w", gc.label+suffix, err)
		}
	}
	return h, nil
}

func (gc *geometryCache) ID() uuid.UUID {
	return gc.id
}

func (gc *geometryCache) Label() string {
	return gc.label
}

func (gc *geometryCache) VertexBuffer() command.Handle {
	return gc.vertexBuffer
}

func (gc *geometryCache) IndexBuffer() command.Handle {
	return gc.indexBuffer
}

func (gc *geometryCache) VertexStride() uint32 {
	return model.GPUVertexStride
}

func (gc *geometryCache) Models() []ModelRange {
	return gc.models
}

func (gc *geometryCache) InputLayout(vs shader.Shader) (command.Handle, error) {
	gc.layoutMu.Lock()
	defer gc.layoutMu.Unlock()

	if h, ok := gc.layouts[vs.Handle()]; ok {
		return h, nil
	}
	desc := vs.InputLayout()
	desc.Label = gc.label + "." + vs.Key()
	h, err := gc.device.CreateInputLayout(vs.Handle(), desc)
	if err != nil {
		return 0, fmt.Errorf("create input layout for %q: %w", vs.Key(), err)
	}
	gc.layouts[vs.Handle()] = h
	return h, nil
}

func (gc *geometryCache) AddInstance(mat material.Material, modelIndex int, layer *Layer, transform mgl32.Mat4) (InstanceHandle, error) {
	if mat == nil {
		panic("scene: AddInstance requires a material")
	}
	if modelIndex < 0 || modelIndex >= len(gc.models) {
		return InvalidInstance, fmt.Errorf("%w: %d of %d", ErrModelIndex, modelIndex, len(gc.models))
	}
	if mat.IsDisposed() {
		return InvalidInstance, ErrMaterialDisposed
	}
	layerIndex := 0
	if layer != nil {
		layerIndex = layer.Index()
	}

	gc.guard.Lock()
	defer gc.guard.Unlock()

	bi, ok := gc.bucketByID[mat.ID()]
	if !ok {
		bi = len(gc.buckets)
		gc.buckets = append(gc.buckets, newMaterialBucket(mat))
		gc.bucketByID[mat.ID()] = bi
	}
	b := gc.buckets[bi]
	slot := b.allocate()
	b.Instances[slot] = InstanceRecord{
		Transform:  transform,
		InUse:      true,
		LayerIndex: layerIndex,
		ModelIndex: modelIndex,
	}
	return InstanceHandle{bucket: bi, slot: slot}, nil
}

// record returns the live record behind h. Caller must hold guard.
func (gc *geometryCache) record(h InstanceHandle) (*InstanceRecord, error) {
	if h.bucket < 0 || h.bucket >= len(gc.buckets) {
		return nil, ErrInvalidInstance
	}
	b := gc.buckets[h.bucket]
	if h.slot < 0 || h.slot >= len(b.Instances) || !b.Instances[h.slot].InUse {
		return nil, ErrInvalidInstance
	}
	return &b.Instances[h.slot], nil
}

func (gc *geometryCache) Transform(h InstanceHandle) (mgl32.Mat4, error) {
	gc.guard.RLock()
	defer gc.guard.RUnlock()
	rec, err := gc.record(h)
	if err != nil {
		return mgl32.Mat4{}, err
	}
	return rec.Transform, nil
}

func (gc *geometryCache) SetTransform(h InstanceHandle, transform mgl32.Mat4) error {
	gc.guard.Lock()
	defer gc.guard.Unlock()
	rec, err := gc.record(h)
	if err != nil {
		return err
	}
	rec.Transform = transform
	return nil
}

func (gc *geometryCache) DisposeInstance(h InstanceHandle) error {
	gc.guard.Lock()
	defer gc.guard.Unlock()
	rec, err := gc.record(h)
	if err != nil {
		return err
	}
	rec.InUse = false
	return nil
}

func (gc *geometryCache) InstanceCount() int {
	gc.guard.RLock()
	defer gc.guard.RUnlock()
	n := 0
	for _, b := range gc.buckets {
		n += b.liveCount()
	}
	return n
}

func (gc *geometryCache) Buckets() []*MaterialBucket {
	return gc.buckets
}

func (gc *geometryCache) IsDisposed() bool {
	return gc.disposed.Load()
}

func (gc *geometryCache) Dispose() {
	if gc.disposed.Swap(true) {
		return
	}
	gc.layoutMu.Lock()
	for _, h := range gc.layouts {
		gc.device.Release(h)
	}
	clear(gc.layouts)
	gc.layoutMu.Unlock()

	gc.device.Release(gc.vertexBuffer)
	gc.device.Release(gc.indexBuffer)
}
