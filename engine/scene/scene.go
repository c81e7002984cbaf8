package scene

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
)

// Scene owns the geometry caches and layers rendered by the passes.
//
// The frame lock separates the game goroutine, which mutates instances, from the renderer, which
// reads them from many workers at once. Freeze acquires the read side for the duration of a frame;
// every instance mutation acquires the write side and therefore waits for Thaw. Layer and cache
// tables are published copy-on-write, so their accessors never block.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Device returns the backend the scene's caches allocate from.
	Device() backend.Device

	// CreateLayer appends a new layer with rendering enabled.
	//
	// Parameters:
	//   - name: the layer identifier
	//
	// Returns:
	//   - *Layer: the new layer
	CreateLayer(name string) *Layer

	// RemoveLayer removes a layer. Instances on it are no longer drawn; its index is never reused.
	//
	// Parameters:
	//   - l: the layer to remove
	RemoveLayer(l *Layer)

	// Layer returns the layer with the given index, or nil if it does not exist.
	//
	// Parameters:
	//   - index: the layer index
	//
	// Returns:
	//   - *Layer: the layer or nil
	Layer(index int) *Layer

	// Layers returns the layer table indexed by layer index. Removed layers are nil.
	//
	// Returns:
	//   - []*Layer: a snapshot of the layer table; do not modify
	Layers() []*Layer

	// CreateGeometryCache uploads a set of models into a new cache owned by the scene.
	//
	// Parameters:
	//   - models: the models of the cache
	//   - options: cache options
	//
	// Returns:
	//   - GeometryCache: the new cache
	//   - error: an error if the backend rejected a buffer
	CreateGeometryCache(models []model.Model, options ...GeometryCacheBuilderOption) (GeometryCache, error)

	// RemoveGeometryCache detaches and disposes a cache.
	//
	// Parameters:
	//   - gc: the cache to remove
	RemoveGeometryCache(gc GeometryCache)

	// GeometryCaches returns the active caches in creation order.
	//
	// Returns:
	//   - []GeometryCache: a snapshot of the cache table; do not modify
	GeometryCaches() []GeometryCache

	// Freeze blocks until no mutation is in progress and holds off new mutations until Thaw.
	// Freeze and Thaw calls must be paired.
	Freeze()

	// Thaw releases one Freeze.
	Thaw()

	// Frozen reports whether at least one Freeze is held.
	Frozen() bool

	// Dispose disposes every cache. Disposing twice is a no-op.
	Dispose()
}

type scene struct {
	name   string
	device backend.Device
	log    logger.Logger

	guard  sync.RWMutex
	frozen atomic.Int32

	// mu serializes table writers; readers load the published snapshots.
	mu     sync.Mutex
	layers atomic.Pointer[[]*Layer]
	caches atomic.Pointer[[]GeometryCache]

	initialLayers []string
	disposed      atomic.Bool
}

var _ Scene = &scene{}

// NewScene creates an empty scene. Panics if device is nil.
//
// Parameters:
//   - name: the scene identifier
//   - device: the backend that geometry caches allocate from
//   - options: variadic list of SceneBuilderOption functions
//
// Returns:
//   - Scene: the new scene
func NewScene(name string, device backend.Device, options ...SceneBuilderOption) Scene {
	if device == nil {
		panic("scene: NewScene requires a device")
	}
	s := &scene{name: name, device: device}
	for _, opt := range options {
		opt(s)
	}
	s.log = logger.OrNop(s.log)
	s.layers.Store(&[]*Layer{})
	s.caches.Store(&[]GeometryCache{})
	for _, n := range s.initialLayers {
		s.CreateLayer(n)
	}
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Device() backend.Device {
	return s.device
}

func (s *scene) CreateLayer(name string) *Layer {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := *s.layers.Load()
	l := &Layer{index: len(old), name: name}
	l.renderingEnabled.Store(true)
	next := append(slices.Clip(old), l)
	s.layers.Store(&next)
	s.log.Debugf("scene %s: created layer %d (%s)", s.name, l.index, name)
	return l
}

func (s *scene) RemoveLayer(l *Layer) {
	if l == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old := *s.layers.Load()
	if l.index >= len(old) || old[l.index] != l {
		return
	}
	next := slices.Clone(old)
	next[l.index] = nil
	s.layers.Store(&next)
}

func (s *scene) Layer(index int) *Layer {
	layers := *s.layers.Load()
	if index < 0 || index >= len(layers) {
		return nil
	}
	return layers[index]
}

func (s *scene) Layers() []*Layer {
	return *s.layers.Load()
}

func (s *scene) CreateGeometryCache(models []model.Model, options ...GeometryCacheBuilderOption) (GeometryCache, error) {
	gc, err := NewGeometryCache(s.device, models, append(options, withGuard(&s.guard))...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := append(slices.Clip(*s.caches.Load()), gc)
	s.caches.Store(&next)
	s.log.Debugf("scene %s: created %s with %d models", s.name, gc.Label(), len(models))
	return gc, nil
}

func (s *scene) RemoveGeometryCache(gc GeometryCache) {
	s.mu.Lock()
	old := *s.caches.Load()
	i := slices.Index(old, gc)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	next := slices.Delete(slices.Clone(old), i, i+1)
	s.caches.Store(&next)
	s.mu.Unlock()

	// Wait for an in-flight frame before releasing the buffers it may still reference.
	s.guard.Lock()
	gc.Dispose()
	s.guard.Unlock()
}

func (s *scene) GeometryCaches() []GeometryCache {
	return *s.caches.Load()
}

func (s *scene) Freeze() {
	s.guard.RLock()
	s.frozen.Add(1)
}

func (s *scene) Thaw() {
	if s.frozen.Add(-1) < 0 {
		panic("scene: Thaw without Freeze")
	}
	s.guard.RUnlock()
}

func (s *scene) Frozen() bool {
	return s.frozen.Load() > 0
}

func (s *scene) Dispose() {
	if s.disposed.Swap(true) {
		return
	}
	s.mu.Lock()
	caches := *s.caches.Load()
	s.caches.Store(&[]GeometryCache{})
	s.mu.Unlock()

	s.guard.Lock()
	defer s.guard.Unlock()
	for _, gc := range caches {
		gc.Dispose()
	}
}
