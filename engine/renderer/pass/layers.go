package pass

import (
	"errors"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
)

var (
	// ErrLayerAlreadyAdded is returned when a layer is added to a pass twice.
	ErrLayerAlreadyAdded = errors.New("pass: layer has already been added")
	// ErrLayerNotAdded is returned when removing a layer the pass does not render.
	ErrLayerNotAdded = errors.New("pass: layer is not added")
)

// layerSet is the set of scene layers a pass renders, keyed by layer index.
type layerSet struct {
	mu      sync.RWMutex
	indices map[int]struct{}
}

func newLayerSet() layerSet {
	return layerSet{indices: make(map[int]struct{})}
}

// AddLayer makes the pass render instances on l.
//
// Parameters:
//   - l: the scene layer
//
// Returns:
//   - error: ErrLayerAlreadyAdded if l was already added
func (s *layerSet) AddLayer(l *scene.Layer) error {
	if l == nil {
		panic("pass: AddLayer requires a non-nil Layer")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indices[l.Index()]; ok {
		return ErrLayerAlreadyAdded
	}
	s.indices[l.Index()] = struct{}{}
	return nil
}

// RemoveLayer stops the pass from rendering instances on l.
//
// Parameters:
//   - l: the scene layer
//
// Returns:
//   - error: ErrLayerNotAdded if l was not added
func (s *layerSet) RemoveLayer(l *scene.Layer) error {
	if l == nil {
		panic("pass: RemoveLayer requires a non-nil Layer")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indices[l.Index()]; !ok {
		return ErrLayerNotAdded
	}
	delete(s.indices, l.Index())
	return nil
}

// ClearLayers removes every layer from the pass.
func (s *layerSet) ClearLayers() {
	s.mu.Lock()
	clear(s.indices)
	s.mu.Unlock()
}

// HasLayer reports whether l is rendered by the pass.
func (s *layerSet) HasLayer(l *scene.Layer) bool {
	if l == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indices[l.Index()]
	return ok
}

// table builds the per-frame lookup of renderable layer indexes: a layer counts when it still
// exists, has rendering enabled and was added to the pass.
func (s *layerSet) table(dst []bool, layers []*scene.Layer) []bool {
	dst = dst[:0]
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, l := range layers {
		_, added := s.indices[i]
		dst = append(dst, added && l != nil && l.RenderingEnabled())
	}
	return dst
}
