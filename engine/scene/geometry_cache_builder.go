package scene

import "sync"

// GeometryCacheBuilderOption is a functional option for configuring a GeometryCache.
type GeometryCacheBuilderOption func(*geometryCache)

// WithCacheLabel sets the debug label used for the cache's buffers and input layouts.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - GeometryCacheBuilderOption: option function to apply
func WithCacheLabel(label string) GeometryCacheBuilderOption {
	return func(gc *geometryCache) {
		gc.label = label
	}
}

// withGuard shares the scene's frame lock with the cache.
func withGuard(guard *sync.RWMutex) GeometryCacheBuilderOption {
	return func(gc *geometryCache) {
		gc.guard = guard
	}
}
