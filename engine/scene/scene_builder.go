package scene

import "github.com/Carmen-Shannon/oxy-deferred/engine/logger"

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithLayers creates the named layers, in order, when the scene is constructed.
//
// Parameters:
//   - names: the layer identifiers
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLayers(names ...string) SceneBuilderOption {
	return func(s *scene) {
		s.initialLayers = append(s.initialLayers, names...)
	}
}

// WithLogger sets the logger used for scene diagnostics.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLogger(l logger.Logger) SceneBuilderOption {
	return func(s *scene) {
		s.log = l
	}
}
