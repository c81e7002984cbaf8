package scene

import "sync/atomic"

// Layer is a named group of instances that can be hidden as a whole.
// Render passes additionally keep their own set of layers they draw.
type Layer struct {
	index            int
	name             string
	renderingEnabled atomic.Bool
}

// Index returns the stable index of the layer within its scene.
func (l *Layer) Index() int {
	return l.index
}

// Name returns the layer identifier.
func (l *Layer) Name() string {
	return l.name
}

// RenderingEnabled reports whether instances on this layer are drawn.
func (l *Layer) RenderingEnabled() bool {
	return l.renderingEnabled.Load()
}

// SetRenderingEnabled shows or hides every instance on this layer.
//
// Parameters:
//   - enabled: true to draw the layer
func (l *Layer) SetRenderingEnabled(enabled bool) {
	l.renderingEnabled.Store(enabled)
}
