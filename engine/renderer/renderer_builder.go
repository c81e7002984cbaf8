package renderer

import (
	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
	"github.com/Carmen-Shannon/oxy-deferred/engine/parallel"
	"github.com/Carmen-Shannon/oxy-deferred/engine/profiler"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/pass"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithWorkers sets the number of worker contexts of the provider, in addition to the master.
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - RendererBuilderOption: a function that applies the worker option to a renderer
func WithWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.providerOptions = append(r.providerOptions, parallel.WithWorkers(n))
	}
}

// WithReplayBacklog sets how many finished command lists may wait for replay on the master.
//
// Parameters:
//   - n: the backlog capacity
//
// Returns:
//   - RendererBuilderOption: a function that applies the backlog option to a renderer
func WithReplayBacklog(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.providerOptions = append(r.providerOptions, parallel.WithReplayBacklog(n))
	}
}

// WithScene sets the scene frozen around each frame.
//
// Parameters:
//   - s: the scene
//
// Returns:
//   - RendererBuilderOption: a function that applies the scene option to a renderer
func WithScene(s scene.Scene) RendererBuilderOption {
	return func(r *renderer) {
		r.scene = s
	}
}

// WithPasses appends passes to the frame, in order.
//
// Parameters:
//   - passes: the passes
//
// Returns:
//   - RendererBuilderOption: a function that applies the passes option to a renderer
func WithPasses(passes ...pass.RenderPass) RendererBuilderOption {
	return func(r *renderer) {
		r.passes = append(r.passes, passes...)
	}
}

// WithLogger sets the logger shared by the renderer, its provider and its passes.
//
// Parameters:
//   - l: the logger
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger option to a renderer
func WithLogger(l logger.Logger) RendererBuilderOption {
	return func(r *renderer) {
		r.log = l
	}
}

// WithProfiler records the duration of every pass that runs.
//
// Parameters:
//   - p: the profiler
//
// Returns:
//   - RendererBuilderOption: a function that applies the profiler option to a renderer
func WithProfiler(p *profiler.Profiler) RendererBuilderOption {
	return func(r *renderer) {
		r.profiler = p
	}
}
