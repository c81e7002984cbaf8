package pass

import "github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"

// ShadowPassBuilderOption is a functional option for configuring a ShadowPass.
type ShadowPassBuilderOption func(*ShadowPass)

// WithShadowMapResolution sets the edge length of the shadow map. Zero disables the pass output.
//
// Parameters:
//   - resolution: the shadow map size in pixels
//
// Returns:
//   - ShadowPassBuilderOption: functional option to set the resolution
func WithShadowMapResolution(resolution uint32) ShadowPassBuilderOption {
	return func(p *ShadowPass) {
		p.resolution = resolution
	}
}

// WithShadowFragmentShader sets a fragment shader for the depth pass, e.g. for alpha-tested casters.
// Without one the pass writes depth only.
//
// Parameters:
//   - fs: the fragment shader
//
// Returns:
//   - ShadowPassBuilderOption: functional option to set the fragment shader
func WithShadowFragmentShader(fs shader.Shader) ShadowPassBuilderOption {
	return func(p *ShadowPass) {
		p.fs = fs
	}
}
