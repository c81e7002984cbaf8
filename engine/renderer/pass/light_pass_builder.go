package pass

// LightPassBuilderOption is a functional option for configuring a LightPass.
type LightPassBuilderOption func(*LightPass)

// WithTileGranularity sets the number of lighting tiles along each screen axis.
// Defaults to light.DefaultTileGranularity.
//
// Parameters:
//   - n: tiles per axis, at least 1
//
// Returns:
//   - LightPassBuilderOption: functional option to set the granularity
func WithTileGranularity(n int) LightPassBuilderOption {
	return func(p *LightPass) {
		p.granularity = n
	}
}

// WithDynamicLightCap sets how many lights survive culling per frame.
// Defaults to light.MaxDynamicLights.
//
// Parameters:
//   - n: the cap
//
// Returns:
//   - LightPassBuilderOption: functional option to set the cap
func WithDynamicLightCap(n int) LightPassBuilderOption {
	return func(p *LightPass) {
		p.lightCap = n
	}
}

// WithLensProperties sets the initial depth of field parameters.
//
// Parameters:
//   - focalDistance: the distance that is in focus
//   - maxBlurDistance: the distance from focus at which blur is strongest
//
// Returns:
//   - LightPassBuilderOption: functional option to set the lens
func WithLensProperties(focalDistance, maxBlurDistance float32) LightPassBuilderOption {
	return func(p *LightPass) {
		p.focal = focalDistance
		p.maxBlur = maxBlurDistance
	}
}

// WithPresentAfterPass makes the pass present the back buffer after it has flushed.
//
// Returns:
//   - LightPassBuilderOption: functional option to enable presenting
func WithPresentAfterPass() LightPassBuilderOption {
	return func(p *LightPass) {
		p.presentAfterPass.Store(true)
	}
}
