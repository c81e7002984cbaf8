package pass

// GeometryPassBuilderOption is a functional option for configuring a GeometryPass.
type GeometryPassBuilderOption func(*GeometryPass)

// WithShadowPass binds the shadow pass's light camera and shadow map to the geometry pass.
//
// Parameters:
//   - sp: the shadow pass
//
// Returns:
//   - GeometryPassBuilderOption: functional option to set the shadow pass
func WithShadowPass(sp *ShadowPass) GeometryPassBuilderOption {
	return func(p *GeometryPass) {
		p.shadow = sp
	}
}

// WithGBufferClear clears every G-buffer target to color at the start of each frame.
//
// Parameters:
//   - color: the RGBA clear color
//
// Returns:
//   - GeometryPassBuilderOption: functional option to enable the clear
func WithGBufferClear(color [4]float32) GeometryPassBuilderOption {
	return func(p *GeometryPass) {
		p.clearOutput = true
		p.clearColor = color
	}
}
