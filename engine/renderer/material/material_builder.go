package material

import "github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"

// MaterialBuilderOption is a function that configures a material instance during construction.
type MaterialBuilderOption func(*material)

// WithName is an option builder that sets the name of the material.
//
// Parameters:
//   - name: the identifier for the material
//
// Returns:
//   - MaterialBuilderOption: a function that applies the name option to a material
func WithName(name string) MaterialBuilderOption {
	return func(m *material) {
		m.name = name
	}
}

// WithBaseColor is an option builder that sets the albedo/diffuse RGBA color of the material.
//
// Parameters:
//   - color: the base color as RGBA float32 values
//
// Returns:
//   - MaterialBuilderOption: a function that applies the base color option to a material
func WithBaseColor(color [4]float32) MaterialBuilderOption {
	return func(m *material) {
		m.baseColor = color
	}
}

// WithMetallic is an option builder that sets the metallic factor of the material.
//
// Parameters:
//   - metallic: the metallic factor (0.0 = dielectric, 1.0 = metal)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the metallic option to a material
func WithMetallic(metallic float32) MaterialBuilderOption {
	return func(m *material) {
		m.metallic = metallic
	}
}

// WithRoughness is an option builder that sets the roughness factor of the material.
//
// Parameters:
//   - roughness: the roughness factor (0.0 = smooth, 1.0 = rough)
//
// Returns:
//   - MaterialBuilderOption: a function that applies the roughness option to a material
func WithRoughness(roughness float32) MaterialBuilderOption {
	return func(m *material) {
		m.roughness = roughness
	}
}

// WithZIndex is an option builder that sets the HUD draw order of the material.
//
// Parameters:
//   - z: the z-index; lower values draw first
//
// Returns:
//   - MaterialBuilderOption: a function that applies the z-index option to a material
func WithZIndex(z int) MaterialBuilderOption {
	return func(m *material) {
		m.zIndex = z
	}
}

// WithTexture is an option builder that binds a view or sampler to a named shader binding.
//
// Parameters:
//   - binding: the WGSL variable name of the view or sampler
//   - h: the handle to bind
//
// Returns:
//   - MaterialBuilderOption: a function that applies the texture option to a material
func WithTexture(binding string, h command.Handle) MaterialBuilderOption {
	return func(m *material) {
		m.textures[binding] = h
	}
}
