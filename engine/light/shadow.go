package light

import (
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/go-gl/mathgl/mgl32"
)

// ShadowMapResolution is the default width and height in texels of the shadow
// depth target. The shadow pass can override it via its resolution option.
const ShadowMapResolution = 2048

// DefaultShadowHalfExtent is the default orthographic half-extent (in world units)
// used for the directional light shadow frustum.
const DefaultShadowHalfExtent float32 = 40.0

// DefaultShadowNear is the default near plane for the directional light's
// orthographic shadow projection.
const DefaultShadowNear float32 = 0.1

// DefaultShadowFar is the default far plane for the directional light's
// orthographic shadow projection.
const DefaultShadowFar float32 = 200.0

// NewShadowCamera creates the orthographic camera a directional light casts shadows from.
// The camera sits behind center, opposite the light direction, at half the far distance.
//
// Parameters:
//   - direction: the direction the light travels (from the light toward the scene)
//   - center: the world-space point the shadow volume is centered on
//   - halfExtent: half the width and height of the shadow volume
//
// Returns:
//   - camera.Camera: the light camera
func NewShadowCamera(direction, center mgl32.Vec3, halfExtent float32) camera.Camera {
	dir := direction
	if dir.Len() < 1e-8 {
		dir = mgl32.Vec3{0, -1, 0}
	}
	dir = dir.Normalize()
	eye := center.Sub(dir.Mul(DefaultShadowFar * 0.5))

	return camera.NewCamera(
		camera.WithPosition(eye),
		camera.WithTarget(center),
		camera.WithOrthographic(halfExtent*2, halfExtent*2),
		camera.WithNear(DefaultShadowNear),
		camera.WithFar(DefaultShadowFar),
	)
}
