package common

import "github.com/go-gl/mathgl/mgl32"

// Clamp restricts v to the closed range [lo, hi].
func Clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}

// ProjectToUnit transforms a world-space point by a view-projection matrix, performs the
// perspective divide by |w| and remaps the clamped clip-space x/y from [-1, 1] into [0, 1].
//
// Dividing by the absolute w keeps points behind the camera on the correct side of the
// screen instead of mirroring them through the origin.
//
// Parameters:
//   - viewProj: the combined projection * view matrix
//   - p: the world-space point
//
// Returns:
//   - float32: the x coordinate in [0, 1]
//   - float32: the y coordinate in [0, 1]
func ProjectToUnit(viewProj mgl32.Mat4, p mgl32.Vec3) (float32, float32) {
	clip := viewProj.Mul4x1(p.Vec4(1))
	w := clip.W()
	if w < 0 {
		w = -w
	}
	if w == 0 {
		w = 1
	}
	x := Clamp(clip.X()/w, -1, 1)
	y := Clamp(clip.Y()/w, -1, 1)
	return (x + 1) / 2, (y + 1) / 2
}
