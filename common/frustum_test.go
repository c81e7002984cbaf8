package common

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func testViewProj() mgl32.Mat4 {
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 100)
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0})
	return proj.Mul4(view)
}

func TestFrustumIntersectsSphere(t *testing.T) {
	f := ExtractFrustumFromMatrix(testViewProj())

	tests := []struct {
		name   string
		center mgl32.Vec3
		radius float32
		want   bool
	}{
		{"in front", mgl32.Vec3{0, 0, -10}, 1, true},
		{"behind", mgl32.Vec3{0, 0, 10}, 1, false},
		{"past far plane", mgl32.Vec3{0, 0, -200}, 1, false},
		{"straddles near plane", mgl32.Vec3{0, 0, 0.5}, 1, true},
		{"far left", mgl32.Vec3{-100, 0, -10}, 1, false},
		{"touching left edge", mgl32.Vec3{-6.5, 0, -10}, 1.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.IntersectsSphere(tt.center, tt.radius))
		})
	}
}

func TestFrustumPlanesNormalized(t *testing.T) {
	f := ExtractFrustumFromMatrix(testViewProj())
	for i, p := range f.Planes {
		n := mgl32.Vec3(p.Normal)
		assert.InDelta(t, 1.0, n.Len(), 1e-4, "plane %d", i)
	}
}

func TestProjectToUnit(t *testing.T) {
	vp := testViewProj()

	x, y := ProjectToUnit(vp, mgl32.Vec3{0, 0, -10})
	assert.InDelta(t, 0.5, x, 1e-5)
	assert.InDelta(t, 0.5, y, 1e-5)

	x, y = ProjectToUnit(vp, mgl32.Vec3{-1000, 1000, -10})
	assert.Equal(t, float32(0), x)
	assert.Equal(t, float32(1), y)
}
