package light

import (
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLightProperties(t *testing.T) {
	l := NewLight(WithPosition(mgl32.Vec3{1, 2, 3}), WithRadius(4), WithColor(0.5, 0.25, 1))
	p := l.Properties()
	assert.Equal(t, 32, p.Size())

	data := MarshalProperties(nil, []Properties{p, p})
	require.Len(t, data, 2*PropertiesSize)
	assert.Equal(t, p.AppendTo(nil), data[PropertiesSize:])

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.SetRadius(float32(i))
			_ = l.Properties()
		}()
	}
	wg.Wait()
}

func TestTileGridBoundaries(t *testing.T) {
	g := NewTileGrid(DefaultTileGranularity)
	assert.Equal(t, GPUTileScalars{XMin: 0, XMax: 0.2, YMin: 0, YMax: 0.2}, g.TileBounds(0, 0))
	last := g.TileBounds(4, 4)
	assert.Equal(t, float32(1), last.XMax)
	assert.Equal(t, float32(1), last.YMax)
	assert.InDelta(t, 0.8, last.XMin, 1e-6)
	assert.Panics(t, func() { NewTileGrid(0) })
}

// screenCamera looks down -Z from z=10 with a 90° fov, so the plane z=0 spans [-10, 10] on both axes.
func screenCamera() camera.Camera {
	return camera.NewCamera(
		camera.WithPosition(mgl32.Vec3{0, 0, 10}),
		camera.WithTarget(mgl32.Vec3{}),
		camera.WithFov(mgl32.DegToRad(90)),
		camera.WithFar(100),
	)
}

// pointAt returns the world point on z=0 that projects to unit screen coordinates (u, v).
func pointAt(u, v float32) mgl32.Vec3 {
	return mgl32.Vec3{(u*2 - 1) * 10, (v*2 - 1) * 10, 0}
}

func countMembership(g *TileGrid) map[[2]int]int {
	out := make(map[[2]int]int)
	for x := range g.Granularity() {
		for y := range g.Granularity() {
			if n := len(g.Bucket(x, y)); n > 0 {
				out[[2]int{x, y}] = n
			}
		}
	}
	return out
}

func TestTileGridLightInsideOneTile(t *testing.T) {
	cam := screenCamera()
	g := NewTileGrid(5)
	// center of tile (1, 3), radius well inside the 4-unit tile
	p := Properties{Position: pointAt(0.3, 0.7), Radius: 0.5}

	g.Assign([]Properties{p}, cam.ViewProjectionMatrix(), cam.Up(), cam.Right())
	assert.Equal(t, map[[2]int]int{{1, 3}: 1}, countMembership(g))
	assert.Equal(t, p, g.Bucket(1, 3)[0])
}

func TestTileGridLightSpanningTwoTiles(t *testing.T) {
	cam := screenCamera()
	g := NewTileGrid(5)
	// straddles the x=0.4 boundary between tiles (1, 2) and (2, 2)
	p := Properties{Position: pointAt(0.4, 0.5), Radius: 0.5}

	g.Assign([]Properties{p}, cam.ViewProjectionMatrix(), cam.Up(), cam.Right())
	assert.Equal(t, map[[2]int]int{{1, 2}: 1, {2, 2}: 1}, countMembership(g))

	g.Assign(nil, cam.ViewProjectionMatrix(), cam.Up(), cam.Right())
	assert.Empty(t, countMembership(g), "assign clears every bucket")
}

func TestTileGridLightCoveringScreen(t *testing.T) {
	cam := screenCamera()
	g := NewTileGrid(3)
	g.Assign([]Properties{{Position: pointAt(0.5, 0.5), Radius: 50}}, cam.ViewProjectionMatrix(), cam.Up(), cam.Right())
	assert.Len(t, countMembership(g), 9)
}

func TestCullKeepsClosestOverCap(t *testing.T) {
	cam := screenCamera()
	frustum := cam.Frustum()
	eye := cam.Position()

	var lights []Light
	for i := range 10 {
		lights = append(lights, NewLight(WithPosition(mgl32.Vec3{0, 0, -float32(i) * 5}), WithRadius(1)))
	}
	// outside the frustum entirely
	lights = append(lights, NewLight(WithPosition(mgl32.Vec3{0, 0, 50}), WithRadius(1)))

	all := Cull(nil, lights, &frustum, eye, MaxDynamicLights)
	assert.Len(t, all, 10)

	kept := Cull(nil, lights, &frustum, eye, 4)
	require.Len(t, kept, 4)
	var keys []float32
	for _, p := range kept {
		keys = append(keys, DistanceKey(p, eye))
	}
	assert.IsNonDecreasing(t, keys)

	// every dropped light is at least as far as the farthest kept one
	for _, p := range all[4:] {
		assert.GreaterOrEqual(t, DistanceKey(p, eye), keys[3])
	}
}

func TestDistanceKeyInsideSphere(t *testing.T) {
	p := Properties{Position: mgl32.Vec3{1, 0, 0}, Radius: 5}
	assert.Equal(t, float32(0), DistanceKey(p, mgl32.Vec3{}))
	assert.Equal(t, float32(100-25), DistanceKey(p, mgl32.Vec3{11, 0, 0}))
}

func TestShadowCamera(t *testing.T) {
	c := NewShadowCamera(mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 0, 0}, 10)
	assert.Equal(t, camera.ProjectionOrthographic, c.Kind())
	assert.True(t, c.Forward().ApproxEqual(mgl32.Vec3{0, -1, 0}))
	f := c.Frustum()
	assert.True(t, f.IntersectsSphere(mgl32.Vec3{9, 0, 9}, 0.5))
	assert.False(t, f.IntersectsSphere(mgl32.Vec3{15, 0, 0}, 0.5))
}
