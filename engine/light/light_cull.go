package light

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-deferred/common"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultTileGranularity is the default number of lighting tiles along each screen axis.
const DefaultTileGranularity = 5

// DistanceKey orders lights by how far the camera is from the light's sphere of influence:
// max(0, |p - eye|² - r²). Lights whose sphere contains the eye share the key 0.
//
// Parameters:
//   - p: the light
//   - eye: the camera position
//
// Returns:
//   - float32: the ordering key
func DistanceKey(p Properties, eye mgl32.Vec3) float32 {
	d := p.Position.Sub(eye)
	return max(0, d.Dot(d)-p.Radius*p.Radius)
}

// Cull appends to dst every light whose sphere intersects the frustum. When more than limit
// lights survive, only the limit lights with the smallest DistanceKey are kept.
//
// Parameters:
//   - dst: the slice to append to, typically reused scratch truncated to zero
//   - lights: the registered lights
//   - frustum: the camera frustum
//   - eye: the camera position
//   - limit: the maximum number of lights to return
//
// Returns:
//   - []Properties: dst extended with the surviving lights
func Cull(dst []Properties, lights []Light, frustum *common.Frustum, eye mgl32.Vec3, limit int) []Properties {
	start := len(dst)
	for _, l := range lights {
		p := l.Properties()
		if frustum.IntersectsSphere(p.Position, p.Radius) {
			dst = append(dst, p)
		}
	}
	survivors := dst[start:]
	if len(survivors) <= limit {
		return dst
	}
	slices.SortStableFunc(survivors, func(a, b Properties) int {
		ka, kb := DistanceKey(a, eye), DistanceKey(b, eye)
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		default:
			return 0
		}
	})
	return dst[:start+limit]
}

// TileGrid partitions the screen into N×N tiles and assigns lights to every tile their projected
// extent overlaps. Tile (x, y) covers [x/N, (x+1)/N] × [y/N, (y+1)/N] in unit screen coordinates,
// and its bucket index is x*N + y. A light touching a shared edge joins both tiles.
type TileGrid struct {
	n        int
	offsetsX []float32
	offsetsY []float32
	buckets  [][]Properties
}

// NewTileGrid creates an N×N grid. Panics if n < 1.
//
// Parameters:
//   - n: the number of tiles along each axis
//
// Returns:
//   - *TileGrid: the grid
func NewTileGrid(n int) *TileGrid {
	if n < 1 {
		panic("light: tile granularity must be at least 1")
	}
	g := &TileGrid{
		n:        n,
		offsetsX: make([]float32, n+1),
		offsetsY: make([]float32, n+1),
		buckets:  make([][]Properties, n*n),
	}
	for i := 1; i < n; i++ {
		g.offsetsX[i] = float32(i) / float32(n)
		g.offsetsY[i] = g.offsetsX[i]
	}
	g.offsetsX[n], g.offsetsY[n] = 1, 1
	for i := range g.buckets {
		g.buckets[i] = make([]Properties, 0, MaxDynamicLights)
	}
	return g
}

// Granularity returns N.
func (g *TileGrid) Granularity() int {
	return g.n
}

// TileBounds returns the rectangle of tile (x, y).
//
// Parameters:
//   - x: the column
//   - y: the row
//
// Returns:
//   - GPUTileScalars: the tile rectangle
func (g *TileGrid) TileBounds(x, y int) GPUTileScalars {
	return GPUTileScalars{XMin: g.offsetsX[x], XMax: g.offsetsX[x+1], YMin: g.offsetsY[y], YMax: g.offsetsY[y+1]}
}

// Bucket returns the lights assigned to tile (x, y) by the last Assign.
// The slice is reused by the next Assign.
//
// Parameters:
//   - x: the column
//   - y: the row
//
// Returns:
//   - []Properties: the lights of the tile
func (g *TileGrid) Bucket(x, y int) []Properties {
	return g.buckets[x*g.n+y]
}

// Extent projects the up, down, left and right points of a light sphere with viewProj and returns
// the covered unit screen rectangle.
//
// Parameters:
//   - p: the light
//   - viewProj: the camera view-projection matrix
//   - up: the camera up axis
//   - right: the camera right axis
//
// Returns:
//   - GPUTileScalars: the projected extent, clamped to [0, 1]
func Extent(p Properties, viewProj mgl32.Mat4, up, right mgl32.Vec3) GPUTileScalars {
	u := up.Mul(p.Radius)
	r := right.Mul(p.Radius)
	ux, uy := common.ProjectToUnit(viewProj, p.Position.Add(u))
	dx, dy := common.ProjectToUnit(viewProj, p.Position.Sub(u))
	lx, ly := common.ProjectToUnit(viewProj, p.Position.Sub(r))
	rx, ry := common.ProjectToUnit(viewProj, p.Position.Add(r))
	return GPUTileScalars{
		XMin: min(ux, dx, lx, rx),
		XMax: max(ux, dx, lx, rx),
		YMin: min(uy, dy, ly, ry),
		YMax: max(uy, dy, ly, ry),
	}
}

// Assign clears every bucket and distributes lights over the tiles their extent overlaps.
//
// Parameters:
//   - lights: the culled lights
//   - viewProj: the camera view-projection matrix
//   - up: the camera up axis
//   - right: the camera right axis
func (g *TileGrid) Assign(lights []Properties, viewProj mgl32.Mat4, up, right mgl32.Vec3) {
	for i := range g.buckets {
		g.buckets[i] = g.buckets[i][:0]
	}
	for _, p := range lights {
		e := Extent(p, viewProj, up, right)
		for x := 0; x < g.n; x++ {
			if e.XMax < g.offsetsX[x] || e.XMin > g.offsetsX[x+1] {
				continue
			}
			for y := 0; y < g.n; y++ {
				if e.YMax < g.offsetsY[y] || e.YMin > g.offsetsY[y+1] {
					continue
				}
				g.buckets[x*g.n+y] = append(g.buckets[x*g.n+y], p)
			}
		}
	}
}
