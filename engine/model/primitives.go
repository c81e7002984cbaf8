package model

// cubeFaces lists each face of a unit cube as its normal followed by the two in-plane axes.
var cubeFaces = [6][3][3]float32{
	{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}},
	{{0, 0, -1}, {-1, 0, 0}, {0, 1, 0}},
	{{1, 0, 0}, {0, 0, -1}, {0, 1, 0}},
	{{-1, 0, 0}, {0, 0, 1}, {0, 1, 0}},
	{{0, 1, 0}, {1, 0, 0}, {0, 0, -1}},
	{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},
}

// NewCube creates an axis-aligned cube centered on the origin with 24 vertices and 36 indices.
//
// Parameters:
//   - name: the model identifier
//   - size: the edge length
//
// Returns:
//   - Model: the cube model
func NewCube(name string, size float32) Model {
	h := size / 2
	vertices := make([]GPUVertex, 0, 24)
	indices := make([]uint32, 0, 36)

	for _, face := range cubeFaces {
		n, u, v := face[0], face[1], face[2]
		base := uint32(len(vertices))
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			var p [3]float32
			for i := range p {
				p[i] = (n[i] + c[0]*u[i] + c[1]*v[i]) * h
			}
			vertices = append(vertices, GPUVertex{
				Position: p,
				Normal:   n,
				TexCoord: [2]float32{(c[0] + 1) / 2, (1 - c[1]) / 2},
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}

	return NewModel(WithName(name), WithVertices(vertices), WithIndices(indices))
}

// NewQuad creates a square in the XY plane facing +Z, centered on the origin.
//
// Parameters:
//   - name: the model identifier
//   - size: the edge length
//
// Returns:
//   - Model: the quad model
func NewQuad(name string, size float32) Model {
	h := size / 2
	vertices := []GPUVertex{
		{Position: [3]float32{-h, -h, 0}, Normal: [3]float32{0, 0, 1}, TexCoord: [2]float32{0, 1}},
		{Position: [3]float32{h, -h, 0}, Normal: [3]float32{0, 0, 1}, TexCoord: [2]float32{1, 1}},
		{Position: [3]float32{h, h, 0}, Normal: [3]float32{0, 0, 1}, TexCoord: [2]float32{1, 0}},
		{Position: [3]float32{-h, h, 0}, Normal: [3]float32{0, 0, 1}, TexCoord: [2]float32{0, 0}},
	}
	return NewModel(WithName(name), WithVertices(vertices), WithIndices([]uint32{0, 1, 2, 0, 2, 3}))
}
