package model

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// GPUVertexSource is the canonical WGSL definition of the VertexInput struct for instanced mesh pipelines.
// Matches GPUVertex layout exactly (32 bytes, tightly packed vertex attributes).
const GPUVertexSource = `struct VertexInput {
    @location(0) position: vec3<f32>,
    @location(1) normal: vec3<f32>,
    @location(2) uv: vec2<f32>,
};
`

// GPUVertex is the GPU-aligned representation of a single mesh vertex.
// Matches the WGSL VertexInput struct layout exactly (see GPUVertexSource).
// Size: 32 bytes.
type GPUVertex struct {
	Position [3]float32 // offset  0: vertex position in model space (12 bytes)
	Normal   [3]float32 // offset 12: vertex normal for lighting (12 bytes)
	TexCoord [2]float32 // offset 24: UV texture coordinate (8 bytes)
}

// Size returns the size of the GPUVertex struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUVertex struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUVertex) Marshal() []byte {
	return g.AppendTo(make([]byte, 0, 32))
}

// AppendTo appends the 32-byte GPU representation of the vertex to dst.
//
// Parameters:
//   - dst: the buffer to append to
//
// Returns:
//   - []byte: the extended buffer
func (g *GPUVertex) AppendTo(dst []byte) []byte {
	for _, f := range g.Position {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	for _, f := range g.Normal {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	for _, f := range g.TexCoord {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	return dst
}

// GPUVertexStride is the byte size of one GPUVertex in a vertex buffer.
const GPUVertexStride = 32

// GPUInstanceSource is the canonical WGSL definition of the per-instance input of instanced
// pipelines: the rows of the transposed model matrix, which are the columns of the model matrix.
// Matches GPUInstance layout exactly (64 bytes).
const GPUInstanceSource = `struct InstanceInput {
    @location(3) model_0: vec4<f32>,
    @location(4) model_1: vec4<f32>,
    @location(5) model_2: vec4<f32>,
    @location(6) model_3: vec4<f32>,
};
`

// GPUInstance is one entry of the instance buffer: a model-to-world matrix stored transposed.
// Size: 64 bytes (16 × float32).
type GPUInstance struct {
	Transposed [16]float32 // offset 0: transposed 4×4 model-to-world matrix (64 bytes)
}

// GPUInstanceStride is the byte size of one GPUInstance in an instance buffer.
const GPUInstanceStride = 64

// NewGPUInstance transposes a model matrix into its instance buffer representation.
//
// Parameters:
//   - m: the model-to-world matrix
//
// Returns:
//   - GPUInstance: the transposed matrix
func NewGPUInstance(m mgl32.Mat4) GPUInstance {
	return GPUInstance{Transposed: [16]float32(m.Transpose())}
}

// Size returns the size of the GPUInstance struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUInstance) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUInstance struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload.
func (g *GPUInstance) Marshal() []byte {
	buf := make([]byte, 64)
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(g.Transposed[i]))
	}
	return buf
}

// MarshalInstances serializes a slice of instances into one contiguous buffer.
//
// Parameters:
//   - instances: the instances to serialize
//
// Returns:
//   - []byte: len(instances)*64 bytes
func MarshalInstances(instances []GPUInstance) []byte {
	if len(instances) == 0 {
		return nil
	}
	buf := make([]byte, 0, len(instances)*GPUInstanceStride)
	for i := range instances {
		for _, f := range instances[i].Transposed {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	return buf
}

// ComputeBoundingRadius computes a bounding sphere radius centered on the model origin from
// vertex positions. The radius is the maximum distance from the origin across all vertices.
//
// Parameters:
//   - vertices: the vertex data to compute the bounding radius from
//
// Returns:
//   - float32: the maximum distance from the origin
func ComputeBoundingRadius(vertices []GPUVertex) float32 {
	var maxDistSq float32
	for _, v := range vertices {
		p := v.Position
		distSq := p[0]*p[0] + p[1]*p[1] + p[2]*p[2]
		if distSq > maxDistSq {
			maxDistSq = distSq
		}
	}
	return float32(math.Sqrt(float64(maxDistSq)))
}
