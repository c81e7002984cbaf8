package material

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// PropertiesBindingName is the fragment binding a material writes its surface properties into,
// when its shader declares one.
const PropertiesBindingName = "MaterialProperties"

// GPUPropertiesSource is the canonical WGSL definition of the MaterialProperties struct.
// Matches GPUProperties layout exactly (32 bytes, std140 aligned).
const GPUPropertiesSource = `struct MaterialPropertiesUniform {
    base_color: vec4<f32>,
    metallic: f32,
    roughness: f32,
    _pad: vec2<f32>,
};
`

// GPUProperties is the GPU-aligned uniform for the surface properties of a material.
// Matches the WGSL MaterialPropertiesUniform struct layout exactly (see GPUPropertiesSource).
// Size: 32 bytes.
type GPUProperties struct {
	BaseColor [4]float32 // offset 0: RGBA albedo (16 bytes)
	Metallic  float32    // offset 16: metallic factor (4 bytes)
	Roughness float32    // offset 20: roughness factor (4 bytes)
	_         [2]float32 // offset 24: padding to 32 bytes
}

// Size returns the size of the GPUProperties struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUProperties) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUProperties struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (g *GPUProperties) Marshal() []byte {
	buf := make([]byte, 32)
	for i, c := range g.BaseColor {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(c))
	}
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(g.Metallic))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(g.Roughness))
	return buf
}
