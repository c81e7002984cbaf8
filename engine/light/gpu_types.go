package light

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxDynamicLights is the default number of lights shaded per frame, and the capacity of the
// per-tile light array declared by lighting shaders.
const MaxDynamicLights = 128

// PropertiesSize is the byte size of one Properties entry in a light buffer.
const PropertiesSize = 32

// PropertiesSource is the canonical WGSL definition of the LightProperties struct.
// Matches Properties layout exactly (32 bytes). Shaders size their light arrays with the
// MAX_DYNAMIC_LIGHTS constant registered by the lighting pass.
const PropertiesSource = `struct LightProperties {
    position: vec3<f32>,
    radius: f32,
    color: vec3<f32>,
    _pad: f32,
};
`

// Properties is the GPU-aligned representation of one light.
// Size: 32 bytes.
type Properties struct {
	Position mgl32.Vec3 // offset  0: world-space center (vec3<f32>)
	Radius   float32    // offset 12: radius of influence (f32)
	Color    mgl32.Vec3 // offset 16: linear RGB color (vec3<f32>)
	_pad     float32    // offset 28: padding to 32 bytes
}

// Size returns the size of the Properties struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (p *Properties) Size() int {
	return int(unsafe.Sizeof(*p))
}

// AppendTo appends the 32-byte GPU representation of the light to dst.
//
// Parameters:
//   - dst: the buffer to append to
//
// Returns:
//   - []byte: the extended buffer
func (p *Properties) AppendTo(dst []byte) []byte {
	for _, f := range p.Position {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(p.Radius))
	for _, f := range p.Color {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	return binary.LittleEndian.AppendUint32(dst, 0)
}

// MarshalProperties serializes a list of lights into a contiguous light buffer, appending to dst.
//
// Parameters:
//   - dst: the buffer to append to, typically a reused scratch slice truncated to zero
//   - lights: the lights to serialize
//
// Returns:
//   - []byte: the extended buffer, len(lights)*PropertiesSize bytes longer
func MarshalProperties(dst []byte, lights []Properties) []byte {
	for i := range lights {
		dst = lights[i].AppendTo(dst)
	}
	return dst
}

// GPULightMetaSource is the canonical WGSL definition of the LightMeta struct.
const GPULightMetaSource = `struct LightMetaUniform {
    count: vec4<i32>,
};
`

// GPULightMeta carries the number of lights in the current tile, padded to a 16-byte int[4].
type GPULightMeta struct {
	Count int32
	_pad  [3]int32
}

// Marshal serializes the GPULightMeta struct.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (m *GPULightMeta) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf, uint32(m.Count))
	return buf
}

// GPUTileScalarsSource is the canonical WGSL definition of the tile rectangle read by the light plane vertex shader.
const GPUTileScalarsSource = `struct TileScalarsUniform {
    x_min: f32,
    x_max: f32,
    y_min: f32,
    y_max: f32,
};
`

// GPUTileScalars is the rectangle of one lighting tile in unit screen coordinates, where (0, 0)
// is the bottom-left corner and (1, 1) the top-right.
type GPUTileScalars struct {
	XMin, XMax, YMin, YMax float32
}

// Marshal serializes the GPUTileScalars struct.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (s *GPUTileScalars) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(s.XMin))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(s.XMax))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(s.YMin))
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(s.YMax))
	return buf
}

// GPULensPropertiesSource is the canonical WGSL definition of the depth-of-field lens uniform.
const GPULensPropertiesSource = `struct LensPropertiesUniform {
    near: f32,
    far: f32,
    focal_distance: f32,
    max_blur_distance: f32,
};
`

// GPULensProperties holds the camera clip planes together with the focal distance and the
// distance from focus at which blur is strongest.
type GPULensProperties struct {
	Near            float32
	Far             float32
	FocalDistance   float32
	MaxBlurDistance float32
}

// Marshal serializes the GPULensProperties struct.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (l *GPULensProperties) Marshal() []byte {
	s := GPUTileScalars{XMin: l.Near, XMax: l.Far, YMin: l.FocalDistance, YMax: l.MaxBlurDistance}
	return s.Marshal()
}
