package camera

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// ViewProjBindingName is the binding identifier of the view-projection uniform in instanced vertex shaders.
const ViewProjBindingName = "ViewProj"

// PropertiesBindingName is the binding identifier of the camera properties uniform in lighting shaders.
const PropertiesBindingName = "CameraProperties"

// GPUViewProjSource is the canonical WGSL definition of the ViewProjUniform struct.
// Matches GPUViewProjUniform layout exactly (128 bytes).
const GPUViewProjSource = `struct ViewProjUniform {
    view_proj: mat4x4<f32>,
    shadow_view_proj: mat4x4<f32>,
};
`

// GPUViewProjUniform is the GPU-aligned representation of the per-pass view-projection uniform:
// the pass camera's matrix plus the shadow camera's matrix used for shadow map lookups.
// Size: 128 bytes.
type GPUViewProjUniform struct {
	ViewProj       [16]float32 // offset  0: combined view-projection matrix (mat4x4<f32>)
	ShadowViewProj [16]float32 // offset 64: shadow camera view-projection matrix (mat4x4<f32>)
}

// NewGPUViewProjUniform packs a pass camera and an optional shadow camera.
// A nil shadow camera packs the identity matrix.
//
// Parameters:
//   - cam: the pass camera
//   - shadow: the shadow camera, or nil
//
// Returns:
//   - GPUViewProjUniform: the packed uniform
func NewGPUViewProjUniform(cam Camera, shadow Camera) GPUViewProjUniform {
	u := GPUViewProjUniform{
		ViewProj:       [16]float32(cam.ViewProjectionMatrix()),
		ShadowViewProj: [16]float32(mgl32.Ident4()),
	}
	if shadow != nil {
		u.ShadowViewProj = [16]float32(shadow.ViewProjectionMatrix())
	}
	return u
}

// Size returns the size of the GPUViewProjUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (128)
func (g *GPUViewProjUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUViewProjUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUViewProjUniform) Marshal() []byte {
	buf := make([]byte, g.Size())
	for i := range 16 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.ViewProj[i]))
		binary.LittleEndian.PutUint32(buf[64+i*4:], math.Float32bits(g.ShadowViewProj[i]))
	}
	return buf
}

// GPUCameraPropertiesSource is the canonical WGSL definition of the CameraPropertiesUniform struct.
// Matches GPUCameraProperties layout exactly (16 bytes).
const GPUCameraPropertiesSource = `struct CameraPropertiesUniform {
    position: vec4<f32>,
};
`

// GPUCameraProperties is the GPU-aligned camera position read by the lighting shader.
// Size: 16 bytes.
type GPUCameraProperties struct {
	Position [3]float32 // offset  0: world-space camera position
	_pad     float32    // offset 12: w component, always 0
}

// NewGPUCameraProperties packs the position of a camera.
//
// Parameters:
//   - cam: the camera
//
// Returns:
//   - GPUCameraProperties: the packed properties
func NewGPUCameraProperties(cam Camera) GPUCameraProperties {
	return GPUCameraProperties{Position: [3]float32(cam.Position())}
}

// Size returns the size of the GPUCameraProperties struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (16)
func (g *GPUCameraProperties) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCameraProperties struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCameraProperties) Marshal() []byte {
	buf := make([]byte, g.Size())
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.Position[i]))
	}
	return buf
}
