package backend

import "github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"

// BufferUsage is a bit set describing how a buffer is bound.
type BufferUsage uint32

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageConstant
	BufferUsageStorage
)

// BufferDescriptor describes a buffer allocation.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// TextureFormat enumerates the texel formats used by the render passes.
type TextureFormat uint32

const (
	FormatRGBA8 TextureFormat = iota
	FormatRGBA16Float
	FormatDepth24
	// FormatWindow is whatever format the window surface was configured with.
	FormatWindow
)

// IsDepth reports whether the format is a depth format.
func (f TextureFormat) IsDepth() bool {
	return f == FormatDepth24
}

// TextureDescriptor describes a 2D texture and the views to create for it.
type TextureDescriptor struct {
	Label          string
	Width          uint32
	Height         uint32
	Format         TextureFormat
	RenderTarget   bool
	ShaderResource bool
}

// Texture groups a texture handle with its views. A view handle is zero when it was not requested.
type Texture struct {
	Handle         command.Handle
	RenderTarget   command.Handle
	ShaderResource command.Handle
	DepthStencil   command.Handle
	Width          uint32
	Height         uint32
	Format         TextureFormat
}

// Valid reports whether the texture was created.
func (t Texture) Valid() bool {
	return t.Handle != 0
}

// SamplerDescriptor describes a sampler.
type SamplerDescriptor struct {
	Label   string
	Linear  bool
	Repeat  bool
	Compare bool
}

// ShaderDescriptor describes one shader stage module.
type ShaderDescriptor struct {
	Label      string
	Stage      command.ShaderStage
	Source     string
	EntryPoint string
}

// VertexFormat is the format of one vertex attribute.
type VertexFormat uint32

const (
	VertexFloat32 VertexFormat = iota
	VertexFloat32x2
	VertexFloat32x3
	VertexFloat32x4
)

// Size returns the byte size of the format.
func (f VertexFormat) Size() uint32 {
	switch f {
	case VertexFloat32x2:
		return 8
	case VertexFloat32x3:
		return 12
	case VertexFloat32x4:
		return 16
	default:
		return 4
	}
}

// VertexAttribute describes one attribute of an input layout.
type VertexAttribute struct {
	Name     string
	Format   VertexFormat
	Slot     uint32
	Offset   uint32
	Location uint32
}

// VertexSlot describes the stride and step rate of one vertex buffer slot.
type VertexSlot struct {
	Stride      uint32
	PerInstance bool
}

// InputLayoutDescriptor describes how bound vertex buffers feed a vertex shader.
type InputLayoutDescriptor struct {
	Label      string
	Slots      []VertexSlot
	Attributes []VertexAttribute
}
