package command

import "fmt"

// Opcode identifies the GPU instruction a RenderCommand carries.
type Opcode uint32

const (
	// NoOperation does nothing. Reserved queue slots hold a NoOperation carrying
	// UnfilledSlotMarker until they are filled.
	NoOperation Opcode = iota
	SetPrimitiveTopology
	SetInputLayout
	SetRasterizerState
	SetDepthStencilState
	SetBlendState
	SetViewport
	SetRenderTargets
	ClearRenderTarget
	ClearDepthStencil
	SetIndexBuffer
	SetVertexBuffer
	SetInstanceBuffer
	SetShader
	SetShaderResources
	BufferWrite
	Draw
	DrawIndexedInstanced
	Present
)

var opcodeNames = [...]string{
	NoOperation:          "NoOperation",
	SetPrimitiveTopology: "SetPrimitiveTopology",
	SetInputLayout:       "SetInputLayout",
	SetRasterizerState:   "SetRasterizerState",
	SetDepthStencilState: "SetDepthStencilState",
	SetBlendState:        "SetBlendState",
	SetViewport:          "SetViewport",
	SetRenderTargets:     "SetRenderTargets",
	ClearRenderTarget:    "ClearRenderTarget",
	ClearDepthStencil:    "ClearDepthStencil",
	SetIndexBuffer:       "SetIndexBuffer",
	SetVertexBuffer:      "SetVertexBuffer",
	SetInstanceBuffer:    "SetInstanceBuffer",
	SetShader:            "SetShader",
	SetShaderResources:   "SetShaderResources",
	BufferWrite:          "BufferWrite",
	Draw:                 "Draw",
	DrawIndexedInstanced: "DrawIndexedInstanced",
	Present:              "Present",
}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return fmt.Sprintf("Opcode(%d)", uint32(o))
}

// Handle references a backend resource (buffer, view, shader, input layout).
// Zero is never a valid handle and is used to unbind.
type Handle uint64

// ShaderStage selects the pipeline stage a shader or resource binding applies to.
type ShaderStage uint32

const (
	StageVertex ShaderStage = iota
	StageFragment
)

func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	default:
		return fmt.Sprintf("ShaderStage(%d)", uint32(s))
	}
}

// Topology is the primitive assembly mode.
type Topology uint64

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
)

// CullMode is the rasterizer face culling mode.
type CullMode uint64

const (
	CullBack CullMode = iota
	CullFront
	CullNone
)

// DepthMode selects the depth-stencil state.
type DepthMode uint64

const (
	// DepthReadWrite tests with less-than and writes depth.
	DepthReadWrite DepthMode = iota
	// DepthReadOnly tests with less-or-equal and never writes.
	DepthReadOnly
	// DepthDisabled neither tests nor writes.
	DepthDisabled
)

// BlendMode selects the color blend state applied to every bound render target.
type BlendMode uint64

const (
	BlendNone BlendMode = iota
	// BlendAdditive adds source to destination, used for light accumulation.
	BlendAdditive
	// BlendAlpha is standard source-over alpha blending.
	BlendAlpha
	// BlendAlphaOverride writes color additively but replaces destination alpha.
	BlendAlphaOverride
)
