package command

import (
	"fmt"
	"math"
)

// UnfilledSlotMarker is the operand stored in the NoOperation placeholder of a reserved slot.
const UnfilledSlotMarker uint64 = 12345678

// RenderCommand is one GPU instruction: an opcode plus three operand slots.
// Commands are plain values so that queues can store them contiguously and replay them verbatim.
type RenderCommand struct {
	Instruction Opcode
	Arg0        uint64
	Arg1        uint64
	Arg2        uint64
}

func (c RenderCommand) String() string {
	return fmt.Sprintf("%s(%d, %d, %d)", c.Instruction, c.Arg0, c.Arg1, c.Arg2)
}

func pack32(hi, lo uint32) uint64 {
	return uint64(hi)<<32 | uint64(lo)
}

func unpack32(v uint64) (uint32, uint32) {
	return uint32(v >> 32), uint32(v)
}

// NewNoOperation creates a NoOperation carrying an arbitrary marker value.
func NewNoOperation(marker uint64) RenderCommand {
	return RenderCommand{Instruction: NoOperation, Arg0: marker}
}

func NewSetPrimitiveTopology(t Topology) RenderCommand {
	return RenderCommand{Instruction: SetPrimitiveTopology, Arg0: uint64(t)}
}

func NewSetInputLayout(layout Handle) RenderCommand {
	return RenderCommand{Instruction: SetInputLayout, Arg0: uint64(layout)}
}

func NewSetRasterizerState(cull CullMode) RenderCommand {
	return RenderCommand{Instruction: SetRasterizerState, Arg0: uint64(cull)}
}

func NewSetDepthStencilState(mode DepthMode) RenderCommand {
	return RenderCommand{Instruction: SetDepthStencilState, Arg0: uint64(mode)}
}

func NewSetBlendState(mode BlendMode) RenderCommand {
	return RenderCommand{Instruction: SetBlendState, Arg0: uint64(mode)}
}

// NewSetViewport packs the viewport origin into Arg0 and its size into Arg1 as float32 bit pairs.
func NewSetViewport(x, y, width, height float32) RenderCommand {
	return RenderCommand{
		Instruction: SetViewport,
		Arg0:        pack32(math.Float32bits(x), math.Float32bits(y)),
		Arg1:        pack32(math.Float32bits(width), math.Float32bits(height)),
	}
}

// Viewport unpacks the operands of a SetViewport command.
func (c RenderCommand) Viewport() (x, y, width, height float32) {
	xb, yb := unpack32(c.Arg0)
	wb, hb := unpack32(c.Arg1)
	return math.Float32frombits(xb), math.Float32frombits(yb), math.Float32frombits(wb), math.Float32frombits(hb)
}

// NewSetRenderTargets binds a depth-stencil view (zero for none) and the color views staged at colors.
func NewSetRenderTargets(depth Handle, colors PayloadRef) RenderCommand {
	return RenderCommand{Instruction: SetRenderTargets, Arg0: uint64(depth), Arg1: colors.Pack()}
}

// NewClearRenderTarget clears a color view to the RGBA value staged at color.
func NewClearRenderTarget(target Handle, color PayloadRef) RenderCommand {
	return RenderCommand{Instruction: ClearRenderTarget, Arg0: uint64(target), Arg1: color.Pack()}
}

// NewClearDepthStencil clears a depth-stencil view. Depth bits occupy the low word of Arg1,
// the stencil value the high word.
func NewClearDepthStencil(target Handle, depth float32, stencil uint8) RenderCommand {
	return RenderCommand{
		Instruction: ClearDepthStencil,
		Arg0:        uint64(target),
		Arg1:        pack32(uint32(stencil), math.Float32bits(depth)),
	}
}

// DepthStencilClear unpacks the operands of a ClearDepthStencil command.
func (c RenderCommand) DepthStencilClear() (Handle, float32, uint8) {
	stencil, depth := unpack32(c.Arg1)
	return Handle(c.Arg0), math.Float32frombits(depth), uint8(stencil)
}

func NewSetIndexBuffer(buffer Handle) RenderCommand {
	return RenderCommand{Instruction: SetIndexBuffer, Arg0: uint64(buffer)}
}

// NewSetVertexBuffer binds a vertex buffer to a slot with the given element stride.
func NewSetVertexBuffer(buffer Handle, slot, stride uint32) RenderCommand {
	return RenderCommand{Instruction: SetVertexBuffer, Arg0: uint64(buffer), Arg1: uint64(slot), Arg2: uint64(stride)}
}

// NewSetInstanceBuffer binds the per-instance transform buffer to a vertex slot.
func NewSetInstanceBuffer(buffer Handle, slot uint32) RenderCommand {
	return RenderCommand{Instruction: SetInstanceBuffer, Arg0: uint64(buffer), Arg1: uint64(slot)}
}

func NewSetShader(stage ShaderStage, shader Handle) RenderCommand {
	return RenderCommand{Instruction: SetShader, Arg0: uint64(stage), Arg1: uint64(shader)}
}

// NewSetShaderResources binds the resource list staged at bindings to a shader stage.
func NewSetShaderResources(stage ShaderStage, shader Handle, bindings PayloadRef) RenderCommand {
	return RenderCommand{Instruction: SetShaderResources, Arg0: uint64(stage), Arg1: uint64(shader), Arg2: bindings.Pack()}
}

// NewBufferWrite discards the contents of a buffer and replaces them with the bytes staged at data.
func NewBufferWrite(buffer Handle, data PayloadRef) RenderCommand {
	return RenderCommand{Instruction: BufferWrite, Arg0: uint64(buffer), Arg1: data.Pack()}
}

func NewDraw(firstVertex, vertexCount uint32) RenderCommand {
	return RenderCommand{Instruction: Draw, Arg0: uint64(firstVertex), Arg1: uint64(vertexCount)}
}

// NewDrawIndexedInstanced packs an instanced indexed draw. The base vertex is Arg0, the index
// range is (start<<32 | count) in Arg1 and the instance range is (start<<32 | count) in Arg2.
func NewDrawIndexedInstanced(baseVertex, indexStart, indexCount, instanceStart, instanceCount uint32) RenderCommand {
	return RenderCommand{
		Instruction: DrawIndexedInstanced,
		Arg0:        uint64(baseVertex),
		Arg1:        pack32(indexStart, indexCount),
		Arg2:        pack32(instanceStart, instanceCount),
	}
}

// IndexedDraw unpacks the operands of a DrawIndexedInstanced command.
func (c RenderCommand) IndexedDraw() (baseVertex, indexStart, indexCount, instanceStart, instanceCount uint32) {
	indexStart, indexCount = unpack32(c.Arg1)
	instanceStart, instanceCount = unpack32(c.Arg2)
	return uint32(c.Arg0), indexStart, indexCount, instanceStart, instanceCount
}

func NewPresent() RenderCommand {
	return RenderCommand{Instruction: Present}
}

// Payload returns the payload reference carried by commands that stage variable-length data.
//
// Returns:
//   - PayloadRef: the reference, zero when the command carries none
//   - bool: true if the opcode carries a payload reference
func (c RenderCommand) Payload() (PayloadRef, bool) {
	switch c.Instruction {
	case SetRenderTargets, ClearRenderTarget, BufferWrite:
		return UnpackPayloadRef(c.Arg1), true
	case SetShaderResources:
		return UnpackPayloadRef(c.Arg2), true
	default:
		return PayloadRef{}, false
	}
}
