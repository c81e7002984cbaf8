package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawIndexedInstancedPacking(t *testing.T) {
	cmd := NewDrawIndexedInstanced(120, 3000, 36, 17, 9)
	assert.Equal(t, DrawIndexedInstanced, cmd.Instruction)

	vb, ibStart, ibCount, instStart, instCount := cmd.IndexedDraw()
	assert.Equal(t, uint32(120), vb)
	assert.Equal(t, uint32(3000), ibStart)
	assert.Equal(t, uint32(36), ibCount)
	assert.Equal(t, uint32(17), instStart)
	assert.Equal(t, uint32(9), instCount)
}

func TestViewportAndDepthClearPacking(t *testing.T) {
	x, y, w, h := NewSetViewport(0, 0.5, 1280, 720).Viewport()
	assert.Equal(t, []float32{0, 0.5, 1280, 720}, []float32{x, y, w, h})

	target, depth, stencil := NewClearDepthStencil(7, 1, 3).DepthStencilClear()
	assert.Equal(t, Handle(7), target)
	assert.Equal(t, float32(1), depth)
	assert.Equal(t, uint8(3), stencil)
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "Draw", Draw.String())
	assert.Equal(t, "Opcode(999)", Opcode(999).String())
	assert.Equal(t, "NoOperation(12345678, 0, 0)", NewNoOperation(UnfilledSlotMarker).String())
}

func TestPayloadRef(t *testing.T) {
	ref := PayloadRef{Offset: 16, Length: 8}
	assert.Equal(t, ref, UnpackPayloadRef(ref.Pack()))

	payload := make([]byte, 24)
	payload[16] = 0xAB
	data := ref.Bytes(payload)
	require.Len(t, data, 8)
	assert.Equal(t, byte(0xAB), data[0])

	assert.Nil(t, PayloadRef{Offset: 20, Length: 8}.Bytes(payload))
}

func TestBindingAndHandleEncoding(t *testing.T) {
	in := []ResourceBinding{
		{Slot: 0, Kind: BindConstantBuffer, Handle: 11},
		{Slot: 3, Kind: BindShaderResource, Handle: 0},
	}
	out := DecodeBindings(nil, AppendBindings(nil, in))
	assert.Equal(t, in, out)

	handles := DecodeHandles(nil, AppendHandles(nil, 4, 5, 6))
	assert.Equal(t, []Handle{4, 5, 6}, handles)

	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, DecodeColor(AppendColor(nil, [4]float32{0.1, 0.2, 0.3, 1})))
	assert.Equal(t, [4]float32{0, 0, 0, 1}, DecodeColor(nil))
}

func TestFastClearList(t *testing.T) {
	l := NewFastClearList[int](2)
	for i := range 5 {
		l.Add(i)
	}
	assert.Equal(t, 5, l.Len())
	assert.Equal(t, 8, l.Cap())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, l.Slice())

	*l.Ptr(1) = 10
	assert.Equal(t, 10, l.At(1))

	capBefore := l.Cap()
	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, capBefore, l.Cap())
	assert.Empty(t, l.Slice())

	l.AddRange([]int{7, 8, 9, 10, 11, 12, 13, 14, 15})
	assert.Equal(t, 9, l.Len())
	assert.Equal(t, 16, l.Cap())

	assert.Panics(t, func() { l.At(9) })
}

func TestQueueItem(t *testing.T) {
	item := QueueItem{Kind: ItemAction, Action: func() {}}
	assert.True(t, item.IsAction())
	assert.False(t, QueueItem{Command: NewPresent()}.IsAction())
}
