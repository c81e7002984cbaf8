package pass

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
)

// InstanceBuffer is the per-pass CPU staging area for instance transforms, shared by every worker,
// together with the GPU buffer it is uploaded into. Workers claim disjoint ranges with Reserve and
// copy into them with Concat, so no two workers ever write the same entries.
type InstanceBuffer struct {
	mu     sync.Mutex
	cursor uint32
	data   []model.GPUInstance

	device backend.Device
	label  string
	gpu    command.Handle
	gpuLen uint32
}

// NewInstanceBuffer creates an empty instance buffer. The GPU buffer is allocated on first upload.
//
// Parameters:
//   - device: the backend device
//   - label: the label of the GPU buffer
//
// Returns:
//   - *InstanceBuffer: the buffer
func NewInstanceBuffer(device backend.Device, label string) *InstanceBuffer {
	if device == nil {
		panic("pass: NewInstanceBuffer requires a non-nil Device")
	}
	return &InstanceBuffer{device: device, label: label}
}

// Reset rewinds the cursor. Storage is kept.
func (b *InstanceBuffer) Reset() {
	b.mu.Lock()
	b.cursor = 0
	b.mu.Unlock()
}

// Reserve claims n consecutive entries.
//
// Parameters:
//   - n: the number of entries
//
// Returns:
//   - uint32: the offset of the first claimed entry
func (b *InstanceBuffer) Reserve(n uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	offset := b.cursor
	b.cursor += n
	return offset
}

// Concat copies the first n entries of local into the range starting at offset, growing the
// backing storage to (offset+n)<<1 entries when it is too small.
//
// Parameters:
//   - local: the worker's scratch entries
//   - offset: the offset returned by Reserve
//   - n: the number of entries to copy
func (b *InstanceBuffer) Concat(local []model.GPUInstance, offset, n uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	end := int(offset + n)
	if end > len(b.data) {
		grown := make([]model.GPUInstance, int(offset+n)<<1)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[offset:end], local[:n])
}

// Len returns the number of reserved entries.
func (b *InstanceBuffer) Len() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// Capacity returns the number of entries the CPU storage holds.
func (b *InstanceBuffer) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Entries returns a copy of the reserved entries.
func (b *InstanceBuffer) Entries() []model.GPUInstance {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.GPUInstance, b.cursor)
	copy(out, b.data)
	return out
}

// Handle returns the current GPU buffer, zero before the first upload.
func (b *InstanceBuffer) Handle() command.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gpu
}

// prepareUpload reallocates the GPU buffer when it is smaller than the CPU storage and returns the
// buffer together with the bytes to discard-write into it. Must not run concurrently with Concat.
func (b *InstanceBuffer) prepareUpload() (command.Handle, []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return b.gpu, nil, nil
	}
	if b.gpuLen < uint32(len(b.data)) {
		h, err := b.device.CreateBuffer(backend.BufferDescriptor{
			Label: b.label,
			Size:  uint64(len(b.data)) * model.GPUInstanceStride,
			Usage: backend.BufferUsageVertex,
		})
		if err != nil {
			return 0, nil, err
		}
		b.device.Release(b.gpu)
		b.gpu, b.gpuLen = h, uint32(len(b.data))
	}
	return b.gpu, model.MarshalInstances(b.data), nil
}

// Dispose releases the GPU buffer.
func (b *InstanceBuffer) Dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.device.Release(b.gpu)
	b.gpu, b.gpuLen = 0, 0
	b.data = nil
	b.cursor = 0
}
