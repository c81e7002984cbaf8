package command

import (
	"encoding/binary"
	"math"
)

// PayloadRef locates variable-length command data inside the payload bytes submitted with a
// command batch. It packs into a single operand slot.
type PayloadRef struct {
	Offset uint32
	Length uint32
}

// Pack encodes the reference as (offset<<32 | length).
func (r PayloadRef) Pack() uint64 {
	return pack32(r.Offset, r.Length)
}

// UnpackPayloadRef decodes an operand produced by PayloadRef.Pack.
func UnpackPayloadRef(v uint64) PayloadRef {
	off, n := unpack32(v)
	return PayloadRef{Offset: off, Length: n}
}

// Bytes slices the referenced region out of payload, or nil when it is out of range.
func (r PayloadRef) Bytes(payload []byte) []byte {
	end := uint64(r.Offset) + uint64(r.Length)
	if end > uint64(len(payload)) {
		return nil
	}
	return payload[r.Offset:end]
}

// BindingKind classifies one shader resource binding.
type BindingKind uint32

const (
	BindConstantBuffer BindingKind = iota
	BindShaderResource
	BindSampler
)

// ResourceBinding is one entry of a SetShaderResources payload. A zero Handle unbinds the slot.
type ResourceBinding struct {
	Slot   uint32
	Kind   BindingKind
	Handle Handle
}

// ResourceBindingSize is the encoded size of a ResourceBinding.
const ResourceBindingSize = 16

// AppendBindings encodes bindings little-endian onto dst.
func AppendBindings(dst []byte, bindings []ResourceBinding) []byte {
	for _, b := range bindings {
		dst = binary.LittleEndian.AppendUint32(dst, b.Slot)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(b.Kind))
		dst = binary.LittleEndian.AppendUint64(dst, uint64(b.Handle))
	}
	return dst
}

// DecodeBindings decodes a SetShaderResources payload into dst and returns it.
func DecodeBindings(dst []ResourceBinding, data []byte) []ResourceBinding {
	for len(data) >= ResourceBindingSize {
		dst = append(dst, ResourceBinding{
			Slot:   binary.LittleEndian.Uint32(data[0:4]),
			Kind:   BindingKind(binary.LittleEndian.Uint32(data[4:8])),
			Handle: Handle(binary.LittleEndian.Uint64(data[8:16])),
		})
		data = data[ResourceBindingSize:]
	}
	return dst
}

// AppendHandles encodes a handle list little-endian onto dst.
func AppendHandles(dst []byte, handles ...Handle) []byte {
	for _, h := range handles {
		dst = binary.LittleEndian.AppendUint64(dst, uint64(h))
	}
	return dst
}

// DecodeHandles decodes a handle list payload into dst and returns it.
func DecodeHandles(dst []Handle, data []byte) []Handle {
	for len(data) >= 8 {
		dst = append(dst, Handle(binary.LittleEndian.Uint64(data)))
		data = data[8:]
	}
	return dst
}

// AppendColor encodes an RGBA color as four little-endian float32 values.
func AppendColor(dst []byte, rgba [4]float32) []byte {
	for _, c := range rgba {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(c))
	}
	return dst
}

// DecodeColor decodes a color written by AppendColor. Short input yields opaque black.
func DecodeColor(data []byte) [4]float32 {
	if len(data) < 16 {
		return [4]float32{0, 0, 0, 1}
	}
	var c [4]float32
	for i := range c {
		c[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return c
}
