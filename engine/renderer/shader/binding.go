package shader

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
)

// Binding is one named resource slot of a shader stage. Constant buffer bindings own a backend
// buffer sized from the WGSL declaration and hold the value written into it on every resource
// update; view and sampler bindings hold the handle bound by default.
type Binding struct {
	Name string
	Slot uint32
	Kind command.BindingKind
	// Size is the byte size of a constant buffer binding, zero for other kinds.
	Size uint64

	buffer command.Handle

	mu    sync.RWMutex
	value []byte
	bound command.Handle
}

// IsConstantBuffer reports whether the binding is backed by a buffer.
func (b *Binding) IsConstantBuffer() bool {
	return b.Kind == command.BindConstantBuffer
}

// Buffer returns the backing buffer of a constant buffer binding.
func (b *Binding) Buffer() command.Handle {
	return b.buffer
}

// SetValue replaces the default value of a constant buffer binding. The data is copied.
//
// Parameters:
//   - data: the new contents; at most Size bytes
//
// Returns:
//   - error: an error if the binding is not a constant buffer or data is larger than the buffer
func (b *Binding) SetValue(data []byte) error {
	if err := b.checkValue(data); err != nil {
		return err
	}
	b.mu.Lock()
	b.value = append(b.value[:0], data...)
	b.mu.Unlock()
	return nil
}

// Value returns a copy of the default value of a constant buffer binding.
func (b *Binding) Value() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.value)
}

// Bind sets the handle bound by default to a view or sampler binding. Zero unbinds.
//
// Parameters:
//   - h: the view or sampler handle
func (b *Binding) Bind(h command.Handle) {
	if b.IsConstantBuffer() {
		panic(fmt.Sprintf("shader: Bind on constant buffer binding %q", b.Name))
	}
	b.mu.Lock()
	b.bound = h
	b.mu.Unlock()
}

// Bound returns the handle bound by default to a view or sampler binding.
func (b *Binding) Bound() command.Handle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bound
}

func (b *Binding) checkValue(data []byte) error {
	if !b.IsConstantBuffer() {
		return fmt.Errorf("shader: binding %q is not a constant buffer", b.Name)
	}
	if uint64(len(data)) > b.Size {
		return fmt.Errorf("shader: value of %d bytes exceeds binding %q of %d bytes", len(data), b.Name, b.Size)
	}
	return nil
}
