package shader

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
)

// ResourcePackage overrides binding values for one resource update. Bindings without an
// override fall back to the binding's own default. A package may be shared between goroutines.
type ResourcePackage struct {
	mu     sync.RWMutex
	values map[*Binding][]byte
	views  map[*Binding]command.Handle
}

// NewResourcePackage creates an empty package.
//
// Returns:
//   - *ResourcePackage: the new package
func NewResourcePackage() *ResourcePackage {
	return &ResourcePackage{
		values: make(map[*Binding][]byte),
		views:  make(map[*Binding]command.Handle),
	}
}

// SetValue overrides the contents written to a constant buffer binding. The data is copied.
//
// Parameters:
//   - b: the constant buffer binding
//   - data: the contents; at most b.Size bytes
//
// Returns:
//   - error: an error if the binding is not a constant buffer or data is too large
func (p *ResourcePackage) SetValue(b *Binding, data []byte) error {
	if b == nil {
		panic("shader: SetValue requires a non-nil Binding")
	}
	if err := b.checkValue(data); err != nil {
		return err
	}
	p.mu.Lock()
	p.values[b] = append(p.values[b][:0], data...)
	p.mu.Unlock()
	return nil
}

// SetResource overrides the handle bound to a view or sampler binding. Zero unbinds the slot.
//
// Parameters:
//   - b: the view or sampler binding
//   - h: the handle to bind
func (p *ResourcePackage) SetResource(b *Binding, h command.Handle) {
	if b == nil {
		panic("shader: SetResource requires a non-nil Binding")
	}
	if b.IsConstantBuffer() {
		panic(fmt.Sprintf("shader: SetResource on constant buffer binding %q", b.Name))
	}
	p.mu.Lock()
	p.views[b] = h
	p.mu.Unlock()
}

// Value returns the contents that will be written to b, falling back to the binding default.
func (p *ResourcePackage) Value(b *Binding) []byte {
	p.mu.RLock()
	v, ok := p.values[b]
	p.mu.RUnlock()
	if ok {
		return slices.Clone(v)
	}
	return b.Value()
}

// Resource returns the handle that will be bound to b, falling back to the binding default.
func (p *ResourcePackage) Resource(b *Binding) command.Handle {
	p.mu.RLock()
	h, ok := p.views[b]
	p.mu.RUnlock()
	if ok {
		return h
	}
	return b.Bound()
}

// CopyFrom copies every override of src into p, replacing overrides of the same bindings.
func (p *ResourcePackage) CopyFrom(src *ResourcePackage) {
	if src == nil || src == p {
		return
	}
	src.mu.RLock()
	values := make(map[*Binding][]byte, len(src.values))
	for b, v := range src.values {
		values[b] = slices.Clone(v)
	}
	views := maps.Clone(src.views)
	src.mu.RUnlock()

	p.mu.Lock()
	maps.Copy(p.values, values)
	maps.Copy(p.views, views)
	p.mu.Unlock()
}

// Merge replaces every override of p with the overrides of base, then those of top, reusing the
// storage p already holds. Either source may be nil; neither may be p.
func (p *ResourcePackage) Merge(base, top *ResourcePackage) {
	if base == p || top == p {
		panic("shader: Merge into one of its own sources")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for b := range p.values {
		if !base.hasValue(b) && !top.hasValue(b) {
			delete(p.values, b)
		}
	}
	clear(p.views)
	p.mergeLocked(base)
	p.mergeLocked(top)
}

func (p *ResourcePackage) hasValue(b *Binding) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	_, ok := p.values[b]
	p.mu.RUnlock()
	return ok
}

// mergeLocked copies the overrides of src into p. Callers hold p.mu.
func (p *ResourcePackage) mergeLocked(src *ResourcePackage) {
	if src == nil {
		return
	}
	src.mu.RLock()
	for b, v := range src.values {
		p.values[b] = append(p.values[b][:0], v...)
	}
	maps.Copy(p.views, src.views)
	src.mu.RUnlock()
}

// Clone returns an independent copy of the package.
func (p *ResourcePackage) Clone() *ResourcePackage {
	c := NewResourcePackage()
	c.CopyFrom(p)
	return c
}
