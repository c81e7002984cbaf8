package pass

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
)

// lightTargets are the intermediate targets of the lighting and post-processing chain.
// The first group has the output size, the second group half of it.
type lightTargets struct {
	width  uint32
	height uint32

	preBloom    backend.Texture
	dsThrowaway backend.Texture
	nonDoF      backend.Texture

	reducedBloom      backend.Texture
	bloomTarget       backend.Texture
	bloomResizeCopyDS backend.Texture
	dof               backend.Texture
	reducedNonDoF     backend.Texture
}

func (t *lightTargets) all() []*backend.Texture {
	return []*backend.Texture{
		&t.preBloom, &t.dsThrowaway, &t.nonDoF,
		&t.reducedBloom, &t.bloomTarget, &t.bloomResizeCopyDS, &t.dof, &t.reducedNonDoF,
	}
}

// halfSize returns the size of the reduced targets.
func (t *lightTargets) halfSize() (uint32, uint32) {
	return max(t.width/2, 1), max(t.height/2, 1)
}

// ensure recreates every target when the output size changed.
//
// Returns:
//   - bool: whether the targets were recreated
//   - error: an error if a texture could not be created
func (t *lightTargets) ensure(dev backend.Device, w, h uint32) (bool, error) {
	if t.preBloom.Valid() && t.width == w && t.height == h {
		return false, nil
	}
	t.release(dev)
	t.width, t.height = w, h
	hw, hh := t.halfSize()

	specs := []struct {
		dst    *backend.Texture
		label  string
		w, h   uint32
		format backend.TextureFormat
	}{
		{&t.preBloom, "light.prebloom", w, h, backend.FormatRGBA8},
		{&t.dsThrowaway, "light.ds_throwaway", w, h, backend.FormatDepth24},
		{&t.nonDoF, "light.non_dof", w, h, backend.FormatRGBA8},
		{&t.reducedBloom, "light.reduced_bloom", hw, hh, backend.FormatRGBA8},
		{&t.bloomTarget, "light.bloom_target", hw, hh, backend.FormatRGBA8},
		{&t.bloomResizeCopyDS, "light.bloom_resize_ds", hw, hh, backend.FormatDepth24},
		{&t.dof, "light.dof", hw, hh, backend.FormatRGBA8},
		{&t.reducedNonDoF, "light.reduced_non_dof", hw, hh, backend.FormatRGBA8},
	}
	for _, s := range specs {
		tex, err := dev.CreateTexture(backend.TextureDescriptor{
			Label:          s.label,
			Width:          s.w,
			Height:         s.h,
			Format:         s.format,
			RenderTarget:   !s.format.IsDepth(),
			ShaderResource: !s.format.IsDepth(),
		})
		if err != nil {
			t.release(dev)
			return false, fmt.Errorf("create %s: %w", s.label, err)
		}
		*s.dst = tex
	}
	return true, nil
}

func (t *lightTargets) release(dev backend.Device) {
	for _, tex := range t.all() {
		if tex.Valid() {
			dev.ReleaseTexture(*tex)
		}
		*tex = backend.Texture{}
	}
	t.width, t.height = 0, 0
}
