package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampViewport(t *testing.T) {
	vp := func(x, y, w, h float32) [4]float32 { return [4]float32{x, y, w, h} }
	clamped := func(v [4]float32, width, height uint32) [4]float32 {
		x, y, w, h := clampViewport(v, width, height)
		return vp(x, y, w, h)
	}

	assert.Equal(t, vp(0, 0, 320, 240), clamped(vp(0, 0, 320, 240), 640, 480))
	// A full-window viewport over a half-size target covers the target.
	assert.Equal(t, vp(0, 0, 320, 240), clamped(vp(0, 0, 640, 480), 320, 240))
	assert.Equal(t, vp(600, 400, 40, 80), clamped(vp(600, 400, 100, 100), 640, 480))
	assert.Equal(t, vp(0, 0, 50, 50), clamped(vp(-10, -5, 50, 50), 640, 480))
	assert.Equal(t, vp(640, 480, 0, 0), clamped(vp(700, 500, 10, 10), 640, 480))
}
