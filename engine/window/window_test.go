package window

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
	"github.com/stretchr/testify/assert"
)

func TestClampSize(t *testing.T) {
	w := &engineWindow{minWidth: 600, minHeight: 200, maxWidth: 1600, maxHeight: 1200}

	width, height := w.clampSize(1280, 720)
	assert.Equal(t, 1280, width)
	assert.Equal(t, 720, height)

	width, height = w.clampSize(100, 5000)
	assert.Equal(t, 600, width)
	assert.Equal(t, 1200, height)
}

func TestSizeAndAspect(t *testing.T) {
	w := &engineWindow{}
	assert.Equal(t, float32(1), w.Aspect())

	w.setSize(1600, 800)
	assert.Equal(t, 1600, w.Width())
	assert.Equal(t, 800, w.Height())
	assert.Equal(t, float32(2), w.Aspect())
}

func TestCloseCallbackFiresOnce(t *testing.T) {
	w := &engineWindow{log: logger.NewNopLogger()}
	calls := 0
	w.SetCloseCallback(func() { calls++ })

	w.notifyClosed()
	w.notifyClosed()
	assert.Equal(t, 1, calls)
}

func TestUnspawnedWindow(t *testing.T) {
	w := &engineWindow{}
	assert.False(t, w.IsRunning())
	assert.Nil(t, w.SurfaceDescriptor())
	assert.Error(t, w.Close())
}
