package profiler

import (
	"bytes"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestProfilerReportsPassAverages(t *testing.T) {
	var out bytes.Buffer
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewProfiler(
		WithInterval(time.Second),
		WithLogger(logger.NewWriterLogger("test", false, &out, &out)),
		withClock(clock.now),
	)

	p.RecordPass("geometry", 2*time.Millisecond)
	p.RecordPass("light", time.Millisecond)
	p.RecordPass("geometry", 4*time.Millisecond)
	clock.t = clock.t.Add(500 * time.Millisecond)
	assert.False(t, p.Tick())

	clock.t = clock.t.Add(500 * time.Millisecond)
	require.True(t, p.Tick())

	r := p.LastReport()
	assert.InDelta(t, 2, r.FPS, 1e-9)
	require.Len(t, r.Passes, 2)
	assert.Equal(t, "geometry", r.Passes[0].Name)
	assert.Equal(t, 2, r.Passes[0].Runs)
	assert.Equal(t, 3*time.Millisecond, r.Passes[0].Average)
	assert.Equal(t, "light", r.Passes[1].Name)
	assert.Contains(t, out.String(), "geometry=3ms")

	clock.t = clock.t.Add(time.Second)
	require.True(t, p.Tick())
	assert.Zero(t, p.LastReport().Passes[0].Runs)
}
