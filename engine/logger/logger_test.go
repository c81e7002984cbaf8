package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggerLevels(t *testing.T) {
	var out, errOut bytes.Buffer
	l := NewWriterLogger("renderer", false, &out, &errOut)

	l.Debugf("hidden %d", 1)
	assert.False(t, l.DebugEnabled())
	assert.Empty(t, out.String())

	l.SetDebug(true)
	assert.True(t, l.DebugEnabled())
	l.Debugf("shown %d", 2)
	l.Infof("frame %d", 3)
	l.Warnf("slow pass %s", "light")
	l.Errorf("submit failed")

	assert.Contains(t, out.String(), "DEBUG\trenderer\tshown 2")
	assert.Contains(t, out.String(), "INFO\trenderer\tframe 3")
	assert.Contains(t, errOut.String(), "WARN\trenderer\tslow pass light")
	assert.Contains(t, errOut.String(), "ERROR\trenderer\tsubmit failed")
	assert.NotContains(t, out.String(), "WARN")
	assert.NotContains(t, errOut.String(), "INFO")

	l.SetDebug(false)
	l.Debugf("hidden again")
	assert.NotContains(t, out.String(), "hidden")
	require.NoError(t, l.Sync())
}

func TestDefaultLoggerWithoutPrefix(t *testing.T) {
	var out bytes.Buffer
	l := NewWriterLogger("", true, &out, &out)
	l.Infof("plain")
	l.Warnf("shared writer")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "INFO\tplain"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "WARN\tshared writer"), lines[1])
}

func TestOrNop(t *testing.T) {
	l := OrNop(nil)
	assert.NotNil(t, l)
	assert.False(t, l.DebugEnabled())
	l.SetDebug(true)
	assert.False(t, l.DebugEnabled())

	d := NewDefaultLogger("x", false)
	assert.Same(t, d, OrNop(d))
}
