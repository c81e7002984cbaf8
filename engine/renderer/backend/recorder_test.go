package backend

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingDeviceImmediateExecutes(t *testing.T) {
	dev := NewRecordingDevice(640, 480)
	buf, err := dev.CreateBuffer(BufferDescriptor{Label: "cb", Size: 8, Usage: BufferUsageConstant})
	require.NoError(t, err)

	payload := []byte{1, 2, 3, 4}
	cmds := []command.RenderCommand{
		command.NewBufferWrite(buf, command.PayloadRef{Offset: 0, Length: 4}),
		command.NewDraw(0, 3),
	}
	require.NoError(t, dev.Immediate().Submit(cmds, payload))

	ops := dev.Operations()
	require.Len(t, ops, 2)
	assert.Equal(t, 0, ops[0].Context)
	assert.Equal(t, payload, ops[0].Payload)
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, dev.BufferData(buf))
	assert.Equal(t, 1, dev.Count(command.Draw))
}

func TestRecordingDeviceDeferredReplay(t *testing.T) {
	dev := NewRecordingDevice(640, 480)
	ctx, err := dev.NewDeferredContext()
	require.NoError(t, err)
	assert.True(t, ctx.Deferred())

	require.NoError(t, ctx.Submit([]command.RenderCommand{command.NewDraw(0, 3)}, nil))
	assert.Empty(t, dev.Operations(), "deferred submissions must not execute")

	list, err := ctx.Finish()
	require.NoError(t, err)
	assert.Equal(t, 1, list.Len())

	require.NoError(t, dev.ExecuteCommandList(list))
	ops := dev.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, 1, ops[0].Context)

	var se *SubmissionError
	require.ErrorAs(t, dev.ExecuteCommandList(list), &se)
	assert.Equal(t, "command list already released", se.Diagnostic)

	_, err = dev.Immediate().Finish()
	assert.ErrorIs(t, err, ErrNotDeferred)
}

func TestRecordingDeviceFailures(t *testing.T) {
	dev := NewRecordingDevice(640, 480)

	dev.FailNextSubmit("device removed")
	err := dev.Immediate().Submit([]command.RenderCommand{command.NewPresent()}, nil)
	assert.Equal(t, "device removed", Diagnostic(err))
	assert.Empty(t, dev.Operations())

	require.NoError(t, dev.Immediate().Submit([]command.RenderCommand{command.NewPresent()}, nil))

	err = dev.Immediate().Submit([]command.RenderCommand{
		command.NewBufferWrite(99, command.PayloadRef{Length: 4}),
	}, make([]byte, 4))
	assert.True(t, errors.Is(err, ErrUnknownHandle))

	err = dev.Immediate().Submit([]command.RenderCommand{
		command.NewClearRenderTarget(1, command.PayloadRef{Offset: 8, Length: 16}),
	}, make([]byte, 4))
	assert.NotEmpty(t, Diagnostic(err))
}

func TestRecordingDeviceResources(t *testing.T) {
	dev := NewRecordingDevice(640, 480)

	window, ok := dev.WindowTargets()
	require.True(t, ok)
	assert.NotZero(t, window.RenderTarget)
	assert.NotZero(t, window.DepthStencil)

	tex, err := dev.CreateTexture(TextureDescriptor{Width: 4, Height: 4, Format: FormatRGBA16Float, RenderTarget: true, ShaderResource: true})
	require.NoError(t, err)
	assert.Equal(t, "render target view", dev.ResourceKind(tex.RenderTarget))
	assert.Zero(t, tex.DepthStencil)

	depth, err := dev.CreateTexture(TextureDescriptor{Width: 4, Height: 4, Format: FormatDepth24, ShaderResource: true})
	require.NoError(t, err)
	assert.NotZero(t, depth.DepthStencil)
	assert.Zero(t, depth.RenderTarget)

	before := dev.LiveResources()
	dev.ReleaseTexture(tex)
	assert.Equal(t, before-3, dev.LiveResources())

	vs, _ := dev.CreateShader(ShaderDescriptor{Stage: command.StageVertex})
	fs, _ := dev.CreateShader(ShaderDescriptor{Stage: command.StageFragment})
	_, err = dev.CreateInputLayout(vs, InputLayoutDescriptor{})
	assert.NoError(t, err)
	_, err = dev.CreateInputLayout(fs, InputLayoutDescriptor{})
	assert.ErrorIs(t, err, ErrUnknownHandle)

	require.NoError(t, dev.Resize(0, 0))
	_, ok = dev.WindowTargets()
	assert.False(t, ok)
}
