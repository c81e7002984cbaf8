package queue

import (
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
)

// SetRenderTargets queues a render target switch. A zero depth handle binds no depth buffer.
func SetRenderTargets(q Queue, depth command.Handle, colors ...command.Handle) {
	ref := q.Payload(command.AppendHandles(nil, colors...))
	q.QueueCommand(command.NewSetRenderTargets(depth, ref))
}

// ClearRenderTarget queues a color clear.
func ClearRenderTarget(q Queue, target command.Handle, rgba [4]float32) {
	ref := q.Payload(command.AppendColor(nil, rgba))
	q.QueueCommand(command.NewClearRenderTarget(target, ref))
}

// SetShaderResources queues a resource binding update for one shader stage.
func SetShaderResources(q Queue, stage command.ShaderStage, shader command.Handle, bindings []command.ResourceBinding) {
	ref := q.Payload(command.AppendBindings(nil, bindings))
	q.QueueCommand(command.NewSetShaderResources(stage, shader, ref))
}

// BufferWrite queues a discard-write of a whole buffer.
func BufferWrite(q Queue, buffer command.Handle, data []byte) {
	ref := q.Payload(data)
	q.QueueCommand(command.NewBufferWrite(buffer, ref))
}
