package backend

import (
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
)

// Device is the graphics backend: a resource factory plus the contexts that consume command streams.
//
// Exactly one goroutine (the master) may submit to the immediate context and execute command lists.
// Deferred contexts are created per worker and only record.
type Device interface {
	// Immediate returns the context whose submissions execute directly on the GPU queue.
	//
	// Returns:
	//   - Context: the immediate context
	Immediate() Context

	// NewDeferredContext creates a recording context for a worker goroutine.
	//
	// Returns:
	//   - Context: the deferred context
	//   - error: an error if the backend could not allocate the context
	NewDeferredContext() (Context, error)

	// ExecuteCommandList replays a list produced by a deferred context's Finish.
	// Must only be called from the master goroutine.
	//
	// Parameters:
	//   - list: the finished command list; it is released after execution
	//
	// Returns:
	//   - error: a *SubmissionError if the backend rejected the list
	ExecuteCommandList(list CommandList) error

	// CreateBuffer allocates a GPU buffer.
	//
	// Parameters:
	//   - desc: size, usage and label of the buffer
	//
	// Returns:
	//   - command.Handle: the buffer handle
	//   - error: an error if allocation failed
	CreateBuffer(desc BufferDescriptor) (command.Handle, error)

	// WriteBuffer uploads data into a buffer outside of any command stream.
	// Intended for static geometry at load time.
	//
	// Parameters:
	//   - buffer: the destination buffer handle
	//   - offset: byte offset into the buffer
	//   - data: the bytes to upload
	//
	// Returns:
	//   - error: an error if the handle is unknown or the write is out of range
	WriteBuffer(buffer command.Handle, offset uint64, data []byte) error

	// BufferSize returns the byte size of a buffer, or zero for an unknown handle.
	BufferSize(buffer command.Handle) uint64

	// CreateTexture allocates a 2D texture together with the views its usage requests.
	//
	// Parameters:
	//   - desc: dimensions, format and requested views
	//
	// Returns:
	//   - Texture: the texture and its view handles
	//   - error: an error if allocation failed
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// CreateSampler creates a texture sampler.
	CreateSampler(desc SamplerDescriptor) (command.Handle, error)

	// CreateShader creates a shader module for one stage.
	CreateShader(desc ShaderDescriptor) (command.Handle, error)

	// CreateInputLayout creates a vertex input layout validated against a vertex shader.
	CreateInputLayout(vertexShader command.Handle, desc InputLayoutDescriptor) (command.Handle, error)

	// WindowTargets returns the render target and depth-stencil views of the window back buffer.
	//
	// Returns:
	//   - Texture: the window color target (RenderTarget) and depth target (DepthStencil)
	//   - bool: false when the window has no usable back buffer, e.g. while minimized
	WindowTargets() (Texture, bool)

	// Resize recreates the window back buffer targets.
	Resize(width, height int) error

	// Release frees the resource behind a handle. Releasing zero or an unknown handle is a no-op.
	Release(h command.Handle)

	// ReleaseTexture frees a texture and every view created with it.
	ReleaseTexture(t Texture)

	// Close releases every backend resource.
	Close() error
}

// Context consumes command batches. Payload holds the variable-length data referenced by
// command.PayloadRef operands in cmds.
type Context interface {
	// Submit executes (immediate) or records (deferred) a batch of commands.
	//
	// Parameters:
	//   - cmds: the commands in execution order
	//   - payload: the bytes referenced by payload operands in cmds
	//
	// Returns:
	//   - error: a *SubmissionError carrying the backend diagnostic on failure
	Submit(cmds []command.RenderCommand, payload []byte) error

	// Finish closes the current recording and returns it as a replayable list.
	// Returns ErrNotDeferred on the immediate context.
	Finish() (CommandList, error)

	// Deferred reports whether the context records instead of executing.
	Deferred() bool
}

// CommandList is a finished recording from a deferred context.
type CommandList interface {
	// Len returns the number of recorded commands.
	Len() int

	// Release frees the recording without executing it.
	Release()
}
