package backend

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
)

// Operation is one entry of a RecordingDevice execution log.
type Operation struct {
	// Context is 0 for the immediate context and the deferred context id otherwise.
	Context int
	Command command.RenderCommand
	// Payload is a copy of the bytes the command referenced, if any.
	Payload []byte
	// Note is set for markers added with Note; Command is zero for those.
	Note string
}

// RecordingDevice is a headless Device that executes nothing on a GPU. Every command that reaches
// the immediate context, directly or through an executed command list, is appended to an ordered
// log, and buffer writes are applied to in-memory buffers. Submits to deferred contexts go to a
// second log at recording time.
type RecordingDevice struct {
	mu          sync.Mutex
	nextHandle  command.Handle
	nextContext int
	log         []Operation
	recorded    []Operation
	resources   map[command.Handle]string
	buffers     map[command.Handle][]byte
	textures    map[command.Handle]Texture
	window      Texture
	windowOK    bool
	failNext    string
	closed      bool
	immediate   *recordingContext
}

var _ Device = &RecordingDevice{}

// NewRecordingDevice creates a headless device with a window back buffer of the given size.
//
// Parameters:
//   - width: the back buffer width in pixels
//   - height: the back buffer height in pixels
//
// Returns:
//   - *RecordingDevice: the new device
func NewRecordingDevice(width, height int) *RecordingDevice {
	d := &RecordingDevice{
		resources: make(map[command.Handle]string),
		buffers:   make(map[command.Handle][]byte),
		textures:  make(map[command.Handle]Texture),
	}
	d.immediate = &recordingContext{device: d}
	if err := d.Resize(width, height); err != nil {
		panic(err)
	}
	return d
}

type recordingContext struct {
	device   *RecordingDevice
	id       int
	deferred bool
	pending  []Operation
}

type recordedList struct {
	ops      []Operation
	released bool
}

func (l *recordedList) Len() int { return len(l.ops) }

func (l *recordedList) Release() {
	l.ops = nil
	l.released = true
}

func (c *recordingContext) Deferred() bool {
	return c.deferred
}

func (c *recordingContext) Submit(cmds []command.RenderCommand, payload []byte) error {
	d := c.device
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if diag := d.takeFailure(); diag != "" {
		return &SubmissionError{Op: "submit", Diagnostic: diag}
	}

	ops := make([]Operation, 0, len(cmds))
	for i, cmd := range cmds {
		op := Operation{Context: c.id, Command: cmd}
		if ref, ok := cmd.Payload(); ok && ref.Length > 0 {
			data := ref.Bytes(payload)
			if data == nil {
				return &SubmissionError{
					Op:         "submit",
					Diagnostic: fmt.Sprintf("command %d (%s) payload %d+%d outside %d staged bytes", i, cmd.Instruction, ref.Offset, ref.Length, len(payload)),
				}
			}
			op.Payload = slices.Clone(data)
		}
		if cmd.Instruction == command.BufferWrite {
			if _, ok := d.buffers[command.Handle(cmd.Arg0)]; !ok {
				return &SubmissionError{Op: "submit", Diagnostic: fmt.Sprintf("command %d writes unknown buffer %d", i, cmd.Arg0), Err: ErrUnknownHandle}
			}
		}
		ops = append(ops, op)
	}

	if c.deferred {
		c.pending = append(c.pending, ops...)
		d.recorded = append(d.recorded, ops...)
		return nil
	}
	return d.apply(ops)
}

func (c *recordingContext) Finish() (CommandList, error) {
	if !c.deferred {
		return nil, ErrNotDeferred
	}
	list := &recordedList{ops: c.pending}
	c.pending = nil
	return list, nil
}

// apply executes ops against the log and the in-memory buffers. Callers hold d.mu.
func (d *RecordingDevice) apply(ops []Operation) error {
	for _, op := range ops {
		if op.Command.Instruction == command.BufferWrite {
			buf := d.buffers[command.Handle(op.Command.Arg0)]
			if len(op.Payload) > len(buf) {
				return &SubmissionError{
					Op:         "execute",
					Diagnostic: fmt.Sprintf("write of %d bytes exceeds buffer %d of %d bytes", len(op.Payload), op.Command.Arg0, len(buf)),
				}
			}
			copy(buf, op.Payload)
		}
		d.log = append(d.log, op)
	}
	return nil
}

func (d *RecordingDevice) takeFailure() string {
	diag := d.failNext
	d.failNext = ""
	return diag
}

func (d *RecordingDevice) Immediate() Context {
	return d.immediate
}

func (d *RecordingDevice) NewDeferredContext() (Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	d.nextContext++
	return &recordingContext{device: d, id: d.nextContext, deferred: true}, nil
}

func (d *RecordingDevice) ExecuteCommandList(list CommandList) error {
	rl, ok := list.(*recordedList)
	if !ok {
		return &SubmissionError{Op: "execute", Diagnostic: fmt.Sprintf("foreign command list %T", list)}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if rl.released {
		return &SubmissionError{Op: "execute", Diagnostic: "command list already released"}
	}
	defer rl.Release()
	if diag := d.takeFailure(); diag != "" {
		return &SubmissionError{Op: "execute", Diagnostic: diag}
	}
	return d.apply(rl.ops)
}

func (d *RecordingDevice) newHandle(kind string) command.Handle {
	d.nextHandle++
	d.resources[d.nextHandle] = kind
	return d.nextHandle
}

func (d *RecordingDevice) CreateBuffer(desc BufferDescriptor) (command.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	h := d.newHandle("buffer")
	d.buffers[h] = make([]byte, desc.Size)
	return h, nil
}

func (d *RecordingDevice) WriteBuffer(buffer command.Handle, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[buffer]
	if !ok {
		return fmt.Errorf("write buffer %d: %w", buffer, ErrUnknownHandle)
	}
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return fmt.Errorf("write buffer %d: %d bytes at offset %d exceed size %d", buffer, len(data), offset, len(buf))
	}
	copy(buf[offset:], data)
	return nil
}

func (d *RecordingDevice) BufferSize(buffer command.Handle) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(len(d.buffers[buffer]))
}

func (d *RecordingDevice) CreateTexture(desc TextureDescriptor) (Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Texture{}, ErrClosed
	}
	return d.createTexture(desc), nil
}

func (d *RecordingDevice) createTexture(desc TextureDescriptor) Texture {
	t := Texture{
		Handle: d.newHandle("texture"),
		Width:  desc.Width,
		Height: desc.Height,
		Format: desc.Format,
	}
	if desc.Format.IsDepth() {
		t.DepthStencil = d.newHandle("depth-stencil view")
	} else if desc.RenderTarget {
		t.RenderTarget = d.newHandle("render target view")
	}
	if desc.ShaderResource {
		t.ShaderResource = d.newHandle("shader resource view")
	}
	d.textures[t.Handle] = t
	return t
}

func (d *RecordingDevice) CreateSampler(desc SamplerDescriptor) (command.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newHandle("sampler"), nil
}

func (d *RecordingDevice) CreateShader(desc ShaderDescriptor) (command.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newHandle("shader:" + desc.Stage.String()), nil
}

func (d *RecordingDevice) CreateInputLayout(vertexShader command.Handle, desc InputLayoutDescriptor) (command.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resources[vertexShader] != "shader:vertex" {
		return 0, fmt.Errorf("input layout %q: %w: %d is not a vertex shader", desc.Label, ErrUnknownHandle, vertexShader)
	}
	return d.newHandle("input layout"), nil
}

func (d *RecordingDevice) WindowTargets() (Texture, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window, d.windowOK
}

func (d *RecordingDevice) Resize(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.window.Valid() {
		d.releaseTexture(d.window)
	}
	color := d.createTexture(TextureDescriptor{Label: "window", Width: uint32(width), Height: uint32(height), Format: FormatWindow, RenderTarget: true})
	depth := d.createTexture(TextureDescriptor{Label: "window depth", Width: uint32(width), Height: uint32(height), Format: FormatDepth24})
	color.DepthStencil = depth.DepthStencil
	d.window = color
	d.windowOK = width > 0 && height > 0
	return nil
}

func (d *RecordingDevice) Release(h command.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.resources, h)
	delete(d.buffers, h)
}

func (d *RecordingDevice) ReleaseTexture(t Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseTexture(t)
}

func (d *RecordingDevice) releaseTexture(t Texture) {
	for _, h := range []command.Handle{t.Handle, t.RenderTarget, t.ShaderResource, t.DepthStencil} {
		delete(d.resources, h)
	}
	delete(d.textures, t.Handle)
}

func (d *RecordingDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// FailNextSubmit makes the next Submit or ExecuteCommandList fail with the given diagnostic.
func (d *RecordingDevice) FailNextSubmit(diagnostic string) {
	d.mu.Lock()
	d.failNext = diagnostic
	d.mu.Unlock()
}

// SetWindowAvailable toggles whether WindowTargets reports a usable back buffer.
func (d *RecordingDevice) SetWindowAvailable(ok bool) {
	d.mu.Lock()
	d.windowOK = ok
	d.mu.Unlock()
}

// Note appends a marker to the execution log and to the recording log.
func (d *RecordingDevice) Note(label string) {
	d.mu.Lock()
	d.log = append(d.log, Operation{Context: -1, Note: label})
	d.recorded = append(d.recorded, Operation{Context: -1, Note: label})
	d.mu.Unlock()
}

// Recorded returns a copy of the recording log: operations submitted to deferred contexts, in
// the order they were recorded, interleaved with markers added with Note.
func (d *RecordingDevice) Recorded() []Operation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.recorded)
}

// Operations returns a copy of the execution log.
func (d *RecordingDevice) Operations() []Operation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.log)
}

// Commands returns the logged operations with the given opcode, in execution order.
func (d *RecordingDevice) Commands(op command.Opcode) []Operation {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Operation
	for _, o := range d.log {
		if o.Note == "" && o.Command.Instruction == op {
			out = append(out, o)
		}
	}
	return out
}

// Count returns how many logged operations have the given opcode.
func (d *RecordingDevice) Count(op command.Opcode) int {
	return len(d.Commands(op))
}

// BufferData returns a copy of a buffer's current contents.
func (d *RecordingDevice) BufferData(buffer command.Handle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.buffers[buffer])
}

// ResourceKind returns the kind label of a live handle, or "" when the handle is unknown.
func (d *RecordingDevice) ResourceKind(h command.Handle) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resources[h]
}

// LiveResources returns the number of live handles.
func (d *RecordingDevice) LiveResources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.resources)
}

// ResetLog clears the execution and recording logs.
func (d *RecordingDevice) ResetLog() {
	d.mu.Lock()
	d.log = nil
	d.recorded = nil
	d.mu.Unlock()
}
