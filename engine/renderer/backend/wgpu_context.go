package backend

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/cogentcore/webgpu/wgpu"
)

type bufferWrite struct {
	buf  *wgpu.Buffer
	data []byte
}

// wgpuChunk is a slice of a recording: buffer writes to apply, then a command buffer to submit.
type wgpuChunk struct {
	writes     []bufferWrite
	cb         *wgpu.CommandBuffer
	bindGroups []*wgpu.BindGroup
	present    bool
}

type wgpuCommandList struct {
	chunks   []wgpuChunk
	count    int
	released bool
}

func (l *wgpuCommandList) Len() int { return l.count }

func (l *wgpuCommandList) Release() {
	if l.released {
		return
	}
	l.released = true
	for i := range l.chunks {
		if l.chunks[i].cb != nil {
			l.chunks[i].cb.Release()
		}
		for _, bg := range l.chunks[i].bindGroups {
			bg.Release()
		}
	}
	l.chunks = nil
}

// wgpuContext translates render commands into WebGPU encoder calls. The immediate context
// executes at the end of every Submit; deferred contexts keep recording until Finish.
//
// The viewport is context state: it survives render target changes and is applied to every
// render pass the context begins, clamped to the extent of the bound attachments.
type wgpuContext struct {
	d        *WGPUDevice
	deferred bool

	encoder    *wgpu.CommandEncoder
	pass       *wgpu.RenderPassEncoder
	chunks     []wgpuChunk
	writes     []bufferWrite
	bindGroups []*wgpu.BindGroup
	count      int

	key           pipelineKey
	colorTargets  []command.Handle
	depthTarget   command.Handle
	resources     [2]map[uint32]command.ResourceBinding
	vertexBuffers map[uint32]command.Handle
	indexBuffer   command.Handle
	viewport      [4]float32
	hasViewport   bool
	extent        [2]uint32

	scratchBindings []command.ResourceBinding
	scratchEntries  []wgpu.BindGroupEntry
}

func newWGPUContext(d *WGPUDevice, deferred bool) *wgpuContext {
	c := &wgpuContext{d: d, deferred: deferred}
	c.resetState()
	return c
}

func (c *wgpuContext) resetState() {
	c.key = pipelineKey{}
	c.colorTargets = c.colorTargets[:0]
	c.depthTarget = 0
	c.resources = [2]map[uint32]command.ResourceBinding{{}, {}}
	c.vertexBuffers = make(map[uint32]command.Handle)
	c.indexBuffer = 0
	c.hasViewport = false
}

func (c *wgpuContext) Deferred() bool {
	return c.deferred
}

func (c *wgpuContext) Submit(cmds []command.RenderCommand, payload []byte) error {
	for i, cmd := range cmds {
		if err := c.translate(cmd, payload); err != nil {
			c.abort()
			return &SubmissionError{
				Op:         "submit",
				Diagnostic: fmt.Sprintf("command %d (%s): %v", i, cmd.Instruction, err),
				Err:        err,
			}
		}
	}
	c.count += len(cmds)
	if c.deferred {
		return nil
	}

	chunks, err := c.finishRecording()
	if err != nil {
		return &SubmissionError{Op: "submit", Diagnostic: err.Error(), Err: err}
	}
	c.count = 0
	return c.d.executeChunks(chunks)
}

func (c *wgpuContext) Finish() (CommandList, error) {
	if !c.deferred {
		return nil, ErrNotDeferred
	}
	chunks, err := c.finishRecording()
	if err != nil {
		return nil, &SubmissionError{Op: "finish", Diagnostic: err.Error(), Err: err}
	}
	list := &wgpuCommandList{chunks: chunks, count: c.count}
	c.count = 0
	c.resetState()
	return list, nil
}

func (c *wgpuContext) translate(cmd command.RenderCommand, payload []byte) error {
	switch cmd.Instruction {
	case command.NoOperation:
	case command.SetViewport:
		x, y, w, h := cmd.Viewport()
		c.viewport = [4]float32{x, y, w, h}
		c.hasViewport = true
		c.applyViewport()
	case command.SetPrimitiveTopology:
		c.key.topology = command.Topology(cmd.Arg0)
	case command.SetInputLayout:
		c.key.layout = command.Handle(cmd.Arg0)
	case command.SetRasterizerState:
		c.key.cull = command.CullMode(cmd.Arg0)
	case command.SetDepthStencilState:
		c.key.depth = command.DepthMode(cmd.Arg0)
	case command.SetBlendState:
		c.key.blend = command.BlendMode(cmd.Arg0)
	case command.SetRenderTargets:
		ref, _ := cmd.Payload()
		colors := command.DecodeHandles(nil, ref.Bytes(payload))
		if len(colors) > maxColorTargets {
			return fmt.Errorf("%d color targets exceed the limit of %d", len(colors), maxColorTargets)
		}
		c.endPass()
		c.depthTarget = command.Handle(cmd.Arg0)
		c.colorTargets = append(c.colorTargets[:0], colors...)
	case command.ClearRenderTarget:
		ref, _ := cmd.Payload()
		color := command.DecodeColor(ref.Bytes(payload))
		return c.clearPass(command.Handle(cmd.Arg0), &color, 0)
	case command.ClearDepthStencil:
		target, depth, _ := cmd.DepthStencilClear()
		return c.clearPass(target, nil, depth)
	case command.SetIndexBuffer:
		c.indexBuffer = command.Handle(cmd.Arg0)
	case command.SetVertexBuffer, command.SetInstanceBuffer:
		c.vertexBuffers[uint32(cmd.Arg1)] = command.Handle(cmd.Arg0)
	case command.SetShader:
		stage := command.ShaderStage(cmd.Arg0)
		current := &c.key.fs
		if stage == command.StageVertex {
			current = &c.key.vs
		}
		// Pipelines use derived layouts, so bindings never carry over to a different shader.
		if *current != command.Handle(cmd.Arg1) && stage <= command.StageFragment {
			clear(c.resources[stage])
		}
		*current = command.Handle(cmd.Arg1)
	case command.SetShaderResources:
		stage := command.ShaderStage(cmd.Arg0)
		if stage > command.StageFragment {
			return fmt.Errorf("unknown shader stage %d", stage)
		}
		ref, _ := cmd.Payload()
		c.scratchBindings = command.DecodeBindings(c.scratchBindings[:0], ref.Bytes(payload))
		for _, b := range c.scratchBindings {
			if b.Handle == 0 {
				delete(c.resources[stage], b.Slot)
			} else {
				c.resources[stage][b.Slot] = b
			}
		}
	case command.BufferWrite:
		b, ok := lookup[*wgpuBuffer](c.d, command.Handle(cmd.Arg0))
		if !ok {
			return ErrUnknownHandle
		}
		ref, _ := cmd.Payload()
		data := ref.Bytes(payload)
		if uint64(len(data)) > b.size {
			return fmt.Errorf("write of %d bytes exceeds buffer size %d", len(data), b.size)
		}
		// Commands recorded so far must observe the old contents.
		if err := c.closeChunk(false); err != nil {
			return err
		}
		c.writes = append(c.writes, bufferWrite{buf: b.buf, data: padTo4(slices.Clone(data))})
	case command.Draw:
		return c.draw(func(pass *wgpu.RenderPassEncoder) {
			pass.Draw(uint32(cmd.Arg1), 1, uint32(cmd.Arg0), 0)
		}, false)
	case command.DrawIndexedInstanced:
		base, ibStart, ibCount, instStart, instCount := cmd.IndexedDraw()
		return c.draw(func(pass *wgpu.RenderPassEncoder) {
			pass.DrawIndexed(ibCount, instCount, ibStart, int32(base), instStart)
		}, true)
	case command.Present:
		return c.closeChunk(true)
	default:
		return fmt.Errorf("unsupported opcode %s", cmd.Instruction)
	}
	return nil
}

func (c *wgpuContext) ensureEncoder() error {
	if c.encoder != nil {
		return nil
	}
	encoder, err := c.d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	c.encoder = encoder
	return nil
}

func (c *wgpuContext) endPass() {
	if c.pass != nil {
		c.pass.End()
		c.pass = nil
	}
}

// closeChunk ends the open pass and seals everything recorded so far into a chunk. A chunk with
// neither commands nor writes is only emitted when it carries a present.
func (c *wgpuContext) closeChunk(present bool) error {
	c.endPass()
	if c.encoder == nil && len(c.writes) == 0 && !present {
		return nil
	}
	chunk := wgpuChunk{writes: c.writes, bindGroups: c.bindGroups, present: present}
	if c.encoder != nil {
		cb, err := c.encoder.Finish(nil)
		c.encoder.Release()
		c.encoder = nil
		if err != nil {
			return fmt.Errorf("finish command encoder: %w", err)
		}
		chunk.cb = cb
	}
	c.chunks = append(c.chunks, chunk)
	c.writes = nil
	c.bindGroups = nil
	return nil
}

func (c *wgpuContext) finishRecording() ([]wgpuChunk, error) {
	if err := c.closeChunk(false); err != nil {
		return nil, err
	}
	chunks := c.chunks
	c.chunks = nil
	return chunks, nil
}

func (c *wgpuContext) abort() {
	c.endPass()
	if c.encoder != nil {
		c.encoder.Release()
		c.encoder = nil
	}
	(&wgpuCommandList{chunks: c.chunks}).Release()
	for _, bg := range c.bindGroups {
		bg.Release()
	}
	c.chunks, c.writes, c.bindGroups = nil, nil, nil
	c.count = 0
}

func (c *wgpuContext) clearPass(target command.Handle, color *[4]float32, depth float32) error {
	c.endPass()
	if err := c.ensureEncoder(); err != nil {
		return err
	}
	v, view, err := c.d.resolveView(target)
	if err != nil {
		return err
	}
	desc := &wgpu.RenderPassDescriptor{}
	if color != nil && !v.depth {
		desc.ColorAttachments = []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: float64(color[0]), G: float64(color[1]), B: float64(color[2]), A: float64(color[3])},
		}}
	} else if color == nil && v.depth {
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            view,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: depth,
		}
	} else {
		return errors.New("clear target kind does not match view kind")
	}
	c.encoder.BeginRenderPass(desc).End()
	return nil
}

func (c *wgpuContext) beginPass() error {
	if c.pass != nil {
		return nil
	}
	if err := c.ensureEncoder(); err != nil {
		return err
	}
	desc := &wgpu.RenderPassDescriptor{}
	c.key.colorCount = len(c.colorTargets)
	c.extent = [2]uint32{}
	for i, h := range c.colorTargets {
		v, view, err := c.d.resolveView(h)
		if err != nil {
			return fmt.Errorf("color target %d: %w", i, err)
		}
		c.fitExtent(v)
		c.key.colors[i] = v.format
		desc.ColorAttachments = append(desc.ColorAttachments, wgpu.RenderPassColorAttachment{
			View:    view,
			LoadOp:  wgpu.LoadOpLoad,
			StoreOp: wgpu.StoreOpStore,
		})
	}
	c.key.hasDepth = c.depthTarget != 0
	if c.key.hasDepth {
		v, view, err := c.d.resolveView(c.depthTarget)
		if err != nil {
			return fmt.Errorf("depth target: %w", err)
		}
		c.key.depthFormat = v.format
		c.fitExtent(v)
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:         view,
			DepthLoadOp:  wgpu.LoadOpLoad,
			DepthStoreOp: wgpu.StoreOpStore,
		}
	}
	c.pass = c.encoder.BeginRenderPass(desc)
	c.applyViewport()
	return nil
}

// fitExtent narrows the pass extent to fit v. Attachments of one pass share a size in practice.
func (c *wgpuContext) fitExtent(v *wgpuView) {
	if c.extent == [2]uint32{} {
		c.extent = [2]uint32{v.width, v.height}
		return
	}
	c.extent = [2]uint32{min(c.extent[0], v.width), min(c.extent[1], v.height)}
}

func (c *wgpuContext) applyViewport() {
	if c.pass == nil || !c.hasViewport {
		return
	}
	x, y, w, h := clampViewport(c.viewport, c.extent[0], c.extent[1])
	c.pass.SetViewport(x, y, w, h, 0, 1)
}

// clampViewport fits a viewport inside a width by height attachment.
func clampViewport(vp [4]float32, width, height uint32) (x, y, w, h float32) {
	fw, fh := float32(width), float32(height)
	x = min(max(vp[0], 0), fw)
	y = min(max(vp[1], 0), fh)
	w = max(min(vp[2], fw-x), 0)
	h = max(min(vp[3], fh-y), 0)
	return x, y, w, h
}

func (c *wgpuContext) draw(issue func(*wgpu.RenderPassEncoder), indexed bool) error {
	if err := c.beginPass(); err != nil {
		return err
	}
	pipeline, err := c.d.pipelines.get(c.key)
	if err != nil {
		return err
	}
	c.pass.SetPipeline(pipeline)

	for stage := range c.resources {
		if len(c.resources[stage]) == 0 {
			continue
		}
		bg, err := c.bindGroup(pipeline, uint32(stage))
		if err != nil {
			return err
		}
		c.bindGroups = append(c.bindGroups, bg)
		c.pass.SetBindGroup(uint32(stage), bg, nil)
	}

	if layout, ok := lookup[*wgpuInputLayout](c.d, c.key.layout); ok {
		for i, slot := range layout.slots {
			b, ok := lookup[*wgpuBuffer](c.d, c.vertexBuffers[slot])
			if !ok {
				return fmt.Errorf("no vertex buffer bound to slot %d", slot)
			}
			c.pass.SetVertexBuffer(uint32(i), b.buf, 0, wgpu.WholeSize)
		}
	}

	if indexed {
		b, ok := lookup[*wgpuBuffer](c.d, c.indexBuffer)
		if !ok {
			return errors.New("no index buffer bound")
		}
		c.pass.SetIndexBuffer(b.buf, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	}

	issue(c.pass)
	return nil
}

func (c *wgpuContext) bindGroup(pipeline *wgpu.RenderPipeline, group uint32) (*wgpu.BindGroup, error) {
	slots := make([]uint32, 0, len(c.resources[group]))
	for slot := range c.resources[group] {
		slots = append(slots, slot)
	}
	slices.Sort(slots)

	c.scratchEntries = c.scratchEntries[:0]
	for _, slot := range slots {
		b := c.resources[group][slot]
		entry := wgpu.BindGroupEntry{Binding: slot}
		switch b.Kind {
		case command.BindConstantBuffer:
			buf, ok := lookup[*wgpuBuffer](c.d, b.Handle)
			if !ok {
				return nil, fmt.Errorf("binding %d: constant buffer %d: %w", slot, b.Handle, ErrUnknownHandle)
			}
			entry.Buffer = buf.buf
			entry.Size = wgpu.WholeSize
		case command.BindShaderResource:
			_, view, err := c.d.resolveView(b.Handle)
			if err != nil {
				return nil, fmt.Errorf("binding %d: %w", slot, err)
			}
			entry.TextureView = view
		case command.BindSampler:
			samp, ok := lookup[*wgpu.Sampler](c.d, b.Handle)
			if !ok {
				return nil, fmt.Errorf("binding %d: sampler %d: %w", slot, b.Handle, ErrUnknownHandle)
			}
			entry.Sampler = samp
		}
		c.scratchEntries = append(c.scratchEntries, entry)
	}

	layout := pipeline.GetBindGroupLayout(group)
	defer layout.Release()
	bg, err := c.d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  layout,
		Entries: slices.Clone(c.scratchEntries),
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group %d: %w", group, err)
	}
	return bg, nil
}
