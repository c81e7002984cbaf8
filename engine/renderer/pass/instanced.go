package pass

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-deferred/engine/model"
	"github.com/Carmen-Shannon/oxy-deferred/engine/parallel"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/queue"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// pipelineState is the fixed state an instanced pass sets on every context before drawing.
type pipelineState struct {
	cull         command.CullMode
	depth        command.DepthMode
	blend        command.BlendMode
	viewport     [4]float32
	depthTarget  command.Handle
	colorTargets []command.Handle
}

// drawParams configures one run of the instanced protocol.
type drawParams struct {
	scene       scene.Scene
	vs          shader.Shader
	vsResources *shader.ResourcePackage
	state       pipelineState

	// fixedShader replaces the material shaders; materials then contribute no resources.
	fixedShader shader.Shader
	// eye enables the near-to-far sort of every bucket.
	eye *mgl32.Vec3
	// serial draws every bucket on the master in material z-index order.
	serial bool
	// materialResources returns extra resources for a material's update, or nil.
	materialResources func(mat material.Material) *shader.ResourcePackage
}

type pickedInstance struct {
	transform mgl32.Mat4
	model     int
	dist      float32
}

// slotState is the per-context state of the protocol, indexed by WorkerContext.Slot.
type slotState struct {
	lastShader   command.Handle
	frame        uint64
	instanceSlot uint32
	uploadSlot   uint32
	picked       []pickedInstance
	counts       []uint32
	starts       []uint32
	scratch      []model.GPUInstance
	resources    *shader.ResourcePackage
}

// instancedDrawer runs the instanced draw protocol shared by the shadow, geometry, alpha and HUD
// passes: per geometry cache, set up every context, fan the material buckets out over the workers,
// then upload the instance buffer and flush.
type instancedDrawer struct {
	layerSet
	buffer        *InstanceBuffer
	slots         []slotState
	frame         uint64
	enabledLayers []bool
	order         []*scene.MaterialBucket
}

func newInstancedDrawer(buffer *InstanceBuffer) *instancedDrawer {
	return &instancedDrawer{layerSet: newLayerSet(), buffer: buffer}
}

// FrameNumber returns the logical frame counter, incremented once per drawn geometry cache.
func (d *instancedDrawer) FrameNumber() uint64 {
	return d.frame
}

func (d *instancedDrawer) draw(pp parallel.Provider, p drawParams) error {
	instanceSlot, ok := p.vs.InstanceSlot()
	if !ok {
		return fmt.Errorf("pass: vertex shader %q has no per-instance input", p.vs.Key())
	}
	if n := len(pp.Contexts()); len(d.slots) < n {
		d.slots = append(d.slots, make([]slotState, n-len(d.slots))...)
	}

	layers := p.scene.Layers()
	for _, cache := range p.scene.GeometryCaches() {
		if cache == nil || cache.IsDisposed() {
			continue
		}
		buckets := cache.Buckets()
		if len(buckets) == 0 {
			continue
		}
		layout, err := cache.InputLayout(p.vs)
		if err != nil {
			return err
		}

		d.buffer.Reset()
		d.enabledLayers = d.layerSet.table(d.enabledLayers, layers)
		d.frame++

		setup := func(ctx *parallel.WorkerContext) error {
			d.setup(ctx, cache, layout, p)
			return nil
		}
		if p.serial {
			_ = setup(pp.Master())
			d.order = append(d.order[:0], buckets...)
			slices.SortStableFunc(d.order, func(a, b *scene.MaterialBucket) int {
				return cmp.Compare(a.Material.ZIndex(), b.Material.ZIndex())
			})
			for _, b := range d.order {
				d.drawBucket(pp.Master(), cache, b, p)
			}
		} else {
			if err := pp.InvokeOnAll(setup, true); err != nil {
				return errors.Join(err, discard(pp, true))
			}
			blockSize := len(buckets)/(max(pp.Workers(), 1)<<3) + 1
			err := pp.Execute(len(buckets), blockSize, func(ctx *parallel.WorkerContext, i int) error {
				d.drawBucket(ctx, cache, buckets[i], p)
				return nil
			})
			if err != nil {
				return errors.Join(err, discard(pp, true))
			}
		}

		if err := d.finish(pp, instanceSlot, p.serial); err != nil {
			return err
		}
	}
	return nil
}

// setup queues the per-cache state on one context and reserves the instance buffer binding, plus
// the instance upload on the master.
func (d *instancedDrawer) setup(ctx *parallel.WorkerContext, cache scene.GeometryCache, layout command.Handle, p drawParams) {
	q := ctx.Queue
	st := &d.slots[ctx.Slot]

	q.QueueCommand(command.NewSetPrimitiveTopology(command.TopologyTriangleList))
	q.QueueCommand(command.NewSetInputLayout(layout))
	q.QueueCommand(command.NewSetIndexBuffer(cache.IndexBuffer()))
	q.QueueCommand(command.NewSetVertexBuffer(cache.VertexBuffer(), 0, cache.VertexStride()))
	queueShaderSwitch(q, p.vs)
	queueShaderResourceUpdate(q, p.vs, p.vsResources)

	vp := p.state.viewport
	q.QueueCommand(command.NewSetRasterizerState(p.state.cull))
	q.QueueCommand(command.NewSetViewport(vp[0], vp[1], vp[2], vp[3]))
	q.QueueCommand(command.NewSetDepthStencilState(p.state.depth))
	q.QueueCommand(command.NewSetBlendState(p.state.blend))
	queue.SetRenderTargets(q, p.state.depthTarget, p.state.colorTargets...)

	st.lastShader = 0
	if p.fixedShader != nil {
		queueShaderSwitch(q, p.fixedShader)
		queueShaderResourceUpdate(q, p.fixedShader, nil)
		st.lastShader = p.fixedShader.Handle()
		st.frame = d.frame
	}
	if ctx.IsMaster() {
		st.uploadSlot = q.ReserveSlot()
	}
	st.instanceSlot = q.ReserveSlot()
}

// drawBucket queues the draws of one material bucket on ctx: one instanced draw per distinct
// model among the bucket's renderable instances.
func (d *instancedDrawer) drawBucket(ctx *parallel.WorkerContext, cache scene.GeometryCache, bucket *scene.MaterialBucket, p drawParams) {
	mat := bucket.Material
	if mat == nil || mat.IsDisposed() {
		return
	}
	var fs shader.Shader
	if p.fixedShader == nil {
		fs = mat.Shader()
		if !usable(fs) {
			return
		}
	}

	st := &d.slots[ctx.Slot]
	st.picked = st.picked[:0]
	for i := range bucket.Instances {
		rec := &bucket.Instances[i]
		if !rec.InUse || rec.LayerIndex < 0 || rec.LayerIndex >= len(d.enabledLayers) || !d.enabledLayers[rec.LayerIndex] {
			continue
		}
		pi := pickedInstance{transform: rec.Transform, model: rec.ModelIndex}
		if p.eye != nil {
			pi.dist = rec.Transform.Col(3).Vec3().Sub(*p.eye).LenSqr()
		}
		st.picked = append(st.picked, pi)
	}
	if len(st.picked) == 0 {
		return
	}

	q := ctx.Queue
	if fs != nil {
		if st.lastShader != fs.Handle() || st.frame != d.frame {
			queueShaderSwitch(q, fs)
			st.lastShader = fs.Handle()
			st.frame = d.frame
		}
		var extra *shader.ResourcePackage
		if p.materialResources != nil {
			extra = p.materialResources(mat)
		}
		if extra != nil && st.resources == nil {
			st.resources = shader.NewResourcePackage()
		}
		mat.QueueResourceUpdate(q, extra, st.resources)
	}
	if p.eye != nil {
		slices.SortStableFunc(st.picked, func(a, b pickedInstance) int {
			return cmp.Compare(a.dist, b.dist)
		})
	}

	models := cache.Models()
	st.counts = slices.Grow(st.counts[:0], len(models))[:len(models)]
	st.starts = slices.Grow(st.starts[:0], len(models))[:len(models)]
	clear(st.counts)
	for _, pi := range st.picked {
		st.counts[pi.model]++
	}
	var run uint32
	for m, c := range st.counts {
		st.starts[m] = run
		run += c
	}

	n := uint32(len(st.picked))
	if uint32(cap(st.scratch)) < n {
		st.scratch = make([]model.GPUInstance, n<<1)
	}
	st.scratch = st.scratch[:cap(st.scratch)]
	offset := d.buffer.Reserve(n)

	// Instances of one model are contiguous and keep their sorted order.
	for m := range st.counts {
		st.counts[m] = 0
	}
	for _, pi := range st.picked {
		st.scratch[st.starts[pi.model]+st.counts[pi.model]] = model.NewGPUInstance(pi.transform)
		st.counts[pi.model]++
	}
	for m, c := range st.counts {
		if c == 0 {
			continue
		}
		r := models[m]
		q.QueueCommand(command.NewDrawIndexedInstanced(r.BaseVertex, r.IndexStart, r.IndexCount, offset+st.starts[m], c))
	}
	d.buffer.Concat(st.scratch, offset, n)
}

// finish uploads the instance buffer through the master's reserved slot, fills every context's
// instance buffer slot, and flushes the master first, then the workers. Every context's queue is
// empty afterwards, whether or not a submission failed.
func (d *instancedDrawer) finish(pp parallel.Provider, instanceSlot uint32, serial bool) error {
	buf, data, uploadErr := d.buffer.prepareUpload()
	if uploadErr != nil {
		// The reserved slots still have to be filled before the queues can flush.
		buf, data = 0, nil
	}

	master := pp.Master()
	mq := master.Queue
	if len(data) > 0 {
		mq.QueueCommandAt(d.slots[master.Slot].uploadSlot, command.NewBufferWrite(buf, mq.Payload(data)))
	} else {
		mq.QueueCommandAt(d.slots[master.Slot].uploadSlot, command.NewNoOperation(0))
	}

	fill := func(ctx *parallel.WorkerContext) {
		ctx.Queue.QueueCommandAt(d.slots[ctx.Slot].instanceSlot, command.NewSetInstanceBuffer(buf, instanceSlot))
	}
	if serial {
		fill(master)
		return errors.Join(uploadErr, mq.Flush())
	}
	return errors.Join(uploadErr, flush(pp, fill))
}
