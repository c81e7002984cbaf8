package backend

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/cogentcore/webgpu/wgpu"
)

const maxColorTargets = 8

// pipelineKey captures every piece of state that WebGPU bakes into a render pipeline.
type pipelineKey struct {
	vs, fs, layout command.Handle
	topology       command.Topology
	cull           command.CullMode
	depth          command.DepthMode
	blend          command.BlendMode
	colors         [maxColorTargets]wgpu.TextureFormat
	colorCount     int
	depthFormat    wgpu.TextureFormat
	hasDepth       bool
}

// pipelineCache lazily creates render pipelines for the state combinations that command streams
// actually use. Pipelines use automatic layouts: vertex resources live in group 0 and fragment
// resources in group 1.
type pipelineCache struct {
	d       *WGPUDevice
	mu      sync.Mutex
	entries map[pipelineKey]*wgpu.RenderPipeline
}

func newPipelineCache(d *WGPUDevice) *pipelineCache {
	return &pipelineCache{d: d, entries: make(map[pipelineKey]*wgpu.RenderPipeline)}
}

func (c *pipelineCache) get(key pipelineKey) (*wgpu.RenderPipeline, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.entries[key]; ok {
		return p, nil
	}

	vs, ok := lookup[*wgpuShader](c.d, key.vs)
	if !ok {
		return nil, fmt.Errorf("pipeline: no vertex shader bound (%d)", key.vs)
	}
	desc := &wgpu.RenderPipelineDescriptor{
		Label: fmt.Sprintf("Pipeline vs=%d fs=%d", key.vs, key.fs),
		Vertex: wgpu.VertexState{
			Module:     vs.module,
			EntryPoint: vs.entry,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  topology(key.topology),
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  cullMode(key.cull),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if layout, ok := lookup[*wgpuInputLayout](c.d, key.layout); ok {
		desc.Vertex.Buffers = layout.buffers
	}

	if key.fs != 0 {
		fs, ok := lookup[*wgpuShader](c.d, key.fs)
		if !ok {
			return nil, fmt.Errorf("pipeline: unknown fragment shader %d", key.fs)
		}
		targets := make([]wgpu.ColorTargetState, key.colorCount)
		for i := range targets {
			targets[i] = wgpu.ColorTargetState{
				Format:    key.colors[i],
				Blend:     blendState(key.blend),
				WriteMask: wgpu.ColorWriteMaskAll,
			}
		}
		desc.Fragment = &wgpu.FragmentState{
			Module:     fs.module,
			EntryPoint: fs.entry,
			Targets:    targets,
		}
	}

	if key.hasDepth {
		write, compare := depthState(key.depth)
		desc.DepthStencil = &wgpu.DepthStencilState{
			Format:            key.depthFormat,
			DepthWriteEnabled: write,
			DepthCompare:      compare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	p, err := c.d.device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("create render pipeline: %w", err)
	}
	c.entries[key] = p
	return p, nil
}

func (c *pipelineCache) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, p := range c.entries {
		p.Release()
		delete(c.entries, k)
	}
}

func topology(t command.Topology) wgpu.PrimitiveTopology {
	switch t {
	case command.TopologyTriangleStrip:
		return wgpu.PrimitiveTopologyTriangleStrip
	case command.TopologyLineList:
		return wgpu.PrimitiveTopologyLineList
	default:
		return wgpu.PrimitiveTopologyTriangleList
	}
}

func cullMode(c command.CullMode) wgpu.CullMode {
	switch c {
	case command.CullFront:
		return wgpu.CullModeFront
	case command.CullNone:
		return wgpu.CullModeNone
	default:
		return wgpu.CullModeBack
	}
}

func depthState(m command.DepthMode) (bool, wgpu.CompareFunction) {
	switch m {
	case command.DepthReadOnly:
		return false, wgpu.CompareFunctionLessEqual
	case command.DepthDisabled:
		return false, wgpu.CompareFunctionAlways
	default:
		return true, wgpu.CompareFunctionLess
	}
}

func blendState(m command.BlendMode) *wgpu.BlendState {
	switch m {
	case command.BlendAdditive:
		return &wgpu.BlendState{
			Color: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOne, Operation: wgpu.BlendOperationAdd},
			Alpha: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOne, Operation: wgpu.BlendOperationAdd},
		}
	case command.BlendAlpha:
		return &wgpu.BlendState{
			Color: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorSrcAlpha, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha, Operation: wgpu.BlendOperationAdd},
			Alpha: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOneMinusSrcAlpha, Operation: wgpu.BlendOperationAdd},
		}
	case command.BlendAlphaOverride:
		return &wgpu.BlendState{
			Color: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorOne, Operation: wgpu.BlendOperationAdd},
			Alpha: wgpu.BlendComponent{SrcFactor: wgpu.BlendFactorOne, DstFactor: wgpu.BlendFactorZero, Operation: wgpu.BlendOperationAdd},
		}
	default:
		return nil
	}
}
