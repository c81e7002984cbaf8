package pass

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/parallel"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/queue"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
)

// GBufferCount is the number of G-buffer targets the geometry pass writes.
const GBufferCount = 5

// G-buffer target indexes, in the order they are bound as render targets.
const (
	GBufferNormal = iota
	GBufferDiffuse
	GBufferSpecular
	GBufferPosition
	GBufferEmissive
)

// ShadowMapBindingName is the material shader binding the geometry pass binds the shadow map to.
const ShadowMapBindingName = "ShadowMap"

var gBufferLabels = [GBufferCount]string{"normal", "diffuse", "specular", "position", "emissive"}

// GeometryPass renders every instance on its layers into the G-buffer and the primary depth
// buffer, nearest instances first within each material.
type GeometryPass struct {
	*Base
	*instancedDrawer

	scene  scene.Scene
	cam    camera.Camera
	vs     shader.Shader
	shadow *ShadowPass

	clearOutput bool
	clearColor  [4]float32

	vsResources *shader.ResourcePackage
	viewProj    *shader.Binding

	mu      sync.RWMutex
	width   uint32
	height  uint32
	gBuffer [GBufferCount]backend.Texture
	depth   backend.Texture

	// shadowResources caches the shadow map binding package per material shader.
	shadowResources sync.Map
}

var _ RenderPass = &GeometryPass{}

// NewGeometryPass creates a geometry pass. The G-buffer is created on the first frame and follows
// the window size.
//
// Parameters:
//   - device: the backend device
//   - scn: the scene to render
//   - cam: the scene camera
//   - vs: the instanced vertex shader, which must declare the ViewProj binding
//   - options: functional options
//
// Returns:
//   - *GeometryPass: the pass
//   - error: an error if the shader lacks ViewProj
func NewGeometryPass(device backend.Device, scn scene.Scene, cam camera.Camera, vs shader.Shader, options ...GeometryPassBuilderOption) (*GeometryPass, error) {
	if scn == nil || cam == nil || vs == nil {
		panic("pass: NewGeometryPass requires a scene, a camera and a vertex shader")
	}
	p := &GeometryPass{
		Base:        NewBase("geometry", device),
		scene:       scn,
		cam:         cam,
		vs:          vs,
		vsResources: shader.NewResourcePackage(),
	}
	p.instancedDrawer = newInstancedDrawer(NewInstanceBuffer(device, "geometry.instances"))
	for _, opt := range options {
		opt(p)
	}

	b, err := shader.Lookup(vs, camera.ViewProjBindingName)
	if err != nil {
		return nil, err
	}
	p.viewProj = b
	return p, nil
}

// Camera returns the scene camera.
func (p *GeometryPass) Camera() camera.Camera {
	return p.cam
}

// ShadowPass returns the shadow pass whose map is bound to materials, or nil.
func (p *GeometryPass) ShadowPass() *ShadowPass {
	return p.shadow
}

// GBuffer returns the G-buffer targets of the last frame, indexed by the GBuffer* constants.
func (p *GeometryPass) GBuffer() [GBufferCount]backend.Texture {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gBuffer
}

// DepthBuffer returns the primary depth-stencil buffer of the last frame.
func (p *GeometryPass) DepthBuffer() backend.Texture {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.depth
}

// OutputSize returns the current output size in pixels, zero when the window has no back buffer.
func (p *GeometryPass) OutputSize() (uint32, uint32) {
	t, ok := p.Device().WindowTargets()
	if !ok {
		return 0, 0
	}
	return t.Width, t.Height
}

func (p *GeometryPass) IsValid() bool {
	return usable(p.vs)
}

func (p *GeometryPass) Execute(pp parallel.Provider) error {
	w, h := p.OutputSize()
	if w == 0 || h == 0 {
		return nil
	}
	if err := p.ensureTargets(w, h); err != nil {
		return err
	}

	var shadowCam camera.Camera
	if p.shadow != nil {
		shadowCam = p.shadow.LightCamera()
	}
	uniform := camera.NewGPUViewProjUniform(p.cam, shadowCam)
	if err := p.vsResources.SetValue(p.viewProj, uniform.Marshal()); err != nil {
		return err
	}

	p.mu.RLock()
	colors := make([]command.Handle, GBufferCount)
	for i, t := range p.gBuffer {
		colors[i] = t.RenderTarget
	}
	depth := p.depth.DepthStencil
	p.mu.RUnlock()

	master := pp.Master().Queue
	if p.clearOutput {
		for _, rtv := range colors {
			queue.ClearRenderTarget(master, rtv, p.clearColor)
		}
	}
	master.QueueCommand(command.NewClearDepthStencil(depth, 1, 0))

	eye := p.cam.Position()
	params := drawParams{
		scene:       p.scene,
		vs:          p.vs,
		vsResources: p.vsResources,
		eye:         &eye,
		state: pipelineState{
			cull:         command.CullBack,
			depth:        command.DepthReadWrite,
			blend:        command.BlendNone,
			viewport:     [4]float32{0, 0, float32(w), float32(h)},
			depthTarget:  depth,
			colorTargets: colors,
		},
	}
	if p.shadow != nil {
		params.materialResources = p.shadowMapResources
	}
	if err := p.draw(pp, params); err != nil {
		return err
	}
	return master.Flush()
}

// shadowMapResources returns a package binding the shadow map for material shaders that declare
// ShadowMapBindingName. Safe for concurrent use.
func (p *GeometryPass) shadowMapResources(mat material.Material) *shader.ResourcePackage {
	fs := mat.Shader()
	if cached, ok := p.shadowResources.Load(fs.ID()); ok {
		return cached.(*shader.ResourcePackage)
	}
	var pkg *shader.ResourcePackage
	if b := fs.Binding(ShadowMapBindingName); b != nil && !b.IsConstantBuffer() {
		pkg = shader.NewResourcePackage()
		pkg.SetResource(b, p.shadow.ShadowMap().ShaderResource)
	}
	actual, _ := p.shadowResources.LoadOrStore(fs.ID(), pkg)
	return actual.(*shader.ResourcePackage)
}

// ensureTargets recreates the G-buffer and depth buffer when the output size changed.
func (p *GeometryPass) ensureTargets(w, h uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.depth.Valid() && p.width == w && p.height == h {
		return nil
	}
	p.releaseTargets()

	dev := p.Device()
	for i := range p.gBuffer {
		t, err := dev.CreateTexture(backend.TextureDescriptor{
			Label:          "gbuffer." + gBufferLabels[i],
			Width:          w,
			Height:         h,
			Format:         backend.FormatRGBA16Float,
			RenderTarget:   true,
			ShaderResource: true,
		})
		if err != nil {
			p.releaseTargets()
			return fmt.Errorf("create gbuffer %s: %w", gBufferLabels[i], err)
		}
		p.gBuffer[i] = t
	}
	depth, err := dev.CreateTexture(backend.TextureDescriptor{
		Label:          "gbuffer.depth",
		Width:          w,
		Height:         h,
		Format:         backend.FormatDepth24,
		ShaderResource: true,
	})
	if err != nil {
		p.releaseTargets()
		return fmt.Errorf("create primary depth buffer: %w", err)
	}
	p.depth = depth
	p.width, p.height = w, h
	p.Logger().Debugf("geometry pass targets resized to %dx%d", w, h)
	return nil
}

// releaseTargets frees the G-buffer. Caller holds p.mu.
func (p *GeometryPass) releaseTargets() {
	dev := p.Device()
	for i, t := range p.gBuffer {
		if t.Valid() {
			dev.ReleaseTexture(t)
		}
		p.gBuffer[i] = backend.Texture{}
	}
	if p.depth.Valid() {
		dev.ReleaseTexture(p.depth)
	}
	p.depth = backend.Texture{}
	p.width, p.height = 0, 0
}

func (p *GeometryPass) Dispose() {
	if !p.markDisposed() {
		return
	}
	p.buffer.Dispose()
	p.mu.Lock()
	p.releaseTargets()
	p.mu.Unlock()
	p.shadowResources.Clear()
}
