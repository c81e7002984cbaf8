package pass

import (
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/parallel"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
)

// HUDPass draws overlay instances over the finished frame. Buckets are drawn serially on the
// master in ascending material z-index, so later layers cover earlier ones.
type HUDPass struct {
	*Base
	*instancedDrawer

	scene scene.Scene
	cam   camera.Camera
	vs    shader.Shader

	vsResources      *shader.ResourcePackage
	viewProj         *shader.Binding
	presentAfterPass atomic.Bool
}

var _ RenderPass = &HUDPass{}

// NewHUDPass creates a HUD pass.
//
// Parameters:
//   - device: the backend device
//   - scn: the scene holding the overlay instances
//   - cam: the overlay camera, usually orthographic
//   - vs: the instanced vertex shader, which must declare the ViewProj binding
//
// Returns:
//   - *HUDPass: the pass
//   - error: an error if the shader lacks ViewProj
func NewHUDPass(device backend.Device, scn scene.Scene, cam camera.Camera, vs shader.Shader) (*HUDPass, error) {
	if scn == nil || cam == nil || vs == nil {
		panic("pass: NewHUDPass requires a scene, a camera and a vertex shader")
	}
	b, err := shader.Lookup(vs, camera.ViewProjBindingName)
	if err != nil {
		return nil, err
	}
	p := &HUDPass{
		Base:        NewBase("hud", device),
		scene:       scn,
		cam:         cam,
		vs:          vs,
		vsResources: shader.NewResourcePackage(),
		viewProj:    b,
	}
	p.instancedDrawer = newInstancedDrawer(NewInstanceBuffer(device, "hud.instances"))
	return p, nil
}

// SetPresentAfterPass makes the pass present the back buffer once it has flushed.
//
// Parameters:
//   - present: whether to present
func (p *HUDPass) SetPresentAfterPass(present bool) {
	p.presentAfterPass.Store(present)
}

// PresentAfterPass reports whether the pass presents the back buffer.
func (p *HUDPass) PresentAfterPass() bool {
	return p.presentAfterPass.Load()
}

func (p *HUDPass) IsValid() bool {
	return usable(p.vs)
}

func (p *HUDPass) Execute(pp parallel.Provider) error {
	window, ok := p.Device().WindowTargets()
	if !ok || window.Width == 0 || window.Height == 0 {
		return nil
	}
	uniform := camera.NewGPUViewProjUniform(p.cam, nil)
	if err := p.vsResources.SetValue(p.viewProj, uniform.Marshal()); err != nil {
		return err
	}
	err := p.draw(pp, drawParams{
		scene:       p.scene,
		vs:          p.vs,
		vsResources: p.vsResources,
		serial:      true,
		state: pipelineState{
			cull:         command.CullNone,
			depth:        command.DepthDisabled,
			blend:        command.BlendAlpha,
			viewport:     [4]float32{0, 0, float32(window.Width), float32(window.Height)},
			colorTargets: []command.Handle{window.RenderTarget},
		},
	})
	if err != nil {
		return err
	}
	if p.PresentAfterPass() {
		q := pp.Master().Queue
		presentBackBuffer(q)
		return q.Flush()
	}
	return nil
}

func (p *HUDPass) Dispose() {
	if !p.markDisposed() {
		return
	}
	p.buffer.Dispose()
}
