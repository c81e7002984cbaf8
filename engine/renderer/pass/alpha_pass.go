package pass

import (
	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/parallel"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
)

// AlphaPass forward-renders translucent instances straight into the window, depth-tested against
// the geometry pass's primary depth buffer without writing to it.
type AlphaPass struct {
	*Base
	*instancedDrawer

	scene    scene.Scene
	cam      camera.Camera
	vs       shader.Shader
	geometry *GeometryPass

	vsResources *shader.ResourcePackage
	viewProj    *shader.Binding
}

var _ RenderPass = &AlphaPass{}

// NewAlphaPass creates an alpha pass.
//
// Parameters:
//   - device: the backend device
//   - scn: the scene to render
//   - cam: the scene camera
//   - vs: the instanced vertex shader, which must declare the ViewProj binding
//   - geometry: the geometry pass providing the depth buffer
//
// Returns:
//   - *AlphaPass: the pass
//   - error: an error if the shader lacks ViewProj
func NewAlphaPass(device backend.Device, scn scene.Scene, cam camera.Camera, vs shader.Shader, geometry *GeometryPass) (*AlphaPass, error) {
	if scn == nil || cam == nil || vs == nil || geometry == nil {
		panic("pass: NewAlphaPass requires a scene, a camera, a vertex shader and a geometry pass")
	}
	b, err := shader.Lookup(vs, camera.ViewProjBindingName)
	if err != nil {
		return nil, err
	}
	p := &AlphaPass{
		Base:        NewBase("alpha", device),
		scene:       scn,
		cam:         cam,
		vs:          vs,
		geometry:    geometry,
		vsResources: shader.NewResourcePackage(),
		viewProj:    b,
	}
	p.instancedDrawer = newInstancedDrawer(NewInstanceBuffer(device, "alpha.instances"))
	return p, nil
}

func (p *AlphaPass) IsValid() bool {
	return usable(p.vs) && !p.geometry.IsDisposed()
}

func (p *AlphaPass) Execute(pp parallel.Provider) error {
	window, ok := p.Device().WindowTargets()
	depth := p.geometry.DepthBuffer()
	if !ok || window.Width == 0 || window.Height == 0 || !depth.Valid() {
		return nil
	}

	uniform := camera.NewGPUViewProjUniform(p.cam, nil)
	if err := p.vsResources.SetValue(p.viewProj, uniform.Marshal()); err != nil {
		return err
	}
	return p.draw(pp, drawParams{
		scene:       p.scene,
		vs:          p.vs,
		vsResources: p.vsResources,
		state: pipelineState{
			cull:         command.CullNone,
			depth:        command.DepthReadOnly,
			blend:        command.BlendAlpha,
			viewport:     [4]float32{0, 0, float32(window.Width), float32(window.Height)},
			depthTarget:  depth.DepthStencil,
			colorTargets: []command.Handle{window.RenderTarget},
		},
	})
}

func (p *AlphaPass) Dispose() {
	if !p.markDisposed() {
		return
	}
	p.buffer.Dispose()
}
