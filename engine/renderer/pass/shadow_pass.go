package pass

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/parallel"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-deferred/engine/scene"
)

// ShadowPass renders the depth of every instance on its layers from a light camera into a
// square shadow map.
type ShadowPass struct {
	*Base
	*instancedDrawer

	scene      scene.Scene
	lightCam   camera.Camera
	vs         shader.Shader
	fs         shader.Shader
	resolution uint32

	vsResources *shader.ResourcePackage
	viewProj    *shader.Binding
	shadowMap   backend.Texture
}

var _ RenderPass = &ShadowPass{}

// NewShadowPass creates a shadow pass and its shadow map.
//
// Parameters:
//   - device: the backend device
//   - scn: the scene to render
//   - lightCam: the light camera, usually from light.NewShadowCamera
//   - vs: the instanced depth vertex shader, which must declare the ViewProj binding
//   - options: functional options
//
// Returns:
//   - *ShadowPass: the pass
//   - error: an error if the shader lacks ViewProj or the shadow map could not be created
func NewShadowPass(device backend.Device, scn scene.Scene, lightCam camera.Camera, vs shader.Shader, options ...ShadowPassBuilderOption) (*ShadowPass, error) {
	if scn == nil || lightCam == nil || vs == nil {
		panic("pass: NewShadowPass requires a scene, a light camera and a vertex shader")
	}
	p := &ShadowPass{
		Base:        NewBase("shadow", device),
		scene:       scn,
		lightCam:    lightCam,
		vs:          vs,
		resolution:  light.ShadowMapResolution,
		vsResources: shader.NewResourcePackage(),
	}
	p.instancedDrawer = newInstancedDrawer(NewInstanceBuffer(device, "shadow.instances"))
	for _, opt := range options {
		opt(p)
	}

	b, err := shader.Lookup(vs, camera.ViewProjBindingName)
	if err != nil {
		return nil, err
	}
	p.viewProj = b

	if p.resolution > 0 {
		p.shadowMap, err = device.CreateTexture(backend.TextureDescriptor{
			Label:          "shadow.map",
			Width:          p.resolution,
			Height:         p.resolution,
			Format:         backend.FormatDepth24,
			ShaderResource: true,
		})
		if err != nil {
			return nil, fmt.Errorf("create shadow map: %w", err)
		}
	}
	return p, nil
}

// LightCamera returns the camera the shadow map is rendered from.
func (p *ShadowPass) LightCamera() camera.Camera {
	return p.lightCam
}

// ShadowMap returns the depth texture the pass renders into.
func (p *ShadowPass) ShadowMap() backend.Texture {
	return p.shadowMap
}

// Resolution returns the edge length of the shadow map in pixels.
func (p *ShadowPass) Resolution() uint32 {
	return p.resolution
}

func (p *ShadowPass) IsValid() bool {
	return usable(p.vs) && (p.fs == nil || usable(p.fs)) && p.shadowMap.Valid()
}

func (p *ShadowPass) Execute(pp parallel.Provider) error {
	// A shadow viewport below one pixel renders nothing.
	if p.resolution < 1 {
		return nil
	}
	uniform := camera.NewGPUViewProjUniform(p.lightCam, nil)
	if err := p.vsResources.SetValue(p.viewProj, uniform.Marshal()); err != nil {
		return err
	}

	master := pp.Master().Queue
	master.QueueCommand(command.NewClearDepthStencil(p.shadowMap.DepthStencil, 1, 0))

	res := float32(p.resolution)
	err := p.draw(pp, drawParams{
		scene:       p.scene,
		vs:          p.vs,
		vsResources: p.vsResources,
		fixedShader: p.fs,
		state: pipelineState{
			cull:        command.CullFront,
			depth:       command.DepthReadWrite,
			blend:       command.BlendNone,
			viewport:    [4]float32{0, 0, res, res},
			depthTarget: p.shadowMap.DepthStencil,
		},
	})
	if err != nil {
		return err
	}
	// Submits the clear when no cache was drawn.
	return master.Flush()
}

func (p *ShadowPass) Dispose() {
	if !p.markDisposed() {
		return
	}
	p.buffer.Dispose()
	p.Device().ReleaseTexture(p.shadowMap)
	p.shadowMap = backend.Texture{}
}
