package pass

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
	"github.com/Carmen-Shannon/oxy-deferred/engine/parallel"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/queue"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/shader"
)

// Binding names the light pass resolves in its shaders.
const (
	ScalarsBindingName        = "Scalars"
	LightBufferBindingName    = "LightBuffer"
	LightMetaBindingName      = "LightMeta"
	LensPropertiesBindingName = "LensProperties"
	SourceTexBindingName      = "SourceTex"
	SourceSamplerBindingName  = "SourceSampler"
	PreBloomImageBindingName  = "PreBloomImage"
	UnblurredSceneBindingName = "UnblurredScene"
	BlurredSceneBindingName   = "BlurredScene"
	SceneDepthBindingName     = "SceneDepth"
	GeomDepthBindingName      = "GeomDepthBuffer"
)

// gBufferBindingNames are the light shader bindings of the G-buffer targets, by G-buffer index.
var gBufferBindingNames = [GBufferCount]string{"NormalGB", "DiffuseGB", "SpecularGB", "PositionGB", "EmissiveGB"}

// LightPlaneSource is the WGSL vertex input of the light plane.
const LightPlaneSource = `struct PlaneVertex {
    @location(0) position: vec3<f32>,
    @location(1) uv: vec2<f32>,
};
`

// lightPlaneStride is the byte size of one light plane vertex: a vec3 position and a vec2 uv.
const lightPlaneStride = 20

// lightPlane is the full-screen quad as two triangles, (position, uv) per vertex.
var lightPlane = [6][5]float32{
	{-1, -1, 0, 0, 1},
	{-1, 1, 0, 0, 0},
	{1, 1, 0, 1, 0},
	{1, 1, 0, 1, 0},
	{1, -1, 0, 1, 1},
	{-1, -1, 0, 0, 1},
}

var (
	// ErrLightAlreadyAdded is returned when a light is added to the light pass twice.
	ErrLightAlreadyAdded = errors.New("pass: light has already been added")
	// ErrLightNotAdded is returned when removing a light the pass does not hold.
	ErrLightNotAdded = errors.New("pass: light is not added")
	// ErrMissingShader is returned when a required light pass shader is nil.
	ErrMissingShader = errors.New("pass: missing shader")
	// ErrLightCap is returned for a dynamic light cap the light buffer cannot hold.
	ErrLightCap = errors.New("pass: invalid dynamic light cap")
)

// LightShaders groups the shaders of the light pass. OutlineFS is optional.
type LightShaders struct {
	// LightVS draws the light plane restricted to the rectangle in its Scalars binding.
	LightVS shader.Shader
	// LightFS shades one tile with the lights in LightBuffer.
	LightFS shader.Shader
	// FinalFS adds the ambient term.
	FinalFS shader.Shader
	// OutlineFS draws edge outlines from the normals and depth.
	OutlineFS shader.Shader
	// CopyFS samples SourceTex, used to downscale.
	CopyFS shader.Shader
	// CopyReverseFS samples SourceTex, used to upscale the bloom back.
	CopyReverseFS shader.Shader
	// BloomHFS and BloomVFS are the two directions of the bloom blur.
	BloomHFS shader.Shader
	BloomVFS shader.Shader
	// BlurFS blurs the reduced scene for depth of field.
	BlurFS shader.Shader
	// DoFFS selects between the sharp and blurred scene by depth.
	DoFFS shader.Shader
}

// required lists the shaders the pass cannot run without, with their names.
func (s *LightShaders) required() []struct {
	name string
	sh   shader.Shader
} {
	return []struct {
		name string
		sh   shader.Shader
	}{
		{"light vertex", s.LightVS},
		{"light fragment", s.LightFS},
		{"final", s.FinalFS},
		{"copy", s.CopyFS},
		{"copy reverse", s.CopyReverseFS},
		{"bloom horizontal", s.BloomHFS},
		{"bloom vertical", s.BloomVFS},
		{"blur", s.BlurFS},
		{"depth of field", s.DoFFS},
	}
}

// resourcePair is the bind and unbind package of one shader stage in the chain.
type resourcePair struct {
	bind   *shader.ResourcePackage
	unbind *shader.ResourcePackage
}

func newResourcePair(s shader.Shader) resourcePair {
	rp := resourcePair{bind: shader.NewResourcePackage(), unbind: shader.NewResourcePackage()}
	if s == nil {
		return rp
	}
	for _, b := range s.Bindings() {
		if b.Kind == command.BindShaderResource {
			rp.unbind.SetResource(b, 0)
		}
	}
	return rp
}

// setView binds h to the named view or sampler binding of s, if s declares it.
func (rp resourcePair) setView(s shader.Shader, name string, h command.Handle) {
	if s == nil {
		return
	}
	if b := s.Binding(name); b != nil && !b.IsConstantBuffer() {
		rp.bind.SetResource(b, h)
	}
}

// LightPass shades the G-buffer with the dynamic lights using an N×N screen tile grid, adds the
// ambient term and outlines, then runs bloom and depth of field and writes the window target.
// It runs serially on the master context.
type LightPass struct {
	*Base

	geometry *GeometryPass
	shaders  LightShaders
	grid     *light.TileGrid

	granularity      int
	presentAfterPass atomic.Bool

	mu       sync.Mutex
	lights   []light.Light
	lightCap int
	focal    float32
	maxBlur  float32

	scalars     *shader.Binding
	lightBuffer *shader.Binding
	lightMeta   *shader.Binding
	cameraProps *shader.Binding
	lens        *shader.Binding

	planeBuffer command.Handle
	planeLayout command.Handle
	sampler     command.Handle
	targets     lightTargets

	vsRes, lightRes, finalRes, outlineRes resourcePair
	copyRes, copyDoFRes, copyReverseRes   resourcePair
	bloomHRes, bloomVRes, blurRes, dofRes resourcePair

	culled     []light.Properties
	lightData  []byte
	tilesDrawn int
}

var _ RenderPass = &LightPass{}

// NewLightPass creates the light pass over the output of a geometry pass.
//
// Parameters:
//   - device: the backend device
//   - geometry: the geometry pass whose G-buffer and depth buffer are shaded
//   - shaders: the pass shaders
//   - options: functional options
//
// Returns:
//   - *LightPass: the pass
//   - error: an error if a shader or binding is missing, or a resource could not be created
func NewLightPass(device backend.Device, geometry *GeometryPass, shaders LightShaders, options ...LightPassBuilderOption) (*LightPass, error) {
	if geometry == nil {
		panic("pass: NewLightPass requires a geometry pass")
	}
	for _, r := range shaders.required() {
		if r.sh == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingShader, r.name)
		}
	}
	p := &LightPass{
		Base:        NewBase("light", device),
		geometry:    geometry,
		shaders:     shaders,
		granularity: light.DefaultTileGranularity,
		lightCap:    light.MaxDynamicLights,
	}
	for _, opt := range options {
		opt(p)
	}
	p.grid = light.NewTileGrid(p.granularity)

	var err error
	if p.scalars, err = shader.Lookup(shaders.LightVS, ScalarsBindingName); err != nil {
		return nil, err
	}
	if p.lightBuffer, err = shader.Lookup(shaders.LightFS, LightBufferBindingName); err != nil {
		return nil, err
	}
	if p.lightMeta, err = shader.Lookup(shaders.LightFS, LightMetaBindingName); err != nil {
		return nil, err
	}
	p.cameraProps = shaders.LightFS.Binding(camera.PropertiesBindingName)
	p.lens = shaders.DoFFS.Binding(LensPropertiesBindingName)
	if err := p.checkCap(p.lightCap); err != nil {
		return nil, err
	}

	if err := p.createPlane(); err != nil {
		p.releaseResources()
		return nil, err
	}

	p.vsRes = newResourcePair(shaders.LightVS)
	p.lightRes = newResourcePair(shaders.LightFS)
	p.finalRes = newResourcePair(shaders.FinalFS)
	p.outlineRes = newResourcePair(shaders.OutlineFS)
	p.copyRes = newResourcePair(shaders.CopyFS)
	p.copyDoFRes = newResourcePair(shaders.CopyFS)
	p.copyReverseRes = newResourcePair(shaders.CopyReverseFS)
	p.bloomHRes = newResourcePair(shaders.BloomHFS)
	p.bloomVRes = newResourcePair(shaders.BloomVFS)
	p.blurRes = newResourcePair(shaders.BlurFS)
	p.dofRes = newResourcePair(shaders.DoFFS)
	return p, nil
}

func (p *LightPass) createPlane() error {
	dev := p.Device()
	data := make([]byte, 0, len(lightPlane)*lightPlaneStride)
	for _, v := range lightPlane {
		for _, f := range v {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
		}
	}

	var err error
	if p.planeBuffer, err = dev.CreateBuffer(backend.BufferDescriptor{
		Label: "light.plane",
		Size:  uint64(len(data)),
		Usage: backend.BufferUsageVertex,
	}); err != nil {
		return fmt.Errorf("create light plane: %w", err)
	}
	if err = dev.WriteBuffer(p.planeBuffer, 0, data); err != nil {
		return fmt.Errorf("upload light plane: %w", err)
	}
	layout := p.shaders.LightVS.InputLayout()
	layout.Label = "light.plane"
	if p.planeLayout, err = dev.CreateInputLayout(p.shaders.LightVS.Handle(), layout); err != nil {
		return fmt.Errorf("create light plane layout: %w", err)
	}
	if p.sampler, err = dev.CreateSampler(backend.SamplerDescriptor{Label: "light.copy", Linear: true}); err != nil {
		return fmt.Errorf("create copy sampler: %w", err)
	}
	return nil
}

func (p *LightPass) checkCap(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrLightCap, n)
	}
	if need := uint64(n) * light.PropertiesSize; need > p.lightBuffer.Size {
		return fmt.Errorf("%w: %d lights need %d bytes, %s holds %d", ErrLightCap, n, need, LightBufferBindingName, p.lightBuffer.Size)
	}
	return nil
}

// AddLight registers a light.
//
// Parameters:
//   - l: the light
//
// Returns:
//   - error: ErrLightAlreadyAdded if l is already registered
func (p *LightPass) AddLight(l light.Light) error {
	if l == nil {
		panic("pass: AddLight requires a non-nil Light")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if slices.Contains(p.lights, l) {
		return ErrLightAlreadyAdded
	}
	p.lights = append(p.lights, l)
	return nil
}

// RemoveLight unregisters a light.
//
// Parameters:
//   - l: the light
//
// Returns:
//   - error: ErrLightNotAdded if l is not registered
func (p *LightPass) RemoveLight(l light.Light) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := slices.Index(p.lights, l)
	if i < 0 {
		return ErrLightNotAdded
	}
	p.lights = slices.Delete(p.lights, i, i+1)
	return nil
}

// ClearLights unregisters every light.
func (p *LightPass) ClearLights() {
	p.mu.Lock()
	clear(p.lights)
	p.lights = p.lights[:0]
	p.mu.Unlock()
}

// Lights returns the registered lights.
func (p *LightPass) Lights() []light.Light {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.lights)
}

// SetDynamicLightCap sets how many lights survive culling per frame.
//
// Parameters:
//   - n: the cap, at least 1
//
// Returns:
//   - error: an error wrapping ErrLightCap if the light buffer cannot hold n lights
func (p *LightPass) SetDynamicLightCap(n int) error {
	if err := p.checkCap(n); err != nil {
		return err
	}
	p.mu.Lock()
	p.lightCap = n
	p.mu.Unlock()
	return nil
}

// DynamicLightCap returns the per-frame light cap.
func (p *LightPass) DynamicLightCap() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lightCap
}

// SetLensProperties sets the depth of field parameters. Together with the camera clip planes
// they are written to the LensProperties binding every frame.
//
// Parameters:
//   - focalDistance: the distance that is in focus
//   - maxBlurDistance: the distance from focus at which blur is strongest
func (p *LightPass) SetLensProperties(focalDistance, maxBlurDistance float32) {
	p.mu.Lock()
	p.focal, p.maxBlur = focalDistance, maxBlurDistance
	p.mu.Unlock()
}

// LensProperties returns the focal distance and max blur distance.
func (p *LightPass) LensProperties() (float32, float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.focal, p.maxBlur
}

// SetPresentAfterPass makes the pass present the back buffer after it has flushed.
func (p *LightPass) SetPresentAfterPass(present bool) {
	p.presentAfterPass.Store(present)
}

// PresentAfterPass reports whether the pass presents the back buffer.
func (p *LightPass) PresentAfterPass() bool {
	return p.presentAfterPass.Load()
}

// Grid returns the tile grid holding the light assignment of the last frame.
func (p *LightPass) Grid() *light.TileGrid {
	return p.grid
}

// VisibleLights returns the lights that survived culling in the last frame.
func (p *LightPass) VisibleLights() []light.Properties {
	return slices.Clone(p.culled)
}

// TilesDrawn returns how many tiles had at least one light in the last frame.
func (p *LightPass) TilesDrawn() int {
	return p.tilesDrawn
}

func (p *LightPass) IsValid() bool {
	if p.geometry == nil || p.geometry.IsDisposed() {
		return false
	}
	for _, r := range p.shaders.required() {
		if !usable(r.sh) {
			return false
		}
	}
	return p.shaders.OutlineFS == nil || usable(p.shaders.OutlineFS)
}

// bindResources points every package at the current targets.
func (p *LightPass) bindResources(gBuffer [GBufferCount]backend.Texture, depth backend.Texture) {
	s, t := &p.shaders, &p.targets
	for i, name := range gBufferBindingNames {
		p.lightRes.setView(s.LightFS, name, gBuffer[i].ShaderResource)
	}
	p.finalRes.setView(s.FinalFS, gBufferBindingNames[GBufferDiffuse], gBuffer[GBufferDiffuse].ShaderResource)
	p.outlineRes.setView(s.OutlineFS, gBufferBindingNames[GBufferNormal], gBuffer[GBufferNormal].ShaderResource)
	p.outlineRes.setView(s.OutlineFS, GeomDepthBindingName, depth.ShaderResource)

	p.copyRes.setView(s.CopyFS, SourceTexBindingName, t.preBloom.ShaderResource)
	p.copyRes.setView(s.CopyFS, SourceSamplerBindingName, p.sampler)
	p.copyDoFRes.setView(s.CopyFS, SourceTexBindingName, t.nonDoF.ShaderResource)
	p.copyDoFRes.setView(s.CopyFS, SourceSamplerBindingName, p.sampler)
	p.copyReverseRes.setView(s.CopyReverseFS, SourceTexBindingName, t.bloomTarget.ShaderResource)
	p.copyReverseRes.setView(s.CopyReverseFS, SourceSamplerBindingName, p.sampler)
	p.bloomHRes.setView(s.BloomHFS, PreBloomImageBindingName, t.reducedBloom.ShaderResource)
	p.bloomVRes.setView(s.BloomVFS, PreBloomImageBindingName, t.reducedBloom.ShaderResource)
	p.blurRes.setView(s.BlurFS, UnblurredSceneBindingName, t.reducedNonDoF.ShaderResource)
	p.dofRes.setView(s.DoFFS, UnblurredSceneBindingName, t.nonDoF.ShaderResource)
	p.dofRes.setView(s.DoFFS, BlurredSceneBindingName, t.dof.ShaderResource)
	p.dofRes.setView(s.DoFFS, SceneDepthBindingName, depth.ShaderResource)
	p.dofRes.setView(s.DoFFS, SourceSamplerBindingName, p.sampler)
}

func (p *LightPass) Execute(pp parallel.Provider) error {
	w, h := p.geometry.OutputSize()
	if w == 0 || h == 0 {
		return nil
	}
	window, ok := p.Device().WindowTargets()
	depth := p.geometry.DepthBuffer()
	if !ok || !depth.Valid() {
		return nil
	}
	resized, err := p.targets.ensure(p.Device(), w, h)
	if err != nil {
		return err
	}
	if resized {
		p.Logger().Debugf("light pass targets resized to %dx%d", w, h)
	}
	p.bindResources(p.geometry.GBuffer(), depth)

	cam := p.geometry.Camera()
	p.mu.Lock()
	lights := slices.Clone(p.lights)
	lightCap := p.lightCap
	lens := light.GPULensProperties{Near: cam.Near(), Far: cam.Far(), FocalDistance: p.focal, MaxBlurDistance: p.maxBlur}
	p.mu.Unlock()

	frustum := cam.Frustum()
	p.culled = light.Cull(p.culled[:0], lights, &frustum, cam.Position(), lightCap)
	p.grid.Assign(p.culled, cam.ViewProjectionMatrix(), cam.Up(), cam.Right())

	if p.cameraProps != nil {
		props := camera.NewGPUCameraProperties(cam)
		if err := p.lightRes.bind.SetValue(p.cameraProps, props.Marshal()); err != nil {
			return err
		}
	}
	if p.lens != nil {
		if err := p.dofRes.bind.SetValue(p.lens, lens.Marshal()); err != nil {
			return err
		}
	}

	q := pp.Master().Queue
	s, t := &p.shaders, &p.targets
	full := [4]float32{0, 0, float32(w), float32(h)}
	hw, hh := t.halfSize()
	half := [4]float32{0, 0, float32(hw), float32(hh)}

	// Clear targets.
	for _, tex := range []backend.Texture{t.preBloom, t.reducedBloom, t.bloomTarget, t.nonDoF, t.reducedNonDoF, t.dof} {
		queue.ClearRenderTarget(q, tex.RenderTarget, [4]float32{})
	}
	q.QueueCommand(command.NewClearDepthStencil(t.bloomResizeCopyDS.DepthStencil, 1, 0))
	q.QueueCommand(command.NewClearDepthStencil(t.dsThrowaway.DepthStencil, 1, 0))

	q.QueueCommand(command.NewSetPrimitiveTopology(command.TopologyTriangleList))
	q.QueueCommand(command.NewSetInputLayout(p.planeLayout))
	q.QueueCommand(command.NewSetVertexBuffer(p.planeBuffer, 0, lightPlaneStride))
	queueShaderSwitch(q, s.LightVS)
	queueShaderResourceUpdate(q, s.LightVS, p.vsRes.bind)

	// Dynamic lights, one plane per lit tile.
	queueShaderSwitch(q, s.LightFS)
	q.QueueCommand(command.NewSetRasterizerState(command.CullNone))
	setViewport(q, full)
	q.QueueCommand(command.NewSetDepthStencilState(command.DepthDisabled))
	q.QueueCommand(command.NewSetBlendState(command.BlendAdditive))
	queue.SetRenderTargets(q, t.dsThrowaway.DepthStencil, t.nonDoF.RenderTarget, t.preBloom.RenderTarget)
	queueShaderResourceUpdate(q, s.LightFS, p.lightRes.bind)

	p.tilesDrawn = 0
	n := p.grid.Granularity()
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			bucket := p.grid.Bucket(x, y)
			if len(bucket) == 0 {
				continue
			}
			p.lightData = light.MarshalProperties(p.lightData[:0], bucket)
			meta := light.GPULightMeta{Count: int32(len(bucket))}
			bounds := p.grid.TileBounds(x, y)
			queue.BufferWrite(q, p.lightBuffer.Buffer(), p.lightData)
			queue.BufferWrite(q, p.lightMeta.Buffer(), meta.Marshal())
			queue.BufferWrite(q, p.scalars.Buffer(), bounds.Marshal())
			fullScreenQuad(q)
			p.tilesDrawn++
		}
	}
	queueShaderResourceUpdate(q, s.LightFS, p.lightRes.unbind)

	// Ambient and finalization over the whole screen.
	fullScreen := light.GPUTileScalars{XMin: 0, XMax: 1, YMin: 0, YMax: 1}
	queue.BufferWrite(q, p.scalars.Buffer(), fullScreen.Marshal())
	p.fullScreenStage(q, s.FinalFS, p.finalRes)

	if s.OutlineFS != nil {
		queueShaderSwitch(q, s.OutlineFS)
		queueShaderResourceUpdate(q, s.OutlineFS, p.outlineRes.bind)
		q.QueueCommand(command.NewSetBlendState(command.BlendAlpha))
		fullScreenQuad(q)
		queueShaderResourceUpdate(q, s.OutlineFS, p.outlineRes.unbind)
	}

	// Downscale the pre-bloom image.
	queue.SetRenderTargets(q, t.bloomResizeCopyDS.DepthStencil, t.reducedBloom.RenderTarget)
	setViewport(q, half)
	q.QueueCommand(command.NewSetBlendState(command.BlendAdditive))
	p.fullScreenStage(q, s.CopyFS, p.copyRes)

	// Bloom both directions into the bloom target.
	q.QueueCommand(command.NewClearDepthStencil(t.bloomResizeCopyDS.DepthStencil, 1, 0))
	queue.SetRenderTargets(q, t.bloomResizeCopyDS.DepthStencil, t.bloomTarget.RenderTarget)
	p.fullScreenStage(q, s.BloomHFS, p.bloomHRes)
	p.fullScreenStage(q, s.BloomVFS, p.bloomVRes)

	// Composite the bloom onto the sharp scene.
	queue.SetRenderTargets(q, t.dsThrowaway.DepthStencil, t.nonDoF.RenderTarget)
	setViewport(q, full)
	p.fullScreenStage(q, s.CopyReverseFS, p.copyReverseRes)

	// Downscale and blur the scene for depth of field.
	queue.SetRenderTargets(q, t.bloomResizeCopyDS.DepthStencil, t.reducedNonDoF.RenderTarget)
	setViewport(q, half)
	q.QueueCommand(command.NewSetBlendState(command.BlendAdditive))
	p.fullScreenStage(q, s.CopyFS, p.copyDoFRes)

	queue.SetRenderTargets(q, t.bloomResizeCopyDS.DepthStencil, t.dof.RenderTarget)
	q.QueueCommand(command.NewSetBlendState(command.BlendAdditive))
	p.fullScreenStage(q, s.BlurFS, p.blurRes)

	// Select between sharp and blurred by depth into the window.
	queue.SetRenderTargets(q, window.DepthStencil, window.RenderTarget)
	setViewport(q, full)
	q.QueueCommand(command.NewSetBlendState(command.BlendAdditive))
	p.fullScreenStage(q, s.DoFFS, p.dofRes)

	if err := q.Flush(); err != nil {
		return err
	}
	if p.PresentAfterPass() {
		presentBackBuffer(q)
		return q.Flush()
	}
	return nil
}

// fullScreenStage switches to fs, binds its resources, draws the light plane and unbinds.
func (p *LightPass) fullScreenStage(q queue.Queue, fs shader.Shader, res resourcePair) {
	queueShaderSwitch(q, fs)
	queueShaderResourceUpdate(q, fs, res.bind)
	fullScreenQuad(q)
	queueShaderResourceUpdate(q, fs, res.unbind)
}

func setViewport(q queue.Queue, vp [4]float32) {
	q.QueueCommand(command.NewSetViewport(vp[0], vp[1], vp[2], vp[3]))
}

func (p *LightPass) releaseResources() {
	dev := p.Device()
	p.targets.release(dev)
	dev.Release(p.planeLayout)
	dev.Release(p.planeBuffer)
	dev.Release(p.sampler)
	p.planeLayout, p.planeBuffer, p.sampler = 0, 0, 0
}

func (p *LightPass) Dispose() {
	if !p.markDisposed() {
		return
	}
	p.releaseResources()
}
