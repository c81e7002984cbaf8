package backend

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/command"
	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuBuffer struct {
	buf  *wgpu.Buffer
	size uint64
}

type wgpuView struct {
	view   *wgpu.TextureView
	format wgpu.TextureFormat
	depth  bool
	width  uint32
	height uint32
	// window views resolve to the current surface texture at draw time.
	window bool
}

type wgpuTexture struct {
	tex  *wgpu.Texture
	view *wgpu.TextureView
}

type wgpuShader struct {
	module *wgpu.ShaderModule
	stage  command.ShaderStage
	entry  string
}

type wgpuInputLayout struct {
	buffers []wgpu.VertexBufferLayout
	// slots maps each vertex buffer layout index to the command slot it reads from.
	slots []uint32
}

// WGPUDevice implements Device on top of WebGPU.
//
// WebGPU has a single submission queue, so deferred contexts record into their own command
// encoders and the master replays the finished command buffers in order. Buffer writes split a
// recording into chunks so that each write lands between the commands that precede and follow it.
type WGPUDevice struct {
	mu  sync.Mutex
	log logger.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat        wgpu.TextureFormat
	presentMode          wgpu.PresentMode
	forceFallbackAdapter bool

	objects    map[command.Handle]any
	nextHandle command.Handle

	window       Texture
	windowDepth  Texture
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView

	pipelines *pipelineCache
	immediate *wgpuContext
	closed    bool
}

var _ Device = &WGPUDevice{}

// NewWGPUDevice creates the WebGPU instance, adapter, device and surface, then configures the
// surface for the given size.
//
// Parameters:
//   - surfaceDescriptor: the platform surface descriptor from the window
//   - width: the initial back buffer width in pixels
//   - height: the initial back buffer height in pixels
//   - options: functional options
//
// Returns:
//   - *WGPUDevice: the new device
//   - error: an error if no adapter or device could be obtained
func NewWGPUDevice(surfaceDescriptor *wgpu.SurfaceDescriptor, width, height int, options ...WGPUDeviceBuilderOption) (*WGPUDevice, error) {
	if surfaceDescriptor == nil {
		panic("backend: NewWGPUDevice requires a non-nil SurfaceDescriptor")
	}
	runtime.LockOSThread()

	d := &WGPUDevice{
		log:         logger.NewNopLogger(),
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
		objects:     make(map[command.Handle]any),
	}
	for _, opt := range options {
		opt(d)
	}
	d.surface = d.instance.CreateSurface(surfaceDescriptor)

	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	d.adapter = adapter

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "Deferred Renderer Device"})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	d.device = device
	d.queue = device.GetQueue()

	capabilities := d.surface.GetCapabilities(d.adapter)
	if len(capabilities.Formats) == 0 {
		return nil, errors.New("surface reports no supported formats")
	}
	d.surfaceFormat = capabilities.Formats[0]

	d.pipelines = newPipelineCache(d)
	d.immediate = newWGPUContext(d, false)

	if err := d.Resize(width, height); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *WGPUDevice) register(obj any) command.Handle {
	d.nextHandle++
	d.objects[d.nextHandle] = obj
	return d.nextHandle
}

func lookup[T any](d *WGPUDevice, h command.Handle) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.objects[h].(T)
	return obj, ok
}

func (d *WGPUDevice) textureFormat(f TextureFormat) wgpu.TextureFormat {
	switch f {
	case FormatRGBA16Float:
		return wgpu.TextureFormatRGBA16Float
	case FormatDepth24:
		return wgpu.TextureFormatDepth24Plus
	case FormatWindow:
		return d.surfaceFormat
	default:
		return wgpu.TextureFormatRGBA8Unorm
	}
}

func (d *WGPUDevice) Immediate() Context {
	return d.immediate
}

func (d *WGPUDevice) NewDeferredContext() (Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	return newWGPUContext(d, true), nil
}

func (d *WGPUDevice) ExecuteCommandList(list CommandList) error {
	wl, ok := list.(*wgpuCommandList)
	if !ok {
		return &SubmissionError{Op: "execute", Diagnostic: fmt.Sprintf("foreign command list %T", list)}
	}
	if wl.released {
		return &SubmissionError{Op: "execute", Diagnostic: "command list already released"}
	}
	defer wl.Release()
	return d.executeChunks(wl.chunks)
}

// executeChunks applies each chunk's buffer writes, submits its command buffer and presents when
// the chunk ended with a Present.
func (d *WGPUDevice) executeChunks(chunks []wgpuChunk) error {
	for i := range chunks {
		c := &chunks[i]
		for _, w := range c.writes {
			d.queue.WriteBuffer(w.buf, 0, w.data)
		}
		if c.cb != nil {
			d.queue.Submit(c.cb)
			c.cb.Release()
			c.cb = nil
		}
		for _, bg := range c.bindGroups {
			bg.Release()
		}
		c.bindGroups = nil
		if c.present {
			d.present()
		}
	}
	return nil
}

func (d *WGPUDevice) CreateBuffer(desc BufferDescriptor) (command.Handle, error) {
	usage := wgpu.BufferUsageCopyDst
	if desc.Usage&BufferUsageVertex != 0 {
		usage |= wgpu.BufferUsageVertex
	}
	if desc.Usage&BufferUsageIndex != 0 {
		usage |= wgpu.BufferUsageIndex
	}
	if desc.Usage&BufferUsageConstant != 0 {
		usage |= wgpu.BufferUsageUniform
	}
	if desc.Usage&BufferUsageStorage != 0 {
		usage |= wgpu.BufferUsageStorage
	}
	// WebGPU requires buffer sizes to be a multiple of 4.
	size := (desc.Size + 3) &^ 3

	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return 0, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.register(&wgpuBuffer{buf: buf, size: size}), nil
}

func (d *WGPUDevice) WriteBuffer(buffer command.Handle, offset uint64, data []byte) error {
	b, ok := lookup[*wgpuBuffer](d, buffer)
	if !ok {
		return fmt.Errorf("write buffer %d: %w", buffer, ErrUnknownHandle)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("write buffer %d: %d bytes at offset %d exceed size %d", buffer, len(data), offset, b.size)
	}
	d.queue.WriteBuffer(b.buf, offset, padTo4(data))
	return nil
}

func (d *WGPUDevice) BufferSize(buffer command.Handle) uint64 {
	b, ok := lookup[*wgpuBuffer](d, buffer)
	if !ok {
		return 0
	}
	return b.size
}

func (d *WGPUDevice) CreateTexture(desc TextureDescriptor) (Texture, error) {
	format := d.textureFormat(desc.Format)
	var usage wgpu.TextureUsage
	if desc.RenderTarget || desc.Format.IsDepth() {
		usage |= wgpu.TextureUsageRenderAttachment
	}
	if desc.ShaderResource {
		usage |= wgpu.TextureUsageTextureBinding
	}

	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              max(desc.Width, 1),
			Height:             max(desc.Height, 1),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return Texture{}, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return Texture{}, fmt.Errorf("create texture view %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	v := &wgpuView{view: view, format: format, depth: desc.Format.IsDepth(), width: desc.Width, height: desc.Height}
	t := Texture{
		Handle: d.register(&wgpuTexture{tex: tex, view: view}),
		Width:  desc.Width,
		Height: desc.Height,
		Format: desc.Format,
	}
	if v.depth {
		t.DepthStencil = d.register(v)
	} else if desc.RenderTarget {
		t.RenderTarget = d.register(v)
	}
	if desc.ShaderResource {
		t.ShaderResource = d.register(v)
	}
	return t, nil
}

func (d *WGPUDevice) CreateSampler(desc SamplerDescriptor) (command.Handle, error) {
	address := wgpu.AddressModeClampToEdge
	if desc.Repeat {
		address = wgpu.AddressModeRepeat
	}
	filter := wgpu.FilterModeNearest
	if desc.Linear {
		filter = wgpu.FilterModeLinear
	}
	sd := &wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  address,
		AddressModeV:  address,
		AddressModeW:  address,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}
	if desc.Compare {
		sd.Compare = wgpu.CompareFunctionLess
	}
	samp, err := d.device.CreateSampler(sd)
	if err != nil {
		return 0, fmt.Errorf("create sampler %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.register(samp), nil
}

func (d *WGPUDevice) CreateShader(desc ShaderDescriptor) (command.Handle, error) {
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("create shader %q: %w", desc.Label, err)
	}
	entry := desc.EntryPoint
	if entry == "" {
		entry = "main"
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.register(&wgpuShader{module: module, stage: desc.Stage, entry: entry}), nil
}

func (d *WGPUDevice) CreateInputLayout(vertexShader command.Handle, desc InputLayoutDescriptor) (command.Handle, error) {
	vs, ok := lookup[*wgpuShader](d, vertexShader)
	if !ok || vs.stage != command.StageVertex {
		return 0, fmt.Errorf("input layout %q: %w: %d is not a vertex shader", desc.Label, ErrUnknownHandle, vertexShader)
	}

	layout := &wgpuInputLayout{}
	for slot, s := range desc.Slots {
		step := wgpu.VertexStepModeVertex
		if s.PerInstance {
			step = wgpu.VertexStepModeInstance
		}
		var attrs []wgpu.VertexAttribute
		for _, a := range desc.Attributes {
			if a.Slot != uint32(slot) {
				continue
			}
			attrs = append(attrs, wgpu.VertexAttribute{
				Format:         vertexFormat(a.Format),
				Offset:         uint64(a.Offset),
				ShaderLocation: a.Location,
			})
		}
		layout.buffers = append(layout.buffers, wgpu.VertexBufferLayout{
			ArrayStride: uint64(s.Stride),
			StepMode:    step,
			Attributes:  attrs,
		})
		layout.slots = append(layout.slots, uint32(slot))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.register(layout), nil
}

func vertexFormat(f VertexFormat) wgpu.VertexFormat {
	switch f {
	case VertexFloat32x2:
		return wgpu.VertexFormatFloat32x2
	case VertexFloat32x3:
		return wgpu.VertexFormatFloat32x3
	case VertexFloat32x4:
		return wgpu.VertexFormatFloat32x4
	default:
		return wgpu.VertexFormatFloat32
	}
}

func (d *WGPUDevice) WindowTargets() (Texture, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ok := !d.closed && d.window.Width > 0 && d.window.Height > 0
	return d.window, ok
}

func (d *WGPUDevice) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		d.mu.Lock()
		d.window.Width, d.window.Height = 0, 0
		d.mu.Unlock()
		return nil
	}

	capabilities := d.surface.GetCapabilities(d.adapter)
	d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      d.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: d.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	if d.windowDepth.Valid() {
		d.ReleaseTexture(d.windowDepth)
	}
	depth, err := d.CreateTexture(TextureDescriptor{
		Label:  "Window Depth",
		Width:  uint32(width),
		Height: uint32(height),
		Format: FormatDepth24,
	})
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.windowDepth = depth
	if d.window.Handle == 0 {
		d.window.Handle = d.register(&wgpuView{window: true, format: d.surfaceFormat})
		d.window.RenderTarget = d.window.Handle
	}
	if v, ok := d.objects[d.window.Handle].(*wgpuView); ok {
		v.width, v.height = uint32(width), uint32(height)
	}
	d.window.DepthStencil = depth.DepthStencil
	d.window.Width = uint32(width)
	d.window.Height = uint32(height)
	d.window.Format = FormatWindow
	return nil
}

// resolveView returns the texture view behind a view handle, acquiring the current surface
// texture for the window target.
func (d *WGPUDevice) resolveView(h command.Handle) (*wgpuView, *wgpu.TextureView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.objects[h].(*wgpuView)
	if !ok {
		return nil, nil, ErrUnknownHandle
	}
	if !v.window {
		return v, v.view, nil
	}
	if d.frameView == nil {
		surfaceTexture, err := d.surface.GetCurrentTexture()
		if err != nil {
			return nil, nil, fmt.Errorf("acquire surface texture: %w", err)
		}
		view, err := surfaceTexture.CreateView(nil)
		if err != nil {
			surfaceTexture.Release()
			return nil, nil, fmt.Errorf("create surface view: %w", err)
		}
		d.frameSurface = surfaceTexture
		d.frameView = view
	}
	return v, d.frameView, nil
}

func (d *WGPUDevice) present() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frameSurface == nil {
		return
	}
	d.surface.Present()
	d.frameView.Release()
	d.frameSurface.Release()
	d.frameView = nil
	d.frameSurface = nil
}

func (d *WGPUDevice) Release(h command.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, ok := d.objects[h]
	if !ok {
		return
	}
	delete(d.objects, h)
	switch o := obj.(type) {
	case *wgpuBuffer:
		o.buf.Release()
	case *wgpu.Sampler:
		o.Release()
	case *wgpuShader:
		o.module.Release()
	}
}

func (d *WGPUDevice) ReleaseTexture(t Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range []command.Handle{t.RenderTarget, t.ShaderResource, t.DepthStencil} {
		delete(d.objects, h)
	}
	if wt, ok := d.objects[t.Handle].(*wgpuTexture); ok {
		wt.view.Release()
		wt.tex.Release()
	}
	delete(d.objects, t.Handle)
}

func (d *WGPUDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	handles := make([]command.Handle, 0, len(d.objects))
	for h := range d.objects {
		handles = append(handles, h)
	}
	d.mu.Unlock()

	for _, h := range handles {
		if t, ok := lookup[*wgpuTexture](d, h); ok {
			t.view.Release()
			t.tex.Release()
			continue
		}
		d.Release(h)
	}
	d.pipelines.release()
	if d.device != nil {
		d.device.Release()
	}
	if d.surface != nil {
		d.surface.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
	return nil
}

func padTo4(data []byte) []byte {
	if len(data)%4 == 0 {
		return data
	}
	out := make([]byte, (len(data)+3)&^3)
	copy(out, data)
	return out
}
