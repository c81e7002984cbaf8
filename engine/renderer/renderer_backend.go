package renderer

import (
	"cmp"
	"fmt"

	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
	"github.com/Carmen-Shannon/oxy-deferred/engine/renderer/backend"
	"github.com/cogentcore/webgpu/wgpu"
)

// RendererBackendType identifies the backend device implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU device, which needs a window surface.
	BackendTypeWGPU RendererBackendType = iota
	// BackendTypeHeadless selects the recording device, which executes nothing on a GPU.
	BackendTypeHeadless
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// DeviceConfig selects and configures a backend device.
type DeviceConfig struct {
	Backend RendererBackendType
	// Surface is the window surface, required by BackendTypeWGPU.
	Surface     *wgpu.SurfaceDescriptor
	Width       int
	Height      int
	PresentMode PresentMode
	// ForceSoftwareRenderer requests a CPU fallback adapter, which needs a software Vulkan ICD
	// such as SwiftShader or lavapipe.
	ForceSoftwareRenderer bool
	Logger                logger.Logger
}

// Override returns c with the backend choice, present mode and software fallback of o, and with
// the surface and size of o where they are set.
//
// Parameters:
//   - o: the overriding configuration
//
// Returns:
//   - DeviceConfig: the merged configuration; the logger is kept from c
func (c DeviceConfig) Override(o DeviceConfig) DeviceConfig {
	c.Backend = o.Backend
	c.PresentMode = o.PresentMode
	c.ForceSoftwareRenderer = o.ForceSoftwareRenderer
	c.Surface = cmp.Or(o.Surface, c.Surface)
	c.Width = cmp.Or(o.Width, c.Width)
	c.Height = cmp.Or(o.Height, c.Height)
	return c
}

// NewDevice creates the backend device described by cfg.
//
// Parameters:
//   - cfg: the device configuration
//
// Returns:
//   - backend.Device: the device
//   - error: an error if the backend is unknown or the device could not be created
func NewDevice(cfg DeviceConfig) (backend.Device, error) {
	switch cfg.Backend {
	case BackendTypeWGPU:
		if cfg.Surface == nil {
			return nil, fmt.Errorf("renderer: the WGPU backend requires a surface")
		}
		dev, err := backend.NewWGPUDevice(cfg.Surface, cfg.Width, cfg.Height,
			backend.WithVSync(cfg.PresentMode == PresentModeVSync),
			backend.WithForceFallbackAdapter(cfg.ForceSoftwareRenderer),
			backend.WithDeviceLogger(logger.OrNop(cfg.Logger)),
		)
		if err != nil {
			return nil, err
		}
		return dev, nil
	case BackendTypeHeadless:
		return backend.NewRecordingDevice(cfg.Width, cfg.Height), nil
	default:
		return nil, fmt.Errorf("renderer: unknown backend type %d", cfg.Backend)
	}
}
