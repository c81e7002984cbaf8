package backend

import (
	"github.com/Carmen-Shannon/oxy-deferred/engine/logger"
	"github.com/cogentcore/webgpu/wgpu"
)

// WGPUDeviceBuilderOption is a functional option applied to a WGPUDevice during construction.
type WGPUDeviceBuilderOption func(*WGPUDevice)

// WithVSync selects FIFO presentation when enabled and immediate presentation otherwise.
//
// Parameters:
//   - enabled: true to wait for vertical blank
//
// Returns:
//   - WGPUDeviceBuilderOption: a function that applies the present mode option to a WGPUDevice
func WithVSync(enabled bool) WGPUDeviceBuilderOption {
	return func(d *WGPUDevice) {
		if enabled {
			d.presentMode = wgpu.PresentModeFifo
		} else {
			d.presentMode = wgpu.PresentModeImmediate
		}
	}
}

// WithForceFallbackAdapter requests a CPU/software adapter instead of hardware acceleration.
//
// Parameters:
//   - force: true to request the fallback adapter
//
// Returns:
//   - WGPUDeviceBuilderOption: a function that applies the adapter option to a WGPUDevice
func WithForceFallbackAdapter(force bool) WGPUDeviceBuilderOption {
	return func(d *WGPUDevice) {
		d.forceFallbackAdapter = force
	}
}

// WithDeviceLogger sets the logger used for backend diagnostics.
//
// Parameters:
//   - l: the logger; nil selects a no-op logger
//
// Returns:
//   - WGPUDeviceBuilderOption: a function that applies the logger option to a WGPUDevice
func WithDeviceLogger(l logger.Logger) WGPUDeviceBuilderOption {
	return func(d *WGPUDevice) {
		d.log = logger.OrNop(l)
	}
}
