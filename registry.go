package audiograph

import (
	"fmt"
	"sync"
)

// DeviceManager provides default hardware devices.
type DeviceManager interface {
	DefaultOutput() (Device, error)
	DefaultInput() (InputDevice, error)
}

// Registry holds the master context and the device manager of process.
// Master context is created on first access.
type Registry struct {
	mu      sync.Mutex
	master  *Context
	devices DeviceManager
	opts    []Option
}

// NewRegistry returns a registry that creates master context with opts
// and outputs it to the default device of dm. Nil dm means master context
// has no output.
func NewRegistry(dm DeviceManager, opts ...Option) *Registry {
	return &Registry{
		devices: dm,
		opts:    opts,
	}
}

// Master returns the master context, creating it if needed.
func (r *Registry) Master() (*Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.master != nil {
		return r.master, nil
	}
	ctx, err := NewContext(r.opts...)
	if err != nil {
		return nil, err
	}
	if r.devices != nil {
		device, err := r.devices.DefaultOutput()
		if err != nil {
			return nil, fmt.Errorf("master output: %w", err)
		}
		out, err := NewOutputNode(ctx, device)
		if err != nil {
			return nil, fmt.Errorf("master output: %w", err)
		}
		if err := ctx.SetOutput(out); err != nil {
			return nil, err
		}
	}
	ctx.logger.Info(fmt.Sprintf("%s: master context created", ctx.name))
	r.master = ctx
	return ctx, nil
}

// SetMaster replaces master context and device manager. Previous master
// isn't closed.
func (r *Registry) SetMaster(ctx *Context, dm DeviceManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.master = ctx
	r.devices = dm
}

// DeviceManager returns the device manager of registry.
func (r *Registry) DeviceManager() DeviceManager {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.devices
}

var defaultRegistry = NewRegistry(nil)

// Master returns the master context of default registry.
func Master() (*Context, error) {
	return defaultRegistry.Master()
}

// SetMaster overrides master context and device manager of default
// registry.
func SetMaster(ctx *Context, dm DeviceManager) {
	defaultRegistry.SetMaster(ctx, dm)
}

// Devices returns device manager of default registry.
func Devices() DeviceManager {
	return defaultRegistry.DeviceManager()
}
