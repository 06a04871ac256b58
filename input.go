package audiograph

import (
	"fmt"
	"sync"
	"sync/atomic"

	"pipelined.dev/audiograph/metric"
	"pipelined.dev/audiograph/signal"
)

// InputDevice is a capture device adapter. Read copies captured frames
// into dst without blocking and returns the number of frames copied.
type InputDevice interface {
	Name() string
	SampleRate() int
	NumChannels() int
	Start() error
	Stop() error
	Read(dst signal.Float64) int
}

// InputDeviceNode is a source that renders captured signal. Device is
// started when node is enabled and stopped when it's disabled.
type InputDeviceNode struct {
	*Node
	device    InputDevice
	underruns atomic.Uint64
	events    metric.Events

	errMu sync.Mutex
	err   error
}

// NewInputDeviceNode returns a disabled source of device.
func NewInputDeviceNode(ctx *Context, device InputDevice, opts ...NodeOption) (*InputDeviceNode, error) {
	if device == nil {
		return nil, ErrNoDevice
	}
	if device.NumChannels() < 1 {
		return nil, fmt.Errorf("%w: device %s has %d channels", ErrInvalidChannels, device.Name(), device.NumChannels())
	}
	if device.SampleRate() != ctx.SampleRate() {
		ctx.logger.Warn(fmt.Sprintf("%s: input %s sample rate %d doesn't match %d", ctx.name, device.Name(), device.SampleRate(), ctx.SampleRate()))
	}
	i := &InputDeviceNode{device: device, events: metric.NewEvents((*InputDeviceNode)(nil))}
	opts = append([]NodeOption{WithChannels(device.NumChannels()), WithNodeName(device.Name())}, opts...)
	i.Node = ctx.MakeNode(i, sourceDefaults(opts)...)
	return i, nil
}

// Device returns the device of node.
func (i *InputDeviceNode) Device() InputDevice {
	return i.device
}

// Underruns returns the number of blocks device couldn't fill.
func (i *InputDeviceNode) Underruns() uint64 {
	return i.underruns.Load()
}

// Err returns the last error of starting or stopping device.
func (i *InputDeviceNode) Err() error {
	i.errMu.Lock()
	defer i.errMu.Unlock()
	return i.err
}

func (i *InputDeviceNode) setErr(err error) {
	i.errMu.Lock()
	i.err = err
	i.errMu.Unlock()
}

// EnableProcessing starts the device.
func (i *InputDeviceNode) EnableProcessing() {
	i.setErr(i.device.Start())
}

// DisableProcessing stops the device.
func (i *InputDeviceNode) DisableProcessing() {
	i.setErr(i.device.Stop())
}

// Process copies captured frames, the rest of block is silent.
func (i *InputDeviceNode) Process(buf signal.Float64) {
	n := i.device.Read(buf)
	if n < buf.Size() {
		buf.ZeroFrom(n)
		i.underruns.Add(1)
		i.events.Underrun()
	}
}
