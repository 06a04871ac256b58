package audiograph

import (
	"fmt"
	"sync/atomic"

	"pipelined.dev/audiograph/metric"
	"pipelined.dev/audiograph/signal"
)

// DefaultClipThreshold is the absolute sample value output treats as clip.
const DefaultClipThreshold = 2.0

// Renderer renders blocks of the graph. Returned buffer is valid until the
// next call.
type Renderer interface {
	Render() signal.Float64
}

// Device is an output device adapter. Started device must call Render once
// per hardware period from a single goroutine until it's stopped.
type Device interface {
	Name() string
	SampleRate() int
	FramesPerBlock() int
	NumChannels() int
	Start(r Renderer) error
	Stop() error
}

// OutputNode is the root of graph. It renders blocks for device and
// detects clipping.
type OutputNode struct {
	*Node
	device        Device
	clipDetection bool
	clipThreshold float64
	silenceOnClip bool
	lastClip      atomic.Uint64
	numClips      atomic.Uint64
	events        metric.Events
}

// OutputOption configures output node.
type OutputOption func(*OutputNode)

// WithClipDetection enables clip detection with threshold.
func WithClipDetection(enabled bool, threshold float64) OutputOption {
	return func(o *OutputNode) {
		o.clipDetection = enabled
		if threshold > 0 {
			o.clipThreshold = threshold
		}
	}
}

// WithSilenceOnClip defines if clipped blocks are replaced with silence.
func WithSilenceOnClip(silence bool) OutputOption {
	return func(o *OutputNode) {
		o.silenceOnClip = silence
	}
}

// NewOutputNode returns output node of device. ErrNoDevice is returned for
// nil device, ErrInvalidChannels and ErrInvalidFrames for devices with
// invalid format.
func NewOutputNode(ctx *Context, device Device, opts ...OutputOption) (*OutputNode, error) {
	if device == nil {
		return nil, ErrNoDevice
	}
	if device.NumChannels() < 1 {
		return nil, fmt.Errorf("%w: device %s has %d channels", ErrInvalidChannels, device.Name(), device.NumChannels())
	}
	if device.FramesPerBlock() < 1 {
		return nil, fmt.Errorf("%w: device %s has %d frames per block", ErrInvalidFrames, device.Name(), device.FramesPerBlock())
	}
	if device.SampleRate() < 1 {
		return nil, fmt.Errorf("%w: device %s has sample rate %d", ErrInvalidSampleRate, device.Name(), device.SampleRate())
	}
	o := &OutputNode{
		device:        device,
		clipDetection: true,
		clipThreshold: DefaultClipThreshold,
		silenceOnClip: true,
		events:        metric.NewEvents((*OutputNode)(nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.Node = ctx.MakeNode(o,
		WithChannels(device.NumChannels()),
		WithAutoEnable(false),
		WithNodeName(device.Name()),
	)
	o.terminal = true
	return o, nil
}

// Device returns the device of output.
func (o *OutputNode) Device() Device {
	return o.device
}

// Render renders one block. The context mutex is held for the whole block.
func (o *OutputNode) Render() signal.Float64 {
	ctx := o.context()
	if ctx == nil {
		o.internal.Zero()
		return o.internal
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if !o.initialized {
		o.internal.Zero()
		return o.internal
	}

	ctx.PreProcess()
	o.internal.Zero()
	o.pullInputs(o.internal)
	if o.clipping(ctx) && o.silenceOnClip {
		o.internal.Zero()
	}
	ctx.PostProcess()
	return o.internal
}

func (o *OutputNode) clipping(ctx *Context) bool {
	if !o.clipDetection {
		return false
	}
	frame, found := signal.Threshold(o.internal, o.clipThreshold)
	if !found {
		return false
	}
	o.lastClip.Store(ctx.numProcessedFrames.Load() + uint64(frame) + 1)
	o.numClips.Add(1)
	o.events.Clip()
	return true
}

// LastClip returns the processed frame of the last detected clip and
// resets it. Ok is false if there was no clip since the last call.
func (o *OutputNode) LastClip() (frame uint64, ok bool) {
	v := o.lastClip.Swap(0)
	if v == 0 {
		return 0, false
	}
	return v - 1, true
}

// NumClips returns the number of clipped blocks.
func (o *OutputNode) NumClips() uint64 {
	return o.numClips.Load()
}

// IsClipDetectionEnabled reports if output checks blocks for clipping.
func (o *OutputNode) IsClipDetectionEnabled() (enabled bool) {
	o.locked(func(*Context) { enabled = o.clipDetection })
	return
}

// ClipThreshold returns the clip detection threshold.
func (o *OutputNode) ClipThreshold() (threshold float64) {
	o.locked(func(*Context) { threshold = o.clipThreshold })
	return
}

// EnableClipDetection changes clip detection settings.
func (o *OutputNode) EnableClipDetection(enabled bool, threshold float64) {
	o.locked(func(*Context) {
		o.clipDetection = enabled
		if threshold > 0 {
			o.clipThreshold = threshold
		}
	})
}

// DeviceParamsDidChange must be called by device adapter after sample rate
// or block size of device has changed. All nodes are uninitialized and
// initialized with the new format.
func (o *OutputNode) DeviceParamsDidChange() {
	o.locked(func(ctx *Context) {
		if ctx.output != o {
			return
		}
		ctx.setFormatLocked(o.device.SampleRate(), o.device.FramesPerBlock())
		ctx.reinitializeLocked()
		ctx.logger.Info(fmt.Sprintf("%s: %s changed format, sample rate %d, frames per block %d", ctx.name, o.name, ctx.SampleRate(), ctx.FramesPerBlock()))
	})
}
