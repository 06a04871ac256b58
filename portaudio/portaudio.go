// Package portaudio provides hardware devices for audio graph. Manager must
// be created before any device is used and closed when they're not needed.
package portaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/log"
	"pipelined.dev/audiograph/signal"
)

const (
	// DefaultFramesPerBlock is the hardware period if no option provided.
	DefaultFramesPerBlock = 512
	// DefaultInputBufferBlocks is the capacity of capture buffer in blocks.
	DefaultInputBufferBlocks = 8
)

// ErrClosed is returned when manager is used after Close.
var ErrClosed = errors.New("portaudio manager is closed")

// Manager initializes portaudio and provides default devices.
type Manager struct {
	mu             sync.Mutex
	closed         bool
	framesPerBlock int
	maxChannels    int
	logger         log.Logger
}

// Option provides a way to set manager parameters.
type Option func(*Manager)

// WithFramesPerBlock sets hardware period of devices.
func WithFramesPerBlock(frames int) Option {
	return func(m *Manager) {
		m.framesPerBlock = frames
	}
}

// WithMaxChannels limits the number of output channels. Default is 2.
func WithMaxChannels(n int) Option {
	return func(m *Manager) {
		m.maxChannels = n
	}
}

// WithLogger sets manager logger.
func WithLogger(logger log.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager initializes portaudio.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{
		framesPerBlock: DefaultFramesPerBlock,
		maxChannels:    2,
		logger:         log.GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.framesPerBlock < 1 {
		return nil, fmt.Errorf("%w: %d", audiograph.ErrInvalidFrames, m.framesPerBlock)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	m.logger.Info(fmt.Sprintf("portaudio: initialized %s", portaudio.VersionText()))
	return m, nil
}

// DefaultOutput returns the system default output device.
func (m *Manager) DefaultOutput() (audiograph.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	info, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audiograph.ErrNoDevice, err)
	}
	channels := min(info.MaxOutputChannels, m.maxChannels)
	if channels < 1 {
		return nil, fmt.Errorf("%w: %s has no output channels", audiograph.ErrNoDevice, info.Name)
	}
	m.logger.Debug(fmt.Sprintf("portaudio: default output %s, %d channels, sample rate %v", info.Name, channels, info.DefaultSampleRate))
	return &Device{
		info:           info,
		sampleRate:     int(info.DefaultSampleRate),
		framesPerBlock: m.framesPerBlock,
		numChannels:    channels,
		logger:         m.logger,
	}, nil
}

// DefaultInput returns the system default input device. It captures mono
// signal.
func (m *Manager) DefaultInput() (audiograph.InputDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audiograph.ErrNoDevice, err)
	}
	if info.MaxInputChannels < 1 {
		return nil, fmt.Errorf("%w: %s has no input channels", audiograph.ErrNoDevice, info.Name)
	}
	m.logger.Debug(fmt.Sprintf("portaudio: default input %s, sample rate %v", info.Name, info.DefaultSampleRate))
	return &InputDevice{
		info:           info,
		sampleRate:     int(info.DefaultSampleRate),
		framesPerBlock: m.framesPerBlock,
		numChannels:    1,
		ring:           newRing(1, m.framesPerBlock*DefaultInputBufferBlocks),
		logger:         m.logger,
	}, nil
}

// Close terminates portaudio. Streams that are still open are closed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return portaudio.Terminate()
}

// Device is an output device. Graph is rendered from portaudio callback.
type Device struct {
	info           *portaudio.DeviceInfo
	sampleRate     int
	framesPerBlock int
	numChannels    int
	logger         log.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
}

// Name returns hardware device name.
func (d *Device) Name() string {
	return d.info.Name
}

// SampleRate returns device sample rate.
func (d *Device) SampleRate() int {
	return d.sampleRate
}

// FramesPerBlock returns hardware period.
func (d *Device) FramesPerBlock() int {
	return d.framesPerBlock
}

// NumChannels returns number of output channels.
func (d *Device) NumChannels() int {
	return d.numChannels
}

// Start opens and starts the stream.
func (d *Device) Start(r audiograph.Renderer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return audiograph.ErrDeviceRunning
	}
	params := portaudio.LowLatencyParameters(nil, d.info)
	params.Output.Channels = d.numChannels
	params.SampleRate = float64(d.sampleRate)
	params.FramesPerBuffer = d.framesPerBlock
	stream, err := portaudio.OpenStream(params, func(out []float32) {
		interleave(out, r.Render(), d.numChannels)
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", d.info.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start %s: %w", d.info.Name, err)
	}
	d.stream = stream
	d.logger.Debug(fmt.Sprintf("portaudio: %s latency %v", d.info.Name, stream.Info().OutputLatency))
	return nil
}

// Stop waits for pending buffers and closes the stream.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	stream := d.stream
	d.stream = nil
	return errors.Join(stream.Stop(), stream.Close())
}

// InputDevice is a capture device. Captured frames are buffered until
// they're read by the graph.
type InputDevice struct {
	info           *portaudio.DeviceInfo
	sampleRate     int
	framesPerBlock int
	numChannels    int
	ring           *ring
	logger         log.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
}

// Name returns hardware device name.
func (d *InputDevice) Name() string {
	return d.info.Name
}

// SampleRate returns device sample rate.
func (d *InputDevice) SampleRate() int {
	return d.sampleRate
}

// NumChannels returns number of captured channels.
func (d *InputDevice) NumChannels() int {
	return d.numChannels
}

// Overruns returns the number of frames dropped because buffer was full.
func (d *InputDevice) Overruns() uint64 {
	return d.ring.overruns()
}

// Start opens and starts capture stream.
func (d *InputDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return nil
	}
	d.ring.reset()
	params := portaudio.LowLatencyParameters(d.info, nil)
	params.Input.Channels = d.numChannels
	params.SampleRate = float64(d.sampleRate)
	params.FramesPerBuffer = d.framesPerBlock
	stream, err := portaudio.OpenStream(params, func(in []float32) {
		d.ring.write(in)
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", d.info.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start %s: %w", d.info.Name, err)
	}
	d.stream = stream
	return nil
}

// Stop aborts capture and closes the stream.
func (d *InputDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	stream := d.stream
	d.stream = nil
	if err := errors.Join(stream.Abort(), stream.Close()); err != nil {
		d.logger.Warn(fmt.Sprintf("portaudio: stop %s: %v", d.info.Name, err))
		return err
	}
	return nil
}

// Read copies buffered frames into dst.
func (d *InputDevice) Read(dst signal.Float64) int {
	return d.ring.read(dst)
}

// interleave writes planar block into interleaved hardware buffer. Frames
// that block doesn't have are silent.
func interleave(out []float32, block signal.Float64, numChannels int) {
	frames := len(out) / numChannels
	n := min(frames, block.Size())
	for c := 0; c < numChannels; c++ {
		if c >= len(block) {
			for i := 0; i < frames; i++ {
				out[i*numChannels+c] = 0
			}
			continue
		}
		src := block[c]
		for i := 0; i < n; i++ {
			out[i*numChannels+c] = float32(src[i])
		}
		for i := n; i < frames; i++ {
			out[i*numChannels+c] = 0
		}
	}
}
