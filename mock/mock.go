// Package mock provides devices and files that don't touch hardware. They
// are used to test graphs and to render them offline.
package mock

import (
	"fmt"
	"io"
	"sync"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/signal"
)

const (
	// DefaultSampleRate of mock devices.
	DefaultSampleRate = 44100
	// DefaultFramesPerBlock of mock devices.
	DefaultFramesPerBlock = 512
)

// Device is an output device that renders blocks on its own goroutine as
// fast as it can. Rendered signal is recorded.
type Device struct {
	Rate     int
	Frames   int
	Channels int
	// Limit is the number of blocks to render. Zero means render until
	// stopped.
	Limit int
	// ErrorOnStart is returned by Start.
	ErrorOnStart error
	// Discard disables recording.
	Discard bool

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	blocks  int
	starts  int
	samples signal.Float64
}

// Name returns device name.
func (d *Device) Name() string {
	return "mock"
}

// SampleRate returns Rate or DefaultSampleRate.
func (d *Device) SampleRate() int {
	if d.Rate == 0 {
		return DefaultSampleRate
	}
	return d.Rate
}

// FramesPerBlock returns Frames or DefaultFramesPerBlock.
func (d *Device) FramesPerBlock() int {
	if d.Frames == 0 {
		return DefaultFramesPerBlock
	}
	return d.Frames
}

// NumChannels returns Channels, 1 if it's not set.
func (d *Device) NumChannels() int {
	if d.Channels == 0 {
		return 1
	}
	return d.Channels
}

// Start runs the render goroutine.
func (d *Device) Start(r audiograph.Renderer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ErrorOnStart != nil {
		return d.ErrorOnStart
	}
	if d.done != nil {
		return audiograph.ErrDeviceRunning
	}
	d.starts++
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.render(r, d.stop, d.done)
	return nil
}

func (d *Device) render(r audiograph.Renderer, stop, done chan struct{}) {
	defer close(done)
	for i := 0; d.Limit == 0 || i < d.Limit; i++ {
		select {
		case <-stop:
			return
		default:
		}
		buf := r.Render()
		d.mu.Lock()
		d.blocks++
		if !d.Discard {
			d.record(buf)
		}
		d.mu.Unlock()
	}
}

func (d *Device) record(buf signal.Float64) {
	if d.samples == nil {
		d.samples = make(signal.Float64, len(buf))
	}
	for c := range min(len(buf), len(d.samples)) {
		d.samples[c] = append(d.samples[c], buf[c]...)
	}
}

// Stop stops the render goroutine and waits for it.
func (d *Device) Stop() error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()
	if done == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// Wait blocks until the render goroutine exits. It returns immediately if
// device isn't started.
func (d *Device) Wait() {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Blocks returns the number of rendered blocks.
func (d *Device) Blocks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blocks
}

// Starts returns the number of successful starts.
func (d *Device) Starts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

// Samples returns a copy of recorded signal.
func (d *Device) Samples() signal.Float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := make(signal.Float64, len(d.samples))
	for c := range d.samples {
		result[c] = append([]float64(nil), d.samples[c]...)
	}
	return result
}

// Reset drops recorded signal and counters.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples = nil
	d.blocks = 0
}

// InputDevice is a capture device that produces a constant value. It's
// drained after Limit frames, zero Limit means it's never drained.
type InputDevice struct {
	Rate     int
	Channels int
	Value    float64
	Limit    int
	// ErrorOnStart is returned by Start.
	ErrorOnStart error

	mu      sync.Mutex
	started bool
	read    int
}

// Name returns device name.
func (d *InputDevice) Name() string {
	return "mock input"
}

// SampleRate returns Rate or DefaultSampleRate.
func (d *InputDevice) SampleRate() int {
	if d.Rate == 0 {
		return DefaultSampleRate
	}
	return d.Rate
}

// NumChannels returns Channels, 1 if it's not set.
func (d *InputDevice) NumChannels() int {
	if d.Channels == 0 {
		return 1
	}
	return d.Channels
}

// Start starts capturing.
func (d *InputDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ErrorOnStart != nil {
		return d.ErrorOnStart
	}
	d.started = true
	return nil
}

// Stop stops capturing.
func (d *InputDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return nil
}

// IsStarted reports if device is capturing.
func (d *InputDevice) IsStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Read fills dst with value. Nothing is read from stopped device.
func (d *InputDevice) Read(dst signal.Float64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return 0
	}
	n := dst.Size()
	if d.Limit > 0 {
		n = max(0, min(n, d.Limit-d.read))
	}
	for c := range dst {
		for i := range n {
			dst[c][i] = d.Value
		}
	}
	d.read += n
	return n
}

// Source is an in-memory source file.
type Source struct {
	Data signal.Float64
	Rate int
	// ErrorOnRead is returned by Read after the first frame.
	ErrorOnRead error

	pos int
}

// NumChannels returns the number of data channels.
func (s *Source) NumChannels() int {
	return len(s.Data)
}

// SampleRate returns Rate or DefaultSampleRate.
func (s *Source) SampleRate() int {
	if s.Rate == 0 {
		return DefaultSampleRate
	}
	return s.Rate
}

// NumFrames returns the length of data.
func (s *Source) NumFrames() int {
	return s.Data.Size()
}

// Seek moves the read position.
func (s *Source) Seek(frame int) error {
	if frame < 0 || frame > s.NumFrames() {
		return fmt.Errorf("%w: frame %d of %d", audiograph.ErrSeekOutOfRange, frame, s.NumFrames())
	}
	s.pos = frame
	return nil
}

// Read copies data from the current position.
func (s *Source) Read(dst signal.Float64) (int, error) {
	if s.ErrorOnRead != nil && s.pos > 0 {
		return 0, s.ErrorOnRead
	}
	if s.pos >= s.NumFrames() {
		return 0, io.EOF
	}
	n := min(dst.Size(), s.NumFrames()-s.pos)
	for c := range min(len(dst), len(s.Data)) {
		copy(dst[c][:n], s.Data[c][s.pos:s.pos+n])
	}
	s.pos += n
	return n, nil
}

// DeviceManager returns configured devices, ErrNoDevice if they're nil.
type DeviceManager struct {
	Output *Device
	Input  *InputDevice
}

// DefaultOutput returns output device.
func (m *DeviceManager) DefaultOutput() (audiograph.Device, error) {
	if m.Output == nil {
		return nil, audiograph.ErrNoDevice
	}
	return m.Output, nil
}

// DefaultInput returns input device.
func (m *DeviceManager) DefaultInput() (audiograph.InputDevice, error) {
	if m.Input == nil {
		return nil, audiograph.ErrNoDevice
	}
	return m.Input, nil
}
