package audiograph

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/spectrum"
	"github.com/cwbudde/algo-dsp/dsp/window"
	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"pipelined.dev/audiograph/signal"
)

// Monitor keeps a window of the latest signal that passes through it. It's
// pulled by context when it has no outputs.
type Monitor struct {
	*Node
	requested  int
	windowSize int
	ring       signal.Float64
	writePos   int
}

// NewMonitor returns a monitor of windowSize frames. Zero window size
// means one block.
func NewMonitor(ctx *Context, windowSize int, opts ...NodeOption) *Monitor {
	m := &Monitor{requested: windowSize}
	m.Node = ctx.MakeNode(m, append([]NodeOption{WithAutoPull()}, opts...)...)
	return m
}

// Initialize allocates the window.
func (m *Monitor) Initialize() {
	m.windowSize = m.requested
	if m.windowSize <= 0 {
		m.windowSize = m.FramesPerBlock()
	}
	m.ring = signal.Alloc(m.numChannels, m.windowSize)
	m.writePos = 0
}

// Process copies the block into window. Block isn't changed.
func (m *Monitor) Process(buf signal.Float64) {
	size := buf.Size()
	if m.windowSize == 0 || size == 0 {
		return
	}
	channels := min(len(buf), len(m.ring))
	// only the tail of a block longer than window is kept
	src := 0
	if size > m.windowSize {
		src = size - m.windowSize
	}
	n := size - src
	first := min(n, m.windowSize-m.writePos)
	for c := range channels {
		copy(m.ring[c][m.writePos:], buf[c][src:src+first])
		copy(m.ring[c], buf[c][src+first:size])
	}
	m.writePos = (m.writePos + n) % m.windowSize
}

// WindowSize returns the number of frames monitor keeps.
func (m *Monitor) WindowSize() (size int) {
	m.locked(func(*Context) { size = m.windowSize })
	return
}

// Buffer returns a copy of window in chronological order.
func (m *Monitor) Buffer() (buf signal.Float64) {
	m.locked(func(*Context) { buf = m.bufferLocked() })
	return
}

func (m *Monitor) bufferLocked() signal.Float64 {
	buf := signal.Alloc(len(m.ring), m.windowSize)
	for c := range m.ring {
		n := copy(buf[c], m.ring[c][m.writePos:])
		copy(buf[c][n:], m.ring[c][:m.writePos])
	}
	return buf
}

// Volume returns RMS of window over all channels.
func (m *Monitor) Volume() (rms float64) {
	m.locked(func(*Context) {
		var sum float64
		var count int
		for _, ch := range m.ring {
			sum += vecmath.Sum(squares(ch))
			count += len(ch)
		}
		if count > 0 {
			rms = math.Sqrt(sum / float64(count))
		}
	})
	return
}

// ChannelVolume returns RMS of window channel.
func (m *Monitor) ChannelVolume(channel int) (rms float64) {
	m.locked(func(*Context) {
		if channel < 0 || channel >= len(m.ring) || len(m.ring[channel]) == 0 {
			return
		}
		ch := m.ring[channel]
		rms = math.Sqrt(vecmath.Sum(squares(ch)) / float64(len(ch)))
	})
	return
}

// VolumeDB returns RMS of window in decibels full scale.
func (m *Monitor) VolumeDB() float64 {
	return core.LinearToDB(m.Volume())
}

func squares(samples []float64) []float64 {
	result := make([]float64, len(samples))
	vecmath.MulBlock(result, samples, samples)
	return result
}

// DefaultSmoothing is the spectral monitor smoothing factor.
const DefaultSmoothing = 0.5

// SpectralMonitor computes magnitude spectrum of its window.
type SpectralMonitor struct {
	*Monitor
	fftSize   int
	smoothing float64
	window    []float64
	plan      *algofft.Plan[complex128]
	spectrum  []float64
}

// NewSpectralMonitor returns a monitor with FFT of fftSize frames. Size
// must be a power of two.
func NewSpectralMonitor(ctx *Context, fftSize int, opts ...NodeOption) (*SpectralMonitor, error) {
	win, err := window.Hann(fftSize, window.WithPeriodic())
	if err != nil {
		return nil, fmt.Errorf("spectral monitor window: %w", err)
	}
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("spectral monitor fft plan: %w", err)
	}
	s := &SpectralMonitor{
		Monitor:   &Monitor{requested: fftSize},
		fftSize:   fftSize,
		smoothing: DefaultSmoothing,
		window:    win,
		plan:      plan,
		spectrum:  make([]float64, fftSize/2),
	}
	s.Node = ctx.MakeNode(s, append([]NodeOption{WithAutoPull()}, opts...)...)
	return s, nil
}

// SetSmoothing sets how much of the previous spectrum is kept, in range
// [0, 1).
func (s *SpectralMonitor) SetSmoothing(factor float64) {
	s.locked(func(*Context) { s.smoothing = core.Clamp(factor, 0, 0.999) })
}

// FFTSize returns the size of FFT.
func (s *SpectralMonitor) FFTSize() int {
	return s.fftSize
}

// MagSpectrum returns smoothed magnitudes of fftSize/2 bins. Channels are
// mixed down to mono.
func (s *SpectralMonitor) MagSpectrum() ([]float64, error) {
	var (
		result []float64
		err    error
	)
	s.locked(func(*Context) {
		buf := s.bufferLocked()
		in := make([]complex128, s.fftSize)
		if len(buf) > 0 {
			mono := signal.Alloc(1, s.fftSize)
			signal.Mix(mono, buf)
			scale := 1 / float64(len(buf))
			for i, v := range mono[0] {
				in[i] = complex(v*s.window[i]*scale, 0)
			}
		}
		out := make([]complex128, s.fftSize)
		if err = s.plan.Forward(out, in); err != nil {
			return
		}
		mags := spectrum.Magnitude(out[:s.fftSize/2])
		norm := 2 / float64(s.fftSize)
		for i, mag := range mags {
			s.spectrum[i] = s.spectrum[i]*s.smoothing + mag*norm*(1-s.smoothing)
		}
		result = append(result, s.spectrum...)
	})
	return result, err
}

// FreqForBin returns the center frequency of spectrum bin.
func (s *SpectralMonitor) FreqForBin(bin int) float64 {
	return float64(bin) * float64(s.SampleRate()) / float64(s.fftSize)
}
