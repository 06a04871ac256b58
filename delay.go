package audiograph

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/delay"

	"pipelined.dev/audiograph/signal"
)

// Delay delays its input by a param of seconds. It's the node that can be
// part of a feedback loop. Signal that goes around a loop is delayed by at
// least one block.
type Delay struct {
	*Node
	delaySeconds    *Param
	maxDelaySeconds float64
	sampleRate      float64
	lines           []*delay.Line
}

// NewDelay returns a mono delay node.
func NewDelay(ctx *Context, opts ...NodeOption) *Delay {
	d := &Delay{}
	d.Node = ctx.MakeNode(d, append([]NodeOption{WithChannels(1)}, opts...)...)
	d.delaySeconds = NewParam(d, 0)
	return d
}

// SupportsCycles allows delay in feedback loops.
func (d *Delay) SupportsCycles() bool {
	return true
}

// Param returns delay param in seconds.
func (d *Delay) Param() *Param {
	return d.delaySeconds
}

// DelaySeconds returns the current delay.
func (d *Delay) DelaySeconds() float64 {
	return d.delaySeconds.Value()
}

// MaxDelaySeconds returns the delay buffer capacity.
func (d *Delay) MaxDelaySeconds() (seconds float64) {
	d.locked(func(*Context) { seconds = d.maxDelaySeconds })
	return
}

// SetDelaySeconds sets the delay. Negative values are clamped to zero. Delay
// line grows if seconds exceed its capacity.
func (d *Delay) SetDelaySeconds(seconds float64) {
	seconds = max(0, seconds)
	d.locked(func(*Context) {
		if seconds > d.maxDelaySeconds {
			d.setMaxDelaySecondsLocked(seconds)
		}
	})
	d.delaySeconds.SetValue(seconds)
}

// SetMaxDelaySeconds reallocates the delay line. Buffered signal is lost.
func (d *Delay) SetMaxDelaySeconds(seconds float64) {
	d.locked(func(*Context) { d.setMaxDelaySecondsLocked(seconds) })
}

func (d *Delay) setMaxDelaySecondsLocked(seconds float64) {
	d.maxDelaySeconds = max(0, seconds)
	if d.sampleRate == 0 {
		// allocated on initialize
		return
	}
	delayFrames := int(signal.FramesOf(int(d.sampleRate), d.maxDelaySeconds))
	// extra frames keep the oldest tap and its interpolation neighbour
	size := max(d.FramesPerBlock(), delayFrames) + 3
	d.lines = d.lines[:0]
	for range d.numChannels {
		if line, err := delay.New(size); err == nil {
			d.lines = append(d.lines, line)
		}
	}
}

// ClearBuffer zeroes the delay line.
func (d *Delay) ClearBuffer() {
	d.locked(func(*Context) {
		for _, line := range d.lines {
			line.Reset()
		}
	})
}

// Initialize allocates the delay line.
func (d *Delay) Initialize() {
	d.sampleRate = float64(d.SampleRate())
	if d.maxDelaySeconds == 0 {
		d.maxDelaySeconds = d.delaySeconds.Value()
	}
	d.setMaxDelaySecondsLocked(d.maxDelaySeconds)
}

// Uninitialize releases the delay line.
func (d *Delay) Uninitialize() {
	d.sampleRate = 0
	d.lines = nil
}

// Process writes the incoming sample, then reads the delayed one. Zero
// delay passes signal through.
func (d *Delay) Process(buf signal.Float64) {
	channels := min(len(buf), len(d.lines))
	if d.delaySeconds.Eval() {
		delays := d.delaySeconds.ValueArray()
		for c := range channels {
			line, samples := d.lines[c], buf[c]
			maxFrames := float64(line.Len() - 3)
			for i, in := range samples {
				delayFrames := min(max(0, delays[i]*d.sampleRate), maxFrames)
				tap := math.Floor(delayFrames)
				frac := delayFrames - tap
				line.Write(in)
				newer := line.Read(int(tap) + 1)
				older := line.Read(int(tap) + 2)
				samples[i] = newer + frac*(older-newer)
			}
		}
		return
	}

	delayFrames := max(0, int(signal.FramesOf(int(d.sampleRate), d.delaySeconds.Value())))
	for c := range channels {
		line, samples := d.lines[c], buf[c]
		frames := min(delayFrames, line.Len()-2)
		for i, in := range samples {
			line.Write(in)
			samples[i] = line.Read(frames + 1)
		}
	}
}
