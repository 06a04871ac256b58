package audiograph

import (
	"math"

	"pipelined.dev/audiograph/signal"
)

// Callback processes the block with a user function. Function is called
// on the rendering goroutine with the context mutex held.
type Callback struct {
	*Node
	fn func(signal.Float64)
}

// NewCallback returns an effect node that calls fn every block.
func NewCallback(ctx *Context, fn func(signal.Float64), opts ...NodeOption) *Callback {
	c := &Callback{fn: fn}
	c.Node = ctx.MakeNode(c, opts...)
	return c
}

// Process calls the function.
func (c *Callback) Process(buf signal.Float64) {
	if c.fn != nil {
		c.fn(buf)
	}
}

// Constant is a source that emits its param value on every channel. It's
// useful as a param processor.
type Constant struct {
	*Node
	param *Param
}

// NewConstant returns a disabled source of value.
func NewConstant(ctx *Context, value float64, opts ...NodeOption) *Constant {
	c := &Constant{}
	c.Node = ctx.MakeNode(c, sourceDefaults(opts)...)
	c.param = NewParam(c, value)
	return c
}

// Param returns the emitted value param.
func (c *Constant) Param() *Param {
	return c.param
}

// Process fills the block with value.
func (c *Constant) Process(buf signal.Float64) {
	if c.param.Eval() {
		values := c.param.ValueArray()
		for i := range buf {
			copy(buf[i], values)
		}
		return
	}
	buf.Fill(c.param.Value())
}

// Sine is a sine oscillator source with full scale amplitude.
type Sine struct {
	*Node
	freq  *Param
	phase float64
}

// NewSine returns a disabled oscillator of frequency in Hz.
func NewSine(ctx *Context, freq float64, opts ...NodeOption) *Sine {
	s := &Sine{}
	s.Node = ctx.MakeNode(s, sourceDefaults(opts)...)
	s.freq = NewParam(s, freq)
	return s
}

// Param returns the frequency param.
func (s *Sine) Param() *Param {
	return s.freq
}

// SetFreq sets the frequency.
func (s *Sine) SetFreq(freq float64) {
	s.freq.SetValue(freq)
}

// Freq returns the current frequency.
func (s *Sine) Freq() float64 {
	return s.freq.Value()
}

// Process renders first channel and copies it to the rest.
func (s *Sine) Process(buf signal.Float64) {
	if len(buf) == 0 {
		return
	}
	step := 2 * math.Pi / float64(s.SampleRate())
	out := buf[0]
	phase := s.phase
	if s.freq.Eval() {
		freqs := s.freq.ValueArray()
		for i := range out {
			out[i] = math.Sin(phase)
			phase = math.Mod(phase+freqs[i]*step, 2*math.Pi)
		}
	} else {
		inc := s.freq.Value() * step
		for i := range out {
			out[i] = math.Sin(phase)
			phase = math.Mod(phase+inc, 2*math.Pi)
		}
	}
	s.phase = phase
	for c := 1; c < len(buf); c++ {
		copy(buf[c], out)
	}
}
