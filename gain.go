package audiograph

import (
	"github.com/cwbudde/algo-dsp/dsp/core"

	"pipelined.dev/audiograph/signal"
)

// Gain multiplies its input by a param.
type Gain struct {
	*Node
	param *Param
	min   float64
	max   float64
}

// NewGain returns a gain node with initial value.
func NewGain(ctx *Context, value float64, opts ...NodeOption) *Gain {
	g := &Gain{
		min: 0,
		max: 10000,
	}
	g.Node = ctx.MakeNode(g, opts...)
	g.param = NewParam(g, value)
	return g
}

// Param returns gain param.
func (g *Gain) Param() *Param {
	return g.param
}

// Value returns the current linear gain.
func (g *Gain) Value() float64 {
	return g.param.Value()
}

// SetValue sets linear gain, clamped to the gain range.
func (g *Gain) SetValue(linear float64) {
	g.param.SetValue(core.Clamp(linear, g.min, g.max))
}

// SetValueDB sets gain in decibels.
func (g *Gain) SetValueDB(db float64) {
	g.SetValue(core.DBToLinear(db))
}

// ValueDB returns the current gain in decibels.
func (g *Gain) ValueDB() float64 {
	return core.LinearToDB(g.param.Value())
}

// Process applies gain.
func (g *Gain) Process(buf signal.Float64) {
	if g.param.Eval() {
		buf.Multiply(g.param.ValueArray()[:buf.Size()])
		return
	}
	buf.Scale(g.param.Value())
}
