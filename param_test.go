package audiograph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rampGraph renders constant 1 through a gain, so output holds gain
// values.
func rampGraph(t *testing.T, sampleRate, framesPerBlock int) (*Context, *OutputNode, *Gain) {
	t.Helper()
	ctx, out := newTestGraph(t, sampleRate, framesPerBlock, 1)
	c := NewConstant(ctx, 1)
	g := NewGain(ctx, 0)
	require.NoError(t, Chain(c, g, out))
	c.Enable()
	return ctx, out, g
}

func renderBlocks(out *OutputNode, blocks int) []float64 {
	var result []float64
	for range blocks {
		result = append(result, out.Render()[0]...)
	}
	return result
}

func TestApplyRamp(t *testing.T) {
	_, out, g := rampGraph(t, 1000, 100)
	r := g.Param().ApplyRamp(1, 0.25)
	assert.Equal(t, 0.0, r.ValueBegin())
	assert.Equal(t, 1.0, r.ValueEnd())
	assert.Equal(t, 0.0, r.FrameBegin())
	assert.Equal(t, 250.0, r.FrameEnd())
	assert.Equal(t, 1, g.Param().NumRamps())
	assert.Equal(t, 1.0, g.Param().TargetValue())

	samples := renderBlocks(out, 4)
	assert.Equal(t, 0.0, samples[0])
	assert.InDelta(t, 0.5, samples[125], 1e-9)
	assert.Equal(t, 1.0, samples[250])
	for i := 1; i < len(samples); i++ {
		assert.GreaterOrEqual(t, samples[i], samples[i-1], "frame %d", i)
	}
	for _, v := range samples[250:] {
		assert.Equal(t, 1.0, v)
	}
	assert.Equal(t, 1.0, g.Param().Value())
	assert.Equal(t, 0, g.Param().NumRamps())
}

func TestApplyRampReplaces(t *testing.T) {
	_, out, g := rampGraph(t, 1000, 100)
	first := g.Param().ApplyRamp(1, 1)
	renderBlocks(out, 1)
	second := g.Param().ApplyRampFrom(0.5, 0, 0.1)
	assert.True(t, first.IsCanceled())
	assert.False(t, second.IsCanceled())
	assert.Equal(t, 100.0, second.FrameBegin())

	samples := renderBlocks(out, 2)
	assert.Equal(t, 0.5, samples[0])
	assert.Equal(t, 0.0, samples[100])
	assert.Equal(t, 0.0, g.Param().Value())
}

func TestAppendRamp(t *testing.T) {
	_, out, g := rampGraph(t, 1000, 100)
	p := g.Param()
	first := p.AppendRamp(1, 0.1)
	second := p.AppendRamp(0.5, 0.1)
	assert.Equal(t, first.ValueEnd(), second.ValueBegin())
	assert.Equal(t, first.FrameEnd(), second.FrameBegin())
	assert.Equal(t, 2, p.NumRamps())
	assert.Equal(t, 0.5, p.TargetValue())

	samples := renderBlocks(out, 3)
	assert.Equal(t, 1.0, samples[100])
	assert.Equal(t, 0.5, samples[200])
	for i := 1; i < len(samples); i++ {
		assert.LessOrEqual(t, math.Abs(samples[i]-samples[i-1]), 0.01+1e-9, "frame %d", i)
	}
	assert.Equal(t, 0.5, p.Value())
}

func TestAppendRampFrom(t *testing.T) {
	_, out, g := rampGraph(t, 1000, 100)
	p := g.Param()
	p.AppendRampFrom(0.2, 0.4, 0.05)
	p.AppendRampFrom(0.8, 1, 0.05)

	samples := renderBlocks(out, 2)
	assert.InDelta(t, 0.2, samples[0], 1e-9)
	assert.Equal(t, 0.4, samples[50])
	assert.InDelta(t, 0.8+0.2/50, samples[51], 1e-9)
	assert.Equal(t, 1.0, samples[100])
}

func TestDelayedRamp(t *testing.T) {
	_, out, g := rampGraph(t, 1000, 100)
	g.SetValue(0.25)
	g.Param().ApplyRamp(0.75, 0.1, Delayed(0.15), Easing(RampInQuad))

	samples := renderBlocks(out, 3)
	for _, v := range samples[:150] {
		assert.Equal(t, 0.25, v)
	}
	assert.Equal(t, 0.25, samples[150])
	assert.InDelta(t, 0.25+0.5*0.25, samples[200], 1e-9)
	assert.Equal(t, 0.75, samples[250])
	assert.Equal(t, 0.75, samples[299])
}

func TestRampCancel(t *testing.T) {
	_, out, g := rampGraph(t, 1000, 100)
	r := g.Param().ApplyRamp(1, 1)
	renderBlocks(out, 1)
	r.Cancel()
	held := g.Param().Value()
	assert.InDelta(t, 0.099, held, 1e-9)

	samples := renderBlocks(out, 1)
	assert.Equal(t, held, samples[0])
	assert.Equal(t, held, samples[99])
	assert.Equal(t, 0, g.Param().NumRamps())
}

func TestSetValueCancelsRamps(t *testing.T) {
	_, out, g := rampGraph(t, 1000, 100)
	r := g.Param().ApplyRamp(1, 1)
	g.SetValue(0.3)
	assert.True(t, r.IsCanceled())
	assert.Equal(t, 0, g.Param().NumRamps())
	samples := renderBlocks(out, 1)
	assert.Equal(t, 0.3, samples[50])
}

func TestExpiredRamp(t *testing.T) {
	ctx, out, g := rampGraph(t, 1000, 100)
	renderBlocks(out, 2)
	// ramp that ended before the block isn't rendered
	ctx.mu.Lock()
	r := newRamp(0, 0.6, nil)
	g.param.appendLocked(ctx, r, 0, 0.05)
	ctx.mu.Unlock()

	samples := renderBlocks(out, 1)
	assert.Equal(t, 0.6, samples[0])
	assert.Equal(t, 0.6, g.Value())
}

func TestParamProcessor(t *testing.T) {
	ctx, out, g := rampGraph(t, 1000, 100)
	lfo := NewConstant(ctx, 0.5, WithChannels(2))
	g.Param().SetProcessor(lfo)
	assert.True(t, g.Param().HasProcessor())
	assert.Equal(t, lfo.Node, g.Param().Processor())
	assert.Equal(t, 1, lfo.NumChannels())

	// disabled processor renders silence
	assert.Equal(t, 0.0, renderBlocks(out, 1)[0])
	lfo.Enable()
	samples := renderBlocks(out, 1)
	assert.Equal(t, 0.5, samples[0])
	assert.Equal(t, 0.5, samples[99])

	g.Param().ApplyRamp(1, 0.1)
	assert.False(t, g.Param().HasProcessor())
	g.Param().SetProcessor(lfo)
	g.SetValue(0.2)
	assert.False(t, g.Param().HasProcessor())
	assert.Equal(t, 0.2, renderBlocks(out, 1)[0])
}

func TestRampFuncs(t *testing.T) {
	tests := []struct {
		name string
		fn   RampFunc
		half float64
	}{
		{name: "linear", fn: RampLinear, half: 0.5},
		{name: "in quad", fn: RampInQuad, half: 0.25},
		{name: "out quad", fn: RampOutQuad, half: 0.75},
		{name: "in out quad", fn: RampInOutQuad, half: 0.5},
		{name: "out in quad", fn: RampOutInQuad, half: 0.5},
		{name: "in cubic", fn: RampInCubic, half: 0.125},
		{name: "out cubic", fn: RampOutCubic, half: 0.875},
		{name: "in out cubic", fn: RampInOutCubic, half: 0.5},
		{name: "expo", fn: RampExpo, half: math.Pow(2, -5)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			values := make([]float64, 3)
			test.fn(values, 0, 0.5, 2, 4)
			assert.InDelta(t, 2, values[0], 1e-12)
			assert.InDelta(t, 2+2*test.half, values[1], 1e-12)
			assert.InDelta(t, 4, values[2], 1e-12)
		})
	}
}

func TestGainDB(t *testing.T) {
	_, out, g := rampGraph(t, 1000, 100)
	g.SetValueDB(-6)
	assert.InDelta(t, 0.501, g.Value(), 1e-3)
	assert.InDelta(t, -6, g.ValueDB(), 1e-9)
	g.SetValue(-1)
	assert.Equal(t, 0.0, g.Value())
	g.SetValue(2)
	assert.Equal(t, 2.0, renderBlocks(out, 1)[10])
}
