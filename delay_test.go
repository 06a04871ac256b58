package audiograph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delayGraph(t *testing.T, delaySeconds float64) (*OutputNode, *Delay) {
	t.Helper()
	ctx, out := newTestGraph(t, 1000, 64, 1)
	src := newImpulse(ctx)
	d := NewDelay(ctx)
	d.SetMaxDelaySeconds(0.2)
	d.SetDelaySeconds(delaySeconds)
	require.NoError(t, Chain(src, d, out))
	src.Enable()
	return out, d
}

func TestDelayImpulse(t *testing.T) {
	const delayFrames = 100
	out, d := delayGraph(t, 0.1)
	assert.Equal(t, 0.1, d.DelaySeconds())

	samples := renderBlocks(out, 3)
	require.GreaterOrEqual(t, len(samples), delayFrames+64)
	for i, v := range samples {
		if i == delayFrames {
			assert.Equal(t, 1.0, v)
			continue
		}
		assert.Equal(t, 0.0, v, "frame %d", i)
	}
}

func TestDelayZero(t *testing.T) {
	out, _ := delayGraph(t, 0)
	samples := renderBlocks(out, 1)
	assert.Equal(t, 1.0, samples[0])
	assert.Equal(t, 0.0, samples[1])
}

func TestDelayFractional(t *testing.T) {
	out, d := delayGraph(t, 0)
	d.Param().ApplyRampFrom(0.1005, 0.1005, 1)

	samples := renderBlocks(out, 3)
	assert.InDelta(t, 0.5, samples[100], 1e-6)
	assert.InDelta(t, 0.5, samples[101], 1e-6)
	assert.InDelta(t, 0, samples[99], 1e-12)
	assert.InDelta(t, 0, samples[102], 1e-12)
}

func TestDelayClearBuffer(t *testing.T) {
	out, d := delayGraph(t, 0.1)
	renderBlocks(out, 1)
	d.ClearBuffer()
	for _, v := range renderBlocks(out, 2) {
		assert.Equal(t, 0.0, v)
	}
}

func TestDelayMaxSeconds(t *testing.T) {
	_, d := delayGraph(t, 0.1)
	assert.Equal(t, 0.2, d.MaxDelaySeconds())
	d.SetDelaySeconds(0.5)
	assert.Equal(t, 0.5, d.MaxDelaySeconds())
	d.SetDelaySeconds(-1)
	assert.Equal(t, 0.0, d.DelaySeconds())
	assert.True(t, d.SupportsCycles())
	assert.Equal(t, 1, d.NumChannels())
}
