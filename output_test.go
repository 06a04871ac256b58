package audiograph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiograph/log"
	"pipelined.dev/audiograph/metric"
)

func TestGainRampScenario(t *testing.T) {
	const blocks = 94
	_, out, g := rampGraph(t, 48000, 512)
	g.Param().ApplyRamp(1, 1)

	var samples []float64
	for block := range blocks {
		buf := out.Render()
		require.Equal(t, 512, buf.Size(), "block %d", block)
		samples = append(samples, buf[0]...)
	}
	assert.Equal(t, 0.0, samples[0])
	assert.InDelta(t, 1.0, samples[len(samples)-1], 1e-9)
	assert.Equal(t, 1.0, samples[48000])
	for i := 1; i < len(samples); i++ {
		if samples[i] < samples[i-1] {
			t.Fatalf("gain decreased at frame %d: %v < %v", i, samples[i], samples[i-1])
		}
	}
	assert.Equal(t, 1.0, g.Value())
}

func TestNewOutputNode(t *testing.T) {
	ctx, err := NewContext(WithLogger(log.Discard()))
	require.NoError(t, err)
	tests := []struct {
		device Device
		err    error
	}{
		{device: nil, err: ErrNoDevice},
		{device: &testDevice{sampleRate: 1000, framesPerBlock: 64}, err: ErrInvalidChannels},
		{device: &testDevice{sampleRate: 1000, numChannels: 1}, err: ErrInvalidFrames},
		{device: &testDevice{framesPerBlock: 64, numChannels: 1}, err: ErrInvalidSampleRate},
		{device: &testDevice{sampleRate: 1000, framesPerBlock: 64, numChannels: 2}},
	}
	for _, test := range tests {
		out, err := NewOutputNode(ctx, test.device)
		if test.err != nil {
			assert.ErrorIs(t, err, test.err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, 2, out.NumChannels())
		assert.Equal(t, Specified, out.ChannelMode())
		assert.Equal(t, test.device, out.Device())
		assert.Equal(t, "test device", out.Name())
	}
}

func TestClipDetection(t *testing.T) {
	ctx, out := newTestGraph(t, 1000, 64, 1)
	c := NewConstant(ctx, 3)
	require.NoError(t, c.Connect(out))
	c.Enable()
	assert.True(t, out.IsClipDetectionEnabled())
	assert.Equal(t, DefaultClipThreshold, out.ClipThreshold())

	_, ok := out.LastClip()
	assert.False(t, ok)
	assert.Equal(t, 0.0, out.Render().MaxAbs())
	frame, ok := out.LastClip()
	assert.True(t, ok)
	assert.Equal(t, uint64(0), frame)
	_, ok = out.LastClip()
	assert.False(t, ok)

	out.Render()
	frame, ok = out.LastClip()
	assert.True(t, ok)
	assert.Equal(t, uint64(64), frame)
	assert.Equal(t, uint64(2), out.NumClips())
	assert.NotEqual(t, "0", metric.Get(out)[metric.ClipCounter])

	out.EnableClipDetection(true, 4)
	assert.Equal(t, 3.0, out.Render().MaxAbs())
	_, ok = out.LastClip()
	assert.False(t, ok)

	out.EnableClipDetection(false, 0)
	c.Param().SetValue(10)
	assert.Equal(t, 10.0, out.Render().MaxAbs())
	assert.False(t, out.IsClipDetectionEnabled())
	assert.Equal(t, uint64(2), out.NumClips())
}

func TestClipPassThrough(t *testing.T) {
	ctx, err := NewContext(WithLogger(log.Discard()))
	require.NoError(t, err)
	out, err := NewOutputNode(ctx,
		&testDevice{sampleRate: 1000, framesPerBlock: 64, numChannels: 1},
		WithClipDetection(true, 1),
		WithSilenceOnClip(false),
	)
	require.NoError(t, err)
	require.NoError(t, ctx.SetOutput(out))
	c := NewConstant(ctx, 1.5)
	require.NoError(t, c.Connect(out))
	c.Enable()

	assert.Equal(t, 1.5, out.Render().MaxAbs())
	assert.Equal(t, uint64(1), out.NumClips())
}

func TestRenderWithoutInputs(t *testing.T) {
	ctx, out := newTestGraph(t, 1000, 64, 2)
	buf := out.Render()
	assert.Equal(t, 2, buf.NumChannels())
	assert.Equal(t, 0.0, buf.MaxAbs())
	assert.Equal(t, uint64(64), ctx.NumProcessedFrames())
}
