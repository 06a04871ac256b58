package audiograph_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/log"
	"pipelined.dev/audiograph/metric"
	"pipelined.dev/audiograph/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRun(t *testing.T) {
	ctx, out, device := newGraph(t, 2)
	device.Limit = 10
	sine := audiograph.NewSine(ctx, 125)
	gain := audiograph.NewGain(ctx, 0.5)
	require.NoError(t, audiograph.Chain(sine, gain, out))
	sine.Enable()

	require.NoError(t, ctx.Enable())
	assert.True(t, ctx.IsEnabled())
	device.Wait()
	require.NoError(t, ctx.Disable())
	assert.False(t, ctx.IsEnabled())

	assert.Equal(t, 10, device.Blocks())
	assert.Equal(t, uint64(10*framesPerBlock), ctx.NumProcessedFrames())
	samples := device.Samples()
	require.Equal(t, 2, samples.NumChannels())
	assert.Equal(t, 10*framesPerBlock, samples.Size())
	assert.InDelta(t, 0.5, samples.MaxAbs(), 1e-9)
	assert.Equal(t, samples[0], samples[1])

	counters := metric.Get(ctx)
	assert.NotEmpty(t, counters[metric.BlockCounter])
	assert.NotEqual(t, "0", counters[metric.FrameCounter])
	require.NoError(t, ctx.Close())
}

func TestConnectWhileRendering(t *testing.T) {
	ctx, out, device := newGraph(t, 1)
	device.Discard = true
	sine := audiograph.NewSine(ctx, 125)
	require.NoError(t, sine.Connect(out))
	sine.Enable()
	require.NoError(t, ctx.Enable())

	deadline := time.Now().Add(100 * time.Millisecond)
	for i := 0; time.Now().Before(deadline); i++ {
		g := audiograph.NewGain(ctx, 0.5)
		d := audiograph.NewDelay(ctx)
		d.SetDelaySeconds(0.1)
		require.NoError(t, audiograph.Chain(sine, g, d, out))
		if i%2 == 0 {
			g.Param().ApplyRamp(1, 0.05)
		}
		d.EnableAt(ctx.NumProcessedSeconds() + 0.01)
		g.DisconnectAll()
		d.DisconnectAll()
	}
	require.NoError(t, ctx.Disable())
	assert.Greater(t, device.Blocks(), 0)
	assert.Equal(t, 1, out.NumConnectedInputs())
	require.NoError(t, ctx.Close())
	assert.Equal(t, 0, out.NumConnectedInputs())
	assert.Equal(t, 0, ctx.NumScheduledEvents())
}

func Example() {
	ctx, _ := audiograph.NewContext(audiograph.WithLogger(log.Discard()))
	device := &mock.Device{Rate: 48000, Frames: 256, Channels: 2, Limit: 100}
	out, _ := audiograph.NewOutputNode(ctx, device)
	_ = ctx.SetOutput(out)

	sine := audiograph.NewSine(ctx, 440)
	gain := audiograph.NewGain(ctx, 0)
	_ = audiograph.Chain(sine, gain, out)
	sine.Enable()
	gain.Param().ApplyRamp(0.5, 0.1)
	fmt.Println(gain.IsProcessingInPlace(), out.NumChannels())

	_ = ctx.Enable()
	device.Wait()
	_ = ctx.Disable()
	fmt.Println(gain.Value(), ctx.NumProcessedFrames())
	// Output:
	// false 2
	// 0.5 25600
}
