//go:build portaudio

package portaudio_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/log"
	"pipelined.dev/audiograph/portaudio"
)

func TestPlayback(t *testing.T) {
	m, err := portaudio.NewManager(portaudio.WithLogger(log.Discard()))
	require.NoError(t, err)
	defer m.Close()

	r := audiograph.NewRegistry(m, audiograph.WithLogger(log.Discard()))
	ctx, err := r.Master()
	require.NoError(t, err)
	sine := audiograph.NewSine(ctx, 440)
	gain := audiograph.NewGain(ctx, 0)
	require.NoError(t, audiograph.Chain(sine, gain, ctx.Output()))
	sine.Enable()
	gain.Param().ApplyRamp(0.1, 0.1)

	require.NoError(t, ctx.Enable())
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, ctx.Disable())
	assert.Greater(t, ctx.NumProcessedFrames(), uint64(0))
	require.NoError(t, ctx.Close())
}

func TestCapture(t *testing.T) {
	m, err := portaudio.NewManager(portaudio.WithLogger(log.Discard()))
	require.NoError(t, err)
	defer m.Close()

	r := audiograph.NewRegistry(m, audiograph.WithLogger(log.Discard()))
	ctx, err := r.Master()
	require.NoError(t, err)
	device, err := m.DefaultInput()
	if err != nil {
		t.Skip(err)
	}
	in, err := audiograph.NewInputDeviceNode(ctx, device)
	require.NoError(t, err)
	monitor := audiograph.NewMonitor(ctx, 0)
	require.NoError(t, in.Connect(monitor))
	in.Enable()

	require.NoError(t, ctx.Enable())
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, ctx.Disable())
	in.Disable()
	assert.NoError(t, in.Err())
	require.NoError(t, ctx.Close())
}
