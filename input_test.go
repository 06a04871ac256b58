package audiograph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/mock"
)

func TestInputDeviceNode(t *testing.T) {
	ctx, out, _ := newGraph(t, 1)
	device := &mock.InputDevice{Rate: sampleRate, Value: 0.5, Limit: 100}
	in, err := audiograph.NewInputDeviceNode(ctx, device)
	require.NoError(t, err)
	assert.Equal(t, "mock input", in.Name())
	assert.Equal(t, device, in.Device())
	require.NoError(t, in.Connect(out))
	assert.False(t, device.IsStarted())

	in.Enable()
	assert.True(t, device.IsStarted())
	buf := out.Render()
	assert.Equal(t, 0.5, buf[0][0])
	assert.Equal(t, 0.5, buf[0][framesPerBlock-1])
	assert.Equal(t, uint64(0), in.Underruns())

	buf = out.Render()
	assert.Equal(t, 0.5, buf[0][100-framesPerBlock-1])
	assert.Equal(t, 0.0, buf[0][100-framesPerBlock])
	assert.Equal(t, uint64(1), in.Underruns())

	in.Disable()
	assert.False(t, device.IsStarted())
	assert.NoError(t, in.Err())
}

func TestInputDeviceNodeStartError(t *testing.T) {
	ctx, out, _ := newGraph(t, 2)
	errStart := errors.New("start failed")
	device := &mock.InputDevice{Rate: sampleRate, Channels: 2, ErrorOnStart: errStart}
	in, err := audiograph.NewInputDeviceNode(ctx, device)
	require.NoError(t, err)
	assert.Equal(t, 2, in.NumChannels())
	require.NoError(t, in.Connect(out))

	in.Enable()
	assert.ErrorIs(t, in.Err(), errStart)
	assert.Equal(t, 0.0, out.Render().MaxAbs())

	_, err = audiograph.NewInputDeviceNode(ctx, nil)
	assert.ErrorIs(t, err, audiograph.ErrNoDevice)
}
