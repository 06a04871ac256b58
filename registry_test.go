package audiograph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/log"
	"pipelined.dev/audiograph/mock"
)

func TestRegistry(t *testing.T) {
	dm := &mock.DeviceManager{
		Output: &mock.Device{Rate: 2000, Frames: 32, Channels: 2},
	}
	r := audiograph.NewRegistry(dm, audiograph.WithLogger(log.Discard()))
	assert.Equal(t, dm, r.DeviceManager())

	ctx, err := r.Master()
	require.NoError(t, err)
	require.NotNil(t, ctx.Output())
	assert.Equal(t, 2000, ctx.SampleRate())
	assert.Equal(t, 32, ctx.FramesPerBlock())
	assert.Equal(t, 2, ctx.Output().NumChannels())

	again, err := r.Master()
	require.NoError(t, err)
	assert.Same(t, ctx, again)
}

func TestRegistryNoDevice(t *testing.T) {
	r := audiograph.NewRegistry(&mock.DeviceManager{}, audiograph.WithLogger(log.Discard()))
	_, err := r.Master()
	assert.ErrorIs(t, err, audiograph.ErrNoDevice)

	r = audiograph.NewRegistry(nil, audiograph.WithLogger(log.Discard()))
	ctx, err := r.Master()
	require.NoError(t, err)
	assert.Nil(t, ctx.Output())
	assert.Equal(t, audiograph.DefaultSampleRate, ctx.SampleRate())

	_, err = audiograph.NewRegistry(nil, audiograph.WithSampleRate(-1)).Master()
	assert.ErrorIs(t, err, audiograph.ErrInvalidSampleRate)
}

func TestSetMaster(t *testing.T) {
	ctx, _, device := newGraph(t, 1)
	dm := &mock.DeviceManager{Output: device}
	audiograph.SetMaster(ctx, dm)
	master, err := audiograph.Master()
	require.NoError(t, err)
	assert.Same(t, ctx, master)
	assert.Equal(t, dm, audiograph.Devices())
}
