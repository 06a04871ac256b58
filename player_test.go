package audiograph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/log"
	"pipelined.dev/audiograph/mock"
	"pipelined.dev/audiograph/signal"
)

const (
	sampleRate     = 1000
	framesPerBlock = 64
)

func newGraph(t *testing.T, numChannels int) (*audiograph.Context, *audiograph.OutputNode, *mock.Device) {
	t.Helper()
	ctx, err := audiograph.NewContext(audiograph.WithLogger(log.Discard()))
	require.NoError(t, err)
	device := &mock.Device{
		Rate:     sampleRate,
		Frames:   framesPerBlock,
		Channels: numChannels,
	}
	out, err := audiograph.NewOutputNode(ctx, device)
	require.NoError(t, err)
	require.NoError(t, ctx.SetOutput(out))
	return ctx, out, device
}

// frames returns a source of numFrames where every sample holds its frame
// index, negative in odd channels.
func frames(numChannels, numFrames int) *mock.Source {
	data := signal.Alloc(numChannels, numFrames)
	for c := range data {
		for i := range data[c] {
			data[c][i] = float64(i) / 1000
			if c%2 == 1 {
				data[c][i] = -data[c][i]
			}
		}
	}
	return &mock.Source{Data: data, Rate: sampleRate}
}

func TestFilePlayer(t *testing.T) {
	ctx, out, _ := newGraph(t, 2)
	p, err := audiograph.NewFilePlayer(ctx, frames(2, 150))
	require.NoError(t, err)
	require.NoError(t, p.Connect(out))
	assert.False(t, p.IsEnabled())
	assert.Equal(t, 150, p.NumFrames())
	require.NoError(t, p.Start())

	buf := out.Render()
	assert.Equal(t, 0.063, buf[0][63])
	assert.Equal(t, -0.063, buf[1][63])
	out.Render()
	buf = out.Render()
	assert.Equal(t, 0.149, buf[0][149-128])
	assert.Equal(t, 0.0, buf[0][150-128])
	assert.True(t, p.IsEOF())
	assert.False(t, p.IsEnabled())
	assert.Equal(t, 150, p.ReadPosition())
	assert.NoError(t, p.Err())

	require.NoError(t, p.Start())
	assert.False(t, p.IsEOF())
	assert.Equal(t, 0.0, out.Render()[0][0])
	assert.Equal(t, framesPerBlock, p.ReadPosition())

	require.NoError(t, p.Seek(100))
	assert.Equal(t, 0.1, out.Render()[0][0])
	p.Stop()
	assert.False(t, p.IsEnabled())
}

func TestFilePlayerLoop(t *testing.T) {
	ctx, out, _ := newGraph(t, 1)
	p, err := audiograph.NewFilePlayer(ctx, frames(1, 150))
	require.NoError(t, err)
	require.NoError(t, p.Connect(out))
	p.SetLoop(true)
	assert.True(t, p.IsLooping())
	require.NoError(t, p.Start())

	out.Render()
	out.Render()
	buf := out.Render()
	assert.Equal(t, 0.149, buf[0][21])
	assert.Equal(t, 0.0, buf[0][22])
	assert.Equal(t, 0.041, buf[0][63])
	assert.Equal(t, 42, p.ReadPosition())
	assert.True(t, p.IsEnabled())
	assert.False(t, p.IsEOF())
}

func TestFilePlayerReadError(t *testing.T) {
	ctx, out, _ := newGraph(t, 1)
	errRead := errors.New("read failed")
	src := frames(1, 150)
	src.ErrorOnRead = errRead
	p, err := audiograph.NewFilePlayer(ctx, src)
	require.NoError(t, err)
	require.NoError(t, p.Connect(out))
	require.NoError(t, p.Start())

	out.Render()
	assert.Equal(t, 0.0, out.Render().MaxAbs())
	assert.ErrorIs(t, p.Err(), errRead)
	assert.False(t, p.IsEnabled())
	assert.False(t, p.IsEOF())
}

func TestNewFilePlayer(t *testing.T) {
	ctx, _, _ := newGraph(t, 1)
	_, err := audiograph.NewFilePlayer(ctx, nil)
	assert.ErrorIs(t, err, audiograph.ErrNoDevice)
	_, err = audiograph.NewFilePlayer(ctx, &mock.Source{})
	assert.ErrorIs(t, err, audiograph.ErrInvalidChannels)
}
