package audiograph

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"pipelined.dev/audiograph/metric"
	"pipelined.dev/audiograph/signal"
)

// SourceFile is a decoded audio file. Read fills dst from the current
// position and returns the number of frames read, io.EOF is returned when
// no frames are left.
type SourceFile interface {
	NumChannels() int
	SampleRate() int
	NumFrames() int
	Seek(frame int) error
	Read(dst signal.Float64) (int, error)
}

// FilePlayer is a source that plays a file. It disables itself at the
// end of file unless it loops.
type FilePlayer struct {
	*Node
	source  SourceFile
	readPos atomic.Int64
	loop    atomic.Bool
	eof     atomic.Bool
	err     error
	view    signal.Float64
	events  metric.Events
}

// NewFilePlayer returns a disabled player of source.
func NewFilePlayer(ctx *Context, source SourceFile, opts ...NodeOption) (*FilePlayer, error) {
	if source == nil {
		return nil, ErrNoDevice
	}
	if source.NumChannels() < 1 {
		return nil, fmt.Errorf("%w: source has %d channels", ErrInvalidChannels, source.NumChannels())
	}
	if source.SampleRate() != ctx.SampleRate() {
		ctx.logger.Warn(fmt.Sprintf("%s: source sample rate %d doesn't match %d", ctx.name, source.SampleRate(), ctx.SampleRate()))
	}
	p := &FilePlayer{source: source, events: metric.NewEvents((*FilePlayer)(nil))}
	opts = append([]NodeOption{WithChannels(source.NumChannels())}, opts...)
	p.Node = ctx.MakeNode(p, sourceDefaults(opts)...)
	return p, nil
}

// Start plays the file. Player that reached the end starts over.
func (p *FilePlayer) Start() error {
	var err error
	p.locked(func(*Context) {
		if p.eof.Load() {
			if err = p.seekLocked(0); err != nil {
				return
			}
		}
		p.enableLocked()
	})
	return err
}

// Stop pauses the player.
func (p *FilePlayer) Stop() {
	p.Disable()
}

// Seek moves the read position.
func (p *FilePlayer) Seek(frame int) error {
	var err error
	if !p.locked(func(*Context) { err = p.seekLocked(frame) }) {
		return ErrNoContext
	}
	return err
}

func (p *FilePlayer) seekLocked(frame int) error {
	frame = min(max(0, frame), p.source.NumFrames())
	if err := p.source.Seek(frame); err != nil {
		return err
	}
	p.readPos.Store(int64(frame))
	p.eof.Store(frame == p.source.NumFrames())
	p.err = nil
	return nil
}

// SetLoop defines if player starts over at the end of file.
func (p *FilePlayer) SetLoop(loop bool) {
	p.loop.Store(loop)
}

// IsLooping reports if player starts over at the end of file.
func (p *FilePlayer) IsLooping() bool {
	return p.loop.Load()
}

// IsEOF reports if player has reached the end of file.
func (p *FilePlayer) IsEOF() bool {
	return p.eof.Load()
}

// ReadPosition returns the frame that will be played next.
func (p *FilePlayer) ReadPosition() int {
	return int(p.readPos.Load())
}

// NumFrames returns the length of file.
func (p *FilePlayer) NumFrames() int {
	return p.source.NumFrames()
}

// Err returns the read error that stopped the player.
func (p *FilePlayer) Err() (err error) {
	p.locked(func(*Context) { err = p.err })
	return
}

// Process reads the next block. Missing frames are silent.
func (p *FilePlayer) Process(buf signal.Float64) {
	size := buf.Size()
	read := p.read(buf, 0)
	if read < size && p.loop.Load() && p.err == nil && p.source.Seek(0) == nil {
		p.readPos.Store(0)
		read += p.read(buf, read)
	}
	if read < size {
		buf.ZeroFrom(read)
		if p.err == nil {
			p.eof.Store(true)
		} else {
			p.events.Underrun()
		}
		p.disableLocked()
	}
}

// read fills buf starting from frame and returns the number of frames
// read.
func (p *FilePlayer) read(buf signal.Float64, from int) int {
	size := buf.Size()
	total := 0
	for from+total < size {
		dst := buf
		if from+total > 0 {
			dst = p.viewFrom(buf, from+total)
		}
		n, err := p.source.Read(dst)
		total += n
		p.readPos.Add(int64(n))
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.err = err
			}
			break
		}
		if n == 0 {
			break
		}
	}
	return total
}

// viewFrom returns the frames of buf starting at frame.
func (p *FilePlayer) viewFrom(buf signal.Float64, frame int) signal.Float64 {
	if cap(p.view) < len(buf) {
		p.view = make(signal.Float64, len(buf))
	}
	view := p.view[:len(buf)]
	for i, ch := range buf {
		view[i] = ch[frame:]
	}
	return view
}

// Initialize allocates the partial read view.
func (p *FilePlayer) Initialize() {
	p.view = make(signal.Float64, p.numChannels)
}
