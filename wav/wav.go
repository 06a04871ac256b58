// Package wav provides wav file adapters for audio graph. Source is played
// with audiograph.FilePlayer and Recorder renders graph into a file.
package wav

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/signal"
)

const (
	// pcmFormat is the wav audio format of linear PCM.
	pcmFormat = 1
	// DefaultFramesPerBlock is used by recorder if no option provided.
	DefaultFramesPerBlock = 512
)

var (
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 16, 24 and 32 bit depth is supported")
	// ErrInvalidFile is returned when file doesn't contain wav PCM data.
	ErrInvalidFile = errors.New("wav is not valid")
)

func supported(bitDepth int) bool {
	switch signal.BitDepth(bitDepth) {
	case signal.BitDepth16, signal.BitDepth24, signal.BitDepth32:
		return true
	}
	return false
}

func bytesPerSample(bitDepth int) int {
	return (bitDepth-1)/8 + 1
}

// Source streams PCM data of wav file. It's not safe for concurrent use,
// FilePlayer calls it from render goroutine only.
type Source struct {
	path       string
	file       *os.File
	decoder    *wav.Decoder
	numFrames  int
	numChannel int
	bitDepth   int
	buf        *audio.IntBuffer
}

// Open opens wav file and forwards it to PCM data.
func Open(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	decoder := wav.NewDecoder(file)
	if err := decoder.FwdToPCM(); err != nil || decoder.PCMChunk == nil || decoder.NumChans == 0 {
		file.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}
	bitDepth := int(decoder.BitDepth)
	if !supported(bitDepth) {
		file.Close()
		return nil, fmt.Errorf("%w: %s has %d", ErrUnsupportedBitDepth, path, bitDepth)
	}
	numChannels := int(decoder.NumChans)
	return &Source{
		path:       path,
		file:       file,
		decoder:    decoder,
		numChannel: numChannels,
		bitDepth:   bitDepth,
		numFrames:  int(decoder.PCMLen()) / (numChannels * bytesPerSample(bitDepth)),
		buf: &audio.IntBuffer{
			Format:         decoder.Format(),
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// NumChannels returns number of channels in file.
func (s *Source) NumChannels() int {
	return s.numChannel
}

// SampleRate returns file sample rate.
func (s *Source) SampleRate() int {
	return int(s.decoder.SampleRate)
}

// NumFrames returns number of frames in file.
func (s *Source) NumFrames() int {
	return s.numFrames
}

// BitDepth returns file bit depth.
func (s *Source) BitDepth() int {
	return s.bitDepth
}

// Seek rewinds decoder and skips frames.
func (s *Source) Seek(frame int) error {
	if frame < 0 || frame > s.numFrames {
		return fmt.Errorf("%w: frame %d of %d", audiograph.ErrSeekOutOfRange, frame, s.numFrames)
	}
	if err := s.decoder.Rewind(); err != nil {
		return fmt.Errorf("rewind %s: %w", s.path, err)
	}
	skip := int64(frame * s.numChannel * bytesPerSample(s.bitDepth))
	if _, err := io.CopyN(io.Discard, s.decoder.PCMChunk.R, skip); err != nil {
		return fmt.Errorf("seek %s: %w", s.path, err)
	}
	return nil
}

// Read decodes next frames into dst. Channels that file doesn't have are
// zeroed.
func (s *Source) Read(dst signal.Float64) (int, error) {
	size := dst.Size() * s.numChannel
	if cap(s.buf.Data) < size {
		s.buf.Data = make([]int, size)
	}
	s.buf.Data = s.buf.Data[:size]
	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.path, err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	ints := signal.InterInt{
		Data:        s.buf.Data[:n],
		NumChannels: s.numChannel,
		BitDepth:    signal.BitDepth(s.bitDepth),
	}
	read := ints.CopyTo(dst)
	for c := s.numChannel; c < dst.NumChannels(); c++ {
		clear(dst[c][:read])
	}
	return read, nil
}

// Close closes the file.
func (s *Source) Close() error {
	return s.file.Close()
}

// Recorder is an output device that renders graph into wav file as fast as
// possible.
type Recorder struct {
	path           string
	sampleRate     int
	numChannels    int
	bitDepth       int
	framesPerBlock int
	maxFrames      int

	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer
	mix     signal.Float64
	view    signal.Float64

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	frames int
	err    error
	closed bool
}

// RecorderOption provides a way to set recorder parameters.
type RecorderOption func(*Recorder)

// WithBitDepth sets recorded bit depth. Default is 16.
func WithBitDepth(bitDepth int) RecorderOption {
	return func(r *Recorder) {
		r.bitDepth = bitDepth
	}
}

// WithFramesPerBlock sets the size of rendered blocks.
func WithFramesPerBlock(frames int) RecorderOption {
	return func(r *Recorder) {
		r.framesPerBlock = frames
	}
}

// WithMaxFrames stops rendering after frames are recorded. Last block is
// truncated. Zero means record until stopped.
func WithMaxFrames(frames int) RecorderOption {
	return func(r *Recorder) {
		r.maxFrames = frames
	}
}

// Create creates the file and returns recorder to it.
func Create(path string, sampleRate, numChannels int, opts ...RecorderOption) (*Recorder, error) {
	r := &Recorder{
		path:           path,
		sampleRate:     sampleRate,
		numChannels:    numChannels,
		bitDepth:       int(signal.BitDepth16),
		framesPerBlock: DefaultFramesPerBlock,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !supported(r.bitDepth) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, r.bitDepth)
	}
	if numChannels < 1 {
		return nil, fmt.Errorf("%w: %d", audiograph.ErrInvalidChannels, numChannels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", audiograph.ErrInvalidSampleRate, sampleRate)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	r.file = file
	r.encoder = wav.NewEncoder(file, sampleRate, r.bitDepth, numChannels, pcmFormat)
	r.buf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, r.framesPerBlock*numChannels),
		SourceBitDepth: r.bitDepth,
	}
	r.mix = signal.Alloc(numChannels, r.framesPerBlock)
	r.view = make(signal.Float64, numChannels)
	return r, nil
}

// Name returns file path.
func (r *Recorder) Name() string {
	return r.path
}

// SampleRate returns recorded sample rate.
func (r *Recorder) SampleRate() int {
	return r.sampleRate
}

// FramesPerBlock returns the size of rendered blocks.
func (r *Recorder) FramesPerBlock() int {
	return r.framesPerBlock
}

// NumChannels returns recorded number of channels.
func (r *Recorder) NumChannels() int {
	return r.numChannels
}

// Start runs the render goroutine.
func (r *Recorder) Start(renderer audiograph.Renderer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("%w: %s", os.ErrClosed, r.path)
	}
	if r.done != nil {
		return audiograph.ErrDeviceRunning
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.render(renderer, r.stop, r.done)
	return nil
}

func (r *Recorder) render(renderer audiograph.Renderer, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		r.mu.Lock()
		left := r.framesPerBlock
		if r.maxFrames > 0 {
			left = min(left, r.maxFrames-r.frames)
		}
		r.mu.Unlock()
		if left <= 0 {
			return
		}

		block := renderer.Render()
		if err := r.write(block, left); err != nil {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
			return
		}
	}
}

func (r *Recorder) write(block signal.Float64, frames int) error {
	frames = min(frames, block.Size(), r.framesPerBlock)
	signal.Mix(r.mix, block)
	for c := range r.view {
		r.view[c] = r.mix[c][:frames]
	}
	r.buf.Data = r.buf.Data[:frames*r.numChannels]
	r.view.PutInterInt(r.buf.Data, signal.BitDepth(r.bitDepth))
	if err := r.encoder.Write(r.buf); err != nil {
		return fmt.Errorf("write %s: %w", r.path, err)
	}
	r.mu.Lock()
	r.frames += frames
	r.mu.Unlock()
	return nil
}

// Stop stops the render goroutine and waits for it.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// Wait blocks until the render goroutine exits.
func (r *Recorder) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// NumFrames returns the number of recorded frames.
func (r *Recorder) NumFrames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Err returns the first write error.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close stops rendering, finalizes headers and closes the file.
func (r *Recorder) Close() error {
	if err := r.Stop(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var encErr error
	if err := r.encoder.Close(); err != nil {
		encErr = fmt.Errorf("close %s: %w", r.path, err)
	}
	return errors.Join(encErr, r.file.Close())
}
