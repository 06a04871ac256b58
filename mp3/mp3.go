// Package mp3 provides mp3 file source for audio graph. Decoded stream is
// always 16 bit stereo.
package mp3

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/signal"
)

const (
	numChannels = 2
	// bytesPerFrame of decoded stream.
	bytesPerFrame = numChannels * 2
)

// Source streams decoded mp3 data.
type Source struct {
	path    string
	file    *os.File
	decoder *mp3.Decoder
	raw     []byte
	ints    []int
}

// Open opens mp3 file and decodes the first frame.
func Open(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &Source{
		path:    path,
		file:    file,
		decoder: decoder,
	}, nil
}

// NumChannels always returns 2.
func (s *Source) NumChannels() int {
	return numChannels
}

// SampleRate returns sample rate of the first frame.
func (s *Source) SampleRate() int {
	return s.decoder.SampleRate()
}

// NumFrames returns the number of decoded frames.
func (s *Source) NumFrames() int {
	return int(s.decoder.Length() / bytesPerFrame)
}

// Seek moves decoder to the frame.
func (s *Source) Seek(frame int) error {
	if frame < 0 || frame > s.NumFrames() {
		return fmt.Errorf("%w: frame %d of %d", audiograph.ErrSeekOutOfRange, frame, s.NumFrames())
	}
	if _, err := s.decoder.Seek(int64(frame*bytesPerFrame), io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", s.path, err)
	}
	return nil
}

// Read decodes next frames into dst.
func (s *Source) Read(dst signal.Float64) (int, error) {
	size := dst.Size() * bytesPerFrame
	if cap(s.raw) < size {
		s.raw = make([]byte, size)
		s.ints = make([]int, size/2)
	}
	s.raw = s.raw[:size]
	n, err := io.ReadFull(s.decoder, s.raw)
	switch {
	case n == 0 && (err == nil || errors.Is(err, io.EOF)):
		return 0, io.EOF
	case err != nil && !errors.Is(err, io.ErrUnexpectedEOF):
		return 0, fmt.Errorf("read %s: %w", s.path, err)
	}
	n -= n % bytesPerFrame
	ints := s.ints[:n/2]
	for i := range ints {
		ints[i] = int(int16(binary.LittleEndian.Uint16(s.raw[2*i:])))
	}
	return signal.InterInt{
		Data:        ints,
		NumChannels: numChannels,
		BitDepth:    signal.BitDepth16,
	}.CopyTo(dst), nil
}

// Close closes the file.
func (s *Source) Close() error {
	return s.file.Close()
}
