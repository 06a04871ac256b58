package portaudio

import (
	"sync"

	"pipelined.dev/audiograph/signal"
)

// ring is an interleaved float32 FIFO shared between capture callback and
// render goroutine. Frames that don't fit are dropped.
type ring struct {
	mu          sync.Mutex
	data        []float32
	numChannels int
	start       int
	size        int
	dropped     uint64
}

func newRing(numChannels, numFrames int) *ring {
	return &ring{
		data:        make([]float32, numChannels*numFrames),
		numChannels: numChannels,
	}
}

func (r *ring) capacity() int {
	return len(r.data) / r.numChannels
}

// write appends interleaved frames.
func (r *ring) write(in []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := len(in) / r.numChannels
	free := r.capacity() - r.size
	if frames > free {
		r.dropped += uint64(frames - free)
		frames = free
	}
	for i := 0; i < frames; i++ {
		pos := (r.start + r.size + i) % r.capacity()
		copy(r.data[pos*r.numChannels:(pos+1)*r.numChannels], in[i*r.numChannels:])
	}
	r.size += frames
}

// read moves up to dst.Size frames into dst and returns their number.
func (r *ring) read(dst signal.Float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := min(r.size, dst.Size())
	for i := 0; i < frames; i++ {
		pos := (r.start + i) % r.capacity()
		frame := r.data[pos*r.numChannels : (pos+1)*r.numChannels]
		for c := range dst {
			dst[c][i] = float64(frame[min(c, r.numChannels-1)])
		}
	}
	r.start = (r.start + frames) % r.capacity()
	r.size -= frames
	return frames
}

func (r *ring) overruns() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *ring) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = 0
	r.size = 0
}
