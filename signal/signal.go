// Package signal provides the sample containers used by the audio graph. It allows to:
// 	- allocate planar float64 blocks with a fixed frame count
// 	- mix and sum blocks with different channel counts
// 	- detect out-of-range samples
// 	- convert interleaved int data for file codecs
package signal

import (
	"math"
	"time"
)

// Float64 is a non-interleaved float64 signal. First dimension is channel,
// second is frame. All channels of a block have the same length.
type Float64 [][]float64

const (
	// BitDepth8 is 8 bit depth.
	BitDepth8 = BitDepth(8)
	// BitDepth16 is 16 bit depth.
	BitDepth16 = BitDepth(16)
	// BitDepth24 is 24 bit depth.
	BitDepth24 = BitDepth(24)
	// BitDepth32 is 32 bit depth.
	BitDepth32 = BitDepth(32)
)

// InterInt is an interleaved int signal.
type InterInt struct {
	Data        []int
	NumChannels int
	BitDepth
}

// BitDepth contains values required for int-to-float and backward conversion.
type BitDepth int

// devider is used when int to float conversion is done.
func (bitDepth BitDepth) devider() int {
	switch bitDepth {
	case BitDepth8:
		return math.MaxInt8
	case BitDepth16:
		return math.MaxInt16
	case BitDepth24:
		return 1<<23 - 1
	case BitDepth32:
		return math.MaxInt32
	default:
		return 1
	}
}

// multiplier is used when float to int conversion is done.
func (bitDepth BitDepth) multiplier() int {
	switch bitDepth {
	case BitDepth8:
		return math.MaxInt8 - 1
	case BitDepth16:
		return math.MaxInt16 - 1
	case BitDepth24:
		return 1<<23 - 2
	case BitDepth32:
		return math.MaxInt32 - 1
	default:
		return 1
	}
}

// DurationOf returns time duration of passed samples for this sample rate.
func DurationOf(sampleRate int, samples int64) time.Duration {
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// FramesOf returns the number of frames in seconds of signal at this sample rate,
// rounded to the nearest frame.
func FramesOf(sampleRate int, seconds float64) int64 {
	return int64(math.Round(seconds * float64(sampleRate)))
}

// CopyTo writes interleaved int signal into existing planar buffer and
// returns number of frames written. Channels missing in the source are left
// untouched, extra source channels are dropped.
func (ints InterInt) CopyTo(floats Float64) int {
	if ints.NumChannels == 0 || floats.NumChannels() == 0 {
		return 0
	}
	// incomplete last frame is counted
	frames := (len(ints.Data) + ints.NumChannels - 1) / ints.NumChannels
	if frames > floats.Size() {
		frames = floats.Size()
	}
	devider := float64(ints.BitDepth.devider())
	channels := min(ints.NumChannels, floats.NumChannels())
	for c := 0; c < channels; c++ {
		out := floats[c]
		for i, j := 0, c; i < frames && j < len(ints.Data); i, j = i+1, j+ints.NumChannels {
			out[i] = float64(ints.Data[j]) / devider
		}
	}
	return frames
}

// PutInterInt writes float64 signal into interleaved int slice. The slice
// must hold at least NumChannels*Size values.
func (floats Float64) PutInterInt(ints []int, bitDepth BitDepth) {
	numChannels := len(floats)
	// determine the multiplier for bit depth conversion
	multiplier := float64(bitDepth.multiplier())
	for j := range floats {
		for i := range floats[j] {
			ints[i*numChannels+j] = int(floats[j][i] * multiplier)
		}
	}
}

// Alloc returns a zeroed buffer of specified dimensions. All channels share
// one backing array.
func Alloc(numChannels, numFrames int) Float64 {
	if numChannels <= 0 {
		return nil
	}
	data := make([]float64, numChannels*numFrames)
	result := make([][]float64, numChannels)
	for i := range result {
		result[i] = data[i*numFrames : (i+1)*numFrames : (i+1)*numFrames]
	}
	return result
}

// Resize returns floats when it already has the requested dimensions and a
// new zeroed buffer otherwise.
func Resize(floats Float64, numChannels, numFrames int) Float64 {
	if floats.NumChannels() == numChannels && floats.Size() == numFrames {
		return floats
	}
	return Alloc(numChannels, numFrames)
}

// NumChannels returns number of channels in this sample slice
func (floats Float64) NumChannels() int {
	return len(floats)
}

// Size returns number of samples in single block in this sample slice
func (floats Float64) Size() int {
	if floats.NumChannels() == 0 {
		return 0
	}
	return len(floats[0])
}

// Channels returns a view of the first n channels. If buffer has fewer
// channels, it's returned as is.
func (floats Float64) Channels(n int) Float64 {
	if n >= len(floats) {
		return floats
	}
	return floats[:n]
}
