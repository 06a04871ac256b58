package signal

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Zero sets all samples to 0.
func (floats Float64) Zero() {
	for i := range floats {
		clear(floats[i])
	}
}

// ZeroFrom sets all samples starting from frame to 0.
func (floats Float64) ZeroFrom(frame int) {
	if frame < 0 {
		frame = 0
	}
	for i := range floats {
		if frame < len(floats[i]) {
			clear(floats[i][frame:])
		}
	}
}

// Fill sets all samples of every channel to v.
func (floats Float64) Fill(v float64) {
	for i := range floats {
		for j := range floats[i] {
			floats[i][j] = v
		}
	}
}

// Scale multiplies all samples by v.
func (floats Float64) Scale(v float64) {
	for i := range floats {
		vecmath.ScaleBlockInPlace(floats[i], v)
	}
}

// Multiply multiplies every channel by values sample by sample. Values must
// have the same length as the buffer channels.
func (floats Float64) Multiply(values []float64) {
	for i := range floats {
		vecmath.MulBlockInPlace(floats[i], values)
	}
}

// MaxAbs returns the largest absolute sample value of all channels.
func (floats Float64) MaxAbs() float64 {
	var result float64
	for i := range floats {
		if v := vecmath.MaxAbs(floats[i]); v > result || v != v {
			result = v
		}
	}
	return result
}

// Mix copies src into dst. If channel counts differ:
// 	- mono source is copied into every destination channel;
// 	- multichannel source is summed into mono destination;
// 	- otherwise common channels are copied and the rest of dst is zeroed.
func Mix(dst, src Float64) {
	if len(dst) == 0 || len(src) == 0 {
		return
	}
	n := min(dst.Size(), src.Size())
	switch {
	case len(dst) == len(src):
		for c := range dst {
			copy(dst[c][:n], src[c][:n])
		}
	case len(src) == 1:
		for c := range dst {
			copy(dst[c][:n], src[0][:n])
		}
	case len(dst) == 1:
		copy(dst[0][:n], src[0][:n])
		for c := 1; c < len(src); c++ {
			vecmath.AddBlockInPlace(dst[0][:n], src[c][:n])
		}
	default:
		for c := range dst {
			if c < len(src) {
				copy(dst[c][:n], src[c][:n])
			} else {
				clear(dst[c][:n])
			}
		}
	}
}

// Sum adds src to dst. Channel adaptation follows the same rules as Mix,
// channels of dst without a source counterpart are left untouched.
func Sum(dst, src Float64) {
	if len(dst) == 0 || len(src) == 0 {
		return
	}
	n := min(dst.Size(), src.Size())
	switch {
	case len(dst) == len(src):
		for c := range dst {
			vecmath.AddBlockInPlace(dst[c][:n], src[c][:n])
		}
	case len(src) == 1:
		for c := range dst {
			vecmath.AddBlockInPlace(dst[c][:n], src[0][:n])
		}
	case len(dst) == 1:
		for c := range src {
			vecmath.AddBlockInPlace(dst[0][:n], src[c][:n])
		}
	default:
		for c := 0; c < min(len(dst), len(src)); c++ {
			vecmath.AddBlockInPlace(dst[c][:n], src[c][:n])
		}
	}
}

// Threshold reports the first frame that holds a sample with absolute value
// above threshold, or a NaN or infinite sample. Frame is -1 if no such
// sample exists.
func Threshold(floats Float64, threshold float64) (frame int, found bool) {
	frame = -1
	for c := range floats {
		for i, s := range floats[c] {
			if frame != -1 && i >= frame {
				break
			}
			if math.Abs(s) > threshold || math.IsNaN(s) || math.IsInf(s, 0) {
				frame = i
				break
			}
		}
	}
	return frame, frame != -1
}
