package audiograph

import (
	"math"
	"sync/atomic"
)

// RampFunc renders a ramp segment into values. Sample i is taken at
// normalized time tBegin + i*tStep, where 0 is the start and 1 is the end
// of the ramp.
type RampFunc func(values []float64, tBegin, tStep, valueBegin, valueEnd float64)

// easing returns a ramp function that shapes linear interpolation with
// ease. Ease maps [0, 1] to [0, 1].
func easing(ease func(t float64) float64) RampFunc {
	return func(values []float64, tBegin, tStep, valueBegin, valueEnd float64) {
		delta := valueEnd - valueBegin
		for i := range values {
			values[i] = valueBegin + delta*ease(tBegin+float64(i)*tStep)
		}
	}
}

var (
	// RampLinear interpolates with constant speed.
	RampLinear = easing(func(t float64) float64 { return t })
	// RampInQuad accelerates from zero velocity.
	RampInQuad = easing(func(t float64) float64 { return t * t })
	// RampOutQuad decelerates to zero velocity.
	RampOutQuad = easing(func(t float64) float64 { return -t * (t - 2) })
	// RampInOutQuad accelerates until halfway, then decelerates.
	RampInOutQuad = easing(easeInOutQuad)
	// RampOutInQuad decelerates until halfway, then accelerates.
	RampOutInQuad = easing(easeOutInQuad)
	// RampInCubic accelerates from zero velocity.
	RampInCubic = easing(func(t float64) float64 { return t * t * t })
	// RampOutCubic decelerates to zero velocity.
	RampOutCubic = easing(func(t float64) float64 {
		t--
		return t*t*t + 1
	})
	// RampInOutCubic accelerates until halfway, then decelerates.
	RampInOutCubic = easing(easeInOutCubic)
	// RampExpo changes exponentially, which sounds linear for gain.
	RampExpo = easing(easeInExpo)
)

func easeInOutQuad(t float64) float64 {
	t *= 2
	if t < 1 {
		return 0.5 * t * t
	}
	t--
	return -0.5 * (t*(t-2) - 1)
}

func easeOutInQuad(t float64) float64 {
	if t < 0.5 {
		t *= 2
		return -0.5 * t * (t - 2)
	}
	t = 2*t - 1
	return 0.5*t*t + 0.5
}

func easeInOutCubic(t float64) float64 {
	t *= 2
	if t < 1 {
		return 0.5 * t * t * t
	}
	t -= 2
	return 0.5 * (t*t*t + 2)
}

func easeInExpo(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return math.Pow(2, 10*(t-1))
}

// RampOption configures a ramp.
type RampOption func(*Ramp)

// Delayed postpones the start of ramp by seconds.
func Delayed(seconds float64) RampOption {
	return func(r *Ramp) {
		r.delay = max(0, seconds)
	}
}

// Easing sets the function that renders ramp.
func Easing(fn RampFunc) RampOption {
	return func(r *Ramp) {
		if fn != nil {
			r.fn = fn
		}
	}
}

// Ramp is a scheduled interpolation of param value. Ramp times are frames
// of processed time.
type Ramp struct {
	fn         RampFunc
	delay      float64
	frameBegin float64
	frameEnd   float64
	valueBegin float64
	valueEnd   float64
	canceled   atomic.Bool
}

func newRamp(valueBegin, valueEnd float64, opts []RampOption) *Ramp {
	r := &Ramp{
		fn:         RampLinear,
		valueBegin: valueBegin,
		valueEnd:   valueEnd,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cancel stops the ramp. Value stays where the ramp has left it.
func (r *Ramp) Cancel() {
	r.canceled.Store(true)
}

// IsCanceled reports if ramp was canceled.
func (r *Ramp) IsCanceled() bool {
	return r.canceled.Load()
}

// ValueBegin returns the value ramp starts from.
func (r *Ramp) ValueBegin() float64 {
	return r.valueBegin
}

// ValueEnd returns the value ramp ends with.
func (r *Ramp) ValueEnd() float64 {
	return r.valueEnd
}

// FrameBegin returns the processed frame ramp starts at.
func (r *Ramp) FrameBegin() float64 {
	return r.frameBegin
}

// FrameEnd returns the processed frame ramp ends at.
func (r *Ramp) FrameEnd() float64 {
	return r.frameEnd
}
